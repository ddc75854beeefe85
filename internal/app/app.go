// Package app wires the relay together: config, logging, tenant store,
// Telegram source, Discord sink, slash commands, and the poll engine.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telerelay/internal/commands"
	"telerelay/internal/config"
	"telerelay/internal/relay"
	"telerelay/internal/runtime/supervisor"
	"telerelay/internal/sink/discord"
	"telerelay/internal/source/telegram"
	"telerelay/internal/tenant"
	logx "telerelay/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store  tenant.Store
	src    *telegram.Client
	sender *discord.Sender
	engine *relay.Engine
	cmds   *discord.Commands

	metricsSrv *http.Server
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logxConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// The Discord token never lives in the config file in production; the
	// environment (optionally loaded from .env by main) wins when set.
	token := strings.TrimSpace(os.Getenv("DISCORD_TOKEN"))
	if token == "" {
		token = strings.TrimSpace(cfg.Discord.Token)
	}
	if token == "" {
		return nil, fmt.Errorf("discord token missing: set DISCORD_TOKEN or discord.token")
	}

	busy, err := config.ParseDurationOrDefault("store.busy_timeout", cfg.Store.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	store, err := tenant.Open(tenant.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	httpTimeout, err := config.ParseDurationOrDefault("telegram.http_timeout", cfg.Telegram.HTTPTimeout, 10*time.Second)
	if err != nil {
		store.Close()
		return nil, err
	}
	src := telegram.NewClient(httpTimeout, log.With(logx.String("comp", "telegram")))

	sender, err := discord.NewSender(token, cfg.Delivery.RatePerSec, log.With(logx.String("comp", "discord")))
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := relay.NewEngine(store, src, sender, log.With(logx.String("comp", "relay")))

	svc := commands.New(store, src, engine, log.With(logx.String("comp", "commands")))
	cmds := discord.NewCommands(sender.Session(), svc, log.With(logx.String("comp", "commands")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		store:   store,
		src:     src,
		sender:  sender,
		engine:  engine,
		cmds:    cmds,
	}, nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    cfg.Logging.Discord.Enabled,
			MinLevel:   cfg.Logging.Discord.MinLevel,
			RatePerSec: cfg.Logging.Discord.RatePerSec,
		},
	}
}

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Reject bad hot-reloads before they are committed or published.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationOrDefault("telegram.http_timeout", cfg.Telegram.HTTPTimeout, 10*time.Second); err != nil {
			return err
		}
		if _, err := config.ParseDurationOrDefault("store.busy_timeout", cfg.Store.BusyTimeout, 0); err != nil {
			return err
		}
		if cfg.Delivery.RatePerSec < 0 {
			return fmt.Errorf("delivery.rate_per_sec must be >= 0")
		}
		return nil
	})

	if err := a.sender.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	// Route warn+ logs to the ops channel now that the session is up.
	cfg := a.cfgm.Get()
	a.logs.SetForwarder(a.sender)
	a.logs.SetDiscordTarget(cfg.Discord.OpsChannel)

	// Command registration can fail transiently right after gateway connect.
	a.sup.GoRestart("discord.command_sync", a.cmds.Sync,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithMaxRestarts(10))

	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		a.startMetrics(cfg.Metrics.Addr)
	}

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logxConfig(cfg))
	a.logs.SetDiscordTarget(cfg.Discord.OpsChannel)
	a.sender.SetRate(cfg.Delivery.RatePerSec)
	a.log.Info("config reloaded")
}

func (a *App) startMetrics(addr string) {
	if strings.TrimSpace(addr) == "" {
		addr = "127.0.0.1:9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux}

	a.sup.Go0("metrics.http", func(c context.Context) {
		a.log.Info("metrics listening", logx.String("addr", addr))
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server stopped", logx.Err(err))
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Each shutdown step is bounded so one component cannot stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("relay", 4*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	if a.metricsSrv != nil {
		step("metrics", 2*time.Second, func(c context.Context) error { return a.metricsSrv.Shutdown(c) })
	}
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	// Detach the log sink before closing the session it writes through.
	a.logs.SetForwarder(nil)
	step("discord", 2*time.Second, func(context.Context) error { return a.sender.Close() })
	step("store", time.Second, func(context.Context) error { return a.store.Close() })

	_ = a.logs.Close()
	return nil
}
