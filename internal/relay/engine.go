package relay

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"telerelay/internal/metrics"
	"telerelay/internal/tenant"
	logx "telerelay/pkg/logx"
)

// pollInterval is a design constant, not a config knob: one bounded-latency
// cycle across all credentials every few seconds, matching the upstream's
// short-poll getUpdates model.
const pollInterval = 5 * time.Second

// Engine drives the fixed-interval polling cycle: group tenants by credential,
// fetch once per credential, normalize, route, then advance the cursor.
type Engine struct {
	store   tenant.Store
	poller  Poller
	router  *Router
	offsets *Offsets
	log     logx.Logger

	// running makes RunCycle non-reentrant even when invoked directly; the
	// cron chain additionally skips overlapping ticks.
	running atomic.Bool

	// credMu guards flagged credentials (unauthorized upstream responses)
	// surfaced through the command surface.
	credMu   sync.Mutex
	credErrs map[string]string

	cronMu sync.Mutex
	c      *cron.Cron
}

func NewEngine(store tenant.Store, poller Poller, send Sender, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:    store,
		poller:   poller,
		router:   NewRouter(store, send, log.With(logx.String("comp", "router"))),
		offsets:  NewOffsets(),
		log:      log,
		credErrs: map[string]string{},
	}
}

// cronLogger adapts logx to cron.Logger. Cron chatter stays at debug.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn(msg, logx.Err(err), logx.Any("kv", kv))
}

// Start begins the polling loop. Cycles stop when ctx is canceled or Stop is
// called, whichever comes first.
func (e *Engine) Start(ctx context.Context) error {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if e.c != nil {
		return nil
	}

	cl := cronLogger{log: e.log}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc("@every "+pollInterval.String(), func() {
		if ctx.Err() != nil {
			return
		}
		e.RunCycle(ctx)
	})
	if err != nil {
		return err
	}
	c.Start()
	e.c = c

	e.log.Info("relay engine started", logx.Duration("interval", pollInterval))
	return nil
}

// Stop halts the loop and waits (bounded by ctx) for an in-flight cycle.
func (e *Engine) Stop(ctx context.Context) {
	e.cronMu.Lock()
	c := e.c
	e.c = nil
	e.cronMu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("relay engine stop timed out with a cycle in flight")
	}
}

// RunCycle executes one full polling cycle across all credentials. A failing
// credential is skipped wholesale, leaving its cursor untouched; it never
// prevents other credentials from being processed.
func (e *Engine) RunCycle(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	defer e.running.Store(false)

	metrics.CyclesTotal.Inc()
	log := e.log.With(logx.String("cycle", uuid.NewString()[:8]))

	tenants, err := e.store.List(ctx)
	if err != nil {
		log.Error("tenant list failed, cycle skipped", logx.Err(err))
		return
	}

	groups := GroupByCredential(tenants)
	e.offsets.Prune(groups)
	e.pruneFlags(groups)

	creds := make([]string, 0, len(groups))
	for cred := range groups {
		creds = append(creds, cred)
	}
	sort.Strings(creds)

	for _, cred := range creds {
		if ctx.Err() != nil {
			return
		}
		e.pollCredential(ctx, log, cred, groups[cred])
	}
}

func (e *Engine) pollCredential(ctx context.Context, log logx.Logger, cred string, tenantIDs []string) {
	cursor := e.offsets.Cursor(cred)
	batch, highest, err := e.poller.Fetch(ctx, cred, cursor)
	if err != nil {
		kind := FailureOf(err)
		metrics.PollFailures.WithLabelValues(kind.String()).Inc()
		if kind == FailureUnauthorized {
			e.flagCredential(cred, err.Error())
			log.Warn("credential rejected by upstream; waiting for operator correction",
				logx.Int("tenants", len(tenantIDs)),
				logx.Err(err),
			)
			return
		}
		// Transient failures stay quiet; the cursor is untouched and the
		// credential is retried next cycle.
		log.Debug("poll failed; will retry next cycle", logx.Err(err))
		return
	}
	e.clearCredential(cred)

	if len(batch) == 0 {
		return
	}
	metrics.UpdatesFetched.Add(float64(len(batch)))

	msgs := make([]CanonicalMessage, 0, len(batch))
	for _, u := range batch {
		if m := Normalize(u); m != nil {
			msgs = append(msgs, *m)
		}
	}

	e.router.Route(ctx, cred, msgs, tenantIDs)

	// Advance only after the batch is fully handed off: a crash in between
	// redelivers, it never loses.
	e.offsets.Advance(cred, highest)

	log.Debug("credential cycle complete",
		logx.Int("updates", len(batch)),
		logx.Int("messages", len(msgs)),
		logx.Int("tenants", len(tenantIDs)),
		logx.Int64("cursor", highest),
	)
}

func (e *Engine) flagCredential(cred, issue string) {
	e.credMu.Lock()
	e.credErrs[cred] = issue
	e.credMu.Unlock()
}

func (e *Engine) clearCredential(cred string) {
	e.credMu.Lock()
	delete(e.credErrs, cred)
	e.credMu.Unlock()
}

func (e *Engine) pruneFlags(groups map[string][]string) {
	e.credMu.Lock()
	for cred := range e.credErrs {
		if _, ok := groups[cred]; !ok {
			delete(e.credErrs, cred)
		}
	}
	e.credMu.Unlock()
}

// CredentialIssue reports the last upstream rejection recorded for a
// credential, if any. The command surface uses this to tell operators their
// token needs correction.
func (e *Engine) CredentialIssue(cred string) (string, bool) {
	e.credMu.Lock()
	defer e.credMu.Unlock()
	issue, ok := e.credErrs[cred]
	return issue, ok
}
