// Package discord adapts the relay to its destination platform: rate-limited
// channel sends plus the slash-command surface.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	logx "telerelay/pkg/logx"
)

const defaultSendRate = 5 // messages per second across all tenants

// Sender owns the Discord gateway session and delivers relayed messages.
// Sends are globally rate-limited so a busy Telegram chat cannot trip
// Discord's API limits on behalf of every tenant at once.
type Sender struct {
	log logx.Logger
	s   *discordgo.Session

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewSender(token string, ratePerSec int, log logx.Logger) (*Sender, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	// The relay only sends and serves interactions; no message-content intent.
	s.Identify.Intents = discordgo.IntentsGuilds

	if ratePerSec <= 0 {
		ratePerSec = defaultSendRate
	}
	return &Sender{
		log:     log,
		s:       s,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}, nil
}

// Session exposes the underlying session for the command surface.
func (d *Sender) Session() *discordgo.Session { return d.s }

func (d *Sender) Open() error {
	if err := d.s.Open(); err != nil {
		return err
	}
	d.log.Info("discord session open", logx.String("user", d.s.State.User.Username))
	return nil
}

func (d *Sender) Close() error { return d.s.Close() }

// SetRate applies a new send rate (config hot reload).
func (d *Sender) SetRate(ratePerSec int) {
	if ratePerSec <= 0 {
		ratePerSec = defaultSendRate
	}
	d.mu.Lock()
	d.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	d.mu.Unlock()
}

// messageLimit is Discord's per-message cap, counted in characters.
const messageLimit = 2000

// clampMessage truncates overlong bodies on a rune boundary so a cut never
// produces invalid UTF-8 mid-character.
func clampMessage(text string) string {
	if utf8.RuneCountInString(text) <= messageLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:messageLimit-3]) + "..."
}

// Send delivers one message to one channel. Bodies beyond Discord's limit are
// truncated rather than split: relayed chat messages are short, and a hard
// cap keeps one giant paste from flooding a channel.
func (d *Sender) Send(ctx context.Context, targetID, text string) error {
	d.mu.Lock()
	lim := d.limiter
	d.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	_, err := d.s.ChannelMessageSend(targetID, clampMessage(text), discordgo.WithContext(ctx))
	return err
}

// ForwardLog implements logx.Forwarder for the ops-channel log sink. It
// bypasses the send limiter; logx applies its own rate limit.
func (d *Sender) ForwardLog(ctx context.Context, channelID, text string) error {
	_, err := d.s.ChannelMessageSend(channelID, clampMessage(text), discordgo.WithContext(ctx))
	return err
}
