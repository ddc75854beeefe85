package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"telerelay/internal/relay"
	logx "telerelay/pkg/logx"
)

// Client polls the Telegram Bot API on behalf of many credentials. Each
// credential gets one offline telebot instance (no getMe handshake, no
// long-poll loop of its own) used purely for raw getUpdates/getMe calls; all
// instances share one HTTP client.
type Client struct {
	log  logx.Logger
	http *http.Client

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

// Identity describes the bot account behind a credential.
type Identity struct {
	ID       int64
	Username string
	Name     string
}

func NewClient(timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		log:  log,
		http: &http.Client{Timeout: timeout},
		bots: map[string]*tele.Bot{},
	}
}

func (c *Client) bot(credential string) (*tele.Bot, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errors.New("empty credential")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bots[credential]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   credential,
		Offline: true,
		Client:  c.http,
	})
	if err != nil {
		return nil, err
	}
	c.bots[credential] = b
	return b, nil
}

// Forget drops the cached bot for a credential (after unlink, or when a
// credential is replaced).
func (c *Client) Forget(credential string) {
	c.mu.Lock()
	delete(c.bots, credential)
	c.mu.Unlock()
}

// Fetch issues exactly one getUpdates call for updates strictly newer than
// cursor and returns the decoded batch plus the highest position seen. The
// cursor itself is never mutated here.
func (c *Client) Fetch(ctx context.Context, credential string, cursor int64) ([]relay.RawUpdate, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, relay.Transient(err)
	}
	b, err := c.bot(credential)
	if err != nil {
		return nil, 0, relay.Unauthorized(err)
	}

	// Exclusive-below semantics: acknowledging N means asking for N+1 next.
	params := struct {
		Offset  int64 `json:"offset,omitempty"`
		Timeout int   `json:"timeout"`
	}{Timeout: 0}
	if cursor > 0 {
		params.Offset = cursor + 1
	}

	data, err := b.Raw("getUpdates", params)
	if err != nil {
		return nil, 0, classify(err)
	}

	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, 0, relay.Transient(fmt.Errorf("decode getUpdates: %w", err))
	}

	batch, highest := decodeBatch(resp.Result, cursor)
	return batch, highest, nil
}

// Verify checks a credential against the upstream and returns the bot account
// it belongs to. A 401/404-style response means the token is invalid.
func (c *Client) Verify(ctx context.Context, credential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, relay.Transient(err)
	}
	b, err := c.bot(credential)
	if err != nil {
		return Identity{}, relay.Unauthorized(err)
	}

	data, err := b.Raw("getMe", nil)
	if err != nil {
		return Identity{}, classify(err)
	}

	var resp struct {
		Result *tele.User `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return Identity{}, relay.Transient(fmt.Errorf("decode getMe: %w", err))
	}
	if resp.Result == nil {
		return Identity{}, relay.Transient(errors.New("getMe: empty result"))
	}

	u := resp.Result
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Name:     strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName)),
	}, nil
}

// classify maps API failures onto the relay taxonomy. The Bot API answers an
// invalid token with 401 (bad secret) or 404 (malformed path); anything else,
// including flood waits and transport errors, is treated as transient.
func classify(err error) error {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound {
			return relay.Unauthorized(err)
		}
	}
	return relay.Transient(err)
}
