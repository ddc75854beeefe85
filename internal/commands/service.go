// Package commands implements the tenant-facing operations behind the Discord
// slash commands: link, unlink, chat listing, subscription toggling and info.
// It is transport-agnostic; the Discord layer only parses interactions and
// formats replies.
package commands

import (
	"context"
	"errors"
	"strings"

	"telerelay/internal/relay"
	"telerelay/internal/source/telegram"
	"telerelay/internal/tenant"
	logx "telerelay/pkg/logx"
)

var (
	ErrNotLinked     = errors.New("no Telegram bot account is linked yet")
	ErrAlreadyLinked = errors.New("a Telegram bot account is already linked")
	ErrInvalidToken  = errors.New("invalid token")
)

// Source verifies credentials against the upstream. Forget releases any
// client state cached for a credential once it is no longer in use.
type Source interface {
	Verify(ctx context.Context, credential string) (telegram.Identity, error)
	Forget(credential string)
}

// CredentialStatus reports upstream rejections observed by the polling engine.
type CredentialStatus interface {
	CredentialIssue(credential string) (string, bool)
}

type Service struct {
	store  tenant.Store
	src    Source
	status CredentialStatus
	log    logx.Logger
}

func New(store tenant.Store, src Source, status CredentialStatus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, src: src, status: status, log: log}
}

// Link validates the credential upstream, then creates a fresh tenant record.
// A tenant that already has a credential must unlink first; relinking never
// inherits chat state from a previous link.
func (s *Service) Link(ctx context.Context, tenantID, credential, target string) (telegram.Identity, error) {
	credential = strings.TrimSpace(credential)
	target = strings.TrimSpace(target)

	if _, err := s.store.Get(ctx, tenantID); err == nil {
		return telegram.Identity{}, ErrAlreadyLinked
	} else if !errors.Is(err, tenant.ErrNotFound) {
		return telegram.Identity{}, err
	}

	id, err := s.src.Verify(ctx, credential)
	if err != nil {
		// The credential was never linked; drop whatever the source cached
		// for it so rejected tokens don't accumulate.
		s.src.Forget(credential)
		if relay.IsUnauthorized(err) {
			return telegram.Identity{}, ErrInvalidToken
		}
		return telegram.Identity{}, err
	}

	t := &tenant.Tenant{
		ID:         tenantID,
		Credential: credential,
		Target:     target,
	}
	if err := s.store.Create(ctx, t); err != nil {
		if errors.Is(err, tenant.ErrExists) {
			return telegram.Identity{}, ErrAlreadyLinked
		}
		return telegram.Identity{}, err
	}

	s.log.Info("tenant linked", logx.String("tenant", tenantID), logx.String("bot", id.Username))
	return id, nil
}

// Unlink removes the whole tenant record, chat state included, and releases
// the source client cached for its credential.
func (s *Service) Unlink(ctx context.Context, tenantID string) error {
	t, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		return ErrNotLinked
	}
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, tenantID); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}

	// A shared credential may be forgotten here too; the poller recreates its
	// client on the next fetch for the remaining tenants.
	s.src.Forget(t.Credential)
	s.log.Info("tenant unlinked", logx.String("tenant", tenantID))
	return nil
}

// ChatList is the subscription view for one tenant: chats currently delivered
// and discovered chats available to subscribe to.
type ChatList struct {
	Subscribed []string
	Available  []string
}

func (s *Service) ListChats(ctx context.Context, tenantID string) (ChatList, error) {
	t, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		return ChatList{}, ErrNotLinked
	}
	if err != nil {
		return ChatList{}, err
	}

	var out ChatList
	out.Subscribed = append(out.Subscribed, t.SubscribedChats...)
	for _, c := range t.KnownChats {
		if !t.IsSubscribed(c) {
			out.Available = append(out.Available, c)
		}
	}
	return out, nil
}

// ToggleSubscription flips delivery for a known chat and reports the new
// state. Toggling twice is an involution: the tenant ends up where it started.
func (s *Service) ToggleSubscription(ctx context.Context, tenantID, chatTitle string) (bool, error) {
	chatTitle = strings.TrimSpace(chatTitle)
	var subscribed bool
	err := s.store.Update(ctx, tenantID, func(t *tenant.Tenant) error {
		var terr error
		subscribed, terr = t.ToggleSubscription(chatTitle)
		return terr
	})
	if errors.Is(err, tenant.ErrNotFound) {
		return false, ErrNotLinked
	}
	if err != nil {
		return false, err
	}
	return subscribed, nil
}

// Info describes a tenant's link state for the operator.
type Info struct {
	Identity telegram.Identity
	Target   string

	// CredentialIssue is set when the poll loop has flagged the credential as
	// rejected upstream; the link stays in place until a human corrects it.
	CredentialIssue string
}

func (s *Service) Info(ctx context.Context, tenantID string) (Info, error) {
	t, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		return Info{}, ErrNotLinked
	}
	if err != nil {
		return Info{}, err
	}

	out := Info{Target: t.Target}
	if s.status != nil {
		if issue, ok := s.status.CredentialIssue(t.Credential); ok {
			out.CredentialIssue = issue
		}
	}

	id, err := s.src.Verify(ctx, t.Credential)
	if err != nil {
		if relay.IsUnauthorized(err) {
			out.CredentialIssue = "token rejected by Telegram"
			return out, nil
		}
		return Info{}, err
	}
	out.Identity = id
	return out, nil
}
