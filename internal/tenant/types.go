package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("tenant not found")
	ErrExists   = errors.New("tenant already linked")
)

// Tenant is one destination-side configuration: a Discord server that linked a
// Telegram bot token and relays subscribed chats into one target channel.
//
// Invariant: SubscribedChats is always a subset of KnownChats.
type Tenant struct {
	ID string `json:"-"` // key in the persisted document

	Credential string `json:"telegram_token"`
	Target     string `json:"channel_id"`

	// KnownChats lists every chat title ever observed for this tenant, in
	// discovery order. SubscribedChats is the subset the tenant wants delivered.
	KnownChats      []string `json:"known_chats"`
	SubscribedChats []string `json:"subscribed_chats"`
}

func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	cp := *t
	cp.KnownChats = append([]string(nil), t.KnownChats...)
	cp.SubscribedChats = append([]string(nil), t.SubscribedChats...)
	return &cp
}

func (t *Tenant) Knows(title string) bool {
	for _, c := range t.KnownChats {
		if c == title {
			return true
		}
	}
	return false
}

func (t *Tenant) IsSubscribed(title string) bool {
	for _, c := range t.SubscribedChats {
		if c == title {
			return true
		}
	}
	return false
}

// AddKnown records a newly discovered chat title. It reports whether the title
// was actually appended (false when already known or empty).
func (t *Tenant) AddKnown(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" || t.Knows(title) {
		return false
	}
	t.KnownChats = append(t.KnownChats, title)
	return true
}

// ToggleSubscription flips the subscription state for a known chat title and
// reports the new state. Toggling an unknown chat is an error (the subscribed
// set must stay a subset of the known set).
func (t *Tenant) ToggleSubscription(title string) (bool, error) {
	if !t.Knows(title) {
		return false, fmt.Errorf("unknown chat %q", title)
	}
	for i, c := range t.SubscribedChats {
		if c == title {
			t.SubscribedChats = append(t.SubscribedChats[:i], t.SubscribedChats[i+1:]...)
			return false, nil
		}
	}
	t.SubscribedChats = append(t.SubscribedChats, title)
	return true, nil
}

// Validate checks structural invariants before a record is persisted.
func (t *Tenant) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tenant id is empty")
	}
	if strings.TrimSpace(t.Credential) == "" {
		return errors.New("tenant credential is empty")
	}
	if strings.TrimSpace(t.Target) == "" {
		return errors.New("tenant target is empty")
	}
	for _, s := range t.SubscribedChats {
		if !t.Knows(s) {
			return fmt.Errorf("subscribed chat %q is not in known chats", s)
		}
	}
	return nil
}
