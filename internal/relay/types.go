package relay

import "context"

// Kind distinguishes the two upstream message shapes the relay understands.
type Kind string

const (
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

// RawUpdate is one wire-level update from the source, a tagged variant over
// origin kind. At most one of Group/Channel is set; an update with neither is
// an unsupported shape (service event, private chat, sticker-only edit) and
// normalizes to nothing.
type RawUpdate struct {
	// Position is the upstream update id. Acknowledging N means requesting
	// strictly newer than N next cycle.
	Position int64

	Group   *GroupMessage
	Channel *ChannelPost
}

// GroupMessage is a message posted in a group or supergroup chat.
type GroupMessage struct {
	ChatTitle string
	FirstName string
	LastName  string
	Text      string
	Caption   string
}

// ChannelPost is a post in a broadcast channel.
type ChannelPost struct {
	ChatTitle string
	Signature string
	Text      string
}

// CanonicalMessage is the normalized, transient form consumed by the router.
type CanonicalMessage struct {
	ChatTitle string
	Author    string
	Body      string
	Kind      Kind
}

// Poller fetches all updates strictly newer than cursor for one credential.
// It issues exactly one upstream request per call and never mutates the
// cursor; Offsets owns advancement. Errors carry a FailureKind.
type Poller interface {
	Fetch(ctx context.Context, credential string, cursor int64) (batch []RawUpdate, highest int64, err error)
}

// Sender delivers one rendered message to one destination channel.
type Sender interface {
	Send(ctx context.Context, targetID, text string) error
}
