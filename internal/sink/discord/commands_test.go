package discord

import (
	"strings"
	"testing"
)

func TestWriteChatLines(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("Subscribed:")
	writeChatLines(&b, []string{"News", "Chatter"})
	got := b.String()
	if got != "Subscribed:\n- News\n- Chatter\n" {
		t.Fatalf("writeChatLines = %q", got)
	}

	b.Reset()
	b.WriteString("Available:")
	writeChatLines(&b, nil)
	if b.String() != "Available: (none)\n" {
		t.Fatalf("empty list = %q", b.String())
	}
}
