package discord

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClampMessage(t *testing.T) {
	t.Parallel()

	if got := clampMessage("short"); got != "short" {
		t.Fatalf("short body changed: %q", got)
	}

	exact := strings.Repeat("x", messageLimit)
	if got := clampMessage(exact); got != exact {
		t.Fatalf("body at the limit must pass unchanged, got %d chars", utf8.RuneCountInString(got))
	}

	over := strings.Repeat("x", messageLimit+50)
	got := clampMessage(over)
	if utf8.RuneCountInString(got) != messageLimit {
		t.Fatalf("clamped length = %d runes, want %d", utf8.RuneCountInString(got), messageLimit)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("clamped body missing ellipsis: %q", got[len(got)-10:])
	}
}

func TestClampMessageKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// Multi-byte characters near the cut point must never be split.
	over := strings.Repeat("日本語テキスト", 500)
	if utf8.RuneCountInString(over) <= messageLimit {
		t.Fatal("test input too short")
	}

	got := clampMessage(over)
	if !utf8.ValidString(got) {
		t.Fatal("clamped body is not valid UTF-8")
	}
	if utf8.RuneCountInString(got) != messageLimit {
		t.Fatalf("clamped length = %d runes, want %d", utf8.RuneCountInString(got), messageLimit)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatal("clamped body missing ellipsis")
	}
}
