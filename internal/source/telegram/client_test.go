package telegram

import (
	"fmt"
	"testing"
	"time"

	logx "telerelay/pkg/logx"
)

func TestBotCacheReuseAndForget(t *testing.T) {
	t.Parallel()
	c := NewClient(time.Second, logx.Nop())

	b1, err := c.bot("123:alpha")
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	b2, err := c.bot("123:alpha")
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	if b1 != b2 {
		t.Fatal("same credential must reuse the cached instance")
	}
	if len(c.bots) != 1 {
		t.Fatalf("cache size = %d, want 1", len(c.bots))
	}

	c.Forget("123:alpha")
	if len(c.bots) != 0 {
		t.Fatalf("cache size after Forget = %d, want 0", len(c.bots))
	}

	b3, err := c.bot("123:alpha")
	if err != nil {
		t.Fatalf("bot after Forget: %v", err)
	}
	if b3 == b1 {
		t.Fatal("Forget must drop the old instance")
	}
}

func TestBotCacheBoundedByForget(t *testing.T) {
	t.Parallel()
	c := NewClient(time.Second, logx.Nop())

	// A credential that is cached and then released leaves nothing behind,
	// no matter how many distinct tokens pass through.
	for i := 0; i < 25; i++ {
		cred := fmt.Sprintf("%d:token", i)
		if _, err := c.bot(cred); err != nil {
			t.Fatalf("bot(%s): %v", cred, err)
		}
		c.Forget(cred)
	}
	if len(c.bots) != 0 {
		t.Fatalf("cache holds %d entries, want 0 after release", len(c.bots))
	}
}

func TestBotRejectsEmptyCredential(t *testing.T) {
	t.Parallel()
	c := NewClient(time.Second, logx.Nop())
	if _, err := c.bot("  "); err == nil {
		t.Fatal("blank credential must be rejected")
	}
	if len(c.bots) != 0 {
		t.Fatalf("rejected credential must not be cached, size = %d", len(c.bots))
	}
}
