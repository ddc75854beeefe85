package relay

import "testing"

func TestNormalizeGroupVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     RawUpdate
		body   string
		author string
	}{
		{
			name:   "plain text",
			in:     RawUpdate{Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Text: "hello"}},
			body:   "hello",
			author: "Ada | News",
		},
		{
			name:   "full name",
			in:     RawUpdate{Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", LastName: "Lovelace", Text: "hi"}},
			body:   "hi",
			author: "Ada Lovelace | News",
		},
		{
			name:   "caption only",
			in:     RawUpdate{Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Caption: "a photo"}},
			body:   "[media] a photo",
			author: "Ada | News",
		},
		{
			name:   "caption and text merge",
			in:     RawUpdate{Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Caption: "a photo", Text: "context"}},
			body:   "[media] a photo\ncontext",
			author: "Ada | News",
		},
		{
			name:   "anonymous sender falls back to chat title",
			in:     RawUpdate{Group: &GroupMessage{ChatTitle: "News", Text: "hello"}},
			body:   "hello",
			author: "News",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if got == nil {
				t.Fatalf("Normalize returned nil")
			}
			if got.Kind != KindGroup {
				t.Fatalf("Kind = %v, want %v", got.Kind, KindGroup)
			}
			if got.Body != tt.body {
				t.Fatalf("Body = %q, want %q", got.Body, tt.body)
			}
			if got.Author != tt.author {
				t.Fatalf("Author = %q, want %q", got.Author, tt.author)
			}
		})
	}
}

func TestNormalizeChannelVariants(t *testing.T) {
	t.Parallel()

	got := Normalize(RawUpdate{Channel: &ChannelPost{ChatTitle: "Updates", Signature: "Editor", Text: "release"}})
	if got == nil {
		t.Fatal("Normalize returned nil")
	}
	if got.Kind != KindChannel {
		t.Fatalf("Kind = %v, want %v", got.Kind, KindChannel)
	}
	if got.Author != "Editor | Updates" {
		t.Fatalf("Author = %q", got.Author)
	}
	if got.Body != "release" {
		t.Fatalf("Body = %q", got.Body)
	}

	unsigned := Normalize(RawUpdate{Channel: &ChannelPost{ChatTitle: "Updates", Text: "release"}})
	if unsigned == nil || unsigned.Author != "Updates" {
		t.Fatalf("unsigned post author = %+v, want chat title", unsigned)
	}
}

func TestNormalizeDropsEmptyAndUnsupported(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   RawUpdate
	}{
		{name: "no payload", in: RawUpdate{Position: 7}},
		{name: "empty group message", in: RawUpdate{Group: &GroupMessage{ChatTitle: "News"}}},
		{name: "empty channel post", in: RawUpdate{Channel: &ChannelPost{ChatTitle: "Updates"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != nil {
				t.Fatalf("Normalize = %+v, want nil", got)
			}
		})
	}
}

func TestRenderFormat(t *testing.T) {
	t.Parallel()
	m := CanonicalMessage{Author: "Ada | News", Body: "hello"}
	if got := m.Render(); got != "**Ada | News**\nhello" {
		t.Fatalf("Render = %q", got)
	}
}
