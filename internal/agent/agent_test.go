package agent

import (
	"context"
	"testing"
)

type fakeProvider struct {
	resp Response
	err  error
}

func (f *fakeProvider) Generate(ctx context.Context, req Request) (Response, error) {
	return f.resp, f.err
}

func TestFakeProviderSatisfiesInterface(t *testing.T) {
	var p Provider = &fakeProvider{resp: Response{Text: "four"}}
	resp, err := p.Generate(context.Background(), Request{Query: "what is two plus two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "four" {
		t.Fatalf("got %q, want four", resp.Text)
	}
}

func TestBuildMessagesTextOnly(t *testing.T) {
	msgs := buildMessages(Request{Query: "hello"})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want system+user", len(msgs))
	}
	if msgs[1].Content != "hello" {
		t.Fatalf("got %q", msgs[1].Content)
	}
}

func TestBuildMessagesWithPhotoUsesMultiContent(t *testing.T) {
	msgs := buildMessages(Request{
		Query:  "what am I looking at",
		Photos: []Photo{{Bytes: []byte{1, 2, 3}, MimeType: "image/jpeg"}},
	})
	last := msgs[len(msgs)-1]
	if len(last.MultiContent) != 2 {
		t.Fatalf("expected text + image parts, got %d", len(last.MultiContent))
	}
}

func TestBuildMessagesIncludesHistory(t *testing.T) {
	msgs := buildMessages(Request{
		Query:   "and after that",
		History: []HistoryTurn{{Role: "user", Content: "what's first"}, {Role: "assistant", Content: "coffee"}},
	})
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want system+2 history+user", len(msgs))
	}
}

func TestSystemPromptIncludesLocationAndTimezone(t *testing.T) {
	got := systemPrompt(Request{Location: "Tokyo", Timezone: "Asia/Tokyo"})
	if !contains(got, "Tokyo") || !contains(got, "Asia/Tokyo") {
		t.Fatalf("system prompt missing context: %q", got)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
