package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/switchboardai/switchboard/pkg/chat"
)

type stubAdapter struct {
	name     string
	performs int
	streams  int
}

func (s *stubAdapter) Perform(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	s.performs++
	return &chat.Response{
		Role:   chat.RoleAssistant,
		Blocks: []chat.Block{chat.TextBlock("from " + s.name)},
	}, nil
}

func (s *stubAdapter) Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error) {
	s.streams++
	ch := make(chan *chat.Response, 2)
	idx := 0
	ch <- &chat.Response{Delta: &chat.Delta{Index: &idx, Text: "from " + s.name}}
	ch <- &chat.Response{StopReason: chat.StopReasonEndTurn, Delta: &chat.Delta{}}
	close(ch)
	return ch, nil
}

func modelPrefix(prefix string) Predicate {
	return func(req *chat.Request) bool {
		return strings.HasPrefix(req.Model, prefix)
	}
}

func TestDispatcher_Perform_FirstMatch(t *testing.T) {
	claude := &stubAdapter{name: "claude"}
	gpt := &stubAdapter{name: "gpt"}

	d := New()
	d.Register(claude, modelPrefix("claude"))
	d.Register(gpt, modelPrefix("gpt"))

	resp, err := d.Perform(context.Background(), &chat.Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}
	if resp.Text() != "from gpt" {
		t.Errorf("Perform() routed to wrong adapter: %q", resp.Text())
	}
	if claude.performs != 0 || gpt.performs != 1 {
		t.Errorf("adapter call counts wrong: claude=%d gpt=%d", claude.performs, gpt.performs)
	}
}

func TestDispatcher_Perform_RegistrationOrderWins(t *testing.T) {
	first := &stubAdapter{name: "first"}
	second := &stubAdapter{name: "second"}

	// Both predicates match every request; the first registered wins.
	d := New()
	d.Register(first, nil)
	d.Register(second, nil)

	resp, err := d.Perform(context.Background(), &chat.Request{Model: "anything"})
	if err != nil {
		t.Fatalf("Perform() error = %v", err)
	}
	if resp.Text() != "from first" {
		t.Errorf("Perform() = %q, want first registered adapter", resp.Text())
	}
}

func TestDispatcher_Perform_NoProvider(t *testing.T) {
	claude := &stubAdapter{name: "claude"}

	d := New()
	d.Register(claude, modelPrefix("claude"))

	_, err := d.Perform(context.Background(), &chat.Request{Model: "llama3.2"})
	if !errors.Is(err, chat.ErrNoProvider) {
		t.Fatalf("Perform() error = %v, want ErrNoProvider", err)
	}
	if claude.performs != 0 {
		t.Error("Perform() touched an adapter that should not match")
	}
}

func TestDispatcher_Stream_NoProvider(t *testing.T) {
	d := New()

	_, err := d.Stream(context.Background(), &chat.Request{Model: "gpt-4o"})
	if !errors.Is(err, chat.ErrNoProvider) {
		t.Fatalf("Stream() error = %v, want ErrNoProvider", err)
	}
}

func TestDispatcher_Stream(t *testing.T) {
	gpt := &stubAdapter{name: "gpt"}

	d := New()
	d.Register(gpt, modelPrefix("gpt"))

	ch, err := d.Stream(context.Background(), &chat.Request{Model: "gpt-4o", Stream: true})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var deltas int
	for resp := range ch {
		if !resp.IsDelta() {
			t.Errorf("stream element without delta: %+v", resp)
		}
		deltas++
	}
	if deltas != 2 {
		t.Errorf("stream yielded %d deltas, want 2", deltas)
	}
}

func TestDispatcher_Count(t *testing.T) {
	d := New()
	if d.Count() != 0 {
		t.Errorf("Count() = %d, want 0", d.Count())
	}
	d.Register(&stubAdapter{}, nil)
	d.Register(&stubAdapter{}, nil)
	if d.Count() != 2 {
		t.Errorf("Count() = %d, want 2", d.Count())
	}
}
