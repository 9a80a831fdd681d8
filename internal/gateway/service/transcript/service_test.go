package transcript

import (
	"context"
	"testing"
	"time"

	"deepbuild/internal/types"
)

func TestAppendAndHistory(t *testing.T) {
	s := New()
	s.Append("p1", types.RoleAssistant, "hello")
	s.Append("p1", types.RoleUser, "hi")
	s.Append("p2", types.RoleSystem, "other")

	h := s.History("p1")
	if len(h) != 2 || h[0].Text != "hello" || h[1].Role != types.RoleUser {
		t.Fatalf("unexpected history: %+v", h)
	}
	if h[0].ID == h[1].ID {
		t.Fatal("message ids must be unique")
	}
	h[0].Text = "mutated"
	if s.History("p1")[0].Text != "hello" {
		t.Fatal("History must return a copy")
	}
	if got := s.History("unknown"); len(got) != 0 {
		t.Fatalf("unknown project history = %+v", got)
	}
}

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestSubscribeReplaysAndStreams(t *testing.T) {
	s := New()
	s.Append("p", types.RoleAssistant, "old")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := s.Subscribe(ctx, "p", 0)
	fresh := s.Subscribe(ctx, "p", len(s.History("p")))
	if m := recv(t, all); m.Text != "old" {
		t.Fatalf("replay = %q", m.Text)
	}
	s.Append("p", types.RoleSystem, "new")
	if m := recv(t, all); m.Text != "new" {
		t.Fatalf("all = %q", m.Text)
	}
	if m := recv(t, fresh); m.Text != "new" {
		t.Fatalf("fresh = %q", m.Text)
	}
}

func TestSubscribeDoesNotBlockAppend(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "p", 0)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Append("p", types.RoleSystem, "x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on an idle subscriber")
	}
	cancel()
	for range ch {
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Append("p", types.RoleSystem, "x")
	s.Clear("p")
	if len(s.History("p")) != 0 {
		t.Fatal("expected empty history after Clear")
	}
}

func TestClearedLogIsNotRecreatedBySubscriber(t *testing.T) {
	s := New()
	s.Append("p", types.RoleSystem, "before")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx, "p", 0)
	if m := recv(t, ch); m.Text != "before" {
		t.Fatalf("replay = %q", m.Text)
	}

	s.Clear("p")
	time.Sleep(20 * time.Millisecond)
	s.mu.Lock()
	_, exists := s.state["p"]
	s.mu.Unlock()
	if exists {
		t.Fatal("subscriber recreated a cleared log")
	}

	s.Append("p", types.RoleSystem, "after")
	if m := recv(t, ch); m.Text != "after" {
		t.Fatalf("after clear = %q", m.Text)
	}
}
