package llm

import (
	"context"
	"errors"
	"sync"

	llmclient "deepbuild/internal/llmClient"
)

var ErrFakeExhausted = errors.New("llm: fake client has no scripted reply")

// FakeReply is one scripted outcome: a reply text or an error.
type FakeReply struct {
	Text string
	Err  error
}

// FakeCall records one request that reached the fake.
type FakeCall struct {
	Phase    string
	Messages []llmclient.Message
	Config   llmclient.GenerationConfig
}

// FakeClient replays scripted replies in order for offline runs and tests.
// Respond, when set, takes precedence over the queue.
type FakeClient struct {
	mu      sync.Mutex
	queue   []FakeReply
	calls   []FakeCall
	Respond func(call FakeCall) (string, error)
}

func NewFakeClient(replies ...FakeReply) *FakeClient {
	return &FakeClient{queue: append([]FakeReply(nil), replies...)}
}

func (f *FakeClient) Name() string { return "fake" }

// Push appends scripted replies.
func (f *FakeClient) Push(replies ...FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, replies...)
}

func (f *FakeClient) Invoke(ctx context.Context, msgs []llmclient.Message, cfg llmclient.GenerationConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	call := FakeCall{Phase: PhaseFrom(ctx), Messages: append([]llmclient.Message(nil), msgs...), Config: cfg}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	respond := f.Respond
	if respond == nil && len(f.queue) == 0 {
		f.mu.Unlock()
		return "", ErrFakeExhausted
	}
	var next FakeReply
	if respond == nil {
		next = f.queue[0]
		f.queue = f.queue[1:]
	}
	f.mu.Unlock()

	if respond != nil {
		return respond(call)
	}
	return next.Text, next.Err
}

// Calls returns a copy of the recorded requests.
func (f *FakeClient) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}
