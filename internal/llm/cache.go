package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	llmclient "deepbuild/internal/llmClient"
)

// WithCache memoizes successful replies keyed by model, sampling parameters,
// and the full message list. Errors are never cached. Replies made under a
// context from HoldReplies are cached only once the holder commits them.
func WithCache(size int, ttl time.Duration) Middleware {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return func(next llmclient.Client) llmclient.Client {
		return &cached{next: next, lru: expirable.NewLRU[string, string](size, nil, ttl)}
	}
}

type cached struct {
	next llmclient.Client
	lru  *expirable.LRU[string, string]
}

func (c *cached) Name() string { return c.next.Name() }
func (c *cached) Invoke(ctx context.Context, msgs []llmclient.Message, cfg llmclient.GenerationConfig) (string, error) {
	key := cacheKey(c.next.Name(), msgs, cfg)
	if !bypassed(ctx) {
		if out, ok := c.lru.Get(key); ok {
			return out, nil
		}
	}
	out, err := c.next.Invoke(ctx, msgs, cfg)
	if err != nil {
		return "", err
	}
	if h := heldFrom(ctx); h != nil {
		h.hold(c.lru, key, out)
	} else {
		c.lru.Add(key, out)
	}
	return out, nil
}

func cacheKey(provider string, msgs []llmclient.Message, cfg llmclient.GenerationConfig) string {
	cfg.Timeout = 0
	b, _ := json.Marshal(struct {
		Provider string
		Config   llmclient.GenerationConfig
		Messages []llmclient.Message
	}{provider, cfg, msgs})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type ctxKeyBypass struct{}

// WithoutCache makes cached clients skip the lookup for calls made with the
// returned context. The fresh reply still replaces the cached one.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyBypass{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyBypass{}).(bool)
	return v
}

type ctxKeyHeld struct{}

// Held collects replies that cached clients produced under its context.
// Nothing reaches the cache until Commit, so a reply the caller rejects is
// requested again on the next identical call.
type Held struct {
	mu      sync.Mutex
	replies []heldReply
}

type heldReply struct {
	lru   *expirable.LRU[string, string]
	key   string
	reply string
}

// HoldReplies returns a context whose cacheable replies are parked in the
// returned Held. Continuation calls made with the same context are parked too.
func HoldReplies(ctx context.Context) (context.Context, *Held) {
	h := &Held{}
	return context.WithValue(ctx, ctxKeyHeld{}, h), h
}

func heldFrom(ctx context.Context) *Held {
	h, _ := ctx.Value(ctxKeyHeld{}).(*Held)
	return h
}

func (h *Held) hold(lru *expirable.LRU[string, string], key, reply string) {
	h.mu.Lock()
	h.replies = append(h.replies, heldReply{lru: lru, key: key, reply: reply})
	h.mu.Unlock()
}

// Commit caches every parked reply. Later calls are no-ops until more
// replies are parked.
func (h *Held) Commit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.replies {
		r.lru.Add(r.key, r.reply)
	}
	h.replies = nil
}
