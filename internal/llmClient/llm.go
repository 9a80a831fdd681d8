package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client is the model invocation service: an ordered list of role-tagged
// messages in, one raw text reply out. Cross-cutting concerns (retries, rate
// limiting, caching, logging) are layered on by internal/llm middleware.
type Client interface {
	Name() string
	Invoke(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error)
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// GenerationConfig carries per-request sampling parameters. It is resolved
// from configuration once per invocation and never mutated by callers.
type GenerationConfig struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Timeout          time.Duration
}

var ErrEmptyReply = errors.New("llmclient: empty reply")

// NetworkError is a transport failure: the request never produced an HTTP
// response, or the request deadline expired.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError means the credential was missing or rejected. Never retried.
type AuthError struct {
	Provider string
	Status   int
	Body     string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: missing API key", e.Provider)
	}
	return fmt.Sprintf("%s: authentication failed (%d): %s", e.Provider, e.Status, e.Body)
}

// ProviderError is a non-2xx response or an unusable response body.
type ProviderError struct {
	Provider   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return true
	}
	var auth *AuthError
	return errors.As(err, &auth)
}
