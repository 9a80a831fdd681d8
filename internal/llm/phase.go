package llm

import "context"

type ctxKeyPhase struct{}

// Phase names used by the generation flow.
const (
	PhaseBrief          = "brief"
	PhaseImplementation = "implementation"
	PhaseContinuation   = "continuation"
)

func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyPhase{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
