package payload

import (
	"context"
	"fmt"
	"strings"

	"deepbuild/internal/llm"
	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/types"
)

const (
	OpenMarker  = "<final_json>"
	CloseMarker = "</final_json>"

	// DefaultMaxContinuations bounds the repair loop when MaxContinuations is 0.
	DefaultMaxContinuations = 3
)

// ContinuationInstruction is sent as the user turn of a continuation round.
const ContinuationInstruction = "Your previous response was cut off before the closing " + CloseMarker +
	" tag. Continue exactly where you stopped and finish the JSON document, ending with " +
	CloseMarker + ". Do not repeat earlier content."

// ReplyKind selects the expected payload shape.
type ReplyKind int

const (
	KindBrief ReplyKind = iota
	KindImplementation
)

func (k ReplyKind) String() string {
	switch k {
	case KindBrief:
		return "brief"
	case KindImplementation:
		return "implementation"
	}
	return "unknown"
}

// Result is the validated payload. Exactly one of Brief and Implementation is
// set, matching Kind.
type Result struct {
	Kind           ReplyKind
	Brief          *types.Brief
	Implementation *types.ImplementationPayload
	// Text is the full reply after continuation rounds were concatenated.
	Text          string
	Continuations int
}

// Parser extracts and validates the sentinel-delimited document from a model
// reply. It holds no per-call state and is safe for concurrent use.
type Parser struct {
	Client llmclient.Client
	Config llmclient.GenerationConfig
	// MaxContinuations bounds continuation rounds. 0 means the default,
	// a negative value disables continuation.
	MaxContinuations int
}

func (p *Parser) maxContinuations() int {
	switch {
	case p.MaxContinuations < 0:
		return 0
	case p.MaxContinuations == 0:
		return DefaultMaxContinuations
	}
	return p.MaxContinuations
}

// Parse extracts the payload from raw. convo is the conversation that
// produced raw; continuation rounds extend a copy of it and never modify it.
func (p *Parser) Parse(ctx context.Context, convo []llmclient.Message, raw string, kind ReplyKind) (Result, error) {
	segments := []string{raw}
	text := raw
	rounds := 0
	for {
		body, st := extract(text)
		if st == stateTruncated {
			if rounds >= p.maxContinuations() || p.Client == nil {
				return Result{}, &Error{
					Kind:          Unterminated,
					Reason:        fmt.Sprintf("closing marker missing after %d continuation round(s)", rounds),
					Continuations: rounds,
				}
			}
			rounds++
			more, err := p.continueReply(ctx, convo, text)
			if err != nil {
				return Result{}, fmt.Errorf("payload: continuation round %d: %w", rounds, err)
			}
			segments = append(segments, more)
			text = text + "\n" + more
			continue
		}

		doc, err := decode(body)
		if err != nil && rounds > 0 {
			// The line break inserted between rounds may have split a token.
			if joined, _ := extract(strings.Join(segments, "")); joined != body {
				if d, jerr := decode(joined); jerr == nil {
					doc, err = d, nil
				}
			}
		}
		if err != nil {
			k := InvalidEncoding
			if st == stateBare {
				k = NoPayload
			}
			return Result{}, &Error{Kind: k, Continuations: rounds, Err: err}
		}

		res, verr := validate(doc, kind)
		if verr != nil {
			verr.Continuations = rounds
			return Result{}, verr
		}
		res.Text = text
		res.Continuations = rounds
		return res, nil
	}
}

func (p *Parser) continueReply(ctx context.Context, convo []llmclient.Message, partial string) (string, error) {
	msgs := make([]llmclient.Message, 0, len(convo)+2)
	msgs = append(msgs, convo...)
	msgs = append(msgs, llmclient.Assistant(partial), llmclient.User(ContinuationInstruction))
	return p.Client.Invoke(llm.WithPhase(ctx, llm.PhaseContinuation), msgs, p.Config)
}

type extractState int

const (
	stateEnclosed  extractState = iota // both markers
	stateTruncated                     // opening marker only
	stateBare                          // no markers
)

// extract locates the first marker pair. A reply with only a closing marker
// is treated as enclosed from the start of the text.
func extract(text string) (string, extractState) {
	open := strings.Index(text, OpenMarker)
	if open < 0 {
		if end := strings.Index(text, CloseMarker); end >= 0 {
			return strings.TrimSpace(text[:end]), stateEnclosed
		}
		return strings.TrimSpace(text), stateBare
	}
	rest := text[open+len(OpenMarker):]
	end := strings.Index(rest, CloseMarker)
	if end < 0 {
		return "", stateTruncated
	}
	return strings.TrimSpace(rest[:end]), stateEnclosed
}
