package payload

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an irrecoverable reply.
type ErrorKind string

const (
	// Unterminated: the closing marker never arrived within the continuation budget.
	Unterminated ErrorKind = "unterminated"
	// InvalidEncoding: text between the markers is not a decodable document.
	InvalidEncoding ErrorKind = "invalid_encoding"
	// NoPayload: no markers and the whole reply is not a document either.
	NoPayload ErrorKind = "no_payload"
	// SchemaMismatch: the document decoded but has the wrong shape.
	SchemaMismatch ErrorKind = "schema_mismatch"
)

// Error is returned by Parse for every payload-level failure.
type Error struct {
	Kind ErrorKind
	// Reason is a human-readable detail (the failed check, for SchemaMismatch).
	Reason string
	// Decoded holds the decoded-but-invalid document for SchemaMismatch.
	Decoded any
	// Continuations is the number of continuation rounds issued before failing.
	Continuations int
	Err           error
}

func (e *Error) Error() string {
	msg := "payload: " + string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a payload Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == k
}
