// Package fault defines the failure taxonomy surfaced by the insight pipeline.
//
// Every failure detected by the sandbox, the reasoning loop or the answer
// extractor is converted into one of a small set of kinds. Each kind maps to a
// fixed user-safe message; raw interpreter or I/O errors are kept only for logs.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Failure kinds.
const (
	KindSyntax             Kind = "SYNTAX_FAULT"
	KindName               Kind = "NAME_FAULT"
	KindCompute            Kind = "COMPUTE_FAULT"
	KindDatasetUnavailable Kind = "DATASET_UNAVAILABLE"
	KindTimeout            Kind = "TIMEOUT_FAULT"
	KindLoopExhausted      Kind = "LOOP_EXHAUSTED"
	KindParse              Kind = "PARSE_FAULT"
	KindInvalidQuery       Kind = "INVALID_QUERY"
	KindQueryTooLong       Kind = "COMPLEX_QUERY"
	KindSQL                Kind = "SQL_FAULT"
)

// Tone is the styling hint attached to a rendered answer.
type Tone string

// Answer tones.
const (
	ToneNormal     Tone = "normal"
	ToneCautionary Tone = "cautionary"
)

var messages = map[Kind]string{
	KindSyntax:             "I had trouble writing the analysis for that question. Please try rephrasing it.",
	KindName:               "I couldn't find some of the data fields needed for that question. Please try asking about loans, payments, or clients in a simpler way.",
	KindCompute:            "I'm having trouble processing that question. Please try asking about something more specific in your loan data.",
	KindDatasetUnavailable: "I'm sorry, but I can't access the loan data right now. Please check if the data file exists and try again.",
	KindTimeout:            "The request is taking longer than expected. Please try a simpler question or try again in a moment.",
	KindLoopExhausted:      "I couldn't finish analysing that question. Please try asking it in a simpler or more specific way.",
	KindParse:              "I'm having trouble understanding that question. Please rephrase it or ask about something else in your loan portfolio.",
	KindInvalidQuery:       "I couldn't understand that question. Please try asking about loans, payments, or clients in a simpler way.",
	KindQueryTooLong:       "That question is too complex. Please ask a simpler question about your loan data.",
	KindSQL:                "There was an issue with the database query. Please try rephrasing your question.",
}

// Message returns the fixed user-safe message for a kind.
func Message(k Kind) string {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[KindParse]
}

// Retryable reports whether the model can reasonably try again after the fault
// is fed back as an Observation.
func Retryable(k Kind) bool {
	switch k {
	case KindSyntax, KindName, KindCompute, KindSQL:
		return true
	default:
		return false
	}
}

// ToneOf returns the styling hint for answers produced by a fault.
func ToneOf(k Kind) Tone {
	if k == "" {
		return ToneNormal
	}
	return ToneCautionary
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Detail is a short safe hint (for example the missing column name).
	Detail string
	// Err is the underlying cause, kept for logs only.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without an underlying cause.
func New(k Kind, detail string) *Error {
	return &Error{Kind: k, Detail: detail}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(k Kind, err error, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Detail: detail, Err: err}
}

// KindOf extracts the kind from err. Context deadline and cancellation errors
// are reported as timeouts; any other unclassified error is a compute fault.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindCompute
}

// DetailOf returns the safe detail attached to err, if any.
func DetailOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Detail
	}
	return ""
}
