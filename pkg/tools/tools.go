// Package tools implements the tool-invocation dispatch layer: it validates
// a named operation plus untyped arguments, calls the Landscape client,
// and normalizes results and failures into a uniform response envelope.
//
// Errors are values here. A tool Execute never panics and never leaks a Go
// error across the tool boundary — every outcome is a well-formed Response
// with status ok or error. The dispatcher performs no retries and at most
// one collaborator round trip per invocation; retry policy belongs to the
// caller.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Status is the top-level outcome of an invocation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	// KindParseError means the filter string was malformed.
	KindParseError ErrorKind = "parse_error"
	// KindInvalidArgument means the arguments were rejected before any
	// collaborator call was made.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindUpstreamError means the Landscape API call failed; the message
	// carries the collaborator's error, not a masked summary.
	KindUpstreamError ErrorKind = "upstream_error"
)

// ResponseError is the error half of the envelope.
type ResponseError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Response is the uniform invocation envelope. Exactly one of Payload or
// Error is present: ok responses carry a payload (possibly empty), error
// responses carry the error.
type Response struct {
	Status  Status           `json:"status"`
	Payload []map[string]any `json:"payload,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

// OK builds a successful response. A nil payload is normalized to an empty
// slice so the wire shape always has a payload array on ok.
func OK(payload []map[string]any) Response {
	if payload == nil {
		payload = []map[string]any{}
	}
	return Response{Status: StatusOK, Payload: payload}
}

// Errorf builds an error response.
func Errorf(kind ErrorKind, format string, args ...any) Response {
	return Response{
		Status: StatusError,
		Error:  &ResponseError{Kind: kind, Message: fmt.Sprintf(format, args...)},
	}
}

// Tool is one callable operation.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any
	// Execute runs the tool. Arguments arrive as decoded JSON values.
	Execute(ctx context.Context, args map[string]any) Response
}

// Definition is the discovery shape for one tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ------------------------------------------------------------------
// Argument decoding
//
// Arguments arrive as map[string]any from JSON, so integers show up as
// float64 or json.Number depending on the decoder. These helpers normalize
// that, and reject unknown argument names so typos fail loudly instead of
// silently matching everything.
// ------------------------------------------------------------------

func checkKnownArgs(args map[string]any, allowed ...string) error {
	for key := range args {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			names := append([]string(nil), allowed...)
			sort.Strings(names)
			return fmt.Errorf("unknown argument %q (accepted: %v)", key, names)
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) (string, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("argument %q must be a string", key)
	}
	return s, true, nil
}

func intArg(args map[string]any, key string) (int, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false, fmt.Errorf("argument %q must be an integer", key)
		}
		return int(n), true, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false, fmt.Errorf("argument %q must be an integer", key)
		}
		return int(i), true, nil
	default:
		return 0, false, fmt.Errorf("argument %q must be an integer", key)
	}
}
