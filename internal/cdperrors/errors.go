// Package cdperrors defines the client's error taxonomy (spec §7).
package cdperrors

import "fmt"

// ConnectionError is returned when the transport closes or errors outside
// of an auto-reconnect attempt. It rejects every outstanding future.
type ConnectionError struct {
	Msg   string
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("connection error: %s", e.Msg)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// CommunicationError signals a protocol mismatch: an unsupported Hello
// version or an unrecognised container type.
type CommunicationError struct {
	Msg string
}

func (e *CommunicationError) Error() string { return fmt.Sprintf("communication error: %s", e.Msg) }

// InvalidRequestError wraps a server-reported INVALID_REQUEST.
type InvalidRequestError struct {
	Msg string
}

func (e *InvalidRequestError) Error() string { return fmt.Sprintf("invalid request: %s", e.Msg) }

// NotFoundError is raised by Node.Child against a non-existent local child.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %q", e.Name) }

// UnknownError is a catch-all for embedder-layer misuse, e.g. credentials
// missing a required key.
type UnknownError struct {
	Msg string
}

func (e *UnknownError) Error() string { return fmt.Sprintf("unknown error: %s", e.Msg) }
