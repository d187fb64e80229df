package rpc

import (
	"errors"
	"fmt"
)

// Error tags distinguish how a call failed
const (
	TagTransport   = "transport"
	TagTimeout     = "timeout"
	TagCircuitOpen = "circuit_open"
	TagCancelled   = "cancelled"
)

var (
	// ErrCircuitOpen matches errors for calls refused without an attempt
	ErrCircuitOpen = errors.New("circuit open")
	// ErrTimeout matches errors for attempts that exceeded their deadline
	ErrTimeout = errors.New("rpc timeout")
	// ErrCancelled matches errors for calls abandoned by the caller
	ErrCancelled = errors.New("rpc cancelled")
)

// Error is a gateway-level failure of one procedure call
type Error struct {
	Tag       string
	Procedure string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rpc %s: %s", e.Procedure, e.Tag)
	}
	return fmt.Sprintf("rpc %s: %s: %v", e.Procedure, e.Tag, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the tag sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCircuitOpen:
		return e.Tag == TagCircuitOpen
	case ErrTimeout:
		return e.Tag == TagTimeout
	case ErrCancelled:
		return e.Tag == TagCancelled
	}
	return false
}

// TagOf returns the tag of a gateway error, or "" for anything else
func TagOf(err error) string {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Tag
	}
	return ""
}
