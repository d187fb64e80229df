package services

import (
	"context"
	"encoding/json"
	"errors"

	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
)

// MsgUnexpected is shown when a reply cannot be interpreted
const MsgUnexpected = "Unexpected error occurred"

// Gateway is the resilience layer services reach procedures through
type Gateway interface {
	Call(ctx context.Context, procedure string, params rpc.Params) (json.RawMessage, error)
}

// Actor is the authenticated user a service call is made for. Roles come
// from the access token and only drive local precondition checks; the
// procedures re-read them from the store.
type Actor struct {
	UserID uint
	Email  string
	Roles  domain.RoleSet
}

// System is the actor for scheduled jobs
var System = Actor{}

// Result is the typed outcome of one procedure call. Business failures are
// carried here with Success false, never as a Go error.
type Result[T any] struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// Failed builds a business failure result
func Failed[T any](code, message string) Result[T] {
	return Result[T]{Code: code, Error: message}
}

func succeeded[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// decode interprets a procedure reply. A reply that is not a well-formed
// envelope becomes the generic unexpected failure.
func decode[T any](raw json.RawMessage) Result[T] {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Success == nil {
		return Failed[T](domain.CodeUnexpected, MsgUnexpected)
	}
	if !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = MsgUnexpected
		}
		return Failed[T](env.Code, msg)
	}

	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return Failed[T](domain.CodeUnexpected, MsgUnexpected)
	}
	return succeeded(data)
}

// invoke calls procedure as actor. The returned error is non-nil only for
// gateway failures (transport, timeout, circuit_open).
func invoke[T any](ctx context.Context, gw Gateway, actor Actor, procedure string, params rpc.Params) (Result[T], error) {
	if actor.UserID != 0 {
		ctx = rpc.WithCaller(ctx, rpc.Caller{UserID: actor.UserID})
	}
	raw, err := gw.Call(ctx, procedure, params)
	if err != nil {
		return Result[T]{}, err
	}
	return decode[T](raw), nil
}

// Message returns the text to show for a failed call: the business error
// when there is one, else a fallback per gateway tag.
func Message[T any](res Result[T], err error) string {
	if err == nil {
		return res.Error
	}
	switch {
	case errors.Is(err, rpc.ErrCircuitOpen):
		return "Service temporarily unavailable, please try again shortly"
	case errors.Is(err, rpc.ErrTimeout):
		return "The request timed out; refresh to check whether it was applied"
	case errors.Is(err, rpc.ErrCancelled):
		return "The request was cancelled"
	}
	return MsgUnexpected
}
