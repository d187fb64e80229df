// Package rpc is the resilience layer between services and the procedures
// that own every state transition: per-attempt timeout, retry with jittered
// exponential backoff, and a circuit breaker per procedure.
package rpc

import (
	"context"
	"encoding/json"
)

// Params is the flat, p_-prefixed argument object of a procedure call
type Params map[string]any

// Executor runs one named procedure and returns its raw JSON reply.
// A returned error is a transport failure; business failures travel inside
// the reply as {"success": false, ...}.
type Executor interface {
	Execute(ctx context.Context, procedure string, params Params) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, procedure string, params Params) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, procedure string, params Params) (json.RawMessage, error) {
	return f(ctx, procedure, params)
}
