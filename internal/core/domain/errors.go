package domain

import "errors"

// Role errors
var (
	ErrUnknownRole = errors.New("unknown role")
)

// Failure codes carried in procedure envelopes
const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeConflict     = "conflict"
	CodeNotFound     = "not_found"
	CodeUnexpected   = "unexpected"
)
