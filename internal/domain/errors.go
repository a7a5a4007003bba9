// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConfiguration indicates invalid engine configuration (no critics
// registered, bad weights). Surfaced to the caller, never retried.
var ErrConfiguration = errors.New("configuration error")

// ErrValidation indicates input that fails schema validation.
var ErrValidation = errors.New("validation failed")
