package state

import "errors"

// ErrNotFound indicates a transition referenced an unknown recording.
var ErrNotFound = errors.New("recording not found")

// ErrSchemaMismatch indicates the database schema version is not the one this
// build understands. The store refuses to open rather than guess.
var ErrSchemaMismatch = errors.New("schema version mismatch")
