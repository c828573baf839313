package server

import "errors"

var (
	// ErrResourceExhausted means a connection's packet buffer hit its limit
	// before a newline arrived. Only that connection is dropped.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrIO wraps transport and append-target failures.
	ErrIO = errors.New("i/o failure")

	// ErrTarget marks append-target failures, which stop the whole server.
	ErrTarget = errors.New("append target failure")
)
