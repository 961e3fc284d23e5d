package embedsync

import "errors"

var (
	// ErrConfigRequired is returned when New is called without a config.
	ErrConfigRequired = errors.New("config required")

	// ErrStateNotFound is returned when an operation needs the remote state
	// file and there is none.
	ErrStateNotFound = errors.New("remote state store not found")
)
