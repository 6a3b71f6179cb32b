package models

import "errors"

var (
	// ErrConfiguration marks missing or invalid startup settings. Fatal.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound is returned by a transfer adapter when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrTransfer wraps any other fetch/store failure.
	ErrTransfer = errors.New("transfer error")
	// ErrLocalIO marks temp file failures; redelivery will not fix these.
	ErrLocalIO = errors.New("local io error")
)
