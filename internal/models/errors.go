package models

import "errors"

var (
	// ErrInvalidInput marks a request the caller must fix; it is never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConversationNotFound means a conversation cannot be resumed from memory,
	// persisted state, or transcript. The buyer has to start over.
	ErrConversationNotFound = errors.New("conversation not found, start over")
	// ErrServiceBusy is returned once retries against the model are exhausted.
	ErrServiceBusy = errors.New("service busy, try again")
)
