package app

import "errors"

var (
	// ErrEmptyMessage rejects a chat turn with no user text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrModelNotReady rejects a chat turn while no model is loaded or a
	// load is in flight.
	ErrModelNotReady = errors.New("no model is loaded")
	// ErrInference wraps a backend failure during a chat turn.
	ErrInference = errors.New("inference failed")
	// ErrUnsupportedAttachment rejects uploads with a disallowed extension.
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
)
