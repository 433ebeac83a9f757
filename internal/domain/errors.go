package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownVenue      = errors.New("unknown venue")
	ErrInvalidSimulation = errors.New("invalid simulation request")
	ErrNoBook            = errors.New("no order book available")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrContextDone       = errors.New("context cancelled")
)
