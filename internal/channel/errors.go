package channel

import "errors"

// Channel layer errors
var (
	ErrNilSubscriber = errors.New("subscriber cannot be nil")
	ErrNotConnected  = errors.New("nats connection is not established")
)
