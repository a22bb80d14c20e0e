package types

import "errors"

// Message parsing errors
var (
	ErrMalformedMessage = errors.New("malformed client message")
)
