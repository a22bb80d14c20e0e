package interfaces

import "errors"

// Errors shared across component boundaries
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrStoreClosed   = errors.New("token store is closed")
	ErrLayerClosed   = errors.New("channel layer is closed")
)
