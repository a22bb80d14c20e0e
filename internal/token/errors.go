package token

import "errors"

// Token store errors
var (
	ErrInvalidUserID = errors.New("user ID cannot be empty")
)
