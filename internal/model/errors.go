package model

import "errors"

// Error kinds shared by stores, the settlement engine and the transport layer.
// Stores wrap them with context; callers match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("concurrent modification")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStorage           = errors.New("storage unavailable")
)
