package app

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	// ErrEmptyCart is returned by Checkout when no items were submitted.
	ErrEmptyCart       = errors.New("cart is empty")
	ErrUnauthorized    = errors.New("invalid credentials")
	ErrStorageDisabled = errors.New("image storage not configured")
)
