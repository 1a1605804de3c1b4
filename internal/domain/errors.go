package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidResponse  = errors.New("invalid response from server")
	ErrMessageDeleted   = errors.New("message is already deleted")
	ErrPurchaseInFlight = errors.New("purchase already in progress")
	ErrNoConversation   = errors.New("no conversation is open")
	ErrSessionExpired   = errors.New("session expired")
	ErrFeedClosed       = errors.New("live feed is closed")
)
