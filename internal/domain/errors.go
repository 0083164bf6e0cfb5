package domain

import "errors"

var (
	ErrEmptyTitle           = errors.New("title is required")
	ErrTitleTooLong         = errors.New("title exceeds character limit")
	ErrEmptyMessage         = errors.New("message is required")
	ErrInvalidCountry       = errors.New("invalid country id")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrGatewayUnavailable   = errors.New("push gateway unavailable")
	ErrCircuitOpen          = errors.New("circuit breaker is open")
)
