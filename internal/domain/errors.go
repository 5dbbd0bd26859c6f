package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAuthRejected        = errors.New("authentication rejected")
	ErrProviderError       = errors.New("identity provider error")
	ErrAuthInProgress      = errors.New("authentication already in progress")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAlreadyFinalized    = errors.New("reservation already settled")
	ErrJobAlreadyRunning   = errors.New("a generation job is already running")
	ErrNotCancellable      = errors.New("job is not cancellable")
	ErrUnsupportedPlan     = errors.New("unsupported plan")
	ErrProviderFailure     = errors.New("provider failure")
)
