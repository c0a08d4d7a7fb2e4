package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrEventCancelled    = errors.New("event cancelled")
	ErrEventFull         = errors.New("event full")
	ErrTicketTypeSoldOut = errors.New("ticket type sold out")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrAlreadyWaitlisted = errors.New("already waitlisted")
	ErrAlreadyPending    = errors.New("already pending approval")
	ErrInvalidCode       = errors.New("invalid registration code")
	ErrProvider          = errors.New("payment provider error")
	ErrDuplicateRef      = errors.New("reference already processed")
	ErrBadTransition     = errors.New("invalid payout transition")
)
