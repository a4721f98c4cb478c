package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Marketplace errors
	ErrProjectNotFound     = errors.New("project not found")
	ErrProjectNotOpen      = errors.New("project is not open")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrDuplicateProposal   = errors.New("proposal already submitted")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
