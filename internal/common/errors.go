// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Session errors.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionBusy     = errors.New("session busy")

	// Dispatch errors.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidValue      = errors.New("invalid value")
	ErrItemNotFound      = errors.New("item not found")

	// Catalog errors.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// Export errors.
	ErrUnbalancedReceipt = errors.New("unbalanced receipt")
	ErrExportFailed      = errors.New("export failed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// kindNames maps sentinel errors to their wire-level kind strings.
var kindNames = []struct {
	err  error
	name string
}{
	{ErrSessionNotFound, "SessionNotFound"},
	{ErrSessionExpired, "SessionExpired"},
	{ErrSessionBusy, "SessionBusy"},
	{ErrInvalidTransition, "InvalidTransition"},
	{ErrInvalidValue, "InvalidValue"},
	{ErrItemNotFound, "ItemNotFound"},
	{ErrCatalogUnavailable, "CatalogUnavailable"},
	{ErrUnbalancedReceipt, "UnbalancedReceipt"},
	{ErrExportFailed, "ExportFailed"},
}

// ErrorKind returns the wire-level kind string for an error chain, or
// "Internal" when the chain contains no known sentinel.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage extracts a user-facing message from an error chain, falling
// back to the plain error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}
