package core

import (
	"context"
	"errors"
)

// Failure taxonomy shared by the gateways and view-states.
var (
	ErrAuthentication  = errors.New("authentication failed")
	ErrNoActiveSession = errors.New("no active session")
	ErrWrite           = errors.New("write rejected")
	ErrSubscription    = errors.New("subscription failed")
	ErrCommandPending  = errors.New("another command is still running")
	ErrAccountExists   = errors.New("email already registered")
	ErrInvalidLogin    = errors.New("invalid email or password")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrWeakPassword    = errors.New("password too short")
)

// Message renders an error as the short text shown next to the triggering control.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Operation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Operation timed out"
	case errors.Is(err, ErrNoActiveSession):
		return "No active session"
	case errors.Is(err, ErrCommandPending):
		return "Please wait for the current operation to finish"
	case errors.Is(err, ErrAccountExists):
		return "This email is already registered"
	case errors.Is(err, ErrInvalidLogin), errors.Is(err, ErrAccountNotFound):
		return "Invalid email or password"
	case errors.Is(err, ErrInvalidEmail):
		return "Enter a valid email address"
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 6 characters"
	case errors.Is(err, ErrEmptyName):
		return "Name is required"
	case errors.Is(err, ErrNameTooLong):
		return "Name is too long"
	case errors.Is(err, ErrInvalidAmount):
		return "Amount must be greater than zero"
	case errors.Is(err, ErrInvalidCategory):
		return "Select a category"
	case errors.Is(err, ErrMissingDate):
		return "Date is required"
	case errors.Is(err, ErrAuthentication):
		return "Sign-in failed"
	case errors.Is(err, ErrWrite):
		return "The change could not be saved"
	case errors.Is(err, ErrSubscription):
		return "Live updates stopped"
	default:
		return err.Error()
	}
}
