package domain

import "fmt"

// SessionNotFoundError indicates no live session matches the given GUID.
type SessionNotFoundError struct {
	GUID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.GUID)
}

// NoActiveSessionError indicates no session is currently active.
type NoActiveSessionError struct{}

func (e *NoActiveSessionError) Error() string {
	return "no active session"
}
