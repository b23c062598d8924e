// Package domain provides the pure domain layer for sessions with no
// infrastructure dependencies.
//
// This package follows Domain-Driven Design (DDD) principles:
//   - Contains only pure Go code with standard library imports (time package only)
//   - Defines the Session entity with encapsulated state and behavior
//   - Defines the SessionRepository interface for persistence abstraction
//   - Provides domain-specific error types
//
// The domain layer has no knowledge of infrastructure concerns (databases,
// file I/O, the coordinator, etc.).
package domain

import "time"

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	// SessionStateIdle indicates the session exists but is not in use.
	SessionStateIdle SessionState = "idle"

	// SessionStateActive indicates the session is the one currently open.
	// At most one session is active at a time.
	SessionStateActive SessionState = "active"

	// SessionStateArchived indicates the session was put away by the user
	// and is hidden from default listings.
	SessionStateArchived SessionState = "archived"
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized session state.
func (s SessionState) IsValid() bool {
	switch s {
	case SessionStateIdle, SessionStateActive, SessionStateArchived:
		return true
	default:
		return false
	}
}

// Session represents a persisted conversation session.
// All fields are unexported to enforce encapsulation; use the constructor
// and getter methods to access data.
type Session struct {
	id      int64
	guid    string
	name    string
	state   SessionState
	content string

	lastAccessedAt *time.Time

	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewSession creates a new idle Session with the given GUID and name.
// The createdAt and updatedAt timestamps are set to the current time.
// The ID is left as zero; it will be assigned by the persistence layer.
func NewSession(guid, name string) *Session {
	now := time.Now()
	return &Session{
		guid:      guid,
		name:      name,
		state:     SessionStateIdle,
		createdAt: now,
		updatedAt: now,
	}
}

// ReconstituteSession creates a Session from existing data, typically when
// hydrating from the database. All fields are provided explicitly.
func ReconstituteSession(
	id int64,
	guid, name string,
	state SessionState,
	content string,
	lastAccessedAt *time.Time,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *Session {
	return &Session{
		id:             id,
		guid:           guid,
		name:           name,
		state:          state,
		content:        content,
		lastAccessedAt: lastAccessedAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		deletedAt:      deletedAt,
	}
}

// ID returns the internal database identifier, or 0 if not yet persisted.
func (s *Session) ID() int64 { return s.id }

// SetID assigns the database identifier after an insert.
// Only the persistence layer should call this.
func (s *Session) SetID(id int64) { s.id = id }

// GUID returns the external identifier callers use to reference the session.
func (s *Session) GUID() string { return s.guid }

// Name returns the user-visible session name.
func (s *Session) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Content returns the serialized conversation payload.
func (s *Session) Content() string { return s.content }

// LastAccessedAt returns when the session was last opened, or nil if never.
func (s *Session) LastAccessedAt() *time.Time { return s.lastAccessedAt }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns when the session was last modified.
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }

// DeletedAt returns when the session was soft-deleted, or nil if live.
func (s *Session) DeletedAt() *time.Time { return s.deletedAt }

// IsActive reports whether this is the currently open session.
func (s *Session) IsActive() bool { return s.state == SessionStateActive }

// IsDeleted reports whether the session has been soft-deleted.
func (s *Session) IsDeleted() bool { return s.deletedAt != nil }

func (s *Session) touch() { s.updatedAt = time.Now() }

// Rename changes the user-visible name.
func (s *Session) Rename(name string) {
	s.name = name
	s.touch()
}

// SetContent replaces the serialized conversation payload.
func (s *Session) SetContent(content string) {
	s.content = content
	s.touch()
}

// Activate marks the session as the currently open one and records the
// access time. Activating an archived session un-archives it.
func (s *Session) Activate() {
	now := time.Now()
	s.state = SessionStateActive
	s.lastAccessedAt = &now
	s.touch()
}

// Deactivate returns an active session to idle.
func (s *Session) Deactivate() {
	if s.state == SessionStateActive {
		s.state = SessionStateIdle
		s.touch()
	}
}

// Archive puts the session away. Archived sessions are excluded from
// default listings but remain loadable.
func (s *Session) Archive() {
	s.state = SessionStateArchived
	s.touch()
}

// MarkAccessed records that the session was opened without changing state.
func (s *Session) MarkAccessed() {
	now := time.Now()
	s.lastAccessedAt = &now
	s.touch()
}

// SoftDelete marks the session deleted. Repositories exclude soft-deleted
// sessions from lookups; the row is retained for recovery.
func (s *Session) SoftDelete() {
	now := time.Now()
	s.deletedAt = &now
	s.state = SessionStateIdle
	s.touch()
}
