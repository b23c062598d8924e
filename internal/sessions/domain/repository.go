package domain

// ListFilter provides filtering options for listing sessions.
type ListFilter struct {
	// State filters sessions by their current state.
	// If empty, all states are included.
	State SessionState

	// Limit restricts the number of sessions returned.
	// If 0, no limit is applied.
	Limit int

	// IncludeDeleted includes soft-deleted sessions in results.
	// By default, deleted sessions are excluded.
	IncludeDeleted bool

	// IncludeArchived includes archived sessions in results.
	// By default, archived sessions are excluded.
	IncludeArchived bool
}

// SessionRepository defines the persistence interface for Session entities.
// Implementations may use SQLite, in-memory storage, or other backends.
type SessionRepository interface {
	// Save persists a session to the repository.
	// For new sessions (ID == 0), this creates a new record and sets the ID.
	// For existing sessions (ID > 0), this updates the existing record.
	Save(session *Session) error

	// FindByGUID retrieves a session by its GUID.
	// Returns SessionNotFoundError if no matching session exists.
	// Soft-deleted sessions are not returned.
	FindByGUID(guid string) (*Session, error)

	// GetActive retrieves the currently active session.
	// Returns NoActiveSessionError if no session is active.
	GetActive() (*Session, error)

	// SetActive makes the given session the single active one, demoting any
	// previously active session to idle in the same transaction.
	// Returns SessionNotFoundError if no matching session exists.
	SetActive(guid string) (*Session, error)

	// Delete performs a soft delete by setting the deletedAt timestamp.
	// Returns SessionNotFoundError if no matching session exists.
	Delete(guid string) error

	// ListWithFilter retrieves sessions matching the given filter criteria.
	// Results are ordered by updated_at descending (most recent first).
	ListWithFilter(filter ListFilter) ([]*Session, error)

	// Close releases any resources held by the repository.
	Close() error
}
