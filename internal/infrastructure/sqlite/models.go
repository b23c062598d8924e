package sqlite

import (
	"time"

	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

// SessionModel represents the database row for the sessions table.
// Fields map directly to SQL columns with Unix timestamps for time values.
type SessionModel struct {
	ID      int64
	GUID    string
	Name    *string // nullable
	State   string
	Content *string // nullable, serialized conversation payload

	LastAccessedAt *int64 // Unix timestamp, nullable

	CreatedAt int64  // Unix timestamp
	UpdatedAt int64  // Unix timestamp
	DeletedAt *int64 // Unix timestamp, nullable
}

// toSessionModel converts a domain Session entity to a database SessionModel.
func toSessionModel(s *domain.Session) *SessionModel {
	m := &SessionModel{
		ID:        s.ID(),
		GUID:      s.GUID(),
		State:     string(s.State()),
		CreatedAt: s.CreatedAt().Unix(),
		UpdatedAt: s.UpdatedAt().Unix(),
	}
	if s.Name() != "" {
		name := s.Name()
		m.Name = &name
	}
	if s.Content() != "" {
		content := s.Content()
		m.Content = &content
	}
	if s.LastAccessedAt() != nil {
		lastAccessedAt := s.LastAccessedAt().Unix()
		m.LastAccessedAt = &lastAccessedAt
	}
	if s.DeletedAt() != nil {
		deletedAt := s.DeletedAt().Unix()
		m.DeletedAt = &deletedAt
	}
	return m
}

// toDomain converts a database SessionModel to a domain Session entity.
func (m *SessionModel) toDomain() *domain.Session {
	var name, content string
	if m.Name != nil {
		name = *m.Name
	}
	if m.Content != nil {
		content = *m.Content
	}
	var lastAccessedAt *time.Time
	if m.LastAccessedAt != nil {
		t := time.Unix(*m.LastAccessedAt, 0)
		lastAccessedAt = &t
	}
	var deletedAt *time.Time
	if m.DeletedAt != nil {
		t := time.Unix(*m.DeletedAt, 0)
		deletedAt = &t
	}
	return domain.ReconstituteSession(
		m.ID,
		m.GUID,
		name,
		domain.SessionState(m.State),
		content,
		lastAccessedAt,
		time.Unix(m.CreatedAt, 0),
		time.Unix(m.UpdatedAt, 0),
		deletedAt,
	)
}
