// Package presentation converts domain objects to output formats for the CLI.
package presentation

import (
	"time"

	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

// SessionDTO represents a session for presentation
type SessionDTO struct {
	ID             int64  `json:"id"`
	GUID           string `json:"guid"`
	Name           string `json:"name"`
	State          string `json:"state"`
	LastAccessedAt string `json:"last_accessed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	Deleted        bool   `json:"deleted,omitempty"`
}

// FromDomainSession converts a domain session to a DTO.
func FromDomainSession(session *domain.Session) SessionDTO {
	dto := SessionDTO{
		ID:        session.ID(),
		GUID:      session.GUID(),
		Name:      session.Name(),
		State:     string(session.State()),
		CreatedAt: session.CreatedAt().Format(time.RFC3339),
		UpdatedAt: session.UpdatedAt().Format(time.RFC3339),
		Deleted:   session.IsDeleted(),
	}
	if last := session.LastAccessedAt(); last != nil {
		dto.LastAccessedAt = last.Format(time.RFC3339)
	}
	return dto
}

// FromDomainSessions converts a slice of domain sessions to DTOs.
func FromDomainSessions(sessions []*domain.Session) []SessionDTO {
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = FromDomainSession(s)
	}
	return dtos
}
