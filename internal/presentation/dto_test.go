package presentation

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

func TestFromDomainSession(t *testing.T) {
	session := domain.NewSession("guid-1", "scratch")
	session.Activate()

	dto := FromDomainSession(session)
	require.Equal(t, "guid-1", dto.GUID)
	require.Equal(t, "scratch", dto.Name)
	require.Equal(t, "active", dto.State)
	require.NotEmpty(t, dto.LastAccessedAt, "activation sets last accessed")
	require.NotEmpty(t, dto.CreatedAt)
	require.False(t, dto.Deleted)
}

func TestFormatter_FormatSessions(t *testing.T) {
	sessions := []*domain.Session{
		domain.NewSession("guid-1", "one"),
		domain.NewSession("guid-2", "two"),
	}

	var buf bytes.Buffer
	formatter := NewFormatter(&buf)
	require.NoError(t, formatter.FormatSessions(FromDomainSessions(sessions)))

	var decoded []SessionDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "guid-1", decoded[0].GUID)
	require.Equal(t, "idle", decoded[0].State)
}
