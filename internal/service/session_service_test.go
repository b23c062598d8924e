package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sessionflow/internal/coordinator"
	"github.com/zjrosen/sessionflow/internal/infrastructure/sqlite"
	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

func setupService(t *testing.T) *SessionService {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	coord := coordinator.New(coordinator.Config{
		Debounce:     10 * time.Millisecond,
		RecoveryHook: db.IntegrityCheck,
	})
	coord.Start(context.Background())
	t.Cleanup(coord.Stop)

	return NewSessionService(coord, db.SessionRepository())
}

func TestSessionService_SaveAndLoad(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session := domain.NewSession("guid-1", "notes")
	require.NoError(t, svc.Save(ctx, session))
	require.Greater(t, session.ID(), int64(0))

	loaded, err := svc.Load(ctx, "guid-1")
	require.NoError(t, err)
	require.Equal(t, "notes", loaded.Name())
}

func TestSessionService_LoadNew_ReturnsUnsavedSession(t *testing.T) {
	svc := setupService(t)

	session, err := svc.Load(context.Background(), coordinator.EntityNew)
	require.NoError(t, err)
	require.Zero(t, session.ID())
	require.NotEmpty(t, session.GUID())
	require.Equal(t, domain.SessionStateIdle, session.State())

	// Two loads of "new" yield distinct sessions.
	other, err := svc.Load(context.Background(), coordinator.EntityNew)
	require.NoError(t, err)
	require.NotEqual(t, session.GUID(), other.GUID())
}

func TestSessionService_LoadMissing_SurfacesNotFound(t *testing.T) {
	svc := setupService(t)

	_, err := svc.Load(context.Background(), "missing")
	var exErr *coordinator.ExecutionError
	require.ErrorAs(t, err, &exErr)
	var nfErr *domain.SessionNotFoundError
	require.ErrorAs(t, exErr.Cause, &nfErr)
}

func TestSessionService_DeleteThenLoadFails(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session := domain.NewSession("guid-1", "doomed")
	require.NoError(t, svc.Save(ctx, session))
	require.NoError(t, svc.Delete(ctx, "guid-1"))

	_, err := svc.Load(ctx, "guid-1")
	require.Error(t, err)
}

func TestSessionService_SwitchActivatesTarget(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, domain.NewSession("guid-1", "one")))
	require.NoError(t, svc.Save(ctx, domain.NewSession("guid-2", "two")))

	_, err := svc.Active(ctx)
	require.Error(t, err, "no session should be active yet")

	activated, err := svc.Switch(ctx, "guid-1")
	require.NoError(t, err)
	require.True(t, activated.IsActive())

	// Switching again demotes the previous session.
	_, err = svc.Switch(ctx, "guid-2")
	require.NoError(t, err)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, "guid-2", active.GUID())

	sessions, err := svc.List(domain.ListFilter{State: domain.SessionStateActive})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestSessionService_LoadServedFromCacheUntilWrite(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session := domain.NewSession("guid-1", "cached")
	require.NoError(t, svc.Save(ctx, session))

	first, err := svc.Load(ctx, "guid-1")
	require.NoError(t, err)
	second, err := svc.Load(ctx, "guid-1")
	require.NoError(t, err)
	require.Same(t, first, second, "repeat load should hit the cache")

	// A write invalidates the cached entry; the next load re-reads the store.
	first.Rename("renamed")
	require.NoError(t, svc.Save(ctx, first))
	third, err := svc.Load(ctx, "guid-1")
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.Equal(t, "renamed", third.Name())

	// Explicit invalidation drops entries too.
	svc.InvalidateCache(ctx)
	fourth, err := svc.Load(ctx, "guid-1")
	require.NoError(t, err)
	require.NotSame(t, third, fourth)
}

func TestSessionService_ConcurrentSavesOnSameSessionCoalesce(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session := domain.NewSession("guid-1", "busy")
	session.SetContent("payload")
	require.NoError(t, svc.Save(ctx, session))

	// Hammer the same persisted session with saves; some may be superseded
	// by write coalescing but the final state must be consistent.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Save(ctx, session)
		}()
	}
	wg.Wait()

	loaded, err := svc.Load(ctx, "guid-1")
	require.NoError(t, err)
	require.Equal(t, "guid-1", loaded.GUID())
}
