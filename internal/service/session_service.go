// Package service binds the coordinator to session persistence. All store
// access from callers flows through queued operations so per-session
// serialization and recovery apply uniformly.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/sessionflow/internal/cachemanager"
	"github.com/zjrosen/sessionflow/internal/coordinator"
	"github.com/zjrosen/sessionflow/internal/log"
	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

// sessionCacheTTL is deliberately short. The cache only smooths repeated
// loads between writes; the store stays the source of truth.
const sessionCacheTTL = 30 * time.Second

// SessionService exposes session operations scheduled through the
// coordinator. Methods block until the queued operation settles; the
// context cancels waiting and, cooperatively, the operation itself.
type SessionService struct {
	coord  *coordinator.Coordinator
	repo   domain.SessionRepository
	cache  *cachemanager.InMemoryCacheManager[string, *domain.Session]
	loader *cachemanager.ReadThroughCache[string, *domain.Session, string]
}

// NewSessionService creates a service over the given coordinator and
// repository. The coordinator must already be started.
func NewSessionService(coord *coordinator.Coordinator, repo domain.SessionRepository) *SessionService {
	cache := cachemanager.NewInMemoryCacheManager[string, *domain.Session](
		"sessions", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	loader := cachemanager.NewReadThroughCache(cache, func(ctx context.Context, guid string) (*domain.Session, error) {
		return repo.FindByGUID(guid)
	}, false)
	return &SessionService{coord: coord, repo: repo, cache: cache, loader: loader}
}

// Load fetches a session by GUID. Loading coordinator.EntityNew returns a
// fresh unsaved session with a generated GUID instead of hitting the store.
func (s *SessionService) Load(ctx context.Context, guid string, opts ...coordinator.OpOption) (*domain.Session, error) {
	future, err := s.coord.QueueOperation(ctx, coordinator.OpLoad, guid, func(ctx context.Context) (any, error) {
		if guid == coordinator.EntityNew {
			return domain.NewSession(uuid.NewString(), ""), nil
		}
		return s.loader.Get(ctx, guid, guid, sessionCacheTTL)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return waitSession(ctx, future)
}

// Save persists the session. Unsaved sessions queue under EntityNew so
// concurrent creations never contend with an existing session's writes.
func (s *SessionService) Save(ctx context.Context, session *domain.Session, opts ...coordinator.OpOption) error {
	entityID := session.GUID()
	if session.ID() == 0 {
		entityID = coordinator.EntityNew
	}
	future, err := s.coord.QueueOperation(ctx, coordinator.OpSave, entityID, func(ctx context.Context) (any, error) {
		_ = s.cache.Delete(ctx, session.GUID())
		return nil, s.repo.Save(session)
	}, opts...)
	if err != nil {
		return err
	}
	_, err = future.Wait(ctx)
	return err
}

// Delete soft-deletes the session.
func (s *SessionService) Delete(ctx context.Context, guid string, opts ...coordinator.OpOption) error {
	future, err := s.coord.QueueOperation(ctx, coordinator.OpDelete, guid, func(ctx context.Context) (any, error) {
		_ = s.cache.Delete(ctx, guid)
		return nil, s.repo.Delete(guid)
	}, opts...)
	if err != nil {
		return err
	}
	_, err = future.Wait(ctx)
	return err
}

// SetActive makes the session the single active one.
func (s *SessionService) SetActive(ctx context.Context, guid string, opts ...coordinator.OpOption) (*domain.Session, error) {
	future, err := s.coord.QueueOperation(ctx, coordinator.OpSetActive, guid, func(ctx context.Context) (any, error) {
		// Activation also demotes the previous active session, so the
		// whole cache goes rather than a single key.
		_ = s.cache.Flush(ctx)
		return s.repo.SetActive(guid)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return waitSession(ctx, future)
}

// Switch changes the active session to target. The coordinator is told
// about the switch first so the target's load preempts queued work and
// writes for the outgoing session are deprioritized.
func (s *SessionService) Switch(ctx context.Context, targetGUID string) (*domain.Session, error) {
	previousGUID := ""
	if previous, err := s.repo.GetActive(); err == nil {
		previousGUID = previous.GUID()
	}
	s.coord.MarkSwitching(targetGUID, previousGUID)

	log.Info(log.CatCoord, "switching session", "target", targetGUID, "previous", previousGUID)
	return s.SetActive(ctx, targetGUID, coordinator.WithPriority(1))
}

// Active returns the currently active session.
func (s *SessionService) Active(ctx context.Context) (*domain.Session, error) {
	future, err := s.coord.QueueOperation(ctx, coordinator.OpLoad, "active", func(ctx context.Context) (any, error) {
		return s.repo.GetActive()
	})
	if err != nil {
		return nil, err
	}
	return waitSession(ctx, future)
}

// InvalidateCache drops every cached session. The daemon calls this when
// the store file changes outside this process.
func (s *SessionService) InvalidateCache(ctx context.Context) {
	_ = s.cache.Flush(ctx)
}

// List reads sessions directly from the repository. Listing is a read over
// many sessions so it bypasses per-entity scheduling; results may trail
// queued writes by a beat.
func (s *SessionService) List(filter domain.ListFilter) ([]*domain.Session, error) {
	return s.repo.ListWithFilter(filter)
}

func waitSession(ctx context.Context, future *coordinator.Future) (*domain.Session, error) {
	value, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	session, ok := value.(*domain.Session)
	if !ok {
		return nil, fmt.Errorf("unexpected operation result type %T", value)
	}
	return session, nil
}
