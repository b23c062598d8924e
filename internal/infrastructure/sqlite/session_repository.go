package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

// sessionColumns is the list of columns to select for session queries.
const sessionColumns = `id, guid, name, state, content, last_accessed_at, created_at, updated_at, deleted_at`

// sessionRepository implements domain.SessionRepository using SQLite.
type sessionRepository struct {
	db *sql.DB
}

// newSessionRepository creates a new sessionRepository instance.
func newSessionRepository(db *sql.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

// Ensure sessionRepository implements domain.SessionRepository.
var _ domain.SessionRepository = (*sessionRepository)(nil)

// scanSession scans a row into a SessionModel.
func scanSession(scanner interface{ Scan(...any) error }) (*SessionModel, error) {
	var model SessionModel
	err := scanner.Scan(
		&model.ID, &model.GUID, &model.Name, &model.State, &model.Content,
		&model.LastAccessedAt, &model.CreatedAt, &model.UpdatedAt, &model.DeletedAt,
	)
	return &model, err
}

// Save persists a session to the database.
// For new sessions (ID == 0), inserts a new row and sets the session ID.
// For existing sessions (ID > 0), updates the existing row.
func (r *sessionRepository) Save(session *domain.Session) error {
	model := toSessionModel(session)

	if session.ID() == 0 {
		result, err := r.db.Exec(
			`INSERT INTO sessions (guid, name, state, content, last_accessed_at, created_at, updated_at, deleted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			model.GUID, model.Name, model.State, model.Content,
			model.LastAccessedAt, model.CreatedAt, model.UpdatedAt, model.DeletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		session.SetID(id)
		return nil
	}

	_, err := r.db.Exec(
		`UPDATE sessions SET name = ?, state = ?, content = ?, last_accessed_at = ?, updated_at = ?, deleted_at = ?
		 WHERE id = ?`,
		model.Name, model.State, model.Content, model.LastAccessedAt,
		model.UpdatedAt, model.DeletedAt, model.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// FindByGUID retrieves a session by its GUID.
// Returns SessionNotFoundError if no matching session exists.
// Soft-deleted sessions are not returned.
func (r *sessionRepository) FindByGUID(guid string) (*domain.Session, error) {
	row := r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE guid = ? AND deleted_at IS NULL`,
		guid,
	)
	model, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.SessionNotFoundError{GUID: guid}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by guid: %w", err)
	}
	return model.toDomain(), nil
}

// GetActive retrieves the currently active session.
// Returns NoActiveSessionError if no session is active.
func (r *sessionRepository) GetActive() (*domain.Session, error) {
	row := r.db.QueryRow(
		`SELECT ` + sessionColumns + ` FROM sessions WHERE state = 'active' AND deleted_at IS NULL`,
	)
	model, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NoActiveSessionError{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return model.toDomain(), nil
}

// SetActive makes the given session the single active one. The previous
// active session (if any) is demoted to idle in the same transaction so an
// observer never sees two active rows.
func (r *sessionRepository) SetActive(guid string) (*domain.Session, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	now := time.Now().Unix()

	if _, err := tx.Exec(
		`UPDATE sessions SET state = 'idle', updated_at = ? WHERE state = 'active' AND deleted_at IS NULL`,
		now,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to demote active session: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE sessions SET state = 'active', last_accessed_at = ?, updated_at = ? WHERE guid = ? AND deleted_at IS NULL`,
		now, now, guid,
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to activate session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		_ = tx.Rollback()
		return nil, &domain.SessionNotFoundError{GUID: guid}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}

	return r.FindByGUID(guid)
}

// Delete performs a soft delete on a session by setting its deletedAt
// timestamp. Returns SessionNotFoundError if no matching session exists.
func (r *sessionRepository) Delete(guid string) error {
	now := time.Now().Unix()
	result, err := r.db.Exec(
		`UPDATE sessions SET deleted_at = ?, state = 'idle', updated_at = ?
		 WHERE guid = ? AND deleted_at IS NULL`,
		now, now, guid,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.SessionNotFoundError{GUID: guid}
	}
	return nil
}

// ListWithFilter retrieves sessions matching the given filter criteria.
// Results are ordered by updated_at descending (most recent first).
func (r *sessionRepository) ListWithFilter(filter domain.ListFilter) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1 = 1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	// An explicit state filter overrides the default archived exclusion.
	if filter.State == "" && !filter.IncludeArchived {
		query += ` AND state != 'archived'`
	}
	query += ` ORDER BY updated_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*domain.Session
	for rows.Next() {
		model, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// Close releases any resources held by the repository.
// This is a no-op because the connection is owned by the DB struct.
func (r *sessionRepository) Close() error {
	return nil
}
