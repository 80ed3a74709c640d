// File: internal/store/store.go

// Package store persists threads, messages, build plans and generated project
// files in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables the store depends on. Idempotent; run once
// at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES threads(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			images TEXT[] NOT NULL DEFAULT '{}',
			sequence BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (thread_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS build_plans (
			thread_id TEXT NOT NULL REFERENCES threads(id),
			plan_id TEXT NOT NULL,
			plan_text TEXT NOT NULL,
			asset_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (thread_id, plan_id)
		)`,
		`CREATE TABLE IF NOT EXISTS project_files (
			project_id TEXT NOT NULL,
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			modified_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (project_id, path)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return persistErr("EnsureSchema", err)
		}
	}
	return nil
}

// LoadThread returns the thread's checkpoint: its row (created on first
// touch), the most recent window of messages in chronological order, the
// latest plan if one exists, and the project's file inventory.
func (s *Store) LoadThread(ctx context.Context, threadID, projectID, ownerID string) (*schemas.ThreadState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, persistErr("LoadThread", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	thread := schemas.Thread{ID: threadID, ProjectID: projectID, OwnerID: ownerID}
	err = tx.QueryRow(ctx, `
		INSERT INTO threads (id, project_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at;
	`, threadID, projectID, ownerID, now).Scan(&thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		return nil, persistErr("LoadThread", err)
	}

	history, err := s.loadHistory(ctx, tx, threadID)
	if err != nil {
		return nil, err
	}

	plan, err := s.loadLatestPlan(ctx, tx, threadID)
	if err != nil {
		return nil, err
	}

	files, err := s.loadFiles(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistErr("LoadThread", err)
	}

	return &schemas.ThreadState{
		Thread:  thread,
		History: history,
		Plan:    plan,
		Files:   files,
	}, nil
}

// loadHistory fetches the newest HistoryWindow messages and reverses them so
// callers see chronological order.
func (s *Store) loadHistory(ctx context.Context, tx pgx.Tx, threadID string) ([]schemas.Message, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, thread_id, role, content, images, sequence, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY sequence DESC
		LIMIT $2;
	`, threadID, schemas.HistoryWindow)
	if err != nil {
		return nil, persistErr("LoadThread", err)
	}
	defer rows.Close()

	var newestFirst []schemas.Message
	for rows.Next() {
		var m schemas.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &m.Images, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, persistErr("LoadThread", err)
		}
		m.Role = schemas.MessageRole(role)
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("LoadThread", err)
	}

	history := make([]schemas.Message, len(newestFirst))
	for i, m := range newestFirst {
		history[len(newestFirst)-1-i] = m
	}
	return history, nil
}

func (s *Store) loadLatestPlan(ctx context.Context, tx pgx.Tx, threadID string) (*schemas.BuildPlan, error) {
	var plan schemas.BuildPlan
	err := tx.QueryRow(ctx, `
		SELECT thread_id, plan_id, plan_text, asset_url, created_at
		FROM build_plans
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1;
	`, threadID).Scan(&plan.ThreadID, &plan.PlanID, &plan.Text, &plan.AssetURL, &plan.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("LoadThread", err)
	}
	return &plan, nil
}

func (s *Store) loadFiles(ctx context.Context, tx pgx.Tx, projectID string) ([]schemas.ProjectFile, error) {
	rows, err := tx.Query(ctx, `
		SELECT project_id, path, content, modified_at
		FROM project_files
		WHERE project_id = $1
		ORDER BY path ASC;
	`, projectID)
	if err != nil {
		return nil, persistErr("LoadThread", err)
	}
	defer rows.Close()

	var files []schemas.ProjectFile
	for rows.Next() {
		var f schemas.ProjectFile
		if err := rows.Scan(&f.ProjectID, &f.Path, &f.Content, &f.ModifiedAt); err != nil {
			return nil, persistErr("LoadThread", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("LoadThread", err)
	}
	return files, nil
}

// AppendMessage persists one conversation turn, assigning the next sequence
// number within the thread atomically.
func (s *Store) AppendMessage(ctx context.Context, msg schemas.Message) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, thread_id, role, content, images, sequence, created_at)
		SELECT $1, $2, $3, $4, $5, COALESCE(MAX(sequence), 0) + 1, $6
		FROM messages WHERE thread_id = $2;
	`, msg.ID, msg.ThreadID, string(msg.Role), msg.Content, msg.Images, createdAt)
	if err != nil {
		return persistErr("AppendMessage", err)
	}
	return nil
}

// SavePlan records a plan revision. A re-presented plan with the same id
// supersedes the stored text; a new id becomes the thread's latest plan.
func (s *Store) SavePlan(ctx context.Context, plan schemas.BuildPlan) error {
	createdAt := plan.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO build_plans (thread_id, plan_id, plan_text, asset_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id, plan_id) DO UPDATE SET
			plan_text = EXCLUDED.plan_text,
			asset_url = EXCLUDED.asset_url,
			created_at = EXCLUDED.created_at;
	`, plan.ThreadID, plan.PlanID, plan.Text, plan.AssetURL, createdAt)
	if err != nil {
		return persistErr("SavePlan", err)
	}
	return nil
}

// UpsertFile inserts or fully replaces a generated file keyed by
// (project, path). Partial content never survives: the new content is the
// file.
func (s *Store) UpsertFile(ctx context.Context, projectID, path, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO project_files (project_id, path, content, modified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, path) DO UPDATE SET
			content = EXCLUDED.content,
			modified_at = EXCLUDED.modified_at;
	`, projectID, path, content, time.Now().UTC())
	if err != nil {
		return persistErr("UpsertFile", err)
	}
	return nil
}

// ListFiles returns the project's current file inventory ordered by path.
func (s *Store) ListFiles(ctx context.Context, projectID string) ([]schemas.ProjectFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project_id, path, content, modified_at
		FROM project_files
		WHERE project_id = $1
		ORDER BY path ASC;
	`, projectID)
	if err != nil {
		return nil, persistErr("ListFiles", err)
	}
	defer rows.Close()

	var files []schemas.ProjectFile
	for rows.Next() {
		var f schemas.ProjectFile
		if err := rows.Scan(&f.ProjectID, &f.Path, &f.Content, &f.ModifiedAt); err != nil {
			return nil, persistErr("ListFiles", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("ListFiles", err)
	}
	return files, nil
}

var _ schemas.Store = (*Store)(nil)
