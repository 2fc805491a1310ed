// Package sqlite provides a SQLite-backed object and username store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	sqlitemigrate "github.com/designftw/graffiti-chat/internal/platform/storage/sqlitemigrate"
	"github.com/designftw/graffiti-chat/internal/services/objects/storage"
	"github.com/designftw/graffiti-chat/internal/services/objects/storage/sqlite/migrations"
)

// Store persists objects and usernames in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutObject upserts one object and replaces its context index.
func (s *Store) PutObject(ctx context.Context, obj storage.Object) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	objectID := strings.TrimSpace(obj.ID)
	if objectID == "" {
		return fmt.Errorf("object id is required")
	}
	if strings.TrimSpace(obj.Actor) == "" {
		return fmt.Errorf("object actor is required")
	}
	if len(obj.Data) == 0 {
		return fmt.Errorf("object data is required")
	}
	bto, err := json.Marshal(nonNil(obj.Bto))
	if err != nil {
		return fmt.Errorf("encode bto: %w", err)
	}
	updatedAt := obj.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put object: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO objects (id, actor, bto, published_at, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   actor = excluded.actor,
		   bto = excluded.bto,
		   published_at = excluded.published_at,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		objectID,
		obj.Actor,
		string(bto),
		toMillis(obj.Published),
		obj.Data,
		toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM object_contexts WHERE object_id = ?`, objectID); err != nil {
		return fmt.Errorf("clear object contexts: %w", err)
	}
	for _, contextID := range obj.Context {
		if contextID == "" {
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO object_contexts (object_id, context_id) VALUES (?, ?)`,
			objectID,
			contextID,
		); err != nil {
			return fmt.Errorf("index object context: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put object: %w", err)
	}
	return nil
}

// GetObject returns one object by id.
func (s *Store) GetObject(ctx context.Context, id string) (storage.Object, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Object{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Object{}, fmt.Errorf("object id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, actor, bto, published_at, data, updated_at
		   FROM objects
		  WHERE id = ?`,
		id,
	)
	obj, err := scanObject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Object{}, storage.ErrNotFound
		}
		return storage.Object{}, fmt.Errorf("get object: %w", err)
	}
	contexts, err := s.objectContexts(ctx, id)
	if err != nil {
		return storage.Object{}, err
	}
	obj.Context = contexts
	return obj, nil
}

// DeleteObject removes one object and its context index.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("object id is required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete object: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM object_contexts WHERE object_id = ?`, id); err != nil {
		return fmt.Errorf("clear object contexts: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete object: %w", err)
	}
	return nil
}

// ListObjectsByContext returns the objects filed under any of contextIDs.
func (s *Store) ListObjectsByContext(ctx context.Context, contextIDs []string) ([]storage.Object, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(contextIDs))
	for _, contextID := range contextIDs {
		if contextID != "" {
			ids = append(ids, contextID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT o.id, o.actor, o.bto, o.published_at, o.data, o.updated_at
		   FROM objects o
		  WHERE o.id IN (
		        SELECT object_id FROM object_contexts WHERE context_id IN (`+placeholders+`)
		  )
		  ORDER BY o.seq ASC`,
		ids...,
	)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []storage.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	for i := range objects {
		contexts, err := s.objectContexts(ctx, objects[i].ID)
		if err != nil {
			return nil, err
		}
		objects[i].Context = contexts
	}
	return objects, nil
}

func (s *Store) objectContexts(ctx context.Context, objectID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT context_id FROM object_contexts WHERE object_id = ? ORDER BY rowid ASC`,
		objectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list object contexts: %w", err)
	}
	defer rows.Close()

	var contexts []string
	for rows.Next() {
		var contextID string
		if err := rows.Scan(&contextID); err != nil {
			return nil, fmt.Errorf("list object contexts: %w", err)
		}
		contexts = append(contexts, contextID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list object contexts: %w", err)
	}
	return contexts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (storage.Object, error) {
	var (
		obj         storage.Object
		bto         string
		publishedAt int64
		updatedAt   int64
	)
	if err := row.Scan(&obj.ID, &obj.Actor, &bto, &publishedAt, &obj.Data, &updatedAt); err != nil {
		return storage.Object{}, err
	}
	if err := json.Unmarshal([]byte(bto), &obj.Bto); err != nil {
		return storage.Object{}, fmt.Errorf("decode bto: %w", err)
	}
	obj.Published = fromMillis(publishedAt)
	obj.UpdatedAt = fromMillis(updatedAt)
	return obj, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
