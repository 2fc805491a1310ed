package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/designftw/graffiti-chat/internal/services/objects/storage"
)

// ClaimName binds name to actor inside one transaction.
func (s *Store) ClaimName(ctx context.Context, name, actor string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	actor = strings.TrimSpace(actor)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if actor == "" {
		return fmt.Errorf("actor is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim name: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT actor FROM usernames WHERE name = ?`, name).Scan(&owner)
	switch {
	case err == nil && owner == actor:
		return nil
	case err == nil:
		return storage.ErrAlreadyExists
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup name: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM usernames WHERE actor = ?`, actor); err != nil {
		return fmt.Errorf("release previous name: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO usernames (name, actor, claimed_at) VALUES (?, ?, ?)`,
		name,
		actor,
		toMillis(time.Now()),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("claim name: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("commit claim name: %w", err)
	}
	return nil
}

// GetActorByName returns the actor bound to name.
func (s *Store) GetActorByName(ctx context.Context, name string) (string, error) {
	return s.lookup(ctx, `SELECT actor FROM usernames WHERE name = ?`, name)
}

// GetNameByActor returns the handle bound to actor.
func (s *Store) GetNameByActor(ctx context.Context, actor string) (string, error) {
	return s.lookup(ctx, `SELECT name FROM usernames WHERE actor = ?`, actor)
}

func (s *Store) lookup(ctx context.Context, query string, key string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", storage.ErrNotFound
	}
	var value string
	if err := s.sqlDB.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("lookup username: %w", err)
	}
	return value, nil
}
