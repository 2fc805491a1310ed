// Package storage defines persistence contracts for the object service.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record is held by
	// someone else.
	ErrAlreadyExists = errors.New("record already exists")
)

// Object is one stored object. Data holds the full JSON document; the other
// fields are indexed copies of its routing attributes.
type Object struct {
	ID        string
	Actor     string
	Context   []string
	Bto       []string
	Published time.Time
	Data      []byte
	UpdatedAt time.Time
}

// ObjectStore persists objects and indexes them by context.
type ObjectStore interface {
	// PutObject inserts obj or replaces the object with the same id,
	// keeping its original position in context listings.
	PutObject(ctx context.Context, obj Object) error
	GetObject(ctx context.Context, id string) (Object, error)
	DeleteObject(ctx context.Context, id string) error
	// ListObjectsByContext returns objects in any of contextIDs in insertion
	// order, each at most once.
	ListObjectsByContext(ctx context.Context, contextIDs []string) ([]Object, error)
}

// NameStore binds handles to actors. Each actor holds at most one handle.
type NameStore interface {
	// ClaimName binds name to actor, releasing the actor's previous handle.
	// It returns ErrAlreadyExists when another actor holds name.
	ClaimName(ctx context.Context, name, actor string) error
	GetActorByName(ctx context.Context, name string) (string, error)
	GetNameByActor(ctx context.Context, actor string) (string, error)
}

// Store is the full persistence surface of the object service.
type Store interface {
	ObjectStore
	NameStore
	Close() error
}
