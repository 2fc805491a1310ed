// Package id generates opaque object identifiers.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random v4 UUID encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// NewActorID returns a fresh actor identifier of the form "actor:<id>".
func NewActorID() (string, error) {
	value, err := NewID()
	if err != nil {
		return "", err
	}
	return "actor:" + value, nil
}
