// Package database implements the single JSON document that backs every
// store. Each operation loads the whole file, works on the in-memory copy and
// writes the whole file back. All writes within the process go through one
// mutex so concurrent read-modify-write cycles cannot drop each other's
// changes. Several processes sharing one file are not coordinated.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

// Document is the decoded data file. Top-level keys owned by other parts of
// the application (e.g. microposts) are kept in extra and written back as-is.
type Document struct {
	Users               []model.User               `json:"users"`
	RefreshTokens       []model.RefreshToken       `json:"refreshTokens"`
	TokenBlacklist      []model.BlacklistEntry     `json:"tokenBlacklist"`
	PasswordResetTokens []model.PasswordResetToken `json:"passwordResetTokens"`

	extra map[string]json.RawMessage
}

const (
	keyUsers          = "users"
	keyRefreshTokens  = "refreshTokens"
	keyTokenBlacklist = "tokenBlacklist"
	keyResetTokens    = "passwordResetTokens"
)

// UnmarshalJSON decodes the known arrays and stashes every other key.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst any
	}{
		{keyUsers, &d.Users},
		{keyRefreshTokens, &d.RefreshTokens},
		{keyTokenBlacklist, &d.TokenBlacklist},
		{keyResetTokens, &d.PasswordResetTokens},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.key, err)
		}
		delete(raw, f.key)
	}
	d.extra = raw
	return nil
}

// MarshalJSON writes the known arrays (never null) plus the preserved keys.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.extra)+4)
	for k, v := range d.extra {
		out[k] = v
	}
	out[keyUsers] = nonNil(d.Users)
	out[keyRefreshTokens] = nonNil(d.RefreshTokens)
	out[keyTokenBlacklist] = nonNil(d.TokenBlacklist)
	out[keyResetTokens] = nonNil(d.PasswordResetTokens)
	return json.Marshal(out)
}

// Extra returns a preserved top-level value, if present.
func (d *Document) Extra(key string) (json.RawMessage, bool) {
	v, ok := d.extra[key]
	return v, ok
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// DB is the process-wide handle on the data file.
type DB struct {
	path string
	mu   sync.RWMutex
}

// Open prepares the data file at path, creating an empty document when the
// file does not exist, and verifies that an existing file decodes.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database: empty path")
	}
	db := &DB{path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("database: mkdir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := db.save(&Document{}); err != nil {
			return nil, err
		}
		return db, nil
	} else if err != nil {
		return nil, fmt.Errorf("database: stat: %w", err)
	}
	if _, err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

// Path returns the location of the data file.
func (db *DB) Path() string { return db.path }

// View loads the document and passes it to fn. Changes made by fn are
// discarded.
func (db *DB) View(ctx context.Context, fn func(doc *Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	doc, err := db.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update runs one serialized read-modify-write cycle. The document is written
// back only when fn returns nil.
func (db *DB) Update(ctx context.Context, fn func(doc *Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, err := db.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return db.save(doc)
}

func (db *DB) load() (*Document, error) {
	b, err := os.ReadFile(db.path)
	if err != nil {
		return nil, fmt.Errorf("database: read: %w", err)
	}
	doc := &Document{}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("database: decode %s: %w", db.path, err)
	}
	return doc, nil
}

// save replaces the file atomically: readers see either the old or the new
// document, never a partial write.
func (db *DB) save(doc *Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("database: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(db.path), filepath.Base(db.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("database: temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("database: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		return fmt.Errorf("database: rename: %w", err)
	}
	return nil
}
