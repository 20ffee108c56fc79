// Package identity provides the durable per-browser-profile visitor
// identity used to correlate chat sessions.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// StorageKey is the well-known name under which the visitor identifier is
// persisted, scoped per storage origin, with no expiry.
const StorageKey = "litechat_visitor_id"

var visitorIDPattern = regexp.MustCompile(`^visitor_[a-f0-9]{32}$`)

// NewVisitorID generates a fresh opaque visitor token.
func NewVisitorID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate visitor id: %w", err)
	}
	return "visitor_" + hex.EncodeToString(buf), nil
}

// IsValidVisitorID reports whether id has the expected opaque token shape.
func IsValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

// Store is the durable local storage holding the visitor identifier.
// Exactly one identifier exists per storage origin, created lazily on
// first need.
type Store interface {
	// Load returns the persisted identifier, or "" if none exists.
	Load() (string, error)

	// Save persists the identifier.
	Save(id string) error
}

// Resolve returns the stored visitor identifier, generating and persisting
// a fresh one exactly once if absent or malformed. A valid stored token is
// never regenerated.
func Resolve(store Store) (string, error) {
	id, err := store.Load()
	if err != nil {
		return "", fmt.Errorf("load visitor id: %w", err)
	}
	if IsValidVisitorID(id) {
		return id, nil
	}

	id, err = NewVisitorID()
	if err != nil {
		return "", err
	}
	if err := store.Save(id); err != nil {
		return "", fmt.Errorf("persist visitor id: %w", err)
	}
	return id, nil
}

// FileStore keeps the visitor identifier in a single file under a profile
// directory, one file per storage origin.
type FileStore struct {
	path string
}

// NewFileStore returns a store rooted at dir for the given storage origin.
func NewFileStore(dir, origin string) *FileStore {
	name := StorageKey
	if origin != "" {
		name = sanitizeOrigin(origin) + "_" + StorageKey
	}
	return &FileStore{path: filepath.Join(dir, name)}
}

var originSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeOrigin(origin string) string {
	return originSanitizer.ReplaceAllString(origin, "_")
}

// Load reads the persisted identifier. A missing file means no identity
// exists yet.
func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the identifier, creating the profile directory if needed.
func (s *FileStore) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and throwaway profiles.
type MemStore struct {
	id string
}

// Load returns the held identifier.
func (s *MemStore) Load() (string, error) { return s.id, nil }

// Save replaces the held identifier.
func (s *MemStore) Save(id string) error {
	s.id = id
	return nil
}
