// Package storage holds the durable session record: the single source of
// truth for "is there a usable session, and what is it". The record is shared
// by independent processes (the trigger daemon and transient tool calls), so
// it lives on disk, never in memory.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/appvision-bridge/bridge/internal/models"
)

// Store defines the interface for session record persistence.
type Store interface {
	Save(sessionID, peerAddress string) error
	Load() (*models.Session, bool)
	Remove() error
}

// sessionRecord is the on-disk layout: a JSON document holding an array with
// one element. The array shape is part of the cross-process contract.
type sessionRecord []models.Session

// FileStore implements Store on the local filesystem. Writes are atomic per
// file (write then rename is not needed; the record is a single small
// document and last-writer-wins is the accepted model). Multiple processes
// may read concurrently; only the lifecycle controller writes.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore creates a FileStore backed by the given record path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save durably writes the session pair, overwriting any prior record and
// creating the parent directory if absent. Readers in other processes see
// the new value on their next Load.
func (s *FileStore) Save(sessionID, peerAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	record := sessionRecord{{
		SessionID:   sessionID,
		PeerAddress: peerAddress,
		CreatedAt:   time.Now(),
	}}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}

	return nil
}

// Load reads the current record. A missing, empty, or malformed file means
// "no session", a normal state rather than an error, so callers get
// (nil, false).
func (s *FileStore) Load() (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		fmt.Printf("[SessionStore] Malformed session record, treating as absent: %v\n", err)
		return nil, false
	}
	if len(record) == 0 || record[0].SessionID == "" {
		return nil, false
	}

	sess := record[0]
	return &sess, true
}

// Remove deletes the record. A record that is already gone is not an error.
func (s *FileStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session record: %w", err)
	}
	return nil
}

// Path returns the record location, for startup logging.
func (s *FileStore) Path() string {
	return s.path
}
