// Copyright 2024 OpsPilot Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a trace ID is not present in the store.
var ErrNotFound = errors.New("trace not found")

// Storage is the interface trace stores implement. Traces are write-once:
// Put with an existing ID overwrites, but the pipeline never reuses IDs.
type Storage interface {
	// Put stores a trace.
	Put(ctx context.Context, t *Trace) error
	// Get retrieves a trace by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Trace, error)
	// List returns all stored traces, newest first.
	List(ctx context.Context) ([]*Trace, error)
	// Close closes the storage backend.
	Close() error
}

// GenerateTraceID generates an opaque trace identifier.
func GenerateTraceID() string {
	bytes := make([]byte, 12)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("trace_%d", time.Now().UnixNano())
	}
	return "trace_" + hex.EncodeToString(bytes)
}

// MemoryStorage keeps traces in an in-memory map. Concurrent requests only
// ever append fresh IDs, so a plain mutex around the map is sufficient.
type MemoryStorage struct {
	mu         sync.RWMutex
	traces     map[string]*Trace
	order      []string
	maxEntries int
}

// NewMemoryStorage creates an in-memory store capped at maxEntries traces.
// When the cap is exceeded the oldest entries are evicted.
func NewMemoryStorage(maxEntries int) *MemoryStorage {
	return &MemoryStorage{
		traces:     make(map[string]*Trace),
		maxEntries: maxEntries,
	}
}

// Put stores a trace, evicting the oldest entries beyond the cap.
func (s *MemoryStorage) Put(_ context.Context, t *Trace) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("trace must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.traces[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.traces[t.ID] = t

	for s.maxEntries > 0 && len(s.order) > s.maxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.traces, oldest)
	}

	return nil
}

// Get retrieves a trace by ID.
func (s *MemoryStorage) Get(_ context.Context, id string) (*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.traces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns all stored traces, newest first.
func (s *MemoryStorage) List(_ context.Context) ([]*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Trace, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, s.traces[s.order[i]])
	}
	return result, nil
}

// Close is a no-op for memory storage.
func (s *MemoryStorage) Close() error {
	return nil
}

// Store is the process-wide trace registry: an in-memory map backed by an
// optional durable mirror. It is constructed once per process and passed by
// reference to request handlers.
type Store struct {
	memory *MemoryStorage
	mirror Storage
	logger *zap.Logger
}

// Config holds trace store configuration.
type Config struct {
	MaxEntries int    `json:"max_entries"`
	DBPath     string `json:"db_path"`
}

// DefaultConfig returns default trace store configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1000,
		DBPath:     "",
	}
}

// NewStore creates a trace store. When cfg.DBPath is non-empty the memory
// map is write-through mirrored into sqlite so traces survive restarts.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &Store{
		memory: NewMemoryStorage(cfg.MaxEntries),
		logger: logger,
	}

	if cfg.DBPath != "" {
		mirror, err := NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace mirror: %w", err)
		}
		store.mirror = mirror
	}

	return store, nil
}

// Save persists a trace in memory and, when configured, the durable mirror.
// A mirror failure is logged but does not fail the request.
func (s *Store) Save(ctx context.Context, t *Trace) error {
	if err := s.memory.Put(ctx, t); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, t); err != nil {
			s.logger.Warn("Failed to mirror trace",
				zap.String("trace_id", t.ID),
				zap.Error(err))
		}
	}

	return nil
}

// Get retrieves a trace, checking memory first and the mirror second. A
// mirror hit is cached back into memory.
func (s *Store) Get(ctx context.Context, id string) (*Trace, error) {
	t, err := s.memory.Get(ctx, id)
	if err == nil {
		return t, nil
	}

	if s.mirror == nil {
		return nil, ErrNotFound
	}

	t, err = s.mirror.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cacheErr := s.memory.Put(ctx, t); cacheErr != nil {
		s.logger.Warn("Failed to cache mirrored trace",
			zap.String("trace_id", id),
			zap.Error(cacheErr))
	}

	return t, nil
}

// Cache stores a trace fetched from a remote collaborator so later lookups
// resolve locally.
func (s *Store) Cache(ctx context.Context, t *Trace) {
	if err := s.Save(ctx, t); err != nil {
		s.logger.Warn("Failed to cache remote trace",
			zap.String("trace_id", t.ID),
			zap.Error(err))
	}
}

// Close closes the underlying storage backends.
func (s *Store) Close() error {
	if err := s.memory.Close(); err != nil {
		return err
	}
	if s.mirror != nil {
		return s.mirror.Close()
	}
	return nil
}
