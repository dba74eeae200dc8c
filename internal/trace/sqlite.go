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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage mirrors traces into a SQLite database. The variable-shape
// parts of a trace (steps, classification, images) are stored as a JSON
// blob; the columns used for lookup and ordering are first-class.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (and if needed initializes) a SQLite trace mirror.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates the traces table if it doesn't exist.
func (s *SQLiteStorage) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			input TEXT,
			final_output TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			has_images INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		)
	`

	_, err := s.db.Exec(query)
	return err
}

// Put stores a trace, replacing any existing row with the same ID.
func (s *SQLiteStorage) Put(ctx context.Context, t *Trace) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO traces (id, created_at, input, final_output, completed, has_images, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Timestamp, t.Input, t.FinalOutput, t.Completed, t.HasImages, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	return nil
}

// Get retrieves a trace by ID.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*Trace, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM traces WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trace: %w", err)
	}

	var t Trace
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("failed to decode trace %s: %w", id, err)
	}

	return &t, nil
}

// List returns all stored traces, newest first.
func (s *SQLiteStorage) List(ctx context.Context) ([]*Trace, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM traces ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var traces []*Trace
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}

		var t Trace
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("failed to decode trace: %w", err)
		}
		traces = append(traces, &t)
	}

	return traces, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
