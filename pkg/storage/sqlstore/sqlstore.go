// Copyright 2026 UMH Systems GmbH
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

// Package sqlstore implements storage.Executor on top of database/sql.
// The SQLite and MySQL backends share it and only contribute a dialect and
// an error classifier.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// Classifier maps driver errors onto storage sentinels. It returns err
// unchanged when no sentinel applies.
type Classifier func(err error) error

// Store is a storage.Executor backed by a *sql.DB.
type Store struct {
	db       *sql.DB
	dialect  storage.Dialect
	classify Classifier
	log      *zap.SugaredLogger
	closed   atomic.Bool
}

var _ storage.Executor = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB, dialect storage.Dialect, classify Classifier) *Store {
	if classify == nil {
		classify = func(err error) error { return err }
	}

	return &Store{
		db:       db,
		dialect:  dialect,
		classify: classify,
		log:      logger.For(logger.ComponentStorage).With("dialect", dialect.Name()),
	}
}

func (s *Store) Dialect() storage.Dialect { return s.dialect }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Query(ctx context.Context, query string) ([]storage.Row, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}

	s.log.Debugw("query", "sql", query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", s.wrap(err))
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []storage.Row

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(storage.Row, len(columns))

		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)

				continue
			}

			row[name] = values[i]
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", s.wrap(err))
	}

	return result, nil
}

func (s *Store) Exec(ctx context.Context, query string) (int64, error) {
	if s.closed.Load() {
		return 0, storage.ErrClosed
	}

	s.log.Debugw("exec", "sql", query)

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to execute: %w", s.wrap(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// Insert runs an INSERT and reports the generated key through the driver's
// LastInsertId. keyColumn is unused because both SQLite and MySQL report
// the single auto-increment column.
func (s *Store) Insert(ctx context.Context, query string, _ string) (int64, error) {
	if s.closed.Load() {
		return 0, storage.ErrClosed
	}

	s.log.Debugw("insert", "sql", query)

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to insert: %w", s.wrap(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}

	return nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func (s *Store) wrap(err error) error {
	classified := s.classify(err)
	if classified == err {
		return err
	}

	return fmt.Errorf("%w: %w", classified, err)
}
