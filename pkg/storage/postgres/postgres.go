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

// Package postgres is the PostgreSQL storage backend, running on a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

const (
	codeUniqueViolation     = "23505"
	connectionExceptionCode = "08"
	minConns                = 4
)

// Pool is the subset of *pgxpool.Pool the executor uses.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Executor is a storage.Executor backed by a pgx pool.
type Executor struct {
	pool   Pool
	log    *zap.SugaredLogger
	closed atomic.Bool
}

var _ storage.Executor = (*Executor)(nil)

// Open creates a pool from a libpq connection string or URL and pings it.
func Open(ctx context.Context, dsn string) (*Executor, error) {
	parseConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	parseConfig.MinConns = int32(runtime.NumCPU())
	if parseConfig.MinConns < minConns {
		parseConfig.MinConns = minConns
	}
	parseConfig.MaxConnIdleTime = 5 * time.Minute
	parseConfig.MaxConnLifetime = 10 * time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, parseConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}

	if err := pool.Ping(connCtx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}

	return New(pool), nil
}

// New wraps an existing pool.
func New(pool Pool) *Executor {
	return &Executor{
		pool: pool,
		log:  logger.For(logger.ComponentStorage).With("dialect", "postgres"),
	}
}

func (e *Executor) Dialect() storage.Dialect { return Dialect{} }

func (e *Executor) Query(ctx context.Context, query string) ([]storage.Row, error) {
	if e.closed.Load() {
		return nil, storage.ErrClosed
	}

	e.log.Debugw("query", "sql", query)

	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", wrap(err))
	}
	defer rows.Close()

	var result []storage.Row

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		fields := rows.FieldDescriptions()
		row := make(storage.Row, len(fields))

		for i, field := range fields {
			row[field.Name] = values[i]
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", wrap(err))
	}

	return result, nil
}

func (e *Executor) Exec(ctx context.Context, query string) (int64, error) {
	if e.closed.Load() {
		return 0, storage.ErrClosed
	}

	e.log.Debugw("exec", "sql", query)

	tag, err := e.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to execute: %w", wrap(err))
	}

	return tag.RowsAffected(), nil
}

// Insert appends a RETURNING clause for keyColumn and scans the generated key.
func (e *Executor) Insert(ctx context.Context, query string, keyColumn string) (int64, error) {
	if e.closed.Load() {
		return 0, storage.ErrClosed
	}

	query += " RETURNING " + pq.QuoteIdentifier(keyColumn)
	e.log.Debugw("insert", "sql", query)

	var id int64
	if err := e.pool.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert: %w", wrap(err))
	}

	return id, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return storage.ErrClosed
	}

	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}

	return nil
}

func (e *Executor) Close() error {
	if !e.closed.Swap(true) {
		e.pool.Close()
	}

	return nil
}

// Classify maps pgx errors onto storage sentinels.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return storage.ErrDuplicateKey
		case strings.HasPrefix(pgErr.Code, connectionExceptionCode):
			return storage.ErrConnection
		}

		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return storage.ErrConnection
	}

	return err
}

func wrap(err error) error {
	classified := Classify(err)
	if classified == err {
		return err
	}

	return fmt.Errorf("%w: %w", classified, err)
}

// Dialect is the PostgreSQL flavour of SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Quote(v any) string {
	return storage.QuoteLiteral(v, pq.QuoteLiteral, "TRUE", "FALSE")
}

func (Dialect) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (Dialect) ColumnSQL(ct storage.ColumnType) string {
	switch ct.Kind {
	case storage.KindInteger:
		return "INTEGER"
	case storage.KindBigInt:
		return "BIGINT"
	case storage.KindFloat:
		return "DOUBLE PRECISION"
	case storage.KindBool:
		return "BOOLEAN"
	case storage.KindVarchar:
		return "VARCHAR(" + strconv.Itoa(ct.Size) + ")"
	case storage.KindDateTime:
		return "TIMESTAMP"
	case storage.KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func (Dialect) PrimaryKeySQL(auto bool) string {
	if auto {
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}

	return "BIGINT NOT NULL PRIMARY KEY"
}

func (d Dialect) AlterColumnSQL(table, column string, ct storage.ColumnType) (string, bool) {
	typ := d.ColumnSQL(ct)

	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		d.QuoteIdent(table), d.QuoteIdent(column), typ, d.QuoteIdent(column), typ), true
}

// IndexName prefixes the table because PostgreSQL index names are schema-wide.
func (Dialect) IndexName(table, logical string) string {
	return table + "_" + logical
}

func (d Dialect) DropIndexSQL(_ string, index string) string {
	return "DROP INDEX IF EXISTS " + d.QuoteIdent(index)
}

// liveType renders an information_schema data_type with the spelling
// ColumnSQL uses.
func liveType(dataType string, maxLength int) string {
	switch strings.ToLower(dataType) {
	case "integer":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "double precision":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "character varying":
		if maxLength > 0 {
			return "VARCHAR(" + strconv.Itoa(maxLength) + ")"
		}

		return "VARCHAR"
	case "text":
		return "TEXT"
	case "timestamp without time zone":
		return "TIMESTAMP"
	case "date":
		return "DATE"
	default:
		return storage.NormalizeType(dataType)
	}
}

func (d Dialect) Describe(ctx context.Context, q storage.Querier, table string) (*storage.TableDescription, error) {
	desc := &storage.TableDescription{Name: table}

	columns, err := q.Query(ctx, "SELECT column_name, data_type, character_maximum_length, column_default, is_identity"+
		" FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = "+d.Quote(table)+
		" ORDER BY ordinal_position")
	if err != nil {
		return nil, fmt.Errorf("failed to describe columns of %s: %w", table, err)
	}

	if len(columns) == 0 {
		return desc, nil
	}

	desc.Exists = true

	keys, err := q.Query(ctx, "SELECT kcu.column_name FROM information_schema.table_constraints tc"+
		" JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema"+
		" WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = "+d.Quote(table))
	if err != nil {
		return nil, fmt.Errorf("failed to describe primary key of %s: %w", table, err)
	}

	primary := make(map[string]bool, len(keys))
	for _, row := range keys {
		primary[cast.ToString(row["column_name"])] = true
	}

	for _, row := range columns {
		name := cast.ToString(row["column_name"])
		auto := cast.ToString(row["is_identity"]) == "YES" ||
			strings.HasPrefix(cast.ToString(row["column_default"]), "nextval(")

		desc.Columns = append(desc.Columns, storage.Column{
			Name:          name,
			Type:          liveType(cast.ToString(row["data_type"]), cast.ToInt(row["character_maximum_length"])),
			PrimaryKey:    primary[name],
			AutoIncrement: auto,
		})
	}

	indexes, err := q.Query(ctx, "SELECT i.relname AS index_name, a.attname AS column_name"+
		" FROM pg_class t JOIN pg_index ix ON t.oid = ix.indrelid"+
		" JOIN pg_class i ON i.oid = ix.indexrelid"+
		" JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)"+
		" WHERE t.relname = "+d.Quote(table)+" AND t.relnamespace = current_schema()::regnamespace AND NOT ix.indisprimary"+
		" ORDER BY i.relname, array_position(ix.indkey::int2[], a.attnum)")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}

	for _, row := range indexes {
		name := cast.ToString(row["index_name"])
		col := cast.ToString(row["column_name"])

		if n := len(desc.Indexes); n > 0 && desc.Indexes[n-1].Name == name {
			desc.Indexes[n-1].Columns = append(desc.Indexes[n-1].Columns, col)

			continue
		}

		desc.Indexes = append(desc.Indexes, storage.Index{Name: name, Columns: []string{col}})
	}

	return desc, nil
}
