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

// Package storage is the boundary between the record engine and a SQL
// database. The engine issues hand-built SQL through an Executor and
// escapes every literal through the executor's Dialect. Connection pooling,
// driver specifics and catalog introspection live behind this boundary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDuplicateKey is returned when an insert or update violates a unique or primary key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConnection is returned when the database cannot be reached.
	ErrConnection = errors.New("database connection failed")
	// ErrClosed is returned by every operation on a closed executor.
	ErrClosed = errors.New("executor is closed")
)

// DateTimeLayout is the textual form of DateTime literals.
const DateTimeLayout = "2006-01-02 15:04:05"

// DateLayout is the textual form of Date literals.
const DateLayout = "2006-01-02"

// Row is one result row keyed by column name.
type Row map[string]any

// Querier runs statements returning rows.
type Querier interface {
	Query(ctx context.Context, query string) ([]Row, error)
}

// Executor runs hand-built SQL against one database.
//
// Insert returns the generated key of the inserted row and Exec returns the
// number of affected rows, so no per-call state is kept on the executor and
// one executor can be shared by concurrent callers.
type Executor interface {
	Querier
	Dialect() Dialect
	Exec(ctx context.Context, query string) (rowsAffected int64, err error)
	Insert(ctx context.Context, query string, keyColumn string) (lastInsertedKey int64, err error)
	Ping(ctx context.Context) error
	Close() error
}

// Quoter escapes literals and identifiers.
type Quoter interface {
	Quote(v any) string
	QuoteIdent(name string) string
}

// Folder is implemented by dialects whose LOWER does not fold the same
// characters as strings.ToLower.
type Folder interface {
	LowerSQL(expr string) string
}

// LowerSQL lowercases expr for case-insensitive matching.
func LowerSQL(q Quoter, expr string) string {
	if f, ok := q.(Folder); ok {
		return f.LowerSQL(expr)
	}

	return "LOWER(" + expr + ")"
}

// Dialect captures everything that differs between SQL databases.
type Dialect interface {
	Quoter
	Name() string
	// ColumnSQL renders a storage type. Describe must report live columns
	// using exactly the same spelling so declared and live types compare equal.
	ColumnSQL(ct ColumnType) string
	// PrimaryKeySQL renders the full column definition of a primary key.
	PrimaryKeySQL(auto bool) string
	// AlterColumnSQL changes a column type in place. ok is false when the
	// database cannot do this.
	AlterColumnSQL(table, column string, ct ColumnType) (stmt string, ok bool)
	DropIndexSQL(table, index string) string
	// IndexName maps a logical index name to the name used in the database.
	IndexName(table, logical string) string
	Describe(ctx context.Context, q Querier, table string) (*TableDescription, error)
}

// ColumnKind is the abstract storage kind of a column.
type ColumnKind int

const (
	KindInteger ColumnKind = iota
	KindBigInt
	KindFloat
	KindBool
	KindVarchar
	KindText
	KindDateTime
	KindDate
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindVarchar:
		return "varchar"
	case KindText:
		return "text"
	case KindDateTime:
		return "datetime"
	case KindDate:
		return "date"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ColumnType is the storage-type contract of a field.
type ColumnType struct {
	Kind ColumnKind
	// Size is the maximum length of a varchar.
	Size int
}

func Varchar(size int) ColumnType { return ColumnType{Kind: KindVarchar, Size: size} }

func Text() ColumnType { return ColumnType{Kind: KindText} }

func Integer() ColumnType { return ColumnType{Kind: KindInteger} }

func BigInt() ColumnType { return ColumnType{Kind: KindBigInt} }

func Float() ColumnType { return ColumnType{Kind: KindFloat} }

func Bool() ColumnType { return ColumnType{Kind: KindBool} }

func DateTime() ColumnType { return ColumnType{Kind: KindDateTime} }

func Date() ColumnType { return ColumnType{Kind: KindDate} }

// Column is a live column as reported by Describe.
type Column struct {
	Name          string
	Type          string
	PrimaryKey    bool
	AutoIncrement bool
}

// Index is a live secondary index.
type Index struct {
	Name    string
	Columns []string
}

// TableDescription is the live definition of a table.
type TableDescription struct {
	Name    string
	Exists  bool
	Columns []Column
	Indexes []Index
}

// Column looks up a live column by name.
func (t *TableDescription) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}

	return Column{}, false
}

// PrimaryKey returns the primary key column, if any.
func (t *TableDescription) PrimaryKey() (Column, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}

	return Column{}, false
}

// Index looks up a live index by name.
func (t *TableDescription) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}

	return Index{}, false
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier rejects table and column names that are unsafe to embed in SQL.
func ValidateIdentifier(name string) error {
	if name == "" {
		return errors.New("invalid identifier: cannot be empty")
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must contain only alphanumeric characters and underscores, and must start with a letter or underscore", name)
	}

	return nil
}

// QuoteLiteral renders v as a SQL literal. Strings (and the textual forms
// of times and byte slices) go through quoteString; bools use the given
// spellings.
func QuoteLiteral(v any, quoteString func(string) string, boolTrue, boolFalse string) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return boolTrue
		}

		return boolFalse
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return quoteString(t)
	case []byte:
		return quoteString(string(t))
	case time.Time:
		return quoteString(t.UTC().Format(DateTimeLayout))
	default:
		return quoteString(fmt.Sprint(t))
	}
}

// QuoteStandard quotes s using standard SQL rules: single quotes doubled.
func QuoteStandard(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// NormalizeType upper-cases a type spelling and collapses whitespace.
func NormalizeType(t string) string {
	return strings.Join(strings.Fields(strings.ToUpper(t)), " ")
}
