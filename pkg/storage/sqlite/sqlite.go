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

// Package sqlite is the embedded storage backend. It is used for local
// deployments and for every engine test.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlstore"
)

// driverName is go-sqlite3 with unicode_lower registered on every
// connection. The builtin LOWER only folds ASCII.
const driverName = "sqlite3_datarecord"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", unicodeLower, true)
		},
	})
}

func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		if s == nil {
			return nil
		}

		return strings.ToLower(string(s))
	default:
		return v
	}
}

// Open connects to the database at path. path may already carry query
// parameters (for example file:name?mode=memory), in which case the
// tuning parameters are appended.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := sql.Open(driverName, buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers and keeps shared in-memory
	// databases alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqlstore.New(db, Dialect{}, Classify), nil
}

func buildConnectionString(path string) string {
	params := "_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_cache_size=-64000"

	if runtime.GOOS == "darwin" {
		params += "&_fullfsync=1"
	}

	if strings.Contains(path, "?") {
		return path + "&" + params
	}

	return path + "?cache=shared&mode=rwc&" + params
}

// Classify maps sqlite3 constraint errors onto storage sentinels.
func Classify(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return storage.ErrDuplicateKey
	case sqliteErr.Code == sqlite3.ErrCantOpen, sqliteErr.Code == sqlite3.ErrNotADB:
		return storage.ErrConnection
	}

	return err
}

// Dialect is the SQLite flavour of SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Quote(v any) string {
	return storage.QuoteLiteral(v, storage.QuoteStandard, "1", "0")
}

func (Dialect) LowerSQL(expr string) string { return "unicode_lower(" + expr + ")" }

func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) ColumnSQL(ct storage.ColumnType) string {
	switch ct.Kind {
	case storage.KindInteger:
		return "INTEGER"
	case storage.KindBigInt:
		return "BIGINT"
	case storage.KindFloat:
		return "REAL"
	case storage.KindBool:
		return "BOOLEAN"
	case storage.KindVarchar:
		return "VARCHAR(" + strconv.Itoa(ct.Size) + ")"
	case storage.KindDateTime:
		return "DATETIME"
	case storage.KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func (Dialect) PrimaryKeySQL(auto bool) string {
	if auto {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	return "BIGINT NOT NULL PRIMARY KEY"
}

// AlterColumnSQL is unsupported: SQLite cannot change a column type in place.
func (Dialect) AlterColumnSQL(string, string, storage.ColumnType) (string, bool) {
	return "", false
}

// IndexName prefixes the table because SQLite index names are database-wide.
func (Dialect) IndexName(table, logical string) string {
	return table + "_" + logical
}

func (d Dialect) DropIndexSQL(_ string, index string) string {
	return "DROP INDEX IF EXISTS " + d.QuoteIdent(index)
}

func (d Dialect) Describe(ctx context.Context, q storage.Querier, table string) (*storage.TableDescription, error) {
	desc := &storage.TableDescription{Name: table}

	master, err := q.Query(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = "+d.Quote(table))
	if err != nil {
		return nil, fmt.Errorf("failed to look up table %s: %w", table, err)
	}

	if len(master) == 0 {
		return desc, nil
	}

	desc.Exists = true
	autoIncrement := strings.Contains(strings.ToUpper(cast.ToString(master[0]["sql"])), "AUTOINCREMENT")

	columns, err := q.Query(ctx, "PRAGMA table_info("+d.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to describe columns of %s: %w", table, err)
	}

	for _, row := range columns {
		pk := cast.ToInt(row["pk"]) > 0
		desc.Columns = append(desc.Columns, storage.Column{
			Name:          cast.ToString(row["name"]),
			Type:          storage.NormalizeType(cast.ToString(row["type"])),
			PrimaryKey:    pk,
			AutoIncrement: pk && autoIncrement,
		})
	}

	indexes, err := q.Query(ctx, "PRAGMA index_list("+d.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}

	for _, row := range indexes {
		// Only explicitly created indexes; automatic ones back constraints.
		if cast.ToString(row["origin"]) != "c" {
			continue
		}

		name := cast.ToString(row["name"])

		info, err := q.Query(ctx, "PRAGMA index_info("+d.QuoteIdent(name)+")")
		if err != nil {
			return nil, fmt.Errorf("failed to describe index %s: %w", name, err)
		}

		sort.Slice(info, func(i, j int) bool {
			return cast.ToInt(info[i]["seqno"]) < cast.ToInt(info[j]["seqno"])
		})

		idx := storage.Index{Name: name}
		for _, col := range info {
			idx.Columns = append(idx.Columns, cast.ToString(col["name"]))
		}

		desc.Indexes = append(desc.Indexes, idx)
	}

	sort.Slice(desc.Indexes, func(i, j int) bool { return desc.Indexes[i].Name < desc.Indexes[j].Name })

	return desc, nil
}
