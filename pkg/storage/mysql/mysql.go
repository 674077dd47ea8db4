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

// Package mysql is the MySQL / MariaDB storage backend.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlstore"
)

const (
	errDuplicateEntry  = 1062
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	maxOpenConnections = 10
	connMaxLifetime    = 5 * time.Minute
)

// Open connects using a go-sql-driver DSN. Time parsing is forced on so
// DATETIME columns come back as time.Time.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpenConnections)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}

	return sqlstore.New(db, Dialect{}, Classify), nil
}

// Classify maps MySQL server errors onto storage sentinels.
func Classify(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errDuplicateEntry:
			return storage.ErrDuplicateKey
		case errAccessDenied, errUnknownDatabase:
			return storage.ErrConnection
		}

		return err
	}

	if errors.Is(err, mysql.ErrInvalidConn) {
		return storage.ErrConnection
	}

	return err
}

// Dialect is the MySQL flavour of SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\x00", `\0`, "\n", `\n`, "\r", `\r`, "\x1a", `\Z`)

func quoteString(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

func (Dialect) Quote(v any) string {
	return storage.QuoteLiteral(v, quoteString, "1", "0")
}

func (Dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Dialect) ColumnSQL(ct storage.ColumnType) string {
	switch ct.Kind {
	case storage.KindInteger:
		return "INT"
	case storage.KindBigInt:
		return "BIGINT"
	case storage.KindFloat:
		return "DOUBLE"
	case storage.KindBool:
		return "TINYINT(1)"
	case storage.KindVarchar:
		return "VARCHAR(" + strconv.Itoa(ct.Size) + ")"
	case storage.KindDateTime:
		return "DATETIME"
	case storage.KindDate:
		return "DATE"
	default:
		return "MEDIUMTEXT"
	}
}

func (Dialect) PrimaryKeySQL(auto bool) string {
	if auto {
		return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}

	return "BIGINT NOT NULL PRIMARY KEY"
}

func (d Dialect) AlterColumnSQL(table, column string, ct storage.ColumnType) (string, bool) {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", d.QuoteIdent(table), d.QuoteIdent(column), d.ColumnSQL(ct)), true
}

// IndexName is the logical name: MySQL index names are scoped per table.
func (Dialect) IndexName(_ string, logical string) string {
	return logical
}

func (d Dialect) DropIndexSQL(table, index string) string {
	return "DROP INDEX " + d.QuoteIdent(index) + " ON " + d.QuoteIdent(table)
}

var displayWidth = regexp.MustCompile(`^(INT|BIGINT|SMALLINT|MEDIUMINT)\(\d+\)`)

// normalizeType strips integer display widths older servers report
// (INT(11)) while keeping TINYINT(1), which is how booleans are spelled.
func normalizeType(t string) string {
	t = storage.NormalizeType(t)

	return displayWidth.ReplaceAllString(t, "$1")
}

func (d Dialect) Describe(ctx context.Context, q storage.Querier, table string) (*storage.TableDescription, error) {
	desc := &storage.TableDescription{Name: table}

	columns, err := q.Query(ctx, "SELECT COLUMN_NAME AS name, COLUMN_TYPE AS type, COLUMN_KEY AS col_key, EXTRA AS extra"+
		" FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = "+d.Quote(table)+
		" ORDER BY ORDINAL_POSITION")
	if err != nil {
		return nil, fmt.Errorf("failed to describe columns of %s: %w", table, err)
	}

	if len(columns) == 0 {
		return desc, nil
	}

	desc.Exists = true

	for _, row := range columns {
		desc.Columns = append(desc.Columns, storage.Column{
			Name:          cast.ToString(row["name"]),
			Type:          normalizeType(cast.ToString(row["type"])),
			PrimaryKey:    cast.ToString(row["col_key"]) == "PRI",
			AutoIncrement: strings.Contains(strings.ToLower(cast.ToString(row["extra"])), "auto_increment"),
		})
	}

	indexes, err := q.Query(ctx, "SELECT INDEX_NAME AS name, COLUMN_NAME AS col"+
		" FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = "+d.Quote(table)+
		" AND INDEX_NAME <> 'PRIMARY' ORDER BY INDEX_NAME, SEQ_IN_INDEX")
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}

	for _, row := range indexes {
		name := cast.ToString(row["name"])
		col := cast.ToString(row["col"])

		if n := len(desc.Indexes); n > 0 && desc.Indexes[n-1].Name == name {
			desc.Indexes[n-1].Columns = append(desc.Indexes[n-1].Columns, col)

			continue
		}

		desc.Indexes = append(desc.Indexes, storage.Index{Name: name, Columns: []string{col}})
	}

	return desc, nil
}
