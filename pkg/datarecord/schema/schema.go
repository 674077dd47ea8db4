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

// Package schema reconciles a live table with the declared structure of a
// record class: it creates the table, adds, drops and retypes columns,
// salvages values between columns and the metadata overflow column, and
// keeps secondary indexes in line with the declaration.
//
// Reconciliation is not guarded by any lock. Two processes reconciling the
// same table at the same time corrupt each other's work; run it from one
// coordinating process, for example at startup.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/overflow"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// ErrNoPrimaryKey is returned for a structure without a primary key field
// when the key is not managed by the caller either.
var ErrNoPrimaryKey = errors.New("no primary key declared")

// Columns every table carries besides its fields.
const (
	CreateDateColumn = "create_date"
	ChangeDateColumn = "change_date"
	// DeletedColumn flags soft-deleted rows of tables using mark deletes.
	DeletedColumn = "is_deleted"
	// DefaultKeyColumn names the key of a manual-key table whose structure
	// declares no primary key field.
	DefaultKeyColumn = "id"
)

// Strategy selects how a column whose type changed is migrated.
type Strategy string

const (
	// StrategyAlter changes the type in place where the database supports
	// it and falls back to StrategyRecreate where it does not.
	StrategyAlter Strategy = "alter"
	// StrategyRecreate drops the column and adds it again, filled with the
	// field's default value. Existing values are lost.
	StrategyRecreate Strategy = "recreate"
)

// Table is the declared side of a reconciliation.
type Table struct {
	Name      string
	Structure *field.Structure
	// ManualKey tables take their key from the caller instead of the
	// database.
	ManualKey bool
	// Flagged tables carry the DeletedColumn.
	Flagged bool
}

// KeyColumn returns the name of the primary key column.
func (t Table) KeyColumn() (string, error) {
	if pk, ok := t.Structure.PrimaryKey(); ok {
		return pk.Name(), nil
	}

	if t.ManualKey {
		return DefaultKeyColumn, nil
	}

	return "", fmt.Errorf("%w for table %s", ErrNoPrimaryKey, t.Name)
}

// column is a declared non-key column. f is nil for the columns every
// table carries.
type column struct {
	name string
	ct   storage.ColumnType
	f    field.Type
}

func (t Table) columns() []column {
	var out []column

	for _, f := range t.Structure.StoredIn(field.StoreDatabase) {
		if !f.IsPrimaryKey() {
			out = append(out, column{name: f.Name(), ct: f.ColumnType(), f: f})
		}
	}

	out = append(out,
		column{name: overflow.Column, ct: storage.Text()},
		column{name: CreateDateColumn, ct: storage.DateTime()},
		column{name: ChangeDateColumn, ct: storage.DateTime()},
	)

	if t.Flagged {
		out = append(out, column{name: DeletedColumn, ct: storage.Bool()})
	}

	return out
}

func (t Table) validate() error {
	if err := storage.ValidateIdentifier(t.Name); err != nil {
		return fmt.Errorf("table name: %w", err)
	}

	for _, name := range t.Structure.Names() {
		if err := storage.ValidateIdentifier(name); err != nil {
			return fmt.Errorf("field name: %w", err)
		}
	}

	return nil
}

func columnDefinition(d storage.Dialect, c column) string {
	return d.QuoteIdent(c.name) + " " + d.ColumnSQL(c.ct)
}

func createIndexSQL(d storage.Dialect, table, name string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}

	return "CREATE INDEX " + d.QuoteIdent(name) + " ON " + d.QuoteIdent(table) + " (" + strings.Join(quoted, ", ") + ")"
}
