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

package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/overflow"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// Reconciler applies declared structures to live tables.
type Reconciler struct {
	exec     storage.Executor
	strategy Strategy
	log      *zap.SugaredLogger
}

func NewReconciler(exec storage.Executor, strategy Strategy) *Reconciler {
	if strategy == "" {
		strategy = StrategyAlter
	}

	return &Reconciler{
		exec:     exec,
		strategy: strategy,
		log:      logger.For(logger.ComponentSchema),
	}
}

// Reconcile brings the live table in line with t and reports whether any
// DDL was issued. Running it twice in a row changes nothing the second time.
//
// A changed primary key column or key generation mode drops and recreates
// the table; its rows are lost.
func (r *Reconciler) Reconcile(ctx context.Context, t Table) (bool, error) {
	start := time.Now()
	defer func() { metrics.ObserveReconcile(t.Name, time.Since(start)) }()

	key, err := t.KeyColumn()
	if err != nil {
		return false, err
	}

	if err := t.validate(); err != nil {
		return false, err
	}

	d := r.exec.Dialect()

	live, err := d.Describe(ctx, r.exec, t.Name)
	if err != nil {
		return false, fmt.Errorf("failed to describe %s: %w", t.Name, err)
	}

	m := &migration{
		Reconciler: r,
		d:          d,
		table:      t,
		key:        key,
		live:       live,
		log:        r.log.With("table", t.Name),
	}

	if err := m.run(ctx); err != nil {
		return m.changed, fmt.Errorf("failed to reconcile %s: %w", t.Name, err)
	}

	m.log.Debugw("reconciled", "changed", m.changed, "took", time.Since(start))

	return m.changed, nil
}

// migration is one reconciliation run. live is kept current as statements
// are issued.
type migration struct {
	*Reconciler
	d       storage.Dialect
	table   Table
	key     string
	live    *storage.TableDescription
	log     *zap.SugaredLogger
	changed bool
}

func (m *migration) run(ctx context.Context) error {
	if !m.live.Exists {
		return m.create(ctx)
	}

	pk, ok := m.live.PrimaryKey()
	if !ok || pk.Name != m.key || pk.AutoIncrement == m.table.ManualKey {
		m.log.Warnw("primary_key_changed", "live", pk.Name, "declared", m.key, "manual", m.table.ManualKey)

		if err := m.ddl(ctx, "DROP TABLE "+m.d.QuoteIdent(m.table.Name)); err != nil {
			return err
		}

		return m.create(ctx)
	}

	hadMetadata := m.hasColumn(overflow.Column)

	if err := m.addColumns(ctx, hadMetadata); err != nil {
		return err
	}

	if err := m.dropColumns(ctx); err != nil {
		return err
	}

	if err := m.retypeColumns(ctx); err != nil {
		return err
	}

	return m.reconcileIndexes(ctx)
}

func (m *migration) create(ctx context.Context) error {
	defs := []string{m.d.QuoteIdent(m.key) + " " + m.d.PrimaryKeySQL(!m.table.ManualKey)}
	for _, c := range m.table.columns() {
		defs = append(defs, columnDefinition(m.d, c))
	}

	stmt := "CREATE TABLE " + m.d.QuoteIdent(m.table.Name) + " (" + strings.Join(defs, ", ") + ")"
	if err := m.ddl(ctx, stmt); err != nil {
		return err
	}

	m.live = &storage.TableDescription{Name: m.table.Name, Exists: true}

	return m.reconcileIndexes(ctx)
}

func (m *migration) addColumns(ctx context.Context, hadMetadata bool) error {
	for _, c := range m.table.columns() {
		if m.hasColumn(c.name) {
			continue
		}

		if err := m.addColumn(ctx, c); err != nil {
			return err
		}

		if c.f == nil {
			continue
		}

		if hadMetadata {
			if err := m.salvage(ctx, c.f); err != nil {
				return err
			}
		}

		if err := m.fillDefault(ctx, c.f); err != nil {
			return err
		}
	}

	return nil
}

func (m *migration) dropColumns(ctx context.Context) error {
	declared := make(map[string]bool)
	for _, c := range m.table.columns() {
		declared[c.name] = true
	}

	for _, live := range slices.Clone(m.live.Columns) {
		if live.Name == m.key || declared[live.Name] {
			continue
		}

		if f, ok := m.table.Structure.Field(live.Name); ok && f.StoreLocation() == field.StoreMetadata {
			if err := m.moveToMetadata(ctx, f); err != nil {
				return err
			}
		}

		if err := m.dropColumn(ctx, live.Name); err != nil {
			return err
		}
	}

	return nil
}

func (m *migration) retypeColumns(ctx context.Context) error {
	for _, c := range m.table.columns() {
		live, ok := m.live.Column(c.name)
		if !ok || live.Type == storage.NormalizeType(m.d.ColumnSQL(c.ct)) {
			continue
		}

		m.log.Infow("column_type_changed", "column", c.name, "live", live.Type, "declared", m.d.ColumnSQL(c.ct), "strategy", m.strategy)

		if m.strategy == StrategyAlter {
			if stmt, ok := m.d.AlterColumnSQL(m.table.Name, c.name, c.ct); ok {
				if err := m.ddl(ctx, stmt); err != nil {
					return err
				}

				continue
			}

			m.log.Infow("alter_unsupported", "column", c.name, "dialect", m.d.Name())
		}

		if err := m.dropColumn(ctx, c.name); err != nil {
			return err
		}

		if err := m.addColumn(ctx, c); err != nil {
			return err
		}

		if c.f != nil {
			if err := m.fillDefault(ctx, c.f); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *migration) reconcileIndexes(ctx context.Context) error {
	declared := make(map[string][]string)

	var order []string

	for _, def := range m.table.Structure.Indexes() {
		name := m.d.IndexName(m.table.Name, def.Logical)
		declared[name] = def.Columns
		order = append(order, name)
	}

	for _, live := range slices.Clone(m.live.Indexes) {
		columns, ok := declared[live.Name]
		if ok && slices.Equal(columns, live.Columns) {
			continue
		}

		if err := m.dropIndex(ctx, live.Name); err != nil {
			return err
		}
	}

	for _, name := range order {
		if _, ok := m.live.Index(name); ok {
			continue
		}

		if err := m.ddl(ctx, createIndexSQL(m.d, m.table.Name, name, declared[name])); err != nil {
			return err
		}

		m.live.Indexes = append(m.live.Indexes, storage.Index{Name: name, Columns: declared[name]})
	}

	return nil
}

func (m *migration) addColumn(ctx context.Context, c column) error {
	stmt := "ALTER TABLE " + m.d.QuoteIdent(m.table.Name) + " ADD COLUMN " + columnDefinition(m.d, c)
	if err := m.ddl(ctx, stmt); err != nil {
		return err
	}

	m.live.Columns = append(m.live.Columns, storage.Column{
		Name: c.name,
		Type: storage.NormalizeType(m.d.ColumnSQL(c.ct)),
	})

	return nil
}

// dropColumn drops the indexes covering the column first; some databases
// refuse to drop indexed columns.
func (m *migration) dropColumn(ctx context.Context, name string) error {
	for _, idx := range slices.Clone(m.live.Indexes) {
		if slices.Contains(idx.Columns, name) {
			if err := m.dropIndex(ctx, idx.Name); err != nil {
				return err
			}
		}
	}

	stmt := "ALTER TABLE " + m.d.QuoteIdent(m.table.Name) + " DROP COLUMN " + m.d.QuoteIdent(name)
	if err := m.ddl(ctx, stmt); err != nil {
		return err
	}

	m.live.Columns = slices.DeleteFunc(m.live.Columns, func(c storage.Column) bool { return c.Name == name })

	return nil
}

func (m *migration) dropIndex(ctx context.Context, name string) error {
	if err := m.ddl(ctx, m.d.DropIndexSQL(m.table.Name, name)); err != nil {
		return err
	}

	m.live.Indexes = slices.DeleteFunc(m.live.Indexes, func(i storage.Index) bool { return i.Name == name })

	return nil
}

// salvage moves values of f left in the metadata column by an earlier
// overflow declaration into f's new column. Values f cannot parse stay in
// the metadata column.
func (m *migration) salvage(ctx context.Context, f field.Type) error {
	name := f.Name()
	meta := m.d.QuoteIdent(overflow.Column)

	rows, err := m.exec.Query(ctx, "SELECT "+m.d.QuoteIdent(m.key)+", "+meta+
		" FROM "+m.d.QuoteIdent(m.table.Name)+" WHERE "+meta+" IS NOT NULL")
	if err != nil {
		return fmt.Errorf("failed to read metadata for %s: %w", name, err)
	}

	salvaged := 0

	for _, row := range rows {
		id := cast.ToInt64(row[m.key])

		values, err := overflow.Unpack(row[overflow.Column])
		if err != nil {
			m.log.Warnw("metadata_unreadable", "id", id, "error", err)

			continue
		}

		raw, ok := values[name]
		if !ok {
			continue
		}

		v, err := f.ParseStorageValue(raw)
		if err != nil {
			m.log.Warnw("metadata_value_unparseable", "id", id, "field", name, "error", err)

			continue
		}

		delete(values, name)

		packed, err := overflow.Pack(values)
		if err != nil {
			return err
		}

		stmt := "UPDATE " + m.d.QuoteIdent(m.table.Name) +
			" SET " + m.d.QuoteIdent(name) + " = " + f.FieldForStorage(v, m.d) +
			", " + meta + " = " + m.d.Quote(packed) +
			" WHERE " + m.d.QuoteIdent(m.key) + " = " + m.d.Quote(id)
		if _, err := m.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to salvage %s of row %d: %w", name, id, err)
		}

		salvaged++
	}

	if salvaged > 0 {
		m.log.Infow("metadata_salvaged", "field", name, "rows", salvaged)
	}

	return nil
}

// moveToMetadata copies the column of f into the metadata column ahead of
// dropping it.
func (m *migration) moveToMetadata(ctx context.Context, f field.Type) error {
	name := f.Name()
	col := m.d.QuoteIdent(name)
	meta := m.d.QuoteIdent(overflow.Column)

	rows, err := m.exec.Query(ctx, "SELECT "+m.d.QuoteIdent(m.key)+", "+col+", "+meta+
		" FROM "+m.d.QuoteIdent(m.table.Name)+" WHERE "+col+" IS NOT NULL")
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	for _, row := range rows {
		id := cast.ToInt64(row[m.key])

		v, err := f.ParseStorageValue(row[name])
		if err != nil {
			m.log.Warnw("column_value_unparseable", "id", id, "field", name, "error", err)

			continue
		}

		values, err := overflow.Unpack(row[overflow.Column])
		if err != nil {
			return fmt.Errorf("failed to read metadata of row %d: %w", id, err)
		}

		values[name] = f.StorageValue(v)

		packed, err := overflow.Pack(values)
		if err != nil {
			return err
		}

		stmt := "UPDATE " + m.d.QuoteIdent(m.table.Name) + " SET " + meta + " = " + m.d.Quote(packed) +
			" WHERE " + m.d.QuoteIdent(m.key) + " = " + m.d.Quote(id)
		if _, err := m.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to move %s of row %d to metadata: %w", name, id, err)
		}
	}

	m.log.Infow("moved_to_metadata", "field", name, "rows", len(rows))

	return nil
}

func (m *migration) fillDefault(ctx context.Context, f field.Type) error {
	def, err := field.ParsedDefault(f)
	if err != nil {
		return err
	}

	if def == nil {
		return nil
	}

	col := m.d.QuoteIdent(f.Name())
	stmt := "UPDATE " + m.d.QuoteIdent(m.table.Name) + " SET " + col + " = " + f.FieldForStorage(def, m.d) +
		" WHERE " + col + " IS NULL"

	if _, err := m.exec.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to fill default of %s: %w", f.Name(), err)
	}

	return nil
}

func (m *migration) ddl(ctx context.Context, stmt string) error {
	m.log.Infow("ddl", "statement", stmt)

	if _, err := m.exec.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("%s: %w", stmt, err)
	}

	metrics.IncDDL(m.table.Name)
	m.changed = true

	return nil
}

func (m *migration) hasColumn(name string) bool {
	_, ok := m.live.Column(name)

	return ok
}
