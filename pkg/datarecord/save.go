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

package datarecord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/overflow"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// SaveOptions adjust Save.
type SaveOptions struct {
	// Force writes every stored field even when nothing changed.
	Force bool
	// KeepOpenForWrite keeps the lock and Write mode after saving.
	KeepOpenForWrite bool
}

func lockName(c *class, id int64) string {
	return lock.RecordLock(c.def.table(), id)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Save inserts a new record or writes the changed fields of a stored one,
// and reports whether anything was written. A stored record without
// changes is left alone unless forced. Unless KeepOpenForWrite is set the
// record's lock is released and it returns to Read mode.
//
// Saving a record not open for write is fatal, and so is a manual key that
// is missing or already taken. Validation problems are returned as they
// are.
func (r *Record) Save(ctx context.Context, opts SaveOptions) (bool, error) {
	if r.inDB && !opts.Force && len(r.ChangedFields()) == 0 {
		metrics.IncRecordOp(r.Class(), metrics.OpNoop)

		if !opts.KeepOpenForWrite {
			r.Unlock(ctx)
		}

		return false, nil
	}

	if r.mode != Write {
		return false, fatal("save", r.Class(), fmt.Errorf("%w: %s %d", ErrNotWritable, r.Class(), r.id))
	}

	if !r.inDB {
		return r.insert(ctx, opts)
	}

	return r.update(ctx, opts)
}

func (r *Record) insert(ctx context.Context, opts SaveOptions) (bool, error) {
	e := r.engine
	def := r.class.def
	d := e.exec.Dialect()

	if def.OnCreate != nil {
		ok, err := def.OnCreate(ctx, r)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, fmt.Errorf("%w: %s", ErrVetoed, def.Name)
		}
	}

	if def.BeforeSave != nil {
		if err := def.BeforeSave(ctx, r); err != nil {
			return false, err
		}
	}

	if err := r.Validate(); err != nil {
		return false, err
	}

	stamp := now()
	columns, literals, err := r.storedColumns(d)
	if err != nil {
		return false, err
	}

	columns = append(columns, schema.CreateDateColumn, schema.ChangeDateColumn)
	literals = append(literals, d.Quote(stamp), d.Quote(stamp))

	if def.DeleteMode == DeleteMark {
		columns = append(columns, schema.DeletedColumn)
		literals = append(literals, d.Quote(false))
	}

	var id int64

	if def.ManualKey {
		id, err = r.insertManual(ctx, columns, literals)
	} else {
		id, err = e.exec.Insert(ctx, insertSQL(d, def.table(), columns, literals), r.class.key)
		if err != nil {
			err = fmt.Errorf("failed to insert %s: %w", def.Name, err)
		}
	}

	if err != nil {
		return false, err
	}

	r.id = id
	r.inDB = true
	r.created, r.changed = stamp, stamp
	r.snapshot()

	metrics.IncRecordOp(def.Name, metrics.OpInsert)
	e.log.Debugw("record_inserted", "class", def.Name, "id", id)

	if opts.KeepOpenForWrite {
		if err := e.acquire(ctx, r.class, r.lockName()); err != nil {
			r.mode = Read

			return true, err
		}

		r.locked = true
	} else {
		r.mode = Read
	}

	return true, nil
}

// insertManual reserves a caller supplied key under the class-wide lock,
// which is held only for the check and the insert.
func (r *Record) insertManual(ctx context.Context, columns, literals []string) (int64, error) {
	e := r.engine
	def := r.class.def
	d := e.exec.Dialect()

	if r.id <= 0 {
		return 0, fatal("insert", def.Name, fmt.Errorf("%w: %d", ErrInvalidKey, r.id))
	}

	classLock := lock.ClassLock(def.table())
	if err := e.acquire(ctx, r.class, classLock); err != nil {
		return 0, err
	}
	defer e.release(ctx, classLock)

	taken, err := e.exec.Query(ctx, "SELECT "+d.QuoteIdent(r.class.key)+" FROM "+d.QuoteIdent(def.table())+
		" WHERE "+d.QuoteIdent(r.class.key)+" = "+d.Quote(r.id))
	if err != nil {
		return 0, fmt.Errorf("failed to check key of %s: %w", def.Name, err)
	}

	if len(taken) > 0 {
		return 0, fatal("insert", def.Name, fmt.Errorf("%w: %s %d", ErrKeyCollision, def.Name, r.id))
	}

	columns = append([]string{r.class.key}, columns...)
	literals = append([]string{d.Quote(r.id)}, literals...)

	if _, err := e.exec.Exec(ctx, insertSQL(d, def.table(), columns, literals)); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return 0, fatal("insert", def.Name, fmt.Errorf("%w: %s %d", ErrKeyCollision, def.Name, r.id))
		}

		return 0, fmt.Errorf("failed to insert %s: %w", def.Name, err)
	}

	return r.id, nil
}

func (r *Record) update(ctx context.Context, opts SaveOptions) (bool, error) {
	e := r.engine
	def := r.class.def
	d := e.exec.Dialect()

	if def.BeforeSave != nil {
		if err := def.BeforeSave(ctx, r); err != nil {
			return false, err
		}
	}

	if err := r.Validate(); err != nil {
		return false, err
	}

	changed := r.ChangedFields()

	var sets []string

	if opts.Force {
		columns, literals, err := r.storedColumns(d)
		if err != nil {
			return false, err
		}

		for i := range columns {
			sets = append(sets, d.QuoteIdent(columns[i])+" = "+literals[i])
		}
	} else {
		metadataChanged := false

		for _, name := range changed {
			t, _ := r.class.structure.Field(name)
			if t.StoreLocation() == field.StoreMetadata {
				metadataChanged = true

				continue
			}

			sets = append(sets, d.QuoteIdent(name)+" = "+t.FieldForStorage(r.values[name], d))
		}

		if metadataChanged {
			packed, err := r.packMetadata()
			if err != nil {
				return false, err
			}

			sets = append(sets, d.QuoteIdent(overflow.Column)+" = "+d.Quote(packed))
		}
	}

	stamp := now()
	sets = append(sets, d.QuoteIdent(schema.ChangeDateColumn)+" = "+d.Quote(stamp))

	stmt := "UPDATE " + d.QuoteIdent(def.table()) + " SET " + strings.Join(sets, ", ") +
		" WHERE " + d.QuoteIdent(r.class.key) + " = " + d.Quote(r.id)
	if _, err := e.exec.Exec(ctx, stmt); err != nil {
		return false, fmt.Errorf("failed to update %s %d: %w", def.Name, r.id, err)
	}

	r.changed = stamp
	r.snapshot()
	e.xref.Refresh(def.Name, r.id, r.title())

	metrics.IncRecordOp(def.Name, metrics.OpUpdate)
	e.log.Debugw("record_updated", "class", def.Name, "id", r.id, "changed", changed, "forced", opts.Force)

	if !opts.KeepOpenForWrite {
		r.Unlock(ctx)
	}

	return true, nil
}

// storedColumns renders every column-stored field and the packed metadata
// column.
func (r *Record) storedColumns(d storage.Dialect) ([]string, []string, error) {
	var columns, literals []string

	for _, t := range r.class.structure.StoredIn(field.StoreDatabase) {
		if t.IsPrimaryKey() {
			continue
		}

		columns = append(columns, t.Name())
		literals = append(literals, t.FieldForStorage(r.values[t.Name()], d))
	}

	packed, err := r.packMetadata()
	if err != nil {
		return nil, nil, err
	}

	return append(columns, overflow.Column), append(literals, d.Quote(packed)), nil
}

func (r *Record) packMetadata() (any, error) {
	values := make(map[string]any)
	for _, t := range r.class.structure.StoredIn(field.StoreMetadata) {
		values[t.Name()] = t.StorageValue(r.values[t.Name()])
	}

	return overflow.Pack(values)
}

func insertSQL(d storage.Dialect, table string, columns, literals []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}

	return "INSERT INTO " + d.QuoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(literals, ", ") + ")"
}
