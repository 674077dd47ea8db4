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
	"maps"
	"strings"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/overflow"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
)

type deletingKey struct{}

// Delete removes the record according to its class's delete mode and
// strategy, releases its lock and reports whether it was deleted. A
// refusal by CanDelete or by the block strategy returns false and leaves
// the record stored and open for write. Deleting a stored record not open
// for write is fatal.
func (r *Record) Delete(ctx context.Context) (bool, error) {
	if !r.inDB {
		return false, nil
	}

	if r.mode != Write || !r.locked {
		return false, fatal("delete", r.Class(), fmt.Errorf("%w: %s %d", ErrNotWritable, r.Class(), r.id))
	}

	if ctx.Value(deletingKey{}) == nil {
		ctx = context.WithValue(ctx, deletingKey{}, map[string]bool{})
	}

	return r.engine.delete(ctx, r)
}

func (e *Engine) delete(ctx context.Context, r *Record) (bool, error) {
	def := r.class.def
	target := field.Ref{Class: def.Name, ID: r.id}

	if def.CanDelete != nil && !def.CanDelete(ctx, r) {
		e.log.Debugw("delete_refused", "class", def.Name, "id", r.id)

		return false, nil
	}

	deleting, ok := ctx.Value(deletingKey{}).(map[string]bool)
	if !ok {
		deleting = map[string]bool{}
		ctx = context.WithValue(ctx, deletingKey{}, deleting)
	}

	deleting[r.lockName()] = true

	switch def.DeleteStrategy {
	case DeleteBlock:
		n, err := e.CountReferrers(ctx, def.Name, r.id)
		if err != nil {
			return false, err
		}

		if n > 0 {
			delete(deleting, r.lockName())
			e.log.Debugw("delete_blocked", "class", def.Name, "id", r.id, "referrers", n)

			return false, nil
		}
	case DeletePurge:
		if err := e.checkPurge(ctx, target, maps.Clone(deleting)); err != nil {
			delete(deleting, r.lockName())

			return false, err
		}

		if err := e.purge(ctx, target, deleting); err != nil {
			return false, err
		}
	}

	if err := e.remove(ctx, r); err != nil {
		return false, err
	}

	e.xref.Forget(def.Name, r.id)
	metrics.IncRecordOp(def.Name, metrics.OpDelete)
	e.log.Debugw("record_deleted", "class", def.Name, "id", r.id, "mode", def.DeleteMode)

	r.inDB = false
	r.Unlock(ctx)

	if def.AfterDelete != nil {
		if err := def.AfterDelete(ctx, r); err != nil {
			return true, err
		}
	}

	return true, nil
}

// remove carries out the delete mode in storage.
func (e *Engine) remove(ctx context.Context, r *Record) error {
	def := r.class.def
	d := e.exec.Dialect()
	table := d.QuoteIdent(def.table())
	where := " WHERE " + d.QuoteIdent(r.class.key) + " = " + d.Quote(r.id)

	var stmt string

	switch def.DeleteMode {
	case DeleteHard:
		stmt = "DELETE FROM " + table + where
	case DeleteEmpty:
		sets := []string{d.QuoteIdent(overflow.Column) + " = NULL"}

		for _, t := range r.class.structure.StoredIn(field.StoreDatabase) {
			if !t.IsPrimaryKey() {
				sets = append(sets, d.QuoteIdent(t.Name())+" = NULL")
			}
		}

		sets = append(sets, d.QuoteIdent(schema.ChangeDateColumn)+" = "+d.Quote(now()))
		stmt = "UPDATE " + table + " SET " + strings.Join(sets, ", ") + where
	case DeleteMark:
		stmt = "UPDATE " + table + " SET " + d.QuoteIdent(schema.DeletedColumn) + " = " + d.Quote(true) +
			", " + d.QuoteIdent(schema.ChangeDateColumn) + " = " + d.Quote(now()) + where
	}

	if _, err := e.exec.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", def.Name, r.id, err)
	}

	return nil
}

// checkPurge validates every record whose reference to target purge would
// clear, following dependents that purge in turn. It writes nothing, so a
// purge that cannot complete fails before any referrer is touched.
func (e *Engine) checkPurge(ctx context.Context, target field.Ref, seen map[string]bool) error {
	refs, err := e.registry.referrers(target.Class)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		ids, err := e.referrerIDs(ctx, ref, target)
		if err != nil {
			return err
		}

		for _, id := range ids {
			name := lockName(ref.class, id)
			if seen[name] {
				continue
			}

			if ref.field.Dependent() {
				seen[name] = true

				if ref.class.def.DeleteStrategy != DeletePurge {
					continue
				}

				if err := e.checkPurge(ctx, field.Ref{Class: ref.class.def.Name, ID: id}, seen); err != nil {
					return err
				}

				continue
			}

			r, err := e.load(ctx, ref.class, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}

			if err != nil {
				return err
			}

			r.assign(ref.field, ref.field.Without(r.value(ref.field.Name()), target))

			if err := r.Validate(); err != nil {
				return fmt.Errorf("%w: %s %d: %w", ErrPurgeBlocked, r.Class(), id, err)
			}
		}
	}

	return nil
}

// purge removes the references to target held by other records, then
// deletes the records depending on it.
func (e *Engine) purge(ctx context.Context, target field.Ref, deleting map[string]bool) error {
	refs, err := e.registry.referrers(target.Class)
	if err != nil {
		return err
	}

	for _, dependent := range []bool{false, true} {
		for _, ref := range refs {
			if ref.field.Dependent() != dependent {
				continue
			}

			ids, err := e.referrerIDs(ctx, ref, target)
			if err != nil {
				return err
			}

			for _, id := range ids {
				if deleting[lockName(ref.class, id)] {
					continue
				}

				if err := e.purgeOne(ctx, ref, id, target); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (e *Engine) purgeOne(ctx context.Context, ref referrer, id int64, target field.Ref) error {
	r, err := e.LoadForWrite(ctx, ref.class.def.Name, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	if ref.field.Dependent() {
		deleted, err := e.delete(ctx, r)
		if err != nil {
			r.Unlock(ctx)

			return err
		}

		if !deleted {
			e.log.Warnw("dependent_not_deleted", "class", r.Class(), "id", id, "target", target)
			r.Unlock(ctx)
		}

		return nil
	}

	r.assign(ref.field, ref.field.Without(r.value(ref.field.Name()), target))

	if _, err := r.Save(ctx, SaveOptions{}); err != nil {
		r.Unlock(ctx)

		return err
	}

	return nil
}
