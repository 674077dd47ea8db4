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

// Package datarecord maps typed records onto relational tables. An Engine
// loads, finds, saves and deletes records of the classes in its Registry,
// guards Write mode with named locks and keeps storage in line with the
// declared structures.
package datarecord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/filter"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/xref"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

const defaultLockTimeout = 10 * time.Second

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	// LockTimeout bounds every lock acquisition.
	LockTimeout time.Duration
	// ChangeStrategy is used when reconciling retyped columns.
	ChangeStrategy schema.Strategy
	// XRefExpiration of zero keeps labels until they are replaced.
	XRefExpiration time.Duration
}

// Engine is the handle records are loaded and saved through. It is safe
// for concurrent use.
type Engine struct {
	exec       storage.Executor
	locker     lock.Locker
	registry   *Registry
	xref       *xref.Cache
	reconciler *schema.Reconciler
	opts       Options
	log        *zap.SugaredLogger
}

func NewEngine(exec storage.Executor, locker lock.Locker, registry *Registry, opts Options) *Engine {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}

	e := &Engine{
		exec:       exec,
		locker:     locker,
		registry:   registry,
		reconciler: schema.NewReconciler(exec, opts.ChangeStrategy),
		opts:       opts,
		log:        logger.For(logger.ComponentEngine),
	}
	e.xref = xref.New(e, opts.XRefExpiration)

	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// XRef is the engine's cross-reference cache.
func (e *Engine) XRef() *xref.Cache { return e.xref }

// Reconcile brings the table of one class in line with its structure.
func (e *Engine) Reconcile(ctx context.Context, name string) (bool, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return false, err
	}

	return e.reconciler.Reconcile(ctx, c.schemaTable())
}

// ReconcileAll reconciles every registered class in registration order and
// reports whether any of them changed.
func (e *Engine) ReconcileAll(ctx context.Context) (bool, error) {
	changed := false

	for _, name := range e.registry.Classes() {
		ok, err := e.Reconcile(ctx, name)
		if err != nil {
			return changed, err
		}

		changed = changed || ok
	}

	return changed, nil
}

// New creates an unsaved record in Write mode with default values.
func (e *Engine) New(name string) (*Record, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return nil, err
	}

	return newRecord(e, c), nil
}

// LoadForRead loads a record without locking it.
func (e *Engine) LoadForRead(ctx context.Context, name string, id int64) (*Record, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return nil, err
	}

	r, err := e.load(ctx, c, id)
	if err != nil {
		return nil, err
	}

	metrics.IncRecordOp(name, metrics.OpLoad)

	return r, nil
}

// LoadForWrite locks a record and loads it in Write mode. Failing to get
// the lock within the configured timeout is fatal.
func (e *Engine) LoadForWrite(ctx context.Context, name string, id int64) (*Record, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return nil, err
	}

	if err := e.acquire(ctx, c, lock.RecordLock(c.def.table(), id)); err != nil {
		return nil, err
	}

	r, err := e.load(ctx, c, id)
	if err != nil {
		e.release(ctx, lock.RecordLock(c.def.table(), id))

		return nil, err
	}

	r.mode = Write
	r.locked = true

	metrics.IncRecordOp(name, metrics.OpLoad)

	return r, nil
}

// Find returns the records of a class matching c.
func (e *Engine) Find(ctx context.Context, name string, c filter.Condition) (*Collection, error) {
	return e.Query(ctx, name, filter.NewQuery().Filter(c))
}

// FindAll returns every record of a class.
func (e *Engine) FindAll(ctx context.Context, name string) (*Collection, error) {
	return e.Query(ctx, name, filter.NewQuery())
}

// Query returns the records matching q in Read mode. Keyword searches on
// reference fields are expanded first. A condition on a metadata field
// cannot be expressed in SQL and is evaluated in memory instead.
func (e *Engine) Query(ctx context.Context, name string, q *filter.Query) (*Collection, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return nil, err
	}

	cond, err := filter.Expand(ctx, c.structure, q.Condition(), e.expand)
	if err != nil {
		return nil, err
	}

	where, err := cond.SQL(c.structure, e.exec.Dialect())

	inMemory := errors.Is(err, filter.ErrNotQueryable)
	if err != nil && !inMemory {
		return nil, err
	}

	page := *q
	if inMemory {
		where = ""
		page.LimitCount, page.SkipCount = 0, 0
	}

	tail, err := page.Tail(c.structure, e.exec.Dialect())
	if err != nil {
		return nil, err
	}

	rows, err := e.exec.Query(ctx, e.selectSQL(c, "*", where)+tail)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}

	out := &Collection{class: name}

	for _, row := range rows {
		r, err := e.fromRow(c, row)
		if err != nil {
			return nil, err
		}

		if inMemory {
			ok, err := cond.Match(c.structure, r.value)
			if err != nil {
				return nil, err
			}

			if !ok {
				continue
			}
		}

		out.records = append(out.records, r)
	}

	if inMemory {
		out.records = paginate(out.records, q.SkipCount, q.LimitCount)
	}

	e.log.Debugw("query", "class", name, "where", where, "found", out.Len(), "in_memory", inMemory)

	return out, nil
}

func paginate(records []*Record, skip, limit int) []*Record {
	if skip >= len(records) {
		return nil
	}

	records = records[skip:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	return records
}

type expandingKey struct{}

// SearchIDs returns the keys of records whose searchable fields contain
// keyword. A keyword search reached while expanding another one does not
// expand its reference fields again and matches them against nothing.
func (e *Engine) SearchIDs(ctx context.Context, name, keyword string) ([]int64, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return nil, err
	}

	cond, err := filter.Expand(ctx, c.structure, filter.Keyword(c.structure, keyword), e.expand)
	if err != nil {
		return nil, err
	}

	where, err := cond.SQL(c.structure, e.exec.Dialect())
	if err != nil {
		return nil, err
	}

	return e.keys(ctx, c, where)
}

func (e *Engine) expand(ctx context.Context, class, keyword string) ([]int64, error) {
	if ctx.Value(expandingKey{}) != nil {
		return nil, nil
	}

	return e.SearchIDs(context.WithValue(ctx, expandingKey{}, true), class, keyword)
}

// Label resolves a record to its title through the cross-reference cache.
func (e *Engine) Label(ctx context.Context, name string, id int64) (string, error) {
	return e.xref.Label(ctx, name, id)
}

// Labels implements xref.Resolver with one query for all ids.
func (e *Engine) Labels(ctx context.Context, name string, ids []int64) (map[int64]string, error) {
	c, err := e.registry.class(name)
	if err != nil {
		return nil, err
	}

	rows, err := e.exec.Query(ctx, e.selectSQL(c, "*", keyIn(e.exec.Dialect(), c.key, ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s labels: %w", name, err)
	}

	out := make(map[int64]string, len(rows))

	for _, row := range rows {
		r, err := e.fromRow(c, row)
		if err != nil {
			return nil, err
		}

		out[r.id] = r.title()
	}

	return out, nil
}

// CountReferrers counts the records of all classes referencing a record.
func (e *Engine) CountReferrers(ctx context.Context, name string, id int64) (int, error) {
	refs, err := e.registry.referrers(name)
	if err != nil {
		return 0, err
	}

	target := field.Ref{Class: name, ID: id}
	total := 0

	for _, ref := range refs {
		ids, err := e.referrerIDs(ctx, ref, target)
		if err != nil {
			return 0, err
		}

		total += len(ids)
	}

	return total, nil
}

// referrerIDs lists the keys of ref's class referencing target through
// ref's field. Metadata-stored references are checked in memory.
func (e *Engine) referrerIDs(ctx context.Context, ref referrer, target field.Ref) ([]int64, error) {
	c := ref.class
	col := ref.field.Name()

	if filterColumnStore(c.structure, ref.field) == field.StoreDatabase {
		where := ref.field.ReferenceSQL(col, target, e.exec.Dialect())
		if where == "" {
			return nil, nil
		}

		return e.keys(ctx, c, where)
	}

	all, err := e.FindAll(ctx, c.def.Name)
	if err != nil {
		return nil, err
	}

	var ids []int64

	for _, r := range all.records {
		for _, found := range ref.field.Refs(r.value(col)) {
			if found == target {
				ids = append(ids, r.id)

				break
			}
		}
	}

	return ids, nil
}

func filterColumnStore(s *field.Structure, t field.Type) field.StoreLocation {
	if children := s.Children(t.Name()); len(children) > 0 {
		return children[0].StoreLocation()
	}

	return t.StoreLocation()
}

// keys returns the primary keys of the visible rows matching where.
func (e *Engine) keys(ctx context.Context, c *class, where string) ([]int64, error) {
	d := e.exec.Dialect()

	rows, err := e.exec.Query(ctx, e.selectSQL(c, d.QuoteIdent(c.key), where)+" ORDER BY "+d.QuoteIdent(c.key))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s keys: %w", c.def.Name, err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, cast.ToInt64(row[c.key]))
	}

	return ids, nil
}

// selectSQL selects from the class table, hiding rows marked deleted.
func (e *Engine) selectSQL(c *class, columns, where string) string {
	d := e.exec.Dialect()

	var conds []string
	if where != "" {
		conds = append(conds, where)
	}

	if c.def.DeleteMode == DeleteMark {
		flag := d.QuoteIdent(schema.DeletedColumn)
		conds = append(conds, "("+flag+" IS NULL OR "+flag+" = "+d.Quote(false)+")")
	}

	stmt := "SELECT " + columns + " FROM " + d.QuoteIdent(c.def.table())
	if len(conds) > 0 {
		stmt += " WHERE " + strings.Join(conds, " AND ")
	}

	return stmt
}

func keyIn(d storage.Dialect, key string, ids []int64) string {
	if len(ids) == 0 {
		return "1=0"
	}

	literals := make([]string, len(ids))
	for i, id := range ids {
		literals[i] = d.Quote(id)
	}

	return d.QuoteIdent(key) + " IN (" + strings.Join(literals, ", ") + ")"
}

func (e *Engine) load(ctx context.Context, c *class, id int64) (*Record, error) {
	d := e.exec.Dialect()

	rows, err := e.exec.Query(ctx, e.selectSQL(c, "*", d.QuoteIdent(c.key)+" = "+d.Quote(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", c.def.Name, id, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, c.def.Name, id)
	}

	return e.fromRow(c, rows[0])
}

func (e *Engine) acquire(ctx context.Context, c *class, name string) error {
	ok, err := e.locker.Acquire(ctx, name, e.opts.LockTimeout)
	if err != nil {
		return fatal("lock", c.def.Name, fmt.Errorf("%s: %w", name, err))
	}

	if !ok {
		return fatal("lock", c.def.Name, fmt.Errorf("%s after %s: %w", name, e.opts.LockTimeout, lock.ErrTimeout))
	}

	return nil
}

// release frees a lock. A failing lock medium is logged; the lock then
// expires on its own where the medium supports that.
func (e *Engine) release(ctx context.Context, name string) {
	if err := e.locker.Release(ctx, name); err != nil {
		e.log.Errorw("lock_release_failed", "name", name, "error", err)
	}
}
