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
	"strconv"
	"time"

	"github.com/spf13/cast"
	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/overflow"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// AccessMode says whether a record may be changed.
type AccessMode int

const (
	// Read records hold no lock and may be stale.
	Read AccessMode = iota
	// Write records hold their lock, or are not saved yet, and may be
	// changed and saved.
	Write
)

func (m AccessMode) String() string {
	if m == Write {
		return "write"
	}

	return "read"
}

// Record is one instance of a class. Values of composite fields are kept
// as their flattened parts and assembled on access.
//
// A Record is not safe for concurrent use. A record loaded for write holds
// its lock until it is saved, deleted or unlocked; dropping it without
// doing so leaks the lock.
type Record struct {
	engine *Engine
	class  *class

	id      int64
	values  map[string]any
	onLoad  map[string]any
	mode    AccessMode
	locked  bool
	inDB    bool
	created time.Time
	changed time.Time
}

func newRecord(e *Engine, c *class) *Record {
	r := &Record{
		engine: e,
		class:  c,
		values: make(map[string]any),
		mode:   Write,
	}

	for _, t := range c.structure.Fields() {
		if t.IsPrimaryKey() || len(c.structure.Children(t.Name())) > 0 {
			continue
		}

		r.values[t.Name()] = initialValue(t)
	}

	// Composite defaults are spread over the parts once the parts exist.
	for _, t := range c.structure.Fields() {
		if def := initialValue(t); def != nil && len(c.structure.Children(t.Name())) > 0 {
			r.assign(t, def)
		}
	}

	r.snapshot()

	return r
}

// initialValue is the parsed default of t. A default that does not parse is
// kept as declared and reported by validation on save.
func initialValue(t field.Type) any {
	v, err := field.ParsedDefault(t)
	if err != nil {
		return t.DefaultValue()
	}

	return v
}

// fromRow builds a Read mode record from a stored row. The metadata column
// is unpacked first and its fields are parsed like columns.
func (e *Engine) fromRow(c *class, row storage.Row) (*Record, error) {
	r := &Record{
		engine: e,
		class:  c,
		id:     cast.ToInt64(row[c.key]),
		values: make(map[string]any),
		mode:   Read,
		inDB:   true,
	}

	meta, err := overflow.Unpack(row[overflow.Column])
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", c.def.Name, r.id, err)
	}

	for _, t := range c.structure.Fields() {
		name := t.Name()

		var raw any

		switch {
		case t.IsPrimaryKey() || len(c.structure.Children(name)) > 0:
			continue
		case t.StoreLocation() == field.StoreDatabase:
			raw = row[name]
		case t.StoreLocation() == field.StoreMetadata:
			raw = meta[name]
		default:
			r.values[name] = t.DefaultValue()

			continue
		}

		v, err := t.ParseStorageValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s %d: field %s: %w", c.def.Name, r.id, name, err)
		}

		r.values[name] = v
	}

	r.created, _ = cast.ToTimeE(row[schema.CreateDateColumn])
	r.changed, _ = cast.ToTimeE(row[schema.ChangeDateColumn])
	r.snapshot()

	return r, nil
}

func (r *Record) snapshot() {
	r.onLoad = make(map[string]any, len(r.values))
	if err := deepcopy.Copy(&r.onLoad, r.values); err != nil {
		r.onLoad = make(map[string]any, len(r.values))
		for k, v := range r.values {
			r.onLoad[k] = v
		}
	}
}

func (r *Record) Class() string               { return r.class.def.Name }
func (r *Record) Structure() *field.Structure { return r.class.structure }
func (r *Record) ID() int64                   { return r.id }
func (r *Record) IsInDatabase() bool          { return r.inDB }
func (r *Record) AccessMode() AccessMode      { return r.mode }
func (r *Record) CreatedAt() time.Time        { return r.created }
func (r *Record) ChangedAt() time.Time        { return r.changed }

func (r *Record) lockName() string {
	return lockName(r.class, r.id)
}

func (r *Record) field(op, name string) (field.Type, error) {
	t, ok := r.class.structure.Field(name)
	if !ok {
		return nil, fatal(op, r.Class(), fmt.Errorf("%w: %q", ErrUnknownField, name))
	}

	return t, nil
}

// value reads a field known to exist.
func (r *Record) value(name string) any {
	t, ok := r.class.structure.Field(name)
	if !ok {
		return nil
	}

	if t.IsPrimaryKey() {
		if r.id == 0 {
			return nil
		}

		return r.id
	}

	if c, ok := t.(field.Composite); ok {
		parts := make(map[string]any)

		for _, child := range r.class.structure.Children(name) {
			_, suffix, _ := r.class.structure.Parent(child.Name())
			parts[suffix] = r.values[child.Name()]
		}

		return c.Compose(parts)
	}

	return r.values[name]
}

// Get returns the current value of a field. An undeclared name is fatal.
func (r *Record) Get(name string) (any, error) {
	if _, err := r.field("get", name); err != nil {
		return nil, err
	}

	return r.value(name), nil
}

// Set assigns a value after parsing it with the field's rules. It does not
// validate; Save does. Changing a record not open for write is fatal, as is
// changing the key of a stored record.
func (r *Record) Set(name string, v any) error {
	t, err := r.field("set", name)
	if err != nil {
		return err
	}

	if r.mode != Write {
		return fatal("set", r.Class(), fmt.Errorf("%w: setting %s", ErrNotWritable, name))
	}

	parsed, err := t.ParseValue(v, r.value(name))
	if err != nil {
		return err
	}

	if t.IsPrimaryKey() {
		return r.setKey(parsed)
	}

	r.assign(t, parsed)

	return nil
}

// SetInput assigns caller input as a form would: readonly fields are
// refused and the value is validated. Problems come back as
// *field.ValidationError.
func (r *Record) SetInput(name string, input any) error {
	t, err := r.field("set", name)
	if err != nil {
		return err
	}

	if t.IsReadonly() {
		return &field.ValidationError{Field: name, Problem: "is read only"}
	}

	if r.mode != Write {
		return fatal("set", r.Class(), fmt.Errorf("%w: setting %s", ErrNotWritable, name))
	}

	parsed, err := t.ParseValue(input, r.value(name))
	if err != nil {
		return err
	}

	if err := t.ValidateValue(parsed); err != nil {
		return err
	}

	if t.IsPrimaryKey() {
		return r.setKey(parsed)
	}

	r.assign(t, parsed)

	return nil
}

func (r *Record) setKey(v any) error {
	id := cast.ToInt64(v)

	switch {
	case !r.class.def.ManualKey, r.inDB:
		return fatal("set", r.Class(), fmt.Errorf("%w: key of %s is not settable", ErrInvalidKey, r.Class()))
	case id <= 0:
		return fatal("set", r.Class(), fmt.Errorf("%w: %v", ErrInvalidKey, v))
	}

	r.id = id

	return nil
}

// SetKey sets the key of a new record of a manual-key class.
func (r *Record) SetKey(id int64) error {
	if r.mode != Write {
		return fatal("set", r.Class(), ErrNotWritable)
	}

	return r.setKey(id)
}

func (r *Record) assign(t field.Type, v any) {
	c, ok := t.(field.Composite)
	if !ok {
		r.values[t.Name()] = v

		return
	}

	parts := c.Decompose(v)
	for _, child := range r.class.structure.Children(t.Name()) {
		_, suffix, _ := r.class.structure.Parent(child.Name())

		parsed, err := child.ParseValue(parts[suffix], nil)
		if err != nil {
			parsed = parts[suffix]
		}

		r.values[child.Name()] = parsed
	}
}

// ChangedFields lists the stored fields whose value differs from the last
// load or save, in structure order.
func (r *Record) ChangedFields() []string {
	var out []string

	for _, t := range r.class.structure.Fields() {
		name := t.Name()
		if t.IsPrimaryKey() || t.StoreLocation() == field.StoreNowhere {
			continue
		}

		if t.StorageValue(r.values[name]) != t.StorageValue(r.onLoad[name]) {
			out = append(out, name)
		}
	}

	return out
}

// Validate checks every field and joins the problems found. Composites
// are validated as a whole rather than part by part.
func (r *Record) Validate() error {
	var problems []error

	for _, t := range r.class.structure.Fields() {
		if t.IsPrimaryKey() {
			continue
		}

		if _, _, isChild := r.class.structure.Parent(t.Name()); isChild {
			continue
		}

		if err := t.ValidateValue(r.value(t.Name())); err != nil {
			problems = append(problems, err)
		}
	}

	return errors.Join(problems...)
}

func (r *Record) RawValue(name string) (any, error) {
	t, err := r.field("raw", name)
	if err != nil {
		return nil, err
	}

	return t.RawValue(r.value(name)), nil
}

func (r *Record) TextValue(name string) (string, error) {
	t, err := r.field("text", name)
	if err != nil {
		return "", err
	}

	return t.TextValue(r.value(name)), nil
}

// FullValue renders a field for display, resolving references through the
// engine's cross-reference cache.
func (r *Record) FullValue(ctx context.Context, name string) (string, error) {
	t, err := r.field("full", name)
	if err != nil {
		return "", err
	}

	return t.FullValue(ctx, r.value(name), r.engine.xref), nil
}

// Title is the record's label: the class Title function, the text of the
// first searchable field, or #id.
func (r *Record) Title() string {
	return r.title()
}

func (r *Record) title() string {
	if r.class.def.Title != nil {
		return r.class.def.Title(r)
	}

	for _, t := range r.class.structure.Searchable() {
		if text := t.TextValue(r.value(t.Name())); text != "" {
			return text
		}
	}

	return "#" + strconv.FormatInt(r.id, 10)
}

// ForeignRecord loads the record a reference field points at, in Read
// mode. It returns nil when the field is empty.
func (r *Record) ForeignRecord(ctx context.Context, name string) (*Record, error) {
	t, err := r.field("foreign", name)
	if err != nil {
		return nil, err
	}

	ref, ok := t.(field.Referencer)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a reference", r.Class(), name)
	}

	refs := ref.Refs(r.value(name))
	if len(refs) == 0 {
		return nil, nil
	}

	return r.engine.LoadForRead(ctx, refs[0].Class, refs[0].ID)
}

// Copy returns an unsaved Write mode record with this record's values and
// no key.
func (r *Record) Copy() *Record {
	c := newRecord(r.engine, r.class)
	if err := deepcopy.Copy(&c.values, r.values); err != nil {
		for k, v := range r.values {
			c.values[k] = v
		}
	}

	return c
}

// Unlock releases the record's lock and returns it to Read mode.
func (r *Record) Unlock(ctx context.Context) {
	if r.locked {
		r.engine.release(ctx, r.lockName())
		r.locked = false
	}

	r.mode = Read
}

// ReloadForWrite locks the record and reloads it from storage. It does
// nothing for a record already in Write mode.
func (r *Record) ReloadForWrite(ctx context.Context) error {
	if r.mode == Write {
		return nil
	}

	if !r.inDB {
		return fatal("reload", r.Class(), fmt.Errorf("%w: %s is not stored", ErrNotFound, r.Class()))
	}

	if err := r.engine.acquire(ctx, r.class, r.lockName()); err != nil {
		return err
	}

	fresh, err := r.engine.load(ctx, r.class, r.id)
	if err != nil {
		r.engine.release(ctx, r.lockName())

		return err
	}

	r.values, r.onLoad = fresh.values, fresh.onLoad
	r.created, r.changed = fresh.created, fresh.changed
	r.mode = Write
	r.locked = true

	return nil
}
