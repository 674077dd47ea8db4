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
	"fmt"
	"sync"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
)

// DeleteMode is how a delete is carried out in storage.
type DeleteMode int

const (
	// DeleteHard removes the row.
	DeleteHard DeleteMode = iota
	// DeleteEmpty keeps the row and clears every field but the key.
	DeleteEmpty
	// DeleteMark keeps the row and sets its deleted flag. Marked rows are
	// invisible to loads and finds.
	DeleteMark
)

// DeleteStrategy is how records referencing a deleted record are treated.
type DeleteStrategy int

const (
	// DeleteDoNothing leaves referrers untouched.
	DeleteDoNothing DeleteStrategy = iota
	// DeleteBlock refuses the delete while any record references it.
	DeleteBlock
	// DeletePurge removes the reference from referrers and deletes the
	// referrers that depend on the record.
	DeletePurge
)

// ClassDefinition declares a record class.
type ClassDefinition struct {
	Name string
	// Table defaults to Name.
	Table string
	// Fields builds the field list. It is called once per structure build.
	Fields func() []field.Type
	// ManualKey classes take their key from the caller.
	ManualKey      bool
	DeleteMode     DeleteMode
	DeleteStrategy DeleteStrategy

	// Title renders a record as a label. Without it the first searchable
	// field is used.
	Title func(r *Record) string
	// OnCreate runs before a new record is inserted and may veto it.
	OnCreate func(ctx context.Context, r *Record) (bool, error)
	// BeforeSave runs before every insert or update.
	BeforeSave func(ctx context.Context, r *Record) error
	// CanDelete may refuse a delete.
	CanDelete func(ctx context.Context, r *Record) bool
	// AfterDelete runs once the record is gone from storage.
	AfterDelete func(ctx context.Context, r *Record) error
}

func (d ClassDefinition) table() string {
	if d.Table != "" {
		return d.Table
	}

	return d.Name
}

// class is a registered definition and its memoized structure.
type class struct {
	def       ClassDefinition
	structure *field.Structure
	key       string
}

func (c *class) schemaTable() schema.Table {
	return schema.Table{
		Name:      c.def.table(),
		Structure: c.structure,
		ManualKey: c.def.ManualKey,
		Flagged:   c.def.DeleteMode == DeleteMark,
	}
}

// referrer is a field of some class able to reference another class.
type referrer struct {
	class *class
	field field.Referencer
}

// Registry holds the record classes of an application. Structures are
// built on first use and kept for the life of the registry.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	defs    map[string]ClassDefinition
	classes map[string]*class
}

func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]ClassDefinition),
		classes: make(map[string]*class),
	}
}

// Register adds a class. It panics on an unnamed class, a class without
// fields or a name registered twice.
func (r *Registry) Register(def ClassDefinition) {
	if def.Name == "" || def.Fields == nil {
		panic("datarecord: class needs a name and fields")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.defs[def.Name]; dup {
		panic(fmt.Sprintf("datarecord: class %q registered twice", def.Name))
	}

	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
}

// Classes lists the registered class names in registration order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Structure returns the structure of a class, building it on first use.
func (r *Registry) Structure(name string) (*field.Structure, error) {
	c, err := r.class(name)
	if err != nil {
		return nil, err
	}

	return c.structure, nil
}

// Rebuild discards the memoized structure of a class, for classes whose
// fields change at runtime.
func (r *Registry) Rebuild(name string) (*field.Structure, error) {
	r.mu.Lock()
	delete(r.classes, name)
	r.mu.Unlock()

	return r.Structure(name)
}

// Definition returns the registered definition of a class.
func (r *Registry) Definition(name string) (ClassDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return ClassDefinition{}, fmt.Errorf("%w: %q", ErrUnknownClass, name)
	}

	return def, nil
}

func (r *Registry) class(name string) (*class, error) {
	r.mu.RLock()
	c, ok := r.classes[name]
	r.mu.RUnlock()

	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.classes[name]; ok {
		return c, nil
	}

	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, name)
	}

	c = &class{def: def, structure: field.NewStructure(def.Fields()...)}

	key, err := c.schemaTable().KeyColumn()
	if err != nil {
		return nil, fatal("structure", name, err)
	}

	c.key = key
	r.classes[name] = c

	return c, nil
}

// referrers lists every field of every class that can point at target.
func (r *Registry) referrers(target string) ([]referrer, error) {
	var out []referrer

	for _, name := range r.Classes() {
		c, err := r.class(name)
		if err != nil {
			return nil, err
		}

		for _, ref := range c.structure.References() {
			if ref.ForeignClass() == target || ref.ForeignClass() == "" {
				out = append(out, referrer{class: c, field: ref})
			}
		}
	}

	return out, nil
}
