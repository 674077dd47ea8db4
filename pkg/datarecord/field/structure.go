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

package field

import (
	"fmt"
	"slices"
)

// IndexDef is a declared secondary index.
type IndexDef struct {
	// Logical is <field>_key, or <name>_key for a multi-column index.
	Logical string
	Columns []string
}

// Structure is the ordered field set of one record class. Composite fields
// are flattened on construction: each child is added as <parent>_<suffix>
// with the parent's store location, and the parent itself moves to
// StoreNowhere.
type Structure struct {
	order    []string
	fields   map[string]Type
	primary  string
	parent   map[string]string
	suffix   map[string]string
	children map[string][]string
}

// NewStructure builds a structure. It panics on an empty or duplicate name
// and on a second primary key; both are programming errors in a class
// definition.
func NewStructure(types ...Type) *Structure {
	s := &Structure{
		fields:   make(map[string]Type, len(types)),
		parent:   make(map[string]string),
		suffix:   make(map[string]string),
		children: make(map[string][]string),
	}

	for _, t := range types {
		s.add(t)
	}

	return s
}

func (s *Structure) add(t Type) {
	name := t.Name()
	if name == "" {
		panic("field: empty field name")
	}

	if _, dup := s.fields[name]; dup {
		panic(fmt.Sprintf("field: duplicate field %q", name))
	}

	if t.IsPrimaryKey() {
		if s.primary != "" {
			panic(fmt.Sprintf("field: second primary key %q, %q is already the primary key", name, s.primary))
		}

		s.primary = name
	}

	children := t.AdditionalStructure()
	if len(children) == 0 {
		s.fields[name] = t
		s.order = append(s.order, name)

		return
	}

	attrs := t.Attributes()
	s.fields[name] = t.with(func(a *Attributes) { a.Store = StoreNowhere })
	s.order = append(s.order, name)

	for _, child := range children {
		suffix := child.Name()
		flat := child.with(func(a *Attributes) {
			a.Name = name + "_" + suffix
			a.Title = attrs.Title
			a.Store = attrs.Store
			a.Readonly = attrs.Readonly
			a.Searchable = attrs.Searchable
			a.List = ListNever
		})

		s.add(flat)
		s.parent[flat.Name()] = name
		s.suffix[flat.Name()] = suffix
		s.children[name] = append(s.children[name], flat.Name())
	}
}

func (s *Structure) Len() int { return len(s.order) }

// Names lists field names in declaration order, children after their parent.
func (s *Structure) Names() []string { return slices.Clone(s.order) }

func (s *Structure) Field(name string) (Type, bool) {
	t, ok := s.fields[name]

	return t, ok
}

func (s *Structure) Has(name string) bool {
	_, ok := s.fields[name]

	return ok
}

func (s *Structure) Fields() []Type {
	out := make([]Type, len(s.order))
	for i, name := range s.order {
		out[i] = s.fields[name]
	}

	return out
}

// PrimaryKey returns the primary key field, if declared.
func (s *Structure) PrimaryKey() (Type, bool) {
	if s.primary == "" {
		return nil, false
	}

	return s.fields[s.primary], true
}

// StoredIn lists the fields persisted at loc.
func (s *Structure) StoredIn(loc StoreLocation) []Type {
	var out []Type

	for _, name := range s.order {
		if t := s.fields[name]; t.StoreLocation() == loc {
			out = append(out, t)
		}
	}

	return out
}

// Children lists the flattened children of a composite, in order.
func (s *Structure) Children(name string) []Type {
	names := s.children[name]
	out := make([]Type, len(names))

	for i, n := range names {
		out[i] = s.fields[n]
	}

	return out
}

// Parent returns the composite a flattened child belongs to and the
// child's suffix.
func (s *Structure) Parent(name string) (parent, suffix string, ok bool) {
	parent, ok = s.parent[name]

	return parent, s.suffix[name], ok
}

// Indexes lists declared indexes on column-stored fields.
func (s *Structure) Indexes() []IndexDef {
	var out []IndexDef

	multi := make(map[string]int)

	for _, name := range s.order {
		t := s.fields[name]
		if t.StoreLocation() != StoreDatabase {
			continue
		}

		spec := t.Index()

		switch spec.Kind {
		case IndexSingle:
			out = append(out, IndexDef{Logical: name + "_key", Columns: []string{name}})
		case IndexMulti:
			if i, seen := multi[spec.Name]; seen {
				out[i].Columns = append(out[i].Columns, name)

				continue
			}

			multi[spec.Name] = len(out)
			out = append(out, IndexDef{Logical: spec.Name + "_key", Columns: []string{name}})
		}
	}

	return out
}

// References lists the reference fields, composites included.
func (s *Structure) References() []Referencer {
	var out []Referencer

	for _, name := range s.order {
		if r, ok := s.fields[name].(Referencer); ok {
			out = append(out, r)
		}
	}

	return out
}

// Searchable lists the fields a keyword search runs against in SQL:
// searchable fields with their own column and searchable composites whose
// children have columns.
func (s *Structure) Searchable() []Type {
	var out []Type

	for _, name := range s.order {
		t := s.fields[name]
		if !t.IsSearchable() {
			continue
		}

		if _, isChild := s.parent[name]; isChild {
			continue
		}

		if children := s.children[name]; len(children) > 0 {
			if s.fields[children[0]].StoreLocation() == StoreDatabase {
				out = append(out, t)
			}

			continue
		}

		if t.StoreLocation() == StoreDatabase {
			out = append(out, t)
		}
	}

	return out
}
