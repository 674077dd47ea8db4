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
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/filter"
)

// Collection is an ordered set of records of one class. An empty
// collection takes the class of the first record added.
type Collection struct {
	class   string
	records []*Record
}

// NewCollection collects records, which must share a class.
func NewCollection(records ...*Record) (*Collection, error) {
	c := &Collection{}
	if err := c.Add(records...); err != nil {
		return nil, err
	}

	return c, nil
}

// Add appends records. A record of another class is fatal.
func (c *Collection) Add(records ...*Record) error {
	for _, r := range records {
		if c.class == "" {
			c.class = r.Class()
		}

		if r.Class() != c.class {
			return fatal("collect", c.class, fmt.Errorf("%w: %s into %s", ErrClassMismatch, r.Class(), c.class))
		}

		c.records = append(c.records, r)
	}

	return nil
}

// Class is empty until the first record is added.
func (c *Collection) Class() string { return c.class }

func (c *Collection) Len() int { return len(c.records) }

func (c *Collection) Records() []*Record { return append([]*Record(nil), c.records...) }

// IDs lists the keys of the records in order.
func (c *Collection) IDs() []int64 {
	ids := make([]int64, len(c.records))
	for i, r := range c.records {
		ids[i] = r.id
	}

	return ids
}

func (c *Collection) derive(records []*Record) *Collection {
	return &Collection{class: c.class, records: records}
}

// Filter returns the records keep accepts.
func (c *Collection) Filter(keep func(*Record) bool) *Collection {
	var out []*Record

	for _, r := range c.records {
		if keep(r) {
			out = append(out, r)
		}
	}

	return c.derive(out)
}

// Where returns the records matching cond, evaluated in memory. Keyword
// searches on reference fields must be expanded beforehand.
func (c *Collection) Where(cond filter.Condition) (*Collection, error) {
	var out []*Record

	for _, r := range c.records {
		ok, err := cond.Match(r.class.structure, r.value)
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, r)
		}
	}

	return c.derive(out), nil
}

func (c *Collection) compatible(other *Collection) error {
	if c.class != "" && other.class != "" && c.class != other.class {
		return fatal("collect", c.class, fmt.Errorf("%w: %s with %s", ErrClassMismatch, other.class, c.class))
	}

	return nil
}

// Union returns the records of c followed by those of other not in c.
// Unsaved records are compared by identity, stored ones by key.
func (c *Collection) Union(other *Collection) (*Collection, error) {
	if err := c.compatible(other); err != nil {
		return nil, err
	}

	out := &Collection{class: c.class}
	if out.class == "" {
		out.class = other.class
	}

	out.records = append(out.records, c.records...)

	for _, r := range other.records {
		if !c.contains(r) {
			out.records = append(out.records, r)
		}
	}

	return out, nil
}

// Subtract returns the records of c not in other.
func (c *Collection) Subtract(other *Collection) (*Collection, error) {
	if err := c.compatible(other); err != nil {
		return nil, err
	}

	return c.Filter(func(r *Record) bool { return !other.contains(r) }), nil
}

func (c *Collection) contains(r *Record) bool {
	for _, own := range c.records {
		if own == r || (own.inDB && r.inDB && own.id == r.id) {
			return true
		}
	}

	return false
}

// RawValues maps each record's key to the raw value of a field.
func (c *Collection) RawValues(name string) (map[int64]any, error) {
	out := make(map[int64]any, len(c.records))

	for _, r := range c.records {
		v, err := r.RawValue(name)
		if err != nil {
			return nil, err
		}

		out[r.id] = v
	}

	return out, nil
}

// TextValues maps each record's key to the text of a field.
func (c *Collection) TextValues(name string) (map[int64]string, error) {
	out := make(map[int64]string, len(c.records))

	for _, r := range c.records {
		v, err := r.TextValue(name)
		if err != nil {
			return nil, err
		}

		out[r.id] = v
	}

	return out, nil
}

// FullValues maps each record's key to the display rendering of a field.
// Labels of references are resolved for the whole collection at once, one
// query per referenced class.
func (c *Collection) FullValues(ctx context.Context, name string) (map[int64]string, error) {
	out := make(map[int64]string, len(c.records))
	if len(c.records) == 0 {
		return out, nil
	}

	first := c.records[0]

	t, err := first.field("full", name)
	if err != nil {
		return nil, err
	}

	var labels field.Labeler = first.engine.xref

	if ref, ok := t.(field.Referencer); ok {
		var refs []field.Ref
		for _, r := range c.records {
			refs = append(refs, ref.Refs(r.value(name))...)
		}

		labels = first.engine.xref.Scoped(refs)
	}

	for _, r := range c.records {
		out[r.id] = t.FullValue(ctx, r.value(name), labels)
	}

	return out, nil
}

// SortKey is one sort criterion.
type SortKey struct {
	Field string
	Desc  bool
}

// Sort orders the records in place by the given keys. Text is compared
// naturally, so "item 9" sorts before "item 10"; empty values sort first.
func (c *Collection) Sort(keys ...SortKey) error {
	if len(c.records) == 0 {
		return nil
	}

	s := c.records[0].class.structure
	types := make([]field.Type, len(keys))
	names := make([]string, len(keys))

	for i, k := range keys {
		t, ok := s.Field(k.Field)
		if !ok {
			return fatal("sort", c.class, fmt.Errorf("%w: %q", ErrUnknownField, k.Field))
		}

		names[i] = k.Field

		if children := s.Children(k.Field); len(children) > 0 {
			t = children[0]
			names[i] = t.Name()
		}

		types[i] = t
	}

	col := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)

	sort.SliceStable(c.records, func(i, j int) bool {
		for k, key := range keys {
			a := types[k].StorageValue(c.records[i].value(names[k]))
			b := types[k].StorageValue(c.records[j].value(names[k]))

			order := compareStored(col, a, b)
			if key.Desc {
				order = -order
			}

			if order != 0 {
				return order < 0
			}
		}

		return false
	})

	return nil
}

func compareStored(col *collate.Collator, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case string:
		bv, _ := b.(string)

		return col.CompareString(av, bv)
	case bool:
		bv, _ := b.(bool)

		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	}

	af, bf := number(a), number(b)

	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func number(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}

	return 0
}

// DeleteAll deletes every record, which must be open for write, and
// returns how many were deleted.
func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	deleted := 0

	for _, r := range c.records {
		ok, err := r.Delete(ctx)
		if err != nil {
			return deleted, err
		}

		if ok {
			deleted++
		}
	}

	return deleted, nil
}
