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
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// EnumOption is one member of a closed value set.
type EnumOption struct {
	Value int64
	Label string
	// Color is an optional display hint such as #ff0000.
	Color string
}

type enumSet []EnumOption

func (e enumSet) lookup(key int64) (EnumOption, bool) {
	for _, o := range e {
		if o.Value == key {
			return o, true
		}
	}

	return EnumOption{}, false
}

// byLabel resolves a label, case-insensitively, to its key.
func (e enumSet) byLabel(label string) (int64, bool) {
	for _, o := range e {
		if strings.EqualFold(o.Label, label) {
			return o.Value, true
		}
	}

	return 0, false
}

// matching lists the keys whose label contains needle.
func (e enumSet) matching(needle string) []int64 {
	needle = strings.ToLower(needle)
	keys := []int64{}

	for _, o := range e {
		if strings.Contains(strings.ToLower(o.Label), needle) {
			keys = append(keys, o.Value)
		}
	}

	return keys
}

func (e enumSet) formOptions() []FormOption {
	out := make([]FormOption, len(e))
	for i, o := range e {
		out[i] = FormOption{Value: o.Value, Label: o.Label}
	}

	return out
}

// Enumeration holds one key out of a closed set.
type Enumeration struct {
	base
	options enumSet
}

func NewEnumeration(name string, options []EnumOption, opts ...Option) *Enumeration {
	return &Enumeration{base: newBase(name, KindEnumeration, opts), options: options}
}

func (e *Enumeration) with(fn func(*Attributes)) Type {
	c := *e
	fn(&c.a)

	return &c
}

// Option returns the option for key, including its display color.
func (e *Enumeration) Option(key any) (EnumOption, bool) {
	k, ok := key.(int64)
	if !ok {
		return EnumOption{}, false
	}

	return e.options.lookup(k)
}

func (e *Enumeration) Options() []EnumOption { return e.options }

// ParseValue accepts a key or a label.
func (e *Enumeration) ParseValue(input any, _ any) (any, error) {
	v, err := parseInt64(input)
	if err == nil {
		return v, nil
	}

	if s, ok := input.(string); ok {
		if key, found := e.options.byLabel(strings.TrimSpace(s)); found {
			return key, nil
		}
	}

	return nil, e.problem("is not one of the allowed values")
}

func (e *Enumeration) ValidateValue(v any) error {
	if v == nil {
		return e.requiredProblem()
	}

	if _, ok := e.Option(v); !ok {
		return e.problem("is not one of the allowed values")
	}

	return nil
}

func (e *Enumeration) TextValue(v any) string {
	if v == nil {
		return ""
	}

	if o, ok := e.Option(v); ok {
		return o.Label
	}

	if k, ok := v.(int64); ok {
		return strconv.FormatInt(k, 10)
	}

	return ""
}

func (e *Enumeration) FullValue(_ context.Context, v any, _ Labeler) string { return e.TextValue(v) }
func (e *Enumeration) ColumnType() storage.ColumnType                       { return storage.Integer() }
func (e *Enumeration) StorageValue(v any) any                               { return v }
func (e *Enumeration) ParseStorageValue(raw any) (any, error)               { return storageParser(parseInt64)(raw) }

func (e *Enumeration) FieldForStorage(v any, q storage.Quoter) string {
	return q.Quote(e.StorageValue(v))
}

// Filter searches labels for Like and compares keys otherwise.
func (e *Enumeration) Filter(op Op, v, against any) bool {
	if op == OpLike {
		if against == nil {
			return false
		}

		return integerOps.filter(OpOneOf, v, e.options.matching(cast.ToString(against)))
	}

	return integerOps.filter(op, v, against)
}

func (e *Enumeration) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	if op == OpLike {
		if against == nil {
			return falseSQL
		}

		return integerOps.filterSQL(OpOneOf, column, e.options.matching(cast.ToString(against)), q)
	}

	return integerOps.filterSQL(op, column, against, q)
}

func (e *Enumeration) FormField() FormField { return e.formField(e.options.formOptions()...) }

// MultiEnumeration holds any subset of a closed set, stored as a JSON array
// of keys.
type MultiEnumeration struct {
	base
	options enumSet
	set     idSet
}

func NewMultiEnumeration(name string, options []EnumOption, opts ...Option) *MultiEnumeration {
	return &MultiEnumeration{base: newBase(name, KindMultiEnumeration, opts), options: options}
}

func (m *MultiEnumeration) with(fn func(*Attributes)) Type {
	c := *m
	fn(&c.a)

	return &c
}

func (m *MultiEnumeration) Options() []EnumOption { return m.options }

func (m *MultiEnumeration) IsEmpty(v any) bool { return len(asIDs(v)) == 0 }

func (m *MultiEnumeration) ParseValue(input any, _ any) (any, error) {
	ids, err := parseIDs(input)
	if err != nil {
		return nil, m.problem("is not a list of allowed values")
	}

	if ids == nil {
		return nil, nil
	}

	return ids, nil
}

func (m *MultiEnumeration) ValidateValue(v any) error {
	if m.IsEmpty(v) {
		return m.requiredProblem()
	}

	for _, k := range asIDs(v) {
		if _, ok := m.options.lookup(k); !ok {
			return m.problem("contains %d, which is not an allowed value", k)
		}
	}

	return nil
}

func (m *MultiEnumeration) TextValue(v any) string {
	var labels []string

	for _, k := range asIDs(v) {
		if o, ok := m.options.lookup(k); ok {
			labels = append(labels, o.Label)
		}
	}

	return strings.Join(labels, ", ")
}

func (m *MultiEnumeration) FullValue(_ context.Context, v any, _ Labeler) string {
	return m.TextValue(v)
}

func (m *MultiEnumeration) ColumnType() storage.ColumnType { return storage.Text() }

func (m *MultiEnumeration) StorageValue(v any) any { return encodeIDs(asIDs(v)) }

func (m *MultiEnumeration) ParseStorageValue(raw any) (any, error) {
	return storageParser(func(raw any) (any, error) { return m.ParseValue(raw, nil) })(raw)
}

func (m *MultiEnumeration) FieldForStorage(v any, q storage.Quoter) string {
	return q.Quote(m.StorageValue(v))
}

func (m *MultiEnumeration) Filter(op Op, v, against any) bool {
	if op == OpLike {
		if against == nil {
			return false
		}

		return m.set.filter(OpOneOf, v, m.options.matching(cast.ToString(against)))
	}

	return m.set.filter(op, v, against)
}

func (m *MultiEnumeration) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	if op == OpLike {
		if against == nil {
			return falseSQL
		}

		return m.set.filterSQL(OpOneOf, column, m.options.matching(cast.ToString(against)), q)
	}

	return m.set.filterSQL(op, column, against, q)
}

func (m *MultiEnumeration) FormField() FormField { return m.formField(m.options.formOptions()...) }
