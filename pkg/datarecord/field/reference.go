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
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// FileClass is the class File and Image fields point at.
const FileClass = "file"

func label(ctx context.Context, labels Labeler, class string, id int64) string {
	if labels != nil {
		if l, err := labels.Label(ctx, class, id); err == nil && l != "" {
			return l
		}
	}

	return "#" + strconv.FormatInt(id, 10)
}

// Reference points at one record of a fixed class. File and Image are
// references to the file class.
type Reference struct {
	base
	foreign   string
	dependent bool
}

func NewReference(name, foreignClass string, opts ...Option) *Reference {
	return &Reference{base: newBase(name, KindReference, opts), foreign: foreignClass}
}

func NewFile(name string, opts ...Option) *Reference {
	return &Reference{base: newBase(name, KindFile, opts), foreign: FileClass}
}

func NewImage(name string, opts ...Option) *Reference {
	return &Reference{base: newBase(name, KindImage, opts), foreign: FileClass}
}

// AsDependent makes the referring record exist only in relation to the
// referenced one: deleting the target with the purge strategy deletes it.
func (r *Reference) AsDependent() *Reference {
	c := *r
	c.dependent = true

	return &c
}

func (r *Reference) with(fn func(*Attributes)) Type {
	c := *r
	fn(&c.a)

	return &c
}

func (r *Reference) IsReference() bool    { return true }
func (r *Reference) ForeignClass() string { return r.foreign }
func (r *Reference) Dependent() bool      { return r.dependent }

func (r *Reference) ParseValue(input any, _ any) (any, error) {
	v, err := parseInt64(input)
	if err != nil {
		return nil, r.problem("must be a record id")
	}

	if id, ok := v.(int64); ok && id == 0 {
		return nil, nil
	}

	return v, nil
}

func (r *Reference) ValidateValue(v any) error {
	if v == nil {
		return r.requiredProblem()
	}

	if id, ok := v.(int64); !ok || id <= 0 {
		return r.problem("must be a record id")
	}

	return nil
}

func (r *Reference) TextValue(v any) string {
	if v == nil {
		return ""
	}

	return strconv.FormatInt(cast.ToInt64(v), 10)
}

// FullValue renders the referenced record's label.
func (r *Reference) FullValue(ctx context.Context, v any, labels Labeler) string {
	id, ok := v.(int64)
	if !ok {
		return ""
	}

	return label(ctx, labels, r.foreign, id)
}

func (r *Reference) ColumnType() storage.ColumnType         { return storage.BigInt() }
func (r *Reference) StorageValue(v any) any                 { return v }
func (r *Reference) ParseStorageValue(raw any) (any, error) { return storageParser(parseInt64)(raw) }

func (r *Reference) FieldForStorage(v any, q storage.Quoter) string {
	return q.Quote(r.StorageValue(v))
}

func (r *Reference) Refs(v any) []Ref {
	if id, ok := v.(int64); ok {
		return []Ref{{Class: r.foreign, ID: id}}
	}

	return nil
}

func (r *Reference) Without(v any, target Ref) any {
	if id, ok := v.(int64); ok && target.Class == r.foreign && id == target.ID {
		return nil
	}

	return v
}

func (r *Reference) ReferenceSQL(column string, target Ref, q storage.Quoter) string {
	if target.Class != r.foreign {
		return ""
	}

	return integerOps.filterSQL(OpMatch, column, target.ID, q)
}

// Filter treats Like as membership in an already expanded id set.
func (r *Reference) Filter(op Op, v, against any) bool {
	if op == OpLike {
		return integerOps.filter(OpOneOf, v, expandedIDs(against))
	}

	return integerOps.filter(op, v, against)
}

func (r *Reference) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	if op == OpLike {
		return integerOps.filterSQL(OpOneOf, column, expandedIDs(against), q)
	}

	return integerOps.filterSQL(op, column, against, q)
}

func (r *Reference) FormField() FormField { return r.formField() }

// expandedIDs reads the id set a reference Like was expanded into. Anything
// else, such as an unexpanded keyword, matches nothing.
func expandedIDs(against any) []int64 {
	if _, ok := against.(string); ok {
		return nil
	}

	ids, err := parseIDs(against)
	if err != nil {
		return nil
	}

	return ids
}

// MultiReference points at any number of records of one class, stored as a
// JSON array of ids.
type MultiReference struct {
	base
	foreign   string
	dependent bool
	set       idSet
}

func NewMultiReference(name, foreignClass string, opts ...Option) *MultiReference {
	return &MultiReference{base: newBase(name, KindMultiReference, opts), foreign: foreignClass}
}

func (m *MultiReference) AsDependent() *MultiReference {
	c := *m
	c.dependent = true

	return &c
}

func (m *MultiReference) with(fn func(*Attributes)) Type {
	c := *m
	fn(&c.a)

	return &c
}

func (m *MultiReference) IsReference() bool    { return true }
func (m *MultiReference) ForeignClass() string { return m.foreign }
func (m *MultiReference) Dependent() bool      { return m.dependent }
func (m *MultiReference) IsEmpty(v any) bool   { return len(asIDs(v)) == 0 }

func (m *MultiReference) ParseValue(input any, _ any) (any, error) {
	ids, err := parseIDs(input)
	if err != nil {
		return nil, m.problem("must be a list of record ids")
	}

	if ids == nil {
		return nil, nil
	}

	return ids, nil
}

func (m *MultiReference) ValidateValue(v any) error {
	if m.IsEmpty(v) {
		return m.requiredProblem()
	}

	for _, id := range asIDs(v) {
		if id <= 0 {
			return m.problem("must be a list of record ids")
		}
	}

	return nil
}

func (m *MultiReference) TextValue(v any) string {
	ids := asIDs(v)
	parts := make([]string, len(ids))

	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	return strings.Join(parts, ", ")
}

func (m *MultiReference) FullValue(ctx context.Context, v any, labels Labeler) string {
	ids := asIDs(v)
	parts := make([]string, len(ids))

	for i, id := range ids {
		parts[i] = label(ctx, labels, m.foreign, id)
	}

	return strings.Join(parts, ", ")
}

func (m *MultiReference) ColumnType() storage.ColumnType { return storage.Text() }

func (m *MultiReference) StorageValue(v any) any { return encodeIDs(asIDs(v)) }

func (m *MultiReference) ParseStorageValue(raw any) (any, error) {
	return storageParser(func(raw any) (any, error) { return m.ParseValue(raw, nil) })(raw)
}

func (m *MultiReference) FieldForStorage(v any, q storage.Quoter) string {
	return q.Quote(m.StorageValue(v))
}

func (m *MultiReference) Refs(v any) []Ref {
	ids := asIDs(v)
	refs := make([]Ref, len(ids))

	for i, id := range ids {
		refs[i] = Ref{Class: m.foreign, ID: id}
	}

	return refs
}

func (m *MultiReference) Without(v any, target Ref) any {
	if target.Class != m.foreign {
		return v
	}

	ids := slices.DeleteFunc(slices.Clone(asIDs(v)), func(id int64) bool { return id == target.ID })
	if len(ids) == 0 {
		return nil
	}

	return ids
}

func (m *MultiReference) ReferenceSQL(column string, target Ref, q storage.Quoter) string {
	if target.Class != m.foreign {
		return ""
	}

	return m.set.member(q.QuoteIdent(column), target.ID, q)
}

func (m *MultiReference) Filter(op Op, v, against any) bool {
	if op == OpLike {
		return m.set.filter(OpOneOf, v, expandedIDs(against))
	}

	return m.set.filter(op, v, against)
}

func (m *MultiReference) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	if op == OpLike {
		return m.set.filterSQL(OpOneOf, column, expandedIDs(against), q)
	}

	return m.set.filterSQL(op, column, against, q)
}

func (m *MultiReference) FormField() FormField { return m.formField() }

// HyperValue is a reference to a record of any class.
type HyperValue struct {
	Class string
	ID    int64
}

func (h HyperValue) String() string {
	return h.Class + "#" + strconv.FormatInt(h.ID, 10)
}

const (
	hyperClassPart = "foreign_class"
	hyperIDPart    = "reference"
)

// HyperReference stores the target class and id in two child columns.
type HyperReference struct {
	base
	dependent bool
}

func NewHyperReference(name string, opts ...Option) *HyperReference {
	return &HyperReference{base: newBase(name, KindHyperReference, opts)}
}

func (h *HyperReference) AsDependent() *HyperReference {
	c := *h
	c.dependent = true

	return &c
}

func (h *HyperReference) with(fn func(*Attributes)) Type {
	c := *h
	fn(&c.a)

	return &c
}

func (h *HyperReference) IsReference() bool    { return true }
func (h *HyperReference) ForeignClass() string { return "" }
func (h *HyperReference) Dependent() bool      { return h.dependent }

func (h *HyperReference) AdditionalStructure() []Type {
	return []Type{
		NewText(hyperClassPart).WithSize(64),
		NewInteger(hyperIDPart).Wide(),
	}
}

func (h *HyperReference) Compose(parts map[string]any) any {
	class, _ := parts[hyperClassPart].(string)
	id, ok := parts[hyperIDPart].(int64)

	if class == "" || !ok {
		return nil
	}

	return HyperValue{Class: class, ID: id}
}

func (h *HyperReference) Decompose(v any) map[string]any {
	hv, ok := v.(HyperValue)
	if !ok {
		return map[string]any{hyperClassPart: nil, hyperIDPart: nil}
	}

	return map[string]any{hyperClassPart: hv.Class, hyperIDPart: hv.ID}
}

// ParseValue accepts a HyperValue, a map with class and id, or "class#id".
func (h *HyperReference) ParseValue(input any, _ any) (any, error) {
	switch t := input.(type) {
	case nil:
		return nil, nil
	case HyperValue:
		if t.Class == "" || t.ID == 0 {
			return nil, nil
		}

		return t, nil
	case *HyperValue:
		if t == nil {
			return nil, nil
		}

		return h.ParseValue(*t, nil)
	case Ref:
		return h.ParseValue(HyperValue(t), nil)
	case map[string]any:
		id, err := cast.ToInt64E(t["id"])
		if err != nil {
			return nil, h.problem("must reference a record")
		}

		return h.ParseValue(HyperValue{Class: cast.ToString(t["class"]), ID: id}, nil)
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}

		class, rawID, found := strings.Cut(t, "#")
		id, err := strconv.ParseInt(rawID, 10, 64)

		if !found || err != nil {
			return nil, h.problem("must reference a record")
		}

		return h.ParseValue(HyperValue{Class: class, ID: id}, nil)
	}

	return nil, h.problem("must reference a record")
}

func (h *HyperReference) ValidateValue(v any) error {
	if v == nil {
		return h.requiredProblem()
	}

	hv, ok := v.(HyperValue)
	if !ok || hv.Class == "" || hv.ID <= 0 {
		return h.problem("must reference a record")
	}

	return nil
}

func (h *HyperReference) TextValue(v any) string {
	if hv, ok := v.(HyperValue); ok {
		return hv.String()
	}

	return ""
}

func (h *HyperReference) FullValue(ctx context.Context, v any, labels Labeler) string {
	hv, ok := v.(HyperValue)
	if !ok {
		return ""
	}

	return label(ctx, labels, hv.Class, hv.ID)
}

func (h *HyperReference) ColumnType() storage.ColumnType { return storage.Varchar(defaultTextSize) }

func (h *HyperReference) StorageValue(v any) any {
	if hv, ok := v.(HyperValue); ok {
		return hv.String()
	}

	return nil
}

func (h *HyperReference) ParseStorageValue(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	v, err := h.ParseValue(cast.ToString(raw), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", h.a.Name, err)
	}

	return v, nil
}

func (h *HyperReference) FieldForStorage(v any, q storage.Quoter) string {
	return q.Quote(h.StorageValue(v))
}

func (h *HyperReference) Refs(v any) []Ref {
	if hv, ok := v.(HyperValue); ok {
		return []Ref{Ref(hv)}
	}

	return nil
}

func (h *HyperReference) Without(v any, target Ref) any {
	if hv, ok := v.(HyperValue); ok && Ref(hv) == target {
		return nil
	}

	return v
}

func (h *HyperReference) ReferenceSQL(column string, target Ref, q storage.Quoter) string {
	return h.matchSQL(column, HyperValue(target), q)
}

func (h *HyperReference) matchSQL(column string, hv HyperValue, q storage.Quoter) string {
	return "(" + q.QuoteIdent(column+"_"+hyperClassPart) + " = " + q.Quote(hv.Class) +
		" AND " + q.QuoteIdent(column+"_"+hyperIDPart) + " = " + q.Quote(hv.ID) + ")"
}

func (h *HyperReference) targets(against any) []HyperValue {
	var out []HyperValue

	for _, a := range toList(against) {
		if v, err := h.ParseValue(a, nil); err == nil && v != nil {
			out = append(out, v.(HyperValue))
		}
	}

	return out
}

// Filter supports Match, OneOf and IsSet. Like cannot be expanded without a
// fixed class and matches nothing.
func (h *HyperReference) Filter(op Op, v, against any) bool {
	hv, set := v.(HyperValue)

	switch op {
	case OpIsSet:
		return set
	case OpMatch:
		if against == nil {
			return !set
		}

		targets := h.targets(against)

		return set && len(targets) == 1 && targets[0] == hv
	case OpOneOf:
		return set && slices.Contains(h.targets(against), hv)
	}

	return false
}

func (h *HyperReference) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	id := q.QuoteIdent(column + "_" + hyperIDPart)

	switch op {
	case OpIsSet:
		return id + " IS NOT NULL"
	case OpMatch:
		if against == nil {
			return id + " IS NULL"
		}

		targets := h.targets(against)
		if len(targets) != 1 {
			return falseSQL
		}

		return h.matchSQL(column, targets[0], q)
	case OpOneOf:
		targets := h.targets(against)
		parts := make([]string, len(targets))

		for i, t := range targets {
			parts[i] = h.matchSQL(column, t, q)
		}

		return sqlOr(parts)
	}

	return falseSQL
}

func (h *HyperReference) FormField() FormField { return h.formField() }
