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
	"cmp"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

const (
	falseSQL = "1=0"
	trueSQL  = "1=1"
)

// base carries the shared attributes and the methods every kind gets for free.
type base struct {
	a    Attributes
	kind Kind
}

func newBase(name string, kind Kind, opts []Option) base {
	b := base{a: Attributes{Name: name}, kind: kind}
	for _, opt := range opts {
		opt(&b.a)
	}

	return b
}

func (b *base) Name() string { return b.a.Name }

func (b *base) Title() string {
	if b.a.Title == "" {
		return b.a.Name
	}

	return b.a.Title
}

func (b *base) Kind() Kind                     { return b.kind }
func (b *base) Attributes() Attributes         { return b.a }
func (b *base) DefaultValue() any              { return b.a.Default }
func (b *base) StoreLocation() StoreLocation   { return b.a.Store }
func (b *base) ListVisibility() ListVisibility { return b.a.List }
func (b *base) IsPrimaryKey() bool             { return b.a.PrimaryKey }
func (b *base) IsRequired() bool               { return b.a.Required }
func (b *base) IsReadonly() bool               { return b.a.Readonly }
func (b *base) IsSearchable() bool             { return b.a.Searchable }
func (b *base) IsReference() bool              { return false }
func (b *base) Index() IndexSpec               { return b.a.Index }
func (b *base) IsEmpty(v any) bool             { return v == nil }
func (b *base) RawValue(v any) any             { return v }
func (b *base) AdditionalStructure() []Type    { return nil }

func (b *base) problem(format string, args ...any) error {
	return &ValidationError{Field: b.a.Name, Problem: fmt.Sprintf(format, args...)}
}

func (b *base) requiredProblem() error {
	if b.a.Required {
		return b.problem("is required")
	}

	return nil
}

func (b *base) formField(options ...FormOption) FormField {
	return FormField{
		Kind:     b.kind,
		Name:     b.a.Name,
		Label:    b.Title(),
		Required: b.a.Required,
		Readonly: b.a.Readonly,
		Options:  options,
	}
}

// scalar implements filtering for kinds whose storage form is a single
// comparable column value. In-memory comparisons run on the storage form so
// they agree with what the database compares.
type scalar struct {
	normalize func(any) (any, error)
	store     func(any) any
	// textual kinds support substring Like; on the others Like is Match.
	textual bool
	// emptyText treats "" as unset.
	emptyText bool
}

func (s scalar) isSet(v any) bool {
	if v == nil {
		return false
	}

	if s.emptyText {
		if str, ok := v.(string); ok && str == "" {
			return false
		}
	}

	return true
}

func (s scalar) storageOf(against any) (any, bool) {
	if against == nil {
		return nil, false
	}

	n, err := s.normalize(against)
	if err != nil || n == nil {
		return nil, false
	}

	return s.store(n), true
}

func (s scalar) filter(op Op, v, against any) bool {
	switch op {
	case OpIsSet:
		return s.isSet(v)
	case OpOneOf:
		for _, a := range toList(against) {
			if a != nil && s.filter(OpMatch, v, a) {
				return true
			}
		}

		return false
	case OpLike:
		if !s.textual {
			return s.filter(OpMatch, v, against)
		}

		if against == nil {
			return false
		}

		needle := strings.ToLower(cast.ToString(against))
		if needle == "" {
			return s.isSet(v)
		}

		return v != nil && strings.Contains(strings.ToLower(cast.ToString(s.store(v))), needle)
	}

	want, ok := s.storageOf(against)
	if !ok {
		return op == OpMatch && against == nil && !s.isSet(v)
	}

	if v == nil {
		return false
	}

	c, comparable := compare(s.store(v), want)
	if !comparable {
		return false
	}

	switch op {
	case OpMatch:
		return c == 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	case OpLesser:
		return c < 0
	case OpLesserEqual:
		return c <= 0
	}

	return false
}

func (s scalar) filterSQL(op Op, column string, against any, q storage.Quoter) string {
	c := q.QuoteIdent(column)

	switch op {
	case OpIsSet:
		if s.emptyText {
			return "(" + c + " IS NOT NULL AND " + c + " <> '')"
		}

		return c + " IS NOT NULL"
	case OpOneOf:
		var literals []string

		for _, a := range toList(against) {
			if want, ok := s.storageOf(a); ok {
				literals = append(literals, q.Quote(want))
			}
		}

		return sqlIn(c, literals)
	case OpLike:
		if !s.textual {
			return s.filterSQL(OpMatch, column, against, q)
		}

		if against == nil {
			return falseSQL
		}

		needle := strings.ToLower(cast.ToString(against))
		if needle == "" {
			return s.filterSQL(OpIsSet, column, nil, q)
		}

		return sqlContains(storage.LowerSQL(q, c), needle, q)
	}

	want, ok := s.storageOf(against)
	if !ok {
		if op == OpMatch && against == nil {
			if s.emptyText {
				return "(" + c + " IS NULL OR " + c + " = '')"
			}

			return c + " IS NULL"
		}

		return falseSQL
	}

	operator := map[Op]string{
		OpMatch:        "=",
		OpGreater:      ">",
		OpGreaterEqual: ">=",
		OpLesser:       "<",
		OpLesserEqual:  "<=",
	}[op]
	if operator == "" {
		return falseSQL
	}

	return c + " " + operator + " " + q.Quote(want)
}

// compare orders two storage-form values of the same kind.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), true
		case float64:
			return cmp.Compare(float64(x), y), true
		}
	case float64:
		y, err := cast.ToFloat64E(b)
		if err != nil {
			return 0, false
		}

		return cmp.Compare(x, y), true
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}

	return 0, false
}

// toList spreads a slice argument. A single non-slice value is a list of one.
func toList(v any) []any {
	if v == nil {
		return nil
	}

	if list, ok := v.([]any); ok {
		return list
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// sqlContains matches expr against the literal substring needle.
func sqlContains(expr, needle string, q storage.Quoter) string {
	return expr + " LIKE " + q.Quote("%"+likeEscaper.Replace(needle)+"%") + " ESCAPE '!'"
}

// sqlLikePattern matches expr against a LIKE pattern built from literal parts
// joined by % wildcards.
func sqlLikePattern(expr string, q storage.Quoter, parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = likeEscaper.Replace(p)
	}

	return expr + " LIKE " + q.Quote(strings.Join(escaped, "%")) + " ESCAPE '!'"
}

func sqlIn(column string, literals []string) string {
	if len(literals) == 0 {
		return falseSQL
	}

	return column + " IN (" + strings.Join(literals, ", ") + ")"
}

func sqlOr(parts []string) string {
	switch len(parts) {
	case 0:
		return falseSQL
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

func sqlAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return trueSQL
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " AND ") + ")"
	}
}
