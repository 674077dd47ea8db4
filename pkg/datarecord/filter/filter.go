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

// Package filter is the condition tree records are searched with. A tree is
// built from field predicates joined by And, Or and Not, and is evaluated
// either as a SQL WHERE fragment or in memory against a record's values.
// Both evaluations delegate every leaf to the field type, so they agree.
package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

var (
	// ErrUnknownField is returned for a predicate on an undeclared field.
	ErrUnknownField = errors.New("unknown field")
	// ErrNotQueryable is returned when SQL is requested for a field without
	// its own column.
	ErrNotQueryable = errors.New("field has no column")
)

const (
	sqlTrue  = "1=1"
	sqlFalse = "1=0"
)

// Getter returns a record's current value for a field.
type Getter func(name string) any

// Expander resolves a keyword to the ids of matching records of class.
type Expander func(ctx context.Context, class, keyword string) ([]int64, error)

// Condition is a node of the tree.
type Condition interface {
	// SQL renders the condition as a WHERE fragment over s's columns.
	SQL(s *field.Structure, q storage.Quoter) (string, error)
	// Match evaluates the condition against the values get returns.
	Match(s *field.Structure, get Getter) (bool, error)

	expand(ctx context.Context, s *field.Structure, fn Expander) (Condition, error)
}

// Predicate applies one field operation.
//
// Example:
//
//	filter.Predicate{Field: "age", Op: field.OpGreater, Value: 18}
//	// age > 18
type Predicate struct {
	Field string
	Op    field.Op
	Value any
}

func (p Predicate) lookup(s *field.Structure) (field.Type, error) {
	t, ok := s.Field(p.Field)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, p.Field)
	}

	return t, nil
}

func (p Predicate) SQL(s *field.Structure, q storage.Quoter) (string, error) {
	t, err := p.lookup(s)
	if err != nil {
		return "", err
	}

	if columnStore(s, t) != field.StoreDatabase {
		return "", fmt.Errorf("%w: %q", ErrNotQueryable, p.Field)
	}

	return "(" + t.FilterSQL(p.Op, p.Field, p.Value, q) + ")", nil
}

func (p Predicate) Match(s *field.Structure, get Getter) (bool, error) {
	t, err := p.lookup(s)
	if err != nil {
		return false, err
	}

	return t.Filter(p.Op, get(p.Field), p.Value), nil
}

// expand replaces a keyword Like on a single-class reference with the ids
// of the foreign records matching the keyword.
func (p Predicate) expand(ctx context.Context, s *field.Structure, fn Expander) (Condition, error) {
	if p.Op != field.OpLike {
		return p, nil
	}

	keyword, isKeyword := p.Value.(string)
	if !isKeyword {
		return p, nil
	}

	t, err := p.lookup(s)
	if err != nil {
		return nil, err
	}

	ref, ok := t.(field.Referencer)
	if !ok || ref.ForeignClass() == "" {
		return p, nil
	}

	ids, err := fn(ctx, ref.ForeignClass(), keyword)
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", p.Field, err)
	}

	if ids == nil {
		ids = []int64{}
	}

	return Predicate{Field: p.Field, Op: field.OpLike, Value: ids}, nil
}

// columnStore is where a field's data lives. Composite parents are not
// stored themselves, their children carry the location.
func columnStore(s *field.Structure, t field.Type) field.StoreLocation {
	if children := s.Children(t.Name()); len(children) > 0 {
		return children[0].StoreLocation()
	}

	return t.StoreLocation()
}

func Match(name string, v any) Predicate {
	return Predicate{Field: name, Op: field.OpMatch, Value: v}
}

func Greater(name string, v any) Predicate {
	return Predicate{Field: name, Op: field.OpGreater, Value: v}
}

func GreaterEqual(name string, v any) Predicate {
	return Predicate{Field: name, Op: field.OpGreaterEqual, Value: v}
}

func Lesser(name string, v any) Predicate {
	return Predicate{Field: name, Op: field.OpLesser, Value: v}
}

func LesserEqual(name string, v any) Predicate {
	return Predicate{Field: name, Op: field.OpLesserEqual, Value: v}
}

// Like is a case-insensitive substring search. On a reference field the
// keyword is searched in the referenced class once the tree is expanded.
func Like(name string, keyword string) Predicate {
	return Predicate{Field: name, Op: field.OpLike, Value: keyword}
}

func IsSet(name string) Predicate {
	return Predicate{Field: name, Op: field.OpIsSet}
}

// OneOf matches any element of values, which must be a slice.
func OneOf(name string, values any) Predicate {
	return Predicate{Field: name, Op: field.OpOneOf, Value: values}
}

type junction struct {
	any   bool
	conds []Condition
}

// And holds when every condition holds. And() is always true.
func And(conds ...Condition) Condition { return junction{conds: conds} }

// Or holds when at least one condition holds. Or() is always false.
func Or(conds ...Condition) Condition { return junction{any: true, conds: conds} }

// All matches every record.
func All() Condition { return junction{} }

func (j junction) SQL(s *field.Structure, q storage.Quoter) (string, error) {
	if len(j.conds) == 0 {
		if j.any {
			return sqlFalse, nil
		}

		return sqlTrue, nil
	}

	parts := make([]string, len(j.conds))

	for i, c := range j.conds {
		sql, err := c.SQL(s, q)
		if err != nil {
			return "", err
		}

		parts[i] = sql
	}

	if len(parts) == 1 {
		return parts[0], nil
	}

	sep := " AND "
	if j.any {
		sep = " OR "
	}

	return "(" + strings.Join(parts, sep) + ")", nil
}

func (j junction) Match(s *field.Structure, get Getter) (bool, error) {
	for _, c := range j.conds {
		ok, err := c.Match(s, get)
		if err != nil {
			return false, err
		}

		if ok == j.any {
			return ok, nil
		}
	}

	return !j.any, nil
}

func (j junction) expand(ctx context.Context, s *field.Structure, fn Expander) (Condition, error) {
	out := junction{any: j.any, conds: make([]Condition, len(j.conds))}

	for i, c := range j.conds {
		e, err := c.expand(ctx, s, fn)
		if err != nil {
			return nil, err
		}

		out.conds[i] = e
	}

	return out, nil
}

type negation struct {
	cond Condition
}

// Not inverts a condition.
func Not(c Condition) Condition { return negation{cond: c} }

// SQL uses IS NOT TRUE so that a predicate evaluating to NULL on a NULL
// column is inverted to true, as it is in memory.
func (n negation) SQL(s *field.Structure, q storage.Quoter) (string, error) {
	sql, err := n.cond.SQL(s, q)
	if err != nil {
		return "", err
	}

	return "(" + sql + " IS NOT TRUE)", nil
}

func (n negation) Match(s *field.Structure, get Getter) (bool, error) {
	ok, err := n.cond.Match(s, get)

	return !ok, err
}

func (n negation) expand(ctx context.Context, s *field.Structure, fn Expander) (Condition, error) {
	c, err := n.cond.expand(ctx, s, fn)
	if err != nil {
		return nil, err
	}

	return negation{cond: c}, nil
}

// Expand resolves every keyword Like on a reference field through fn. The
// returned tree evaluates those predicates as id-set membership; without
// expansion they match nothing.
func Expand(ctx context.Context, s *field.Structure, c Condition, fn Expander) (Condition, error) {
	if c == nil {
		return All(), nil
	}

	return c.expand(ctx, s, fn)
}

// Keyword builds the search over every searchable field of s: a Like on
// each, joined by Or. A structure without searchable fields matches nothing.
func Keyword(s *field.Structure, keyword string) Condition {
	var conds []Condition

	for _, t := range s.Searchable() {
		conds = append(conds, Like(t.Name(), keyword))
	}

	return Or(conds...)
}
