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

package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// DefaultMaxFindLimit caps a query that skips rows without setting a limit.
const DefaultMaxFindLimit = 1000

// SortOrder is a sort direction.
type SortOrder int

const (
	Asc  SortOrder = 1
	Desc SortOrder = -1
)

// SortField is one ORDER BY key.
type SortField struct {
	Field string
	Order SortOrder
}

// Query is a condition plus ordering and pagination.
//
// Example:
//
//	q := filter.NewQuery().
//	    Filter(filter.Match("status", 2)).
//	    Filter(filter.Greater("age", 18)).
//	    Sort("name", filter.Asc).
//	    Limit(10).
//	    Skip(20)
type Query struct {
	Filters    []Condition
	SortBy     []SortField
	LimitCount int
	SkipCount  int
}

func NewQuery() *Query {
	return &Query{}
}

// Filter adds a condition. Conditions are joined with And.
func (q *Query) Filter(c Condition) *Query {
	q.Filters = append(q.Filters, c)

	return q
}

// Sort adds a sort key. Earlier keys take precedence.
func (q *Query) Sort(name string, order SortOrder) *Query {
	q.SortBy = append(q.SortBy, SortField{Field: name, Order: order})

	return q
}

// Limit sets the maximum number of records. Zero or less means no limit.
func (q *Query) Limit(count int) *Query {
	if count < 0 {
		count = 0
	}

	q.LimitCount = count

	return q
}

// Skip sets how many records to skip. Negative values are treated as zero.
func (q *Query) Skip(count int) *Query {
	if count < 0 {
		count = 0
	}

	q.SkipCount = count

	return q
}

// Condition is the And of all filters.
func (q *Query) Condition() Condition {
	switch len(q.Filters) {
	case 0:
		return All()
	case 1:
		return q.Filters[0]
	default:
		return And(q.Filters...)
	}
}

// Tail renders the ORDER BY, LIMIT and OFFSET clauses, each preceded by a
// space, or an empty string when the query has none of them. Sorting on a
// composite sorts on its first part.
func (q *Query) Tail(s *field.Structure, quoter storage.Quoter) (string, error) {
	var b strings.Builder

	for i, sf := range q.SortBy {
		t, ok := s.Field(sf.Field)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownField, sf.Field)
		}

		column := t.Name()
		if children := s.Children(column); len(children) > 0 {
			column = children[0].Name()
			t = children[0]
		}

		if t.StoreLocation() != field.StoreDatabase {
			return "", fmt.Errorf("%w: %q", ErrNotQueryable, sf.Field)
		}

		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}

		b.WriteString(quoter.QuoteIdent(column))

		if sf.Order == Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	limit := q.LimitCount
	if limit == 0 && q.SkipCount > 0 {
		limit = DefaultMaxFindLimit
	}

	if limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(limit))
	}

	if q.SkipCount > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.SkipCount))
	}

	return b.String(), nil
}
