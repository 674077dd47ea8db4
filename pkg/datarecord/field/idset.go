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
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// parseIDs accepts a slice, a JSON array or a comma separated list and
// returns the sorted distinct ids, or nil when there are none.
func parseIDs(v any) ([]int64, error) {
	var ids []int64

	switch t := v.(type) {
	case nil:
		return nil, nil
	case []int64:
		ids = slices.Clone(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}

		if strings.HasPrefix(s, "[") {
			if err := json.Unmarshal([]byte(s), &ids); err != nil {
				return nil, fmt.Errorf("%q is not a list of ids: %w", s, err)
			}

			break
		}

		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an id", part)
			}

			ids = append(ids, id)
		}
	default:
		for _, e := range toList(v) {
			id, err := cast.ToInt64E(e)
			if err != nil {
				return nil, fmt.Errorf("%v is not an id", e)
			}

			ids = append(ids, id)
		}
	}

	slices.Sort(ids)
	ids = slices.Compact(ids)

	if len(ids) == 0 {
		return nil, nil
	}

	return ids, nil
}

// encodeIDs renders ids as a compact JSON array such as [3,7].
func encodeIDs(ids []int64) any {
	if len(ids) == 0 {
		return nil
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return nil
	}

	return string(data)
}

func asIDs(v any) []int64 {
	ids, _ := v.([]int64)

	return ids
}

// idSet filters a sorted id list stored as a JSON array. Membership in SQL
// is tested on the exact text: [n], [n,..., ...,n,... and ...,n].
type idSet struct{}

func (idSet) member(column string, id int64, q storage.Quoter) string {
	n := strconv.FormatInt(id, 10)

	return "(" + column + " = " + q.Quote("["+n+"]") +
		" OR " + column + " LIKE " + q.Quote("["+n+",%") +
		" OR " + column + " LIKE " + q.Quote("%,"+n+",%") +
		" OR " + column + " LIKE " + q.Quote("%,"+n+"]") + ")"
}

func (idSet) filter(op Op, v, against any) bool {
	ids := asIDs(v)

	switch op {
	case OpIsSet:
		return len(ids) > 0
	case OpMatch:
		want, err := parseIDs(against)
		if err != nil {
			return false
		}

		return slices.Equal(ids, want)
	case OpOneOf, OpLike:
		want, err := parseIDs(against)
		if err != nil {
			return false
		}

		for _, id := range want {
			if _, found := slices.BinarySearch(ids, id); found {
				return true
			}
		}
	}

	return false
}

func (s idSet) filterSQL(op Op, column string, against any, q storage.Quoter) string {
	c := q.QuoteIdent(column)

	switch op {
	case OpIsSet:
		return c + " IS NOT NULL"
	case OpMatch:
		want, err := parseIDs(against)
		if err != nil {
			return falseSQL
		}

		if len(want) == 0 {
			return c + " IS NULL"
		}

		return c + " = " + q.Quote(encodeIDs(want))
	case OpOneOf, OpLike:
		want, err := parseIDs(against)
		if err != nil {
			return falseSQL
		}

		parts := make([]string, len(want))
		for i, id := range want {
			parts[i] = s.member(c, id, q)
		}

		return sqlOr(parts)
	}

	return falseSQL
}
