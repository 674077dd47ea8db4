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
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

var inputLayouts = []string{
	storage.DateTimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	storage.DateLayout,
}

// parseTime accepts time.Time, unix seconds and the common textual layouts.
// Results are UTC with second precision.
func parseTime(v any) (time.Time, bool, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false, nil
		}

		return t.UTC().Truncate(time.Second), true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false, nil
		}

		for _, layout := range inputLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return parsed.UTC().Truncate(time.Second), true, nil
			}
		}

		return time.Time{}, false, fmt.Errorf("%q is not a date", s)
	default:
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%v is not a date", v)
		}

		return time.Unix(secs, 0).UTC(), true, nil
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateTime is a point in time stored in UTC with second precision.
// Date is the same kind truncated to whole days.
type DateTime struct {
	base
	dateOnly bool
	ops      scalar
}

func NewDateTime(name string, opts ...Option) *DateTime {
	d := &DateTime{base: newBase(name, KindDateTime, opts)}
	d.ops = scalar{normalize: d.normalize, store: d.StorageValue}

	return d
}

func NewDate(name string, opts ...Option) *DateTime {
	d := &DateTime{base: newBase(name, KindDate, opts), dateOnly: true}
	d.ops = scalar{normalize: d.normalize, store: d.StorageValue}

	return d
}

func (d *DateTime) with(fn func(*Attributes)) Type {
	c := *d
	fn(&c.a)

	return &c
}

func (d *DateTime) layout() string {
	if d.dateOnly {
		return storage.DateLayout
	}

	return storage.DateTimeLayout
}

func (d *DateTime) normalize(v any) (any, error) {
	t, ok, err := parseTime(v)
	if err != nil || !ok {
		return nil, err
	}

	if d.dateOnly {
		t = truncateDay(t)
	}

	return t, nil
}

func (d *DateTime) ParseValue(input any, _ any) (any, error) {
	v, err := d.normalize(input)
	if err != nil {
		return nil, d.problem("is not a valid date")
	}

	return v, nil
}

func (d *DateTime) ValidateValue(v any) error {
	if v == nil {
		return d.requiredProblem()
	}

	if _, ok := v.(time.Time); !ok {
		return d.problem("is not a valid date")
	}

	return nil
}

func (d *DateTime) TextValue(v any) string {
	t, ok := v.(time.Time)
	if !ok {
		return ""
	}

	if d.dateOnly {
		return t.Format(storage.DateLayout)
	}

	return t.Format("2006-01-02 15:04")
}

func (d *DateTime) FullValue(_ context.Context, v any, _ Labeler) string { return d.TextValue(v) }

func (d *DateTime) ColumnType() storage.ColumnType {
	if d.dateOnly {
		return storage.Date()
	}

	return storage.DateTime()
}

// StorageValue formats the time with a fixed-width layout so textual and
// chronological order agree.
func (d *DateTime) StorageValue(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}

	return t.UTC().Format(d.layout())
}

func (d *DateTime) ParseStorageValue(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	v, err := d.normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", d.a.Name, err)
	}

	return v, nil
}

func (d *DateTime) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(d.StorageValue(v)) }

func (d *DateTime) Filter(op Op, v, against any) bool { return d.ops.filter(op, v, against) }

func (d *DateTime) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return d.ops.filterSQL(op, column, against, q)
}

func (d *DateTime) FormField() FormField { return d.formField() }
