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

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// Blob holds a JSON-serialisable list (Array) or map (Object) in a text
// column.
type Blob struct {
	base
	ops scalar
}

func NewArray(name string, opts ...Option) *Blob {
	b := &Blob{base: newBase(name, KindArray, opts)}
	b.ops = scalar{normalize: b.normalize, store: b.StorageValue, textual: true}

	return b
}

func NewObject(name string, opts ...Option) *Blob {
	b := &Blob{base: newBase(name, KindObject, opts)}
	b.ops = scalar{normalize: b.normalize, store: b.StorageValue, textual: true}

	return b
}

func (b *Blob) with(fn func(*Attributes)) Type {
	c := *b
	fn(&c.a)

	return &c
}

// normalize round-trips v through JSON so numbers become float64 and
// structs become maps, exactly as they come back from storage.
func (b *Blob) normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	var data []byte

	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}

		data = []byte(s)
	} else {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", b.a.Name, err)
		}

		data = encoded
	}

	if b.kind == KindArray {
		var out []any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", b.a.Name, err)
		}

		if len(out) == 0 {
			return nil, nil
		}

		return out, nil
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", b.a.Name, err)
	}

	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}

func (b *Blob) IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}

	return false
}

func (b *Blob) ParseValue(input any, _ any) (any, error) {
	v, err := b.normalize(input)
	if err != nil {
		if b.kind == KindArray {
			return nil, b.problem("must be a list")
		}

		return nil, b.problem("must be an object")
	}

	return v, nil
}

func (b *Blob) ValidateValue(v any) error {
	if b.IsEmpty(v) {
		return b.requiredProblem()
	}

	switch v.(type) {
	case []any:
		if b.kind == KindArray {
			return nil
		}
	case map[string]any:
		if b.kind == KindObject {
			return nil
		}
	}

	return b.problem("has the wrong shape")
}

func (b *Blob) TextValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = cast.ToString(e)
		}

		return strings.Join(parts, ", ")
	default:
		return cast.ToString(b.StorageValue(v))
	}
}

func (b *Blob) FullValue(_ context.Context, v any, _ Labeler) string { return b.TextValue(v) }

func (b *Blob) ColumnType() storage.ColumnType { return storage.Text() }

func (b *Blob) StorageValue(v any) any {
	if b.IsEmpty(v) {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	return string(data)
}

func (b *Blob) ParseStorageValue(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	s, err := cast.ToStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.a.Name, err)
	}

	return b.normalize(s)
}

func (b *Blob) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(b.StorageValue(v)) }

func (b *Blob) Filter(op Op, v, against any) bool { return b.ops.filter(op, v, against) }

func (b *Blob) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return b.ops.filterSQL(op, column, against, q)
}

func (b *Blob) FormField() FormField { return b.formField() }
