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

// Package overflow packs the fields stored in the metadata column into one
// JSON object and back.
package overflow

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// Column is the name of the overflow column.
const Column = "metadata"

// Pack serializes storage-form values keyed by field name. Nil values are
// left out; nothing to pack yields nil so the column stays NULL.
func Pack(values map[string]any) (any, error) {
	packed := make(map[string]any, len(values))

	for name, v := range values {
		if v != nil {
			packed[name] = v
		}
	}

	if len(packed) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(packed)
	if err != nil {
		return nil, fmt.Errorf("failed to pack metadata: %w", err)
	}

	return string(data), nil
}

// Unpack decodes the column's raw value. Integral numbers come back as
// int64 and other numbers as float64, matching the storage forms fields
// produce.
func Unpack(raw any) (map[string]any, error) {
	text, err := cast.ToStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	out := map[string]any{}
	if raw == nil || text == "" {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unpack metadata: %w", err)
	}

	for name, v := range out {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}

		if i, err := n.Int64(); err == nil {
			out[name] = i

			continue
		}

		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("failed to unpack metadata field %s: %w", name, err)
		}

		out[name] = f
	}

	return out, nil
}
