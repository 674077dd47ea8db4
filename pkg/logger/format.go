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


package logger

import (
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var prettyPool = buffer.NewPool()

// PrettyEncoder writes one human-readable line per entry:
//
//	[2006-01-02 15:04:05 MST] [INFO]	[file.go:12]	[engine]	record_saved - class=contact, id=7
//
// Fields added through With are kept in the embedded map encoder and
// printed together with the entry fields, sorted by key.
type PrettyEncoder struct {
	*zapcore.MapObjectEncoder
	cfg zapcore.EncoderConfig
}

// NewPrettyEncoder creates a PrettyEncoder.
func NewPrettyEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &PrettyEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), cfg: cfg}
}

func (e *PrettyEncoder) Clone() zapcore.Encoder {
	c := &PrettyEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), cfg: e.cfg}
	maps.Copy(c.Fields, e.Fields)

	return c
}

func (e *PrettyEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := prettyPool.Get()

	if !entry.Time.IsZero() {
		line.AppendByte('[')
		line.AppendString(entry.Time.Format("2006-01-02 15:04:05 MST"))
		line.AppendString("] ")
	}

	line.AppendByte('[')
	line.AppendString(entry.Level.CapitalString())
	line.AppendString("]\t")

	if entry.Caller.Defined {
		line.AppendByte('[')
		line.AppendString(entry.Caller.TrimmedPath())
		line.AppendString("]\t")
	}

	if entry.LoggerName != "" {
		line.AppendByte('[')
		line.AppendString(entry.LoggerName)
		line.AppendString("]\t")
	}

	line.AppendString(entry.Message)

	all := zapcore.NewMapObjectEncoder()
	maps.Copy(all.Fields, e.Fields)

	for _, f := range fields {
		f.AddTo(all)
	}

	if len(all.Fields) > 0 {
		line.AppendString(" - ")

		for i, key := range slices.Sorted(maps.Keys(all.Fields)) {
			if i > 0 {
				line.AppendString(", ")
			}

			line.AppendString(key)
			line.AppendByte('=')
			line.AppendString(fmt.Sprintf("%v", all.Fields[key]))
		}
	}

	if entry.Stack != "" {
		line.AppendByte('\n')
		line.AppendString(entry.Stack)
	}

	if e.cfg.LineEnding != "" {
		line.AppendString(e.cfg.LineEnding)
	} else {
		line.AppendString(zapcore.DefaultLineEnding)
	}

	return line, nil
}
