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

package sentry

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

var enabled atomic.Bool

// Init enables reporting when dsn is non-empty. An empty dsn keeps reporting
// disabled, which is the default for local and test runs.
func Init(dsn, release string) error {
	if dsn == "" {
		zap.S().Debug("Sentry disabled, no DSN configured")

		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: "datarecord@" + release,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	enabled.Store(true)

	return nil
}

// Flush waits for buffered events to be delivered.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}

// ReportFatal logs err and, when reporting is enabled, sends it as a fatal event
// tagged with the given context.
func ReportFatal(log *zap.SugaredLogger, err error, context map[string]string) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	kv := make([]interface{}, 0, 2+2*len(context))
	kv = append(kv, "error", err)

	for k, v := range context {
		kv = append(kv, k, v)
	}

	log.Errorw("fatal_error", kv...)

	if !enabled.Load() {
		return
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelFatal
	event.Message = err.Error()
	event.Exception = []sentry.Exception{{
		Type:       title(err),
		Value:      err.Error(),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}
	event.Tags = make(map[string]string, len(context))
	event.Fingerprint = []string{"{{ default }}"}

	for k, v := range context {
		event.Tags[k] = v
		if k == "operation" {
			event.Fingerprint = append(event.Fingerprint, "operation: "+v)
		}
	}

	sentry.CurrentHub().Clone().CaptureEvent(event)
}

// title extracts the leading phrase of an error message for grouping.
func title(err error) string {
	message := err.Error()

	if idx := strings.IndexAny(message, ".,:"); idx > 0 {
		message = message[:idx]
	}

	if len(message) > 100 {
		message = message[:97] + "..."
	}

	return message
}
