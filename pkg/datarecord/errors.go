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

package datarecord

import (
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/filter"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
	"github.com/united-manufacturing-hub/datarecord/pkg/sentry"
)

var (
	// ErrFatal matches every *FatalError.
	ErrFatal = errors.New("fatal")

	ErrUnknownField  = filter.ErrUnknownField
	ErrUnknownClass  = errors.New("unknown class")
	ErrNotWritable   = errors.New("record is not open for write")
	ErrNotFound      = errors.New("record not found")
	ErrKeyCollision  = errors.New("key already in use")
	ErrInvalidKey    = errors.New("invalid manual key")
	ErrClassMismatch = errors.New("record class does not match collection")
	// ErrVetoed is returned when a create hook refuses an insert.
	ErrVetoed = errors.New("insert vetoed")
	// ErrPurgeBlocked is returned when a referrer would not validate with
	// the purged reference removed. Nothing has been changed.
	ErrPurgeBlocked = errors.New("purge blocked by referrer")
)

// FatalError is a violated structural invariant: an undeclared field, a
// lock that could not be acquired, a key collision, a write without a
// lock. The operation is aborted and the error is reported.
type FatalError struct {
	Op    string
	Class string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s %s: %v", e.Op, e.Class, e.Err)
}

func (e *FatalError) Unwrap() []error { return []error{ErrFatal, e.Err} }

// fatal wraps err, counts it and reports it.
func fatal(op, class string, err error) error {
	fe := &FatalError{Op: op, Class: class, Err: err}

	metrics.IncFatal(logger.ComponentRecord, op)
	sentry.ReportFatal(logger.For(logger.ComponentRecord), fe, map[string]string{
		"operation": op,
		"class":     class,
	})

	return fe
}
