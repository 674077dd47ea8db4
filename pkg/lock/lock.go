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

// Package lock defines the named mutual-exclusion primitive records use to
// guard Write mode, plus the naming scheme for record and class locks.
package lock

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrTimeout is returned when a lock is not acquired within its bound.
var ErrTimeout = errors.New("lock acquisition timed out")

// Locker is a named lock. Acquire blocks for at most timeout and reports
// whether the lock was obtained; an error means the lock medium failed.
type Locker interface {
	Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// RecordLock names the lock guarding one row.
func RecordLock(table string, id int64) string {
	return table + "#" + strconv.FormatInt(id, 10)
}

// ClassLock names the class-wide lock taken while reserving a manual key.
func ClassLock(table string) string {
	return table + "#*"
}

// Poll calls try until it succeeds, fails, the timeout elapses or ctx is
// done. It returns false without error on timeout.
func Poll(ctx context.Context, timeout, interval time.Duration, try func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := try()
		if err != nil || ok {
			return ok, err
		}

		if !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
