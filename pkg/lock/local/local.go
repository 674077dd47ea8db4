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

// Package local provides process-local named locks.
package local

import (
	"context"
	"time"

	"github.com/EagleChen/mapmutex"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/lock"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
)

const (
	backend      = "local"
	pollInterval = 5 * time.Millisecond
)

// Locker hands out named locks within one process.
type Locker struct {
	mutex *mapmutex.Mutex
	log   *zap.SugaredLogger
}

var _ lock.Locker = (*Locker)(nil)

func New() *Locker {
	return &Locker{
		// One attempt per TryLock with a tiny backoff; waiting is done by
		// lock.Poll so the bound and ctx are honoured.
		mutex: mapmutex.NewCustomizedMapMutex(
			1,
			1e7,
			10,
			1.1,
			0.2),
		log: logger.For(logger.ComponentLock).With("backend", backend),
	}
}

func (l *Locker) Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	start := time.Now()

	ok, err := lock.Poll(ctx, timeout, pollInterval, func() (bool, error) {
		return l.mutex.TryLock(name), nil
	})

	metrics.ObserveLockWait(backend, time.Since(start), ok)
	l.log.Debugw("lock_acquire", "name", name, "acquired", ok, "waited", time.Since(start))

	return ok, err
}

func (l *Locker) Release(_ context.Context, name string) error {
	l.mutex.Unlock(name)
	l.log.Debugw("lock_release", "name", name)

	return nil
}
