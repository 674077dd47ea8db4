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

// Package redislock provides named locks shared between processes through
// Redis. Each lock is a key set with NX and a TTL; the value is an owner
// token so that only the holder can release it.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/lock"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
)

const (
	backend      = "redis"
	keyPrefix    = "datarecord:lock:"
	pollInterval = 25 * time.Millisecond
)

// ErrNotHeld is returned when releasing a lock this process does not hold.
var ErrNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lock.Locker over a Redis client.
type Locker struct {
	rdb redis.UniversalClient
	ttl time.Duration
	log *zap.SugaredLogger

	mu     sync.Mutex
	tokens map[string]string
}

var _ lock.Locker = (*Locker)(nil)

// New uses rdb as the lock medium. ttl bounds how long a crashed holder can
// keep a lock.
func New(rdb redis.UniversalClient, ttl time.Duration) *Locker {
	return &Locker{
		rdb:    rdb,
		ttl:    ttl,
		log:    logger.For(logger.ComponentLock).With("backend", backend),
		tokens: make(map[string]string),
	}
}

// Dial connects to a single Redis server and checks it answers.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	return rdb, nil
}

func (l *Locker) Acquire(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	token := uuid.NewString()
	start := time.Now()

	ok, err := lock.Poll(ctx, timeout, pollInterval, func() (bool, error) {
		set, err := l.rdb.SetNX(ctx, keyPrefix+name, token, l.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("failed to set lock key %s: %w", name, err)
		}

		return set, nil
	})

	metrics.ObserveLockWait(backend, time.Since(start), ok)
	l.log.Debugw("lock_acquire", "name", name, "acquired", ok, "waited", time.Since(start))

	if ok {
		l.mu.Lock()
		l.tokens[name] = token
		l.mu.Unlock()
	}

	return ok, err
}

func (l *Locker) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, held := l.tokens[name]
	delete(l.tokens, name)
	l.mu.Unlock()

	if !held {
		return fmt.Errorf("%w: %s", ErrNotHeld, name)
	}

	deleted, err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + name}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}

	if deleted == 0 {
		// The TTL expired and someone else may hold it now.
		l.log.Warnw("lock_expired_before_release", "name", name)
	}

	l.log.Debugw("lock_release", "name", name)

	return nil
}
