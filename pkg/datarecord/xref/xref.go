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

// Package xref is the cross-reference cache: it resolves (class, id) pairs
// to display labels and is filled in bulk, one query per class, so that
// rendering a list of records does not issue one query per reference.
//
// The cache is process-local and write-through. Labels changed by another
// process are not seen until this process saves the record itself or the
// entry expires.
package xref

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/metrics"
)

// ErrNotFound is returned for a reference to a record that does not exist.
var ErrNotFound = errors.New("referenced record not found")

const cleanupInterval = 20 * time.Second

// Resolver fetches the labels of many records of one class at once. Ids
// without a record are left out of the result.
type Resolver interface {
	Labels(ctx context.Context, class string, ids []int64) (map[int64]string, error)
}

// Cache maps class#id to a label.
type Cache struct {
	items    *cache.Cache
	resolver Resolver
	log      *zap.SugaredLogger
}

// New creates a cache. An expiration of zero keeps entries until they are
// refreshed or forgotten.
func New(resolver Resolver, expiration time.Duration) *Cache {
	cleanup := cleanupInterval
	if expiration <= 0 {
		expiration = cache.NoExpiration
		cleanup = 0
	}

	return &Cache{
		items:    cache.New(expiration, cleanup),
		resolver: resolver,
		log:      logger.For(logger.ComponentXRef),
	}
}

func key(class string, id int64) string {
	return class + "#" + strconv.FormatInt(id, 10)
}

// Get returns a cached label without resolving.
func (c *Cache) Get(class string, id int64) (string, bool) {
	v, ok := c.items.Get(key(class, id))
	if !ok {
		return "", false
	}

	return v.(string), true
}

// Label returns the label of one record, resolving it on a miss.
func (c *Cache) Label(ctx context.Context, class string, id int64) (string, error) {
	if l, ok := c.Get(class, id); ok {
		metrics.IncXRef(metrics.XRefHit)

		return l, nil
	}

	metrics.IncXRef(metrics.XRefMiss)

	if err := c.Populate(ctx, []field.Ref{{Class: class, ID: id}}); err != nil {
		return "", err
	}

	if l, ok := c.Get(class, id); ok {
		return l, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, key(class, id))
}

// Populate resolves every uncached ref, issuing one fetch per class. The
// fetches run concurrently.
func (c *Cache) Populate(ctx context.Context, refs []field.Ref) error {
	missing := make(map[string][]int64)

	for _, ref := range refs {
		if _, ok := c.items.Get(key(ref.Class, ref.ID)); ok {
			continue
		}

		if !slices.Contains(missing[ref.Class], ref.ID) {
			missing[ref.Class] = append(missing[ref.Class], ref.ID)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	for class, ids := range missing {
		g.Go(func() error {
			labels, err := c.resolver.Labels(ctx, class, ids)
			if err != nil {
				return fmt.Errorf("failed to resolve %s labels: %w", class, err)
			}

			metrics.IncXRefBatch()

			for id, l := range labels {
				c.items.SetDefault(key(class, id), l)
			}

			c.log.Debugw("xref_populated", "class", class, "requested", len(ids), "resolved", len(labels))

			return nil
		})
	}

	return g.Wait()
}

// Refresh updates the label of a cached entry. Uncached entries stay
// uncached.
func (c *Cache) Refresh(class string, id int64, label string) {
	k := key(class, id)
	if _, ok := c.items.Get(k); ok {
		c.items.SetDefault(k, label)
	}
}

// Forget removes an entry, for example after the record was deleted.
func (c *Cache) Forget(class string, id int64) {
	c.items.Delete(key(class, id))
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.items.Flush()
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Scoped returns a labeler for rendering a set of records. The first miss
// populates every ref in scope, not only the one asked for.
func (c *Cache) Scoped(refs []field.Ref) field.Labeler {
	return &scope{cache: c, refs: refs}
}

type scope struct {
	cache *Cache
	refs  []field.Ref
	once  sync.Once
	err   error
}

func (s *scope) Label(ctx context.Context, class string, id int64) (string, error) {
	if l, ok := s.cache.Get(class, id); ok {
		metrics.IncXRef(metrics.XRefHit)

		return l, nil
	}

	s.once.Do(func() {
		s.err = s.cache.Populate(ctx, s.refs)
	})

	if s.err != nil {
		return "", s.err
	}

	return s.cache.Label(ctx, class, id)
}
