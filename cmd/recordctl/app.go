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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/internal/catalog"
	"github.com/united-manufacturing-hub/datarecord/pkg/config"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock/local"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock/redislock"
	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/mysql"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/postgres"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlite"
)

// app holds the connections one command runs with.
type app struct {
	cfg    config.Config
	exec   storage.Executor
	rdb    *redis.Client
	engine *datarecord.Engine
	log    *zap.SugaredLogger
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, log: logger.For(logger.ComponentCLI)}

	exec, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	a.exec = exec

	locker, err := a.openLocker(ctx)
	if err != nil {
		_ = exec.Close()

		return nil, err
	}

	reg := datarecord.NewRegistry()
	catalog.Register(reg)

	a.engine = datarecord.NewEngine(exec, locker, reg, datarecord.Options{
		LockTimeout:    cfg.LockTimeout(),
		ChangeStrategy: schema.Strategy(cfg.Schema.ChangeStrategy),
		XRefExpiration: cfg.XRefExpiration(),
	})

	a.log.Debugw("app_opened", "driver", cfg.Storage.Driver, "lock_backend", cfg.Lock.Backend)

	return a, nil
}

func openStorage(ctx context.Context, c config.StorageConfig) (storage.Executor, error) {
	switch c.Driver {
	case config.DriverSQLite:
		return sqlite.Open(ctx, c.DSN)
	case config.DriverMySQL:
		return mysql.Open(ctx, c.DSN)
	case config.DriverPostgres:
		return postgres.Open(ctx, c.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}

func (a *app) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.Lock.Backend != config.LockBackendRedis {
		return local.New(), nil
	}

	rdb, err := redislock.Dial(ctx, a.cfg.Lock.RedisAddr, a.cfg.Lock.RedisPassword, a.cfg.Lock.RedisDB)
	if err != nil {
		return nil, err
	}

	a.rdb = rdb

	return redislock.New(rdb, a.cfg.LockTTL()), nil
}

func (a *app) Close() error {
	var errs []error

	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}

	errs = append(errs, a.exec.Close())

	return errors.Join(errs...)
}
