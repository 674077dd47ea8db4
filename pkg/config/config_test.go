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

package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/pkg/config"
)

func setenv(key, value string) {
	previous, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, previous)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

var _ = Describe("Config", func() {
	Context("when reading the environment", func() {
		It("should fall back to defaults", func() {
			cfg, err := config.FromEnv()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal(config.DriverSQLite))
			Expect(cfg.Lock.Backend).To(Equal(config.LockBackendLocal))
			Expect(cfg.LockTimeout()).To(Equal(10 * time.Second))
			Expect(cfg.Schema.ChangeStrategy).To(Equal(config.ChangeStrategyAlter))
			Expect(cfg.XRefExpiration()).To(BeZero())
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should pick up overrides", func() {
			setenv("STORAGE_DRIVER", "postgres")
			setenv("STORAGE_DSN", "postgres://localhost/records")
			setenv("LOCK_BACKEND", "redis")
			setenv("LOCK_TIMEOUT_SECONDS", "3")

			cfg, err := config.FromEnv()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal(config.DriverPostgres))
			Expect(cfg.Lock.Backend).To(Equal(config.LockBackendRedis))
			Expect(cfg.LockTimeout()).To(Equal(3 * time.Second))
		})
	})

	Context("when overlaying a YAML file", func() {
		It("should keep values the file does not mention", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "datarecord.yaml")
			Expect(os.WriteFile(path, []byte("schema:\n  changeStrategy: recreate\nlock:\n  timeoutSeconds: 20\n  ttlSeconds: 60\n  backend: local\n"), 0o600)).To(Succeed())
			setenv("DATARECORD_CONFIG", path)

			cfg, err := config.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Schema.ChangeStrategy).To(Equal(config.ChangeStrategyRecreate))
			Expect(cfg.Lock.TimeoutSeconds).To(Equal(20))
			Expect(cfg.Storage.Driver).To(Equal(config.DriverSQLite))
		})

		It("should reject malformed YAML", func() {
			_, err := config.Overlay(config.Config{}, []byte("storage: [unterminated"))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when validating", func() {
		It("should report every problem", func() {
			cfg, err := config.FromEnv()
			Expect(err).NotTo(HaveOccurred())
			cfg.Storage.Driver = "oracle"
			cfg.Lock.TimeoutSeconds = 0
			cfg.Schema.ChangeStrategy = "migrate"

			err = cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("oracle"))
			Expect(err.Error()).To(ContainSubstring("lock timeout"))
			Expect(err.Error()).To(ContainSubstring("migrate"))
		})
	})
})
