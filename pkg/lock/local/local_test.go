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

package local_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/pkg/lock"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock/local"
)

var _ = Describe("Locker", func() {
	var (
		ctx    context.Context
		locker *local.Locker
	)

	BeforeEach(func() {
		ctx = context.Background()
		locker = local.New()
	})

	It("should time out on a held lock", func() {
		name := lock.RecordLock("contact", 1)

		ok, err := locker.Acquire(ctx, name, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		start := time.Now()
		ok, err = locker.Acquire(ctx, name, 50*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically(">=", 50*time.Millisecond))
	})

	It("should keep different names independent", func() {
		ok, err := locker.Acquire(ctx, lock.RecordLock("contact", 1), time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = locker.Acquire(ctx, lock.RecordLock("contact", 2), time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("should hand the lock to a waiter once released", func() {
		name := lock.ClassLock("tag")

		ok, err := locker.Acquire(ctx, name, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		acquired := make(chan bool, 1)
		go func() {
			defer GinkgoRecover()

			got, err := locker.Acquire(ctx, name, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			acquired <- got
		}()

		Consistently(acquired, 100*time.Millisecond).ShouldNot(Receive())
		Expect(locker.Release(ctx, name)).To(Succeed())
		Eventually(acquired, 2*time.Second).Should(Receive(BeTrue()))
	})

	It("should stop waiting when the context is cancelled", func() {
		name := lock.RecordLock("contact", 9)

		ok, err := locker.Acquire(ctx, name, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		ok, err = locker.Acquire(cancelled, name, time.Second)
		Expect(ok).To(BeFalse())
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("lock names", func() {
	It("should separate table and id", func() {
		Expect(lock.RecordLock("contact", 42)).To(Equal("contact#42"))
		Expect(lock.ClassLock("contact")).To(Equal("contact#*"))
	})
})
