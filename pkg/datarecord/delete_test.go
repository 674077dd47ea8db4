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

package datarecord_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cast"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
)

var _ = Describe("Delete", func() {
	var (
		ctx  context.Context
		e    *datarecord.Engine
		exec *countingExec
	)

	BeforeEach(func() {
		ctx = context.Background()
		e, exec = newEngine(50 * time.Millisecond)
	})

	openForWrite := func(r *datarecord.Record) *datarecord.Record {
		w, err := e.LoadForWrite(ctx, r.Class(), r.ID())
		Expect(err).NotTo(HaveOccurred())

		return w
	}

	It("does nothing for an unsaved record", func() {
		r, err := e.New("person")
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Delete(ctx)).To(BeFalse())
	})

	It("removes the row in hard mode", func() {
		r := openForWrite(create(e, "person", map[string]any{"name": "Ada"}))

		Expect(r.Delete(ctx)).To(BeTrue())
		Expect(r.IsInDatabase()).To(BeFalse())
		Expect(r.AccessMode()).To(Equal(datarecord.Read))

		_, err := e.LoadForRead(ctx, "person", r.ID())
		Expect(err).To(MatchError(datarecord.ErrNotFound))

		// The lock went with the record.
		_, err = e.LoadForWrite(ctx, "person", r.ID())
		Expect(err).To(MatchError(datarecord.ErrNotFound))
	})

	It("clears the fields in empty mode", func() {
		before := afterDeleteCalls.Load()
		r := openForWrite(create(e, "memo", map[string]any{"body": "remember"}))

		Expect(r.Delete(ctx)).To(BeTrue())
		Expect(r.IsInDatabase()).To(BeFalse())
		Expect(afterDeleteCalls.Load()).To(Equal(before + 1))

		row := queryRow(exec, "SELECT body, metadata FROM memo WHERE id = "+exec.Dialect().Quote(r.ID()))
		Expect(row["body"]).To(BeNil())
		Expect(row["metadata"]).To(BeNil())

		fresh, err := e.LoadForRead(ctx, "memo", r.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Get("body")).To(BeNil())
	})

	It("hides the row in mark mode", func() {
		kept := create(e, "ticket", map[string]any{"body": "open"})
		r := openForWrite(create(e, "ticket", map[string]any{"body": "done"}))

		Expect(r.Delete(ctx)).To(BeTrue())

		row := queryRow(exec, "SELECT is_deleted FROM ticket WHERE id = "+exec.Dialect().Quote(r.ID()))
		Expect(cast.ToBool(row["is_deleted"])).To(BeTrue())

		_, err := e.LoadForRead(ctx, "ticket", r.ID())
		Expect(err).To(MatchError(datarecord.ErrNotFound))

		all, err := e.FindAll(ctx, "ticket")
		Expect(err).NotTo(HaveOccurred())
		Expect(all.IDs()).To(Equal([]int64{kept.ID()}))
	})

	It("honours a refusal by the class", func() {
		r := openForWrite(create(e, "ticket", map[string]any{"body": "pinned"}))

		Expect(r.Delete(ctx)).To(BeFalse())
		Expect(r.IsInDatabase()).To(BeTrue())
		Expect(r.AccessMode()).To(Equal(datarecord.Write))
		r.Unlock(ctx)
	})

	It("blocks while the record is referenced", func() {
		umh := create(e, "company", map[string]any{"name": "UMH"})
		bob := create(e, "contact", map[string]any{"name": "Bob", "company": umh.ID()})

		Expect(e.CountReferrers(ctx, "company", umh.ID())).To(Equal(1))

		w := openForWrite(umh)
		Expect(w.Delete(ctx)).To(BeFalse())
		Expect(w.IsInDatabase()).To(BeTrue())
		w.Unlock(ctx)

		Expect(openForWrite(bob).Delete(ctx)).To(BeTrue())
		Expect(e.CountReferrers(ctx, "company", umh.ID())).To(BeZero())

		Expect(openForWrite(umh).Delete(ctx)).To(BeTrue())
	})

	It("purges referrers and deletes dependents", func() {
		plant := create(e, "project", map[string]any{"name": "plant"})
		other := create(e, "project", map[string]any{"name": "other"})
		task := create(e, "task", map[string]any{"name": "wire sensors", "project": plant.ID()})
		unrelated := create(e, "task", map[string]any{"name": "paint", "project": other.ID()})
		note := create(e, "note", map[string]any{"text": "call vendor", "project": plant.ID()})

		Expect(openForWrite(plant).Delete(ctx)).To(BeTrue())

		_, err := e.LoadForRead(ctx, "task", task.ID())
		Expect(err).To(MatchError(datarecord.ErrNotFound))

		_, err = e.LoadForRead(ctx, "task", unrelated.ID())
		Expect(err).NotTo(HaveOccurred())

		fresh, err := e.LoadForRead(ctx, "note", note.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Get("project")).To(BeNil())
		Expect(fresh.Get("text")).To(Equal("call vendor"))

		// Purged referrers were released.
		w := openForWrite(note)
		w.Unlock(ctx)
	})

	It("refuses a purge a referrer cannot take and changes nothing", func() {
		plant := create(e, "project", map[string]any{"name": "plant"})
		task := create(e, "task", map[string]any{"name": "wire sensors", "project": plant.ID()})
		note := create(e, "note", map[string]any{"text": "call vendor", "project": plant.ID()})
		create(e, "assignment", map[string]any{"person": "Ada", "project": plant.ID()})

		w := openForWrite(plant)
		deleted, err := w.Delete(ctx)
		Expect(err).To(MatchError(datarecord.ErrPurgeBlocked))
		Expect(err).To(MatchError(field.ErrInvalid))
		Expect(deleted).To(BeFalse())
		w.Unlock(ctx)

		_, err = e.LoadForRead(ctx, "project", plant.ID())
		Expect(err).NotTo(HaveOccurred())

		_, err = e.LoadForRead(ctx, "task", task.ID())
		Expect(err).NotTo(HaveOccurred())

		fresh, err := e.LoadForRead(ctx, "note", note.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Get("project")).To(Equal(plant.ID()))
	})

	It("forgets the label of a deleted record", func() {
		acme := create(e, "company", map[string]any{"name": "Acme"})
		Expect(e.Label(ctx, "company", acme.ID())).To(Equal("Acme"))

		Expect(openForWrite(acme).Delete(ctx)).To(BeTrue())

		_, ok := e.XRef().Get("company", acme.ID())
		Expect(ok).To(BeFalse())
	})
})
