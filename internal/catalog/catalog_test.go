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

package catalog_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/internal/catalog"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/lock/local"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlite"
)

var _ = Describe("Catalog", func() {
	var (
		ctx context.Context
		e   *datarecord.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()

		store, err := sqlite.Open(ctx, fmt.Sprintf("file:%s?mode=memory", uuid.NewString()))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		reg := datarecord.NewRegistry()
		catalog.Register(reg)

		e = datarecord.NewEngine(store, local.New(), reg, datarecord.Options{LockTimeout: time.Second})

		changed, err := e.ReconcileAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())
	})

	save := func(class string, values map[string]any) *datarecord.Record {
		r, err := e.New(class)
		Expect(err).NotTo(HaveOccurred())

		for name, v := range values {
			Expect(r.Set(name, v)).To(Succeed(), name)
		}

		_, err = r.Save(ctx, datarecord.SaveOptions{})
		Expect(err).NotTo(HaveOccurred())

		return r
	}

	It("registers every class", func() {
		Expect(e.Registry().Classes()).To(Equal([]string{catalog.Company, catalog.Contact, catalog.Tag, catalog.File}))
	})

	It("stores a contact with its company, tags and avatar", func() {
		umh := save(catalog.Company, map[string]any{
			"name":    "UMH Systems",
			"address": field.AddressValue{City: "Aachen", CountryCode: "DE"},
		})
		vip := save(catalog.Tag, map[string]any{"name": "vip"})
		photo := save(catalog.File, map[string]any{"name": "jane.png", "mime_type": "image/png"})

		jane := save(catalog.Contact, map[string]any{
			"first_name":      "Jane",
			"last_name":       "Doe",
			"email":           "Jane.Doe@UMH.app",
			"company":         umh.ID(),
			"tags":            []int64{vip.ID()},
			"avatar":          photo.ID(),
			"portal_password": "s3cret",
			"notes":           "met at the fair",
		})

		fresh, err := e.LoadForRead(ctx, catalog.Contact, jane.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Title()).To(Equal("Jane Doe"))
		Expect(fresh.Get("email")).To(Equal("jane.doe@umh.app"))
		Expect(fresh.Get("status")).To(Equal(catalog.StatusLead))
		Expect(fresh.FullValue(ctx, "company")).To(Equal("UMH Systems"))
		Expect(fresh.FullValue(ctx, "avatar")).To(Equal("jane.png"))
		Expect(fresh.Get("notes")).To(Equal("met at the fair"))

		hash, err := fresh.Get("portal_password")
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).NotTo(Equal("s3cret"))

		ids, err := e.SearchIDs(ctx, catalog.Contact, "umh")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]int64{jane.ID()}))
	})

	It("removes a deleted tag from its contacts", func() {
		vip := save(catalog.Tag, map[string]any{"name": "vip"})
		beta := save(catalog.Tag, map[string]any{"name": "beta"})
		jane := save(catalog.Contact, map[string]any{"last_name": "Doe", "tags": []int64{vip.ID(), beta.ID()}})

		w, err := e.LoadForWrite(ctx, catalog.Tag, vip.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Delete(ctx)).To(BeTrue())

		fresh, err := e.LoadForRead(ctx, catalog.Contact, jane.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Get("tags")).To(Equal([]int64{beta.ID()}))
	})

	It("keeps a company while contacts reference it", func() {
		umh := save(catalog.Company, map[string]any{"name": "UMH Systems"})
		save(catalog.Contact, map[string]any{"last_name": "Doe", "company": umh.ID()})

		w, err := e.LoadForWrite(ctx, catalog.Company, umh.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Delete(ctx)).To(BeFalse())
		w.Unlock(ctx)
	})
})
