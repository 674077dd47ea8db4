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

package schema_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/overflow"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/schema"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

var _ = Describe("Reconciler", func() {
	var (
		ctx  context.Context
		exec storage.Executor
		r    *schema.Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		exec = openSQLite()
		r = schema.NewReconciler(exec, schema.StrategyAlter)
	})

	contact := func(extra ...field.Type) schema.Table {
		types := append([]field.Type{
			field.NewKey("id"),
			field.NewText("name", field.Required()),
			field.NewEmail("email"),
		}, extra...)

		return schema.Table{Name: "contact", Structure: field.NewStructure(types...)}
	}

	reconcile := func(t schema.Table) bool {
		changed, err := r.Reconcile(ctx, t)
		Expect(err).NotTo(HaveOccurred())

		return changed
	}

	Describe("creating", func() {
		It("creates the table with field and bookkeeping columns", func() {
			Expect(reconcile(contact())).To(BeTrue())

			desc := describe(exec, "contact")
			Expect(desc.Exists).To(BeTrue())
			Expect(columnNames(desc)).To(Equal([]string{"id", "name", "email", overflow.Column, "create_date", "change_date"}))

			pk, ok := desc.PrimaryKey()
			Expect(ok).To(BeTrue())
			Expect(pk.Name).To(Equal("id"))
			Expect(pk.AutoIncrement).To(BeTrue())
		})

		It("is idempotent", func() {
			t := contact(
				field.NewInteger("age", field.Indexed()),
				field.NewAddress("address"),
				field.NewCurrency("budget", field.InMetadata()),
			)

			Expect(reconcile(t)).To(BeTrue())
			Expect(reconcile(t)).To(BeFalse())
		})

		It("adds the soft delete flag to flagged tables", func() {
			t := contact()
			t.Flagged = true

			reconcile(t)

			_, ok := describe(exec, "contact").Column(schema.DeletedColumn)
			Expect(ok).To(BeTrue())
		})

		It("refuses a structure without primary key", func() {
			t := schema.Table{Name: "tag", Structure: field.NewStructure(field.NewText("name"))}

			_, err := r.Reconcile(ctx, t)
			Expect(err).To(MatchError(schema.ErrNoPrimaryKey))
			Expect(describe(exec, "tag").Exists).To(BeFalse())
		})

		It("uses a caller managed id column for manual key tables", func() {
			t := schema.Table{Name: "tag", Structure: field.NewStructure(field.NewText("name")), ManualKey: true}

			Expect(reconcile(t)).To(BeTrue())

			pk, ok := describe(exec, "tag").PrimaryKey()
			Expect(ok).To(BeTrue())
			Expect(pk.Name).To(Equal(schema.DefaultKeyColumn))
			Expect(pk.AutoIncrement).To(BeFalse())
			Expect(reconcile(t)).To(BeFalse())
		})

		It("rejects unsafe identifiers", func() {
			t := contact()
			t.Name = "contact; DROP TABLE x"

			_, err := r.Reconcile(ctx, t)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("migrating columns", func() {
		BeforeEach(func() {
			reconcile(contact())
			mustExec(exec, `INSERT INTO contact (name, email) VALUES ('Anna', 'anna@example.com')`)
		})

		It("adds new fields and fills their default", func() {
			Expect(reconcile(contact(field.NewBool("active"), field.NewInteger("age")))).To(BeTrue())

			row := queryOne(exec, `SELECT active, age FROM contact`)
			Expect(row["active"]).To(BeEquivalentTo(0))
			Expect(row["age"]).To(BeNil())
		})

		It("parses a textual default before filling it", func() {
			Expect(reconcile(contact(
				field.NewBool("active", field.Default("1")),
				field.NewInteger("age", field.Default("42")),
			))).To(BeTrue())

			row := queryOne(exec, `SELECT active, age FROM contact`)
			Expect(row["active"]).To(BeEquivalentTo(1))
			Expect(row["age"]).To(BeEquivalentTo(42))
		})

		It("refuses a default its field cannot parse", func() {
			_, err := r.Reconcile(ctx, contact(field.NewInteger("age", field.Default("many"))))
			Expect(err).To(MatchError(field.ErrInvalid))
		})

		It("drops undeclared columns and the indexes covering them", func() {
			reconcile(contact(field.NewInteger("age", field.Indexed())))
			Expect(describe(exec, "contact").Indexes).To(HaveLen(1))

			Expect(reconcile(contact())).To(BeTrue())

			desc := describe(exec, "contact")
			_, ok := desc.Column("age")
			Expect(ok).To(BeFalse())
			Expect(desc.Indexes).To(BeEmpty())
		})

		It("recreates a retyped column with its default where it cannot be altered", func() {
			reconcile(contact(field.NewInteger("age")))
			mustExec(exec, `UPDATE contact SET age = 42`)

			Expect(reconcile(contact(field.NewText("age", field.Default("unknown"))))).To(BeTrue())

			age, _ := describe(exec, "contact").Column("age")
			Expect(age.Type).To(Equal("VARCHAR(255)"))
			Expect(queryOne(exec, `SELECT age FROM contact`)["age"]).To(Equal("unknown"))
			Expect(reconcile(contact(field.NewText("age", field.Default("unknown"))))).To(BeFalse())
		})

		It("rebuilds the table when the key generation mode changes", func() {
			t := contact()
			t.ManualKey = true

			Expect(reconcile(t)).To(BeTrue())

			pk, _ := describe(exec, "contact").PrimaryKey()
			Expect(pk.AutoIncrement).To(BeFalse())

			rows, err := exec.Query(ctx, `SELECT id FROM contact`)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("rebuilds the table when the key column is renamed", func() {
			t := schema.Table{Name: "contact", Structure: field.NewStructure(
				field.NewKey("contact_id"),
				field.NewText("name"),
			)}

			Expect(reconcile(t)).To(BeTrue())

			pk, _ := describe(exec, "contact").PrimaryKey()
			Expect(pk.Name).To(Equal("contact_id"))
		})
	})

	Describe("overflow salvage", func() {
		inMetadata := func() schema.Table { return contact(field.NewText("nickname", field.InMetadata())) }
		inColumn := func() schema.Table { return contact(field.NewText("nickname")) }

		BeforeEach(func() {
			reconcile(inMetadata())
			mustExec(exec, `INSERT INTO contact (name, metadata) VALUES ('Anna', '{"nickname":"Annie","shoe":38}')`)
			mustExec(exec, `INSERT INTO contact (name, metadata) VALUES ('Bert', '{"shoe":44}')`)
			mustExec(exec, `INSERT INTO contact (name) VALUES ('Carla')`)
		})

		It("moves overflow values into a new column", func() {
			Expect(reconcile(inColumn())).To(BeTrue())

			anna := queryOne(exec, `SELECT nickname, metadata FROM contact WHERE name = 'Anna'`)
			Expect(anna["nickname"]).To(Equal("Annie"))
			Expect(anna["metadata"]).To(Equal(`{"shoe":38}`))

			bert := queryOne(exec, `SELECT nickname, metadata FROM contact WHERE name = 'Bert'`)
			Expect(bert["nickname"]).To(BeNil())
			Expect(bert["metadata"]).To(Equal(`{"shoe":44}`))
		})

		It("round trips a value from metadata to a column and back", func() {
			reconcile(inColumn())
			mustExec(exec, `UPDATE contact SET nickname = 'Carly' WHERE name = 'Carla'`)

			Expect(reconcile(inMetadata())).To(BeTrue())
			_, ok := describe(exec, "contact").Column("nickname")
			Expect(ok).To(BeFalse())

			values, err := overflow.Unpack(queryOne(exec, `SELECT metadata FROM contact WHERE name = 'Carla'`)["metadata"])
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(Equal(map[string]any{"nickname": "Carly"}))

			values, err = overflow.Unpack(queryOne(exec, `SELECT metadata FROM contact WHERE name = 'Anna'`)["metadata"])
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(Equal(map[string]any{"nickname": "Annie", "shoe": int64(38)}))

			Expect(reconcile(inColumn())).To(BeTrue())
			Expect(queryOne(exec, `SELECT nickname FROM contact WHERE name = 'Carla'`)["nickname"]).To(Equal("Carly"))
			Expect(queryOne(exec, `SELECT nickname FROM contact WHERE name = 'Anna'`)["nickname"]).To(Equal("Annie"))
			Expect(queryOne(exec, `SELECT metadata FROM contact WHERE name = 'Carla'`)["metadata"]).To(BeNil())
		})
	})

	Describe("indexes", func() {
		It("creates single and multi column indexes", func() {
			reconcile(contact(
				field.NewInteger("age", field.Indexed()),
				field.NewText("city", field.IndexedWith("location")),
				field.NewText("zip", field.IndexedWith("location")),
			))

			desc := describe(exec, "contact")
			Expect(desc.Indexes).To(ConsistOf(
				storage.Index{Name: "contact_age_key", Columns: []string{"age"}},
				storage.Index{Name: "contact_location_key", Columns: []string{"city", "zip"}},
			))
		})

		It("recreates an index whose columns changed and drops undeclared ones", func() {
			reconcile(contact(
				field.NewInteger("age", field.Indexed()),
				field.NewText("city", field.IndexedWith("location")),
				field.NewText("zip", field.IndexedWith("location")),
			))

			next := contact(
				field.NewInteger("age"),
				field.NewText("city", field.IndexedWith("location")),
				field.NewText("zip"),
			)

			Expect(reconcile(next)).To(BeTrue())
			Expect(describe(exec, "contact").Indexes).To(Equal([]storage.Index{
				{Name: "contact_location_key", Columns: []string{"city"}},
			}))
			Expect(reconcile(next)).To(BeFalse())
		})

		It("leaves metadata fields unindexed", func() {
			reconcile(contact(field.NewInteger("age", field.Indexed(), field.InMetadata())))

			Expect(describe(exec, "contact").Indexes).To(BeEmpty())
		})
	})
})
