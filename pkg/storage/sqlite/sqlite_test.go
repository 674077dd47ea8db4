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

package sqlite_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlite"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlstore"
)

var _ = Describe("SQLite backend", func() {
	var (
		ctx   context.Context
		store *sqlstore.Store
		d     storage.Dialect
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = sqlite.Open(ctx, fmt.Sprintf("file:%s?mode=memory", uuid.NewString()))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		d = store.Dialect()
	})

	Describe("Quote", func() {
		It("should escape single quotes", func() {
			Expect(d.Quote("O'Brien")).To(Equal("'O''Brien'"))
		})

		It("should render nil, bools and numbers", func() {
			Expect(d.Quote(nil)).To(Equal("NULL"))
			Expect(d.Quote(true)).To(Equal("1"))
			Expect(d.Quote(false)).To(Equal("0"))
			Expect(d.Quote(int64(42))).To(Equal("42"))
			Expect(d.Quote(1.5)).To(Equal("1.5"))
		})

		It("should render times in the datetime layout", func() {
			ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
			Expect(d.Quote(ts)).To(Equal("'2024-03-01 12:30:00'"))
		})

		It("should round-trip hostile strings", func() {
			_, err := store.Exec(ctx, "CREATE TABLE t (v TEXT)")
			Expect(err).NotTo(HaveOccurred())

			hostile := `'); DROP TABLE t; --`
			_, err = store.Exec(ctx, "INSERT INTO t (v) VALUES ("+d.Quote(hostile)+")")
			Expect(err).NotTo(HaveOccurred())

			rows, err := store.Query(ctx, "SELECT v FROM t")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0]["v"]).To(Equal(hostile))
		})
	})

	Describe("LowerSQL", func() {
		It("should fold non-ASCII capitals and pass NULL through", func() {
			lower := storage.LowerSQL(d, "v")
			Expect(lower).To(Equal("unicode_lower(v)"))

			_, err := store.Exec(ctx, "CREATE TABLE t (v TEXT)")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Exec(ctx, "INSERT INTO t (v) VALUES ('ÉCOLE'), (NULL)")
			Expect(err).NotTo(HaveOccurred())

			rows, err := store.Query(ctx, "SELECT "+lower+" AS l FROM t ORDER BY v IS NULL")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0]["l"]).To(Equal("école"))
			Expect(rows[1]["l"]).To(BeNil())
		})
	})

	Describe("Insert", func() {
		It("should report the generated key per call", func() {
			_, err := store.Exec(ctx, "CREATE TABLE t (id "+d.PrimaryKeySQL(true)+", v TEXT)")
			Expect(err).NotTo(HaveOccurred())

			first, err := store.Insert(ctx, "INSERT INTO t (v) VALUES ('a')", "id")
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Insert(ctx, "INSERT INTO t (v) VALUES ('b')", "id")
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first + 1))
		})

		It("should classify primary key collisions", func() {
			_, err := store.Exec(ctx, "CREATE TABLE t (id "+d.PrimaryKeySQL(false)+")")
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Insert(ctx, "INSERT INTO t (id) VALUES (7)", "id")
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Insert(ctx, "INSERT INTO t (id) VALUES (7)", "id")
			Expect(err).To(MatchError(storage.ErrDuplicateKey))
		})
	})

	Describe("Exec", func() {
		It("should report affected rows", func() {
			_, err := store.Exec(ctx, "CREATE TABLE t (v INTEGER)")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Exec(ctx, "INSERT INTO t (v) VALUES (1), (2), (3)")
			Expect(err).NotTo(HaveOccurred())

			affected, err := store.Exec(ctx, "UPDATE t SET v = 0 WHERE v > 1")
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(int64(2)))
		})
	})

	Describe("Describe", func() {
		It("should report a missing table", func() {
			desc, err := d.Describe(ctx, store, "missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(desc.Exists).To(BeFalse())
		})

		It("should report columns with the same spelling as ColumnSQL", func() {
			stmt := fmt.Sprintf("CREATE TABLE contact (id %s, name %s, age %s)",
				d.PrimaryKeySQL(true), d.ColumnSQL(storage.Varchar(255)), d.ColumnSQL(storage.Integer()))
			_, err := store.Exec(ctx, stmt)
			Expect(err).NotTo(HaveOccurred())

			desc, err := d.Describe(ctx, store, "contact")
			Expect(err).NotTo(HaveOccurred())
			Expect(desc.Exists).To(BeTrue())

			pk, ok := desc.PrimaryKey()
			Expect(ok).To(BeTrue())
			Expect(pk.Name).To(Equal("id"))
			Expect(pk.AutoIncrement).To(BeTrue())

			name, ok := desc.Column("name")
			Expect(ok).To(BeTrue())
			Expect(name.Type).To(Equal(d.ColumnSQL(storage.Varchar(255))))
		})

		It("should report a manual primary key as not auto-incrementing", func() {
			_, err := store.Exec(ctx, "CREATE TABLE tag (id "+d.PrimaryKeySQL(false)+")")
			Expect(err).NotTo(HaveOccurred())

			desc, err := d.Describe(ctx, store, "tag")
			Expect(err).NotTo(HaveOccurred())

			pk, ok := desc.PrimaryKey()
			Expect(ok).To(BeTrue())
			Expect(pk.AutoIncrement).To(BeFalse())
		})

		It("should list created indexes with ordered columns", func() {
			_, err := store.Exec(ctx, "CREATE TABLE contact (id INTEGER PRIMARY KEY, a TEXT UNIQUE, b TEXT, c TEXT)")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Exec(ctx, "CREATE INDEX "+d.IndexName("contact", "bc")+" ON contact (c, b)")
			Expect(err).NotTo(HaveOccurred())

			desc, err := d.Describe(ctx, store, "contact")
			Expect(err).NotTo(HaveOccurred())
			Expect(desc.Indexes).To(HaveLen(1))
			Expect(desc.Indexes[0].Name).To(Equal("contact_bc"))
			Expect(desc.Indexes[0].Columns).To(Equal([]string{"c", "b"}))
		})
	})

	It("should refuse work after Close", func() {
		Expect(store.Close()).To(Succeed())

		_, err := store.Query(ctx, "SELECT 1")
		Expect(err).To(MatchError(storage.ErrClosed))
	})
})
