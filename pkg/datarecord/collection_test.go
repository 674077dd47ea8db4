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

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/filter"
)

var _ = Describe("Collection", func() {
	var (
		ctx  context.Context
		e    *datarecord.Engine
		exec *countingExec
	)

	BeforeEach(func() {
		ctx = context.Background()
		e, exec = newEngine(50 * time.Millisecond)
	})

	names := func(c *datarecord.Collection) []any {
		var out []any
		for _, r := range c.Records() {
			v, err := r.Get("name")
			Expect(err).NotTo(HaveOccurred())
			out = append(out, v)
		}

		return out
	}

	It("takes the class of its first record and refuses others", func() {
		c, err := datarecord.NewCollection()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Class()).To(BeEmpty())

		Expect(c.Add(create(e, "person", map[string]any{"name": "Ada"}))).To(Succeed())
		Expect(c.Class()).To(Equal("person"))

		err = c.Add(create(e, "company", map[string]any{"name": "UMH"}))
		Expect(err).To(MatchError(datarecord.ErrClassMismatch))
		Expect(err).To(MatchError(datarecord.ErrFatal))
		Expect(c.Len()).To(Equal(1))
	})

	It("sorts text naturally", func() {
		create(e, "company", map[string]any{"name": "item 10", "employees": 5})
		create(e, "company", map[string]any{"name": "item 9", "employees": 5})
		create(e, "company", map[string]any{"name": "Item 2"})

		all, err := e.FindAll(ctx, "company")
		Expect(err).NotTo(HaveOccurred())

		Expect(all.Sort(datarecord.SortKey{Field: "name"})).To(Succeed())
		Expect(names(all)).To(Equal([]any{"Item 2", "item 9", "item 10"}))

		Expect(all.Sort(datarecord.SortKey{Field: "name", Desc: true})).To(Succeed())
		Expect(names(all)).To(Equal([]any{"item 10", "item 9", "Item 2"}))

		Expect(all.Sort(datarecord.SortKey{Field: "employees", Desc: true}, datarecord.SortKey{Field: "name"})).To(Succeed())
		Expect(names(all)).To(Equal([]any{"item 9", "item 10", "Item 2"}))

		Expect(all.Sort(datarecord.SortKey{Field: "revenue"})).To(MatchError(datarecord.ErrUnknownField))
	})

	It("combines collections by key", func() {
		a := create(e, "person", map[string]any{"name": "Ada"})
		b := create(e, "person", map[string]any{"name": "Bob"})
		c := create(e, "person", map[string]any{"name": "Cy"})

		left, err := datarecord.NewCollection(a, b)
		Expect(err).NotTo(HaveOccurred())

		reloaded, err := e.LoadForRead(ctx, "person", b.ID())
		Expect(err).NotTo(HaveOccurred())

		right, err := datarecord.NewCollection(reloaded, c)
		Expect(err).NotTo(HaveOccurred())

		union, err := left.Union(right)
		Expect(err).NotTo(HaveOccurred())
		Expect(union.IDs()).To(Equal([]int64{a.ID(), b.ID(), c.ID()}))

		rest, err := union.Subtract(left)
		Expect(err).NotTo(HaveOccurred())
		Expect(rest.IDs()).To(Equal([]int64{c.ID()}))

		companies, err := datarecord.NewCollection(create(e, "company", map[string]any{"name": "UMH"}))
		Expect(err).NotTo(HaveOccurred())

		_, err = left.Union(companies)
		Expect(err).To(MatchError(datarecord.ErrClassMismatch))
	})

	It("narrows by predicate and by condition", func() {
		create(e, "company", map[string]any{"name": "small", "employees": 3})
		create(e, "company", map[string]any{"name": "large", "employees": 300})

		all, err := e.FindAll(ctx, "company")
		Expect(err).NotTo(HaveOccurred())

		large, err := all.Where(filter.Greater("employees", 10))
		Expect(err).NotTo(HaveOccurred())
		Expect(names(large)).To(Equal([]any{"large"}))

		small := all.Filter(func(r *datarecord.Record) bool {
			v, _ := r.Get("employees")

			return v == int64(3)
		})
		Expect(names(small)).To(Equal([]any{"small"}))
	})

	It("reads one field of every record", func() {
		a := create(e, "company", map[string]any{"name": "UMH", "employees": 40})
		b := create(e, "company", map[string]any{"name": "Acme"})

		all, err := e.FindAll(ctx, "company")
		Expect(err).NotTo(HaveOccurred())

		raw, err := all.RawValues("employees")
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(Equal(map[int64]any{a.ID(): int64(40), b.ID(): nil}))

		text, err := all.TextValues("name")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(map[int64]string{a.ID(): "UMH", b.ID(): "Acme"}))

		_, err = all.TextValues("revenue")
		Expect(err).To(MatchError(datarecord.ErrUnknownField))
	})

	It("resolves reference labels in one batch", func() {
		umh := create(e, "company", map[string]any{"name": "UMH"})
		acme := create(e, "company", map[string]any{"name": "Acme"})
		bob := create(e, "contact", map[string]any{"name": "Bob", "company": umh.ID()})
		eve := create(e, "contact", map[string]any{"name": "Eve", "company": umh.ID()})
		carl := create(e, "contact", map[string]any{"name": "Carl", "company": acme.ID()})
		nobody := create(e, "contact", map[string]any{"name": "Nobody"})

		all, err := e.FindAll(ctx, "contact")
		Expect(err).NotTo(HaveOccurred())

		before := exec.queries.Load()

		labels, err := all.FullValues(ctx, "company")
		Expect(err).NotTo(HaveOccurred())
		Expect(labels).To(Equal(map[int64]string{
			bob.ID():    "UMH",
			eve.ID():    "UMH",
			carl.ID():   "Acme",
			nobody.ID(): "",
		}))
		Expect(exec.queries.Load()).To(Equal(before + 1))
		Expect(e.XRef().Len()).To(Equal(2))

		_, err = all.FullValues(ctx, "company")
		Expect(err).NotTo(HaveOccurred())
		Expect(exec.queries.Load()).To(Equal(before + 1))
	})

	It("deletes every record", func() {
		first := create(e, "memo", map[string]any{"body": "one"})
		second := create(e, "memo", map[string]any{"body": "two"})

		var open []*datarecord.Record
		for _, r := range []*datarecord.Record{first, second} {
			w, err := e.LoadForWrite(ctx, "memo", r.ID())
			Expect(err).NotTo(HaveOccurred())
			open = append(open, w)
		}

		c, err := datarecord.NewCollection(open...)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.DeleteAll(ctx)).To(Equal(2))

		for _, r := range c.Records() {
			Expect(r.IsInDatabase()).To(BeFalse())
		}
	})
})
