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

package filter_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/filter"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage/sqlite"
)

var _ = Describe("Condition", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture(contacts(), []map[string]any{
			{"name": "Anna", "age": int64(31), "company": int64(1), "tags": []int64{3, 7},
				"address": field.AddressValue{City: "Cologne", Zip: "50667"}},
			{"name": "Bert", "age": int64(17), "company": int64(2), "tags": []int64{9}},
			{"name": "Carla", "company": int64(2), "address": field.AddressValue{City: "Bonn"}},
			{"name": "dieter", "age": int64(45)},
		})
	})

	DescribeTable("evaluates identically in SQL and in memory",
		func(c filter.Condition, expected []int64) {
			Expect(f.inSQL(c)).To(Equal(expected))
			Expect(f.inMemory(c)).To(Equal(expected))
		},
		Entry("all", filter.All(), []int64{1, 2, 3, 4}),
		Entry("empty or", filter.Or(), []int64{}),
		Entry("empty and", filter.And(), []int64{1, 2, 3, 4}),
		Entry("single predicate", filter.Match("name", "Bert"), []int64{2}),
		Entry("and", filter.And(filter.Greater("age", 18), filter.Match("company", 1)), []int64{1}),
		Entry("or", filter.Or(filter.Lesser("age", 18), filter.Match("name", "dieter")), []int64{2, 4}),
		Entry("not over null", filter.Not(filter.Greater("age", 18)), []int64{2, 3}),
		Entry("not not", filter.Not(filter.Not(filter.LesserEqual("age", 31))), []int64{1, 2}),
		Entry("nested", filter.And(
			filter.Or(filter.Like("name", "R"), filter.Like("name", "ie")),
			filter.Not(filter.IsSet("company")),
		), []int64{4}),
		Entry("multi reference one of", filter.OneOf("tags", []int64{7, 9}), []int64{1, 2}),
		Entry("composite like", filter.Like("address", "bon"), []int64{3}),
		Entry("composite set", filter.IsSet("address"), []int64{1, 3}),
		Entry("unexpanded reference like", filter.Like("company", "acme"), []int64{}),
		Entry("greater equal", filter.GreaterEqual("age", 31), []int64{1, 4}),
	)

	It("rejects undeclared fields", func() {
		c := filter.And(filter.Match("name", "x"), filter.Match("nope", 1))

		_, err := c.SQL(f.s, f.exec.Dialect())
		Expect(err).To(MatchError(filter.ErrUnknownField))

		_, err = c.Match(f.s, func(string) any { return nil })
		Expect(err).To(MatchError(filter.ErrUnknownField))
	})

	It("evaluates metadata fields in memory only", func() {
		c := filter.Like("note", "vip")

		_, err := c.SQL(f.s, f.exec.Dialect())
		Expect(err).To(MatchError(filter.ErrNotQueryable))

		ok, err := c.Match(f.s, func(string) any { return "VIP customer" })
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	Describe("Expand", func() {
		It("turns a reference keyword into an id set", func() {
			var asked []string

			expanded, err := filter.Expand(context.Background(), f.s,
				filter.Or(filter.Like("company", "acme"), filter.Like("name", "carla")),
				func(_ context.Context, class, keyword string) ([]int64, error) {
					asked = append(asked, class+":"+keyword)

					return []int64{1}, nil
				})
			Expect(err).NotTo(HaveOccurred())
			Expect(asked).To(Equal([]string{"company:acme"}))

			Expect(f.inSQL(expanded)).To(Equal([]int64{1, 3}))
			Expect(f.inMemory(expanded)).To(Equal([]int64{1, 3}))
		})

		It("expands inside negations", func() {
			expanded, err := filter.Expand(context.Background(), f.s,
				filter.Not(filter.Like("company", "acme")),
				func(context.Context, string, string) ([]int64, error) { return nil, nil })
			Expect(err).NotTo(HaveOccurred())

			Expect(f.inSQL(expanded)).To(Equal([]int64{1, 2, 3, 4}))
			Expect(f.inMemory(expanded)).To(Equal([]int64{1, 2, 3, 4}))
		})

		It("propagates expander failures", func() {
			boom := errors.New("boom")

			_, err := filter.Expand(context.Background(), f.s, filter.Like("company", "acme"),
				func(context.Context, string, string) ([]int64, error) { return nil, boom })
			Expect(err).To(MatchError(boom))
		})

		It("treats a nil condition as all", func() {
			c, err := filter.Expand(context.Background(), f.s, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.inSQL(c)).To(HaveLen(4))
		})
	})

	Describe("Keyword", func() {
		It("searches every searchable column", func() {
			c := filter.Keyword(f.s, "cologne")

			Expect(f.inSQL(c)).To(Equal([]int64{1}))
			Expect(f.inMemory(c)).To(Equal([]int64{1}))
		})

		It("matches nothing without searchable fields", func() {
			s := field.NewStructure(field.NewKey("id"), field.NewText("name"))

			sql, err := filter.Keyword(s, "x").SQL(s, sqlite.Dialect{})
			Expect(err).NotTo(HaveOccurred())
			Expect(sql).To(Equal("1=0"))
		})
	})
})
