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

package field_test

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

type staticLabels map[field.Ref]string

func (s staticLabels) Label(_ context.Context, class string, id int64) (string, error) {
	if l, ok := s[field.Ref{Class: class, ID: id}]; ok {
		return l, nil
	}

	return "", errors.New("unknown")
}

var _ = Describe("storage round trip", func() {
	var exec storage.Executor

	BeforeEach(func() {
		exec = openSQLite()
	})

	DescribeTable("parses back what it stored",
		func(t field.Type, v any) {
			ctx := context.Background()
			d := exec.Dialect()

			Expect(t.ValidateValue(v)).To(Succeed())

			_, err := exec.Exec(ctx, "CREATE TABLE rt (v "+d.ColumnSQL(t.ColumnType())+")")
			Expect(err).NotTo(HaveOccurred())
			_, err = exec.Exec(ctx, "INSERT INTO rt (v) VALUES ("+t.FieldForStorage(v, d)+")")
			Expect(err).NotTo(HaveOccurred())

			rows, err := exec.Query(ctx, "SELECT v FROM rt")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))

			parsed, err := t.ParseStorageValue(rows[0]["v"])
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(v))

			direct, err := t.ParseStorageValue(t.StorageValue(v))
			Expect(err).NotTo(HaveOccurred())
			Expect(direct).To(Equal(v))
		},
		Entry("key", field.NewKey("id"), int64(42)),
		Entry("text", field.NewText("name"), "Zoë O'Hara"),
		Entry("empty text", field.NewText("name"), ""),
		Entry("big text", field.NewBigText("notes"), "line one\nline two"),
		Entry("integer", field.NewInteger("age"), int64(-7)),
		Entry("wide integer", field.NewInteger("big").Wide(), int64(1)<<40),
		Entry("float", field.NewFloat("score"), 2.5),
		Entry("bool true", field.NewBool("active"), true),
		Entry("bool false", field.NewBool("active"), false),
		Entry("datetime", field.NewDateTime("seen"), time.Date(2024, 2, 29, 23, 59, 58, 0, time.UTC)),
		Entry("date", field.NewDate("born"), day(1999, 12, 31)),
		Entry("email", field.NewEmail("email"), "a@b.com"),
		Entry("password hash", field.NewPassword("password"), "$2a$10$abcdefghijklmnopqrstuuJ9X3v1pZ0S0Hc2j5b4Vg4dC3YwA9y6e"),
		Entry("array", field.NewArray("data"), []any{"a", float64(2), true}),
		Entry("object", field.NewObject("meta"), map[string]any{"k": "v", "n": float64(1)}),
		Entry("enumeration", field.NewEnumeration("color", colors), int64(2)),
		Entry("multi enumeration", field.NewMultiEnumeration("palette", colors), []int64{1, 3}),
		Entry("reference", field.NewReference("owner", "contact"), int64(9)),
		Entry("file", field.NewFile("attachment"), int64(3)),
		Entry("image", field.NewImage("logo"), int64(4)),
		Entry("multi reference", field.NewMultiReference("tags", "tag"), []int64{3, 7}),
		Entry("hyper reference", field.NewHyperReference("target"), field.HyperValue{Class: "contact", ID: 5}),
		Entry("address", field.NewAddress("address"), field.AddressValue{Address: "Main St 1", Zip: "8000", City: "Aarhus", CountryCode: "DK"}),
		Entry("currency", field.NewCurrency("price"), field.CurrencyValue{Local: 100, Currency: "EUR", Foreign: 13.25}),
	)

	It("stores unset values as NULL", func() {
		d := exec.Dialect()

		for _, t := range []field.Type{field.NewText("a"), field.NewInteger("b"), field.NewMultiReference("c", "tag"), field.NewAddress("d")} {
			Expect(t.FieldForStorage(nil, d)).To(Equal("NULL"))

			parsed, err := t.ParseStorageValue(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(BeNil())
		}
	})
})

var _ = Describe("Structure", func() {
	It("flattens composites into prefixed children", func() {
		s := field.NewStructure(
			field.NewKey("id"),
			field.NewAddress("address", field.Searchable()),
			field.NewCurrency("price", field.InMetadata()),
		)

		Expect(s.Names()).To(Equal([]string{
			"id",
			"address", "address_address", "address_address2", "address_zip", "address_city", "address_countrycode",
			"price", "price_localvalue", "price_currency", "price_foreignvalue",
		}))

		parent, _ := s.Field("address")
		Expect(parent.StoreLocation()).To(Equal(field.StoreNowhere))

		city, _ := s.Field("address_city")
		Expect(city.StoreLocation()).To(Equal(field.StoreDatabase))
		Expect(city.IsSearchable()).To(BeTrue())

		local, _ := s.Field("price_localvalue")
		Expect(local.StoreLocation()).To(Equal(field.StoreMetadata))

		p, suffix, ok := s.Parent("price_currency")
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal("price"))
		Expect(suffix).To(Equal("currency"))

		Expect(s.Searchable()).To(HaveLen(1))
		Expect(s.Searchable()[0].Name()).To(Equal("address"))
	})

	It("panics on a second primary key", func() {
		Expect(func() {
			field.NewStructure(field.NewKey("id"), field.NewKey("other_id"))
		}).To(PanicWith(ContainSubstring("second primary key")))
	})

	It("panics on duplicate and empty names", func() {
		Expect(func() {
			field.NewStructure(field.NewText("a"), field.NewInteger("a"))
		}).To(Panic())
		Expect(func() {
			field.NewStructure(field.NewText(""))
		}).To(Panic())
	})

	It("collects single and multi-column indexes", func() {
		s := field.NewStructure(
			field.NewKey("id"),
			field.NewText("last", field.IndexedWith("fullname")),
			field.NewText("email", field.Indexed()),
			field.NewText("first", field.IndexedWith("fullname")),
			field.NewText("notes", field.Indexed(), field.InMetadata()),
		)

		Expect(s.Indexes()).To(Equal([]field.IndexDef{
			{Logical: "fullname_key", Columns: []string{"last", "first"}},
			{Logical: "email_key", Columns: []string{"email"}},
		}))
	})

	It("reports the primary key", func() {
		s := field.NewStructure(field.NewText("a"))
		_, ok := s.PrimaryKey()
		Expect(ok).To(BeFalse())

		s = field.NewStructure(field.NewText("a"), field.NewKey("id"))
		pk, ok := s.PrimaryKey()
		Expect(ok).To(BeTrue())
		Expect(pk.Name()).To(Equal("id"))
	})
})

var _ = Describe("validation", func() {
	It("reports required fields", func() {
		name := field.NewText("name", field.Required())

		err := name.ValidateValue("")
		Expect(err).To(MatchError(field.ErrInvalid))

		var problem *field.ValidationError
		Expect(errors.As(err, &problem)).To(BeTrue())
		Expect(problem.Field).To(Equal("name"))
	})

	It("bounds text length in characters", func() {
		code := field.NewText("code").WithSize(3)

		Expect(code.ValidateValue("äöü")).To(Succeed())
		Expect(code.ValidateValue("abcd")).To(MatchError(field.ErrInvalid))
	})

	It("accepts only bare email addresses", func() {
		email := field.NewEmail("email")

		Expect(email.ValidateValue("a@b.com")).To(Succeed())
		Expect(email.ValidateValue("A <a@b.com>")).To(MatchError(field.ErrInvalid))
		Expect(email.ValidateValue("not-an-address")).To(MatchError(field.ErrInvalid))

		v, err := email.ParseValue("  a@b.com ", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("a@b.com"))
	})

	It("rejects unknown enumeration keys and accepts labels", func() {
		color := field.NewEnumeration("color", colors)

		Expect(color.ValidateValue(int64(4))).To(MatchError(field.ErrInvalid))

		v, err := color.ParseValue("green", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(2)))

		o, ok := color.Option(v)
		Expect(ok).To(BeTrue())
		Expect(o.Color).To(Equal("#00ff00"))
	})

	It("returns a validation error for unparseable input", func() {
		_, err := field.NewInteger("age").ParseValue("twelve", nil)
		Expect(err).To(MatchError(field.ErrInvalid))

		_, err = field.NewDate("born").ParseValue("yesterday", nil)
		Expect(err).To(MatchError(field.ErrInvalid))
	})

	It("refuses floats no column can hold", func() {
		score := field.NewFloat("score")

		for _, input := range []any{"NaN", "Inf", "-inf", math.NaN(), math.Inf(1)} {
			_, err := score.ParseValue(input, nil)
			Expect(err).To(MatchError(field.ErrInvalid), "%v", input)
		}

		Expect(score.ValidateValue(math.NaN())).To(MatchError(field.ErrInvalid))
		Expect(score.ValidateValue(math.Inf(-1))).To(MatchError(field.ErrInvalid))
		Expect(score.ValidateValue(1.5)).To(Succeed())
	})

	It("bounds integers to their column", func() {
		age := field.NewInteger("age")

		Expect(age.ValidateValue(int64(math.MaxInt32))).To(Succeed())
		Expect(age.ValidateValue(int64(math.MinInt32))).To(Succeed())
		Expect(age.ValidateValue(int64(math.MaxInt32) + 1)).To(MatchError(field.ErrInvalid))
		Expect(age.ValidateValue(int64(math.MinInt32) - 1)).To(MatchError(field.ErrInvalid))

		Expect(field.NewInteger("big").Wide().ValidateValue(int64(1) << 40)).To(Succeed())
	})
})

var _ = Describe("Password", func() {
	It("keeps the existing hash on empty input", func() {
		p := field.NewPassword("password")

		hash, err := p.ParseValue("secret", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).NotTo(Equal("secret"))
		Expect(p.Verify(hash, "secret")).To(BeTrue())
		Expect(p.Verify(hash, "wrong")).To(BeFalse())

		kept, err := p.ParseValue("", hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(kept).To(Equal(hash))
		Expect(p.TextValue(hash)).To(Equal("********"))
	})
})

var _ = Describe("display", func() {
	It("formats numbers when asked", func() {
		Expect(field.NewInteger("n").Formatted().TextValue(int64(1234567))).To(Equal("1,234,567"))
		Expect(field.NewInteger("n").TextValue(int64(1234567))).To(Equal("1234567"))
		Expect(field.NewFloat("f").Formatted(2, 2).TextValue(1234.5)).To(Equal("1,234.50"))
		Expect(field.NewFloat("f").Formatted(0, 1).TextValue(2.26)).To(Equal("2.3"))
		Expect(field.NewFloat("f").TextValue(2.25)).To(Equal("2.25"))
	})

	It("resolves reference labels through the labeler", func() {
		labels := staticLabels{{Class: "contact", ID: 4}: "Ada", {Class: "tag", ID: 7}: "urgent"}
		ctx := context.Background()

		Expect(field.NewReference("owner", "contact").FullValue(ctx, int64(4), labels)).To(Equal("Ada"))
		Expect(field.NewReference("owner", "contact").FullValue(ctx, int64(5), labels)).To(Equal("#5"))
		Expect(field.NewMultiReference("tags", "tag").FullValue(ctx, []int64{3, 7}, labels)).To(Equal("#3, urgent"))
		Expect(field.NewHyperReference("target").FullValue(ctx, field.HyperValue{Class: "contact", ID: 4}, labels)).To(Equal("Ada"))
	})

	It("renders composites", func() {
		addr := field.AddressValue{Address: "Main St 1", Zip: "8000", City: "Aarhus", CountryCode: "DK"}
		Expect(field.NewAddress("a").TextValue(addr)).To(Equal("Main St 1, 8000 Aarhus, DK"))
		Expect(field.NewCurrency("c").TextValue(field.CurrencyValue{Local: 1000, Currency: "EUR", Foreign: 134.5})).
			To(Equal("EUR 134.50 (1,000.00)"))
	})
})

var _ = Describe("references", func() {
	It("removes a target from a multi reference", func() {
		tags := field.NewMultiReference("tags", "tag")

		Expect(tags.Without([]int64{3, 7}, field.Ref{Class: "tag", ID: 3})).To(Equal([]int64{7}))
		Expect(tags.Without([]int64{3}, field.Ref{Class: "tag", ID: 3})).To(BeNil())
		Expect(tags.Without([]int64{3}, field.Ref{Class: "contact", ID: 3})).To(Equal([]int64{3}))
	})

	It("only renders reference SQL for the referenced class", func() {
		d := openSQLite().Dialect()
		owner := field.NewReference("owner", "contact")

		Expect(owner.ReferenceSQL("owner", field.Ref{Class: "company", ID: 1}, d)).To(BeEmpty())
		Expect(owner.ReferenceSQL("owner", field.Ref{Class: "contact", ID: 1}, d)).To(Equal(`"owner" = 1`))
	})
})
