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

package field

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"golang.org/x/text/number"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// AddressValue is a postal address.
type AddressValue struct {
	Address     string `json:"address,omitempty"`
	Address2    string `json:"address2,omitempty"`
	Zip         string `json:"zip,omitempty"`
	City        string `json:"city,omitempty"`
	CountryCode string `json:"countrycode,omitempty"`
}

func (a AddressValue) parts() map[string]string {
	return map[string]string{
		"address":     a.Address,
		"address2":    a.Address2,
		"zip":         a.Zip,
		"city":        a.City,
		"countrycode": a.CountryCode,
	}
}

var addressParts = []string{"address", "address2", "zip", "city", "countrycode"}

// Address is a composite of five text children.
type Address struct {
	base
}

func NewAddress(name string, opts ...Option) *Address {
	return &Address{base: newBase(name, KindAddress, opts)}
}

func (a *Address) with(fn func(*Attributes)) Type {
	c := *a
	fn(&c.a)

	return &c
}

func (a *Address) AdditionalStructure() []Type {
	return []Type{
		NewText("address"),
		NewText("address2"),
		NewText("zip").WithSize(16),
		NewText("city"),
		NewText("countrycode").WithSize(2),
	}
}

func (a *Address) Compose(parts map[string]any) any {
	v := AddressValue{
		Address:     cast.ToString(parts["address"]),
		Address2:    cast.ToString(parts["address2"]),
		Zip:         cast.ToString(parts["zip"]),
		City:        cast.ToString(parts["city"]),
		CountryCode: cast.ToString(parts["countrycode"]),
	}

	if v == (AddressValue{}) {
		return nil
	}

	return v
}

func (a *Address) Decompose(v any) map[string]any {
	out := make(map[string]any, len(addressParts))

	av, ok := v.(AddressValue)
	for _, p := range addressParts {
		out[p] = nil

		if ok && av.parts()[p] != "" {
			out[p] = av.parts()[p]
		}
	}

	return out
}

func (a *Address) ParseValue(input any, _ any) (any, error) {
	switch t := input.(type) {
	case nil:
		return nil, nil
	case AddressValue:
		t.CountryCode = strings.ToUpper(strings.TrimSpace(t.CountryCode))
		if t == (AddressValue{}) {
			return nil, nil
		}

		return t, nil
	case *AddressValue:
		if t == nil {
			return nil, nil
		}

		return a.ParseValue(*t, nil)
	case map[string]any:
		return a.ParseValue(a.Compose(t), nil)
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}

		var v AddressValue
		if err := json.Unmarshal([]byte(t), &v); err != nil {
			return nil, a.problem("is not an address")
		}

		return a.ParseValue(v, nil)
	}

	return nil, a.problem("is not an address")
}

func (a *Address) ValidateValue(v any) error {
	if v == nil {
		return a.requiredProblem()
	}

	av, ok := v.(AddressValue)
	if !ok {
		return a.problem("is not an address")
	}

	if av.CountryCode != "" && len(av.CountryCode) != 2 {
		return a.problem("country code must have two letters")
	}

	return nil
}

func (a *Address) TextValue(v any) string {
	av, ok := v.(AddressValue)
	if !ok {
		return ""
	}

	var lines []string

	for _, l := range []string{av.Address, av.Address2, strings.TrimSpace(av.Zip + " " + av.City), av.CountryCode} {
		if l != "" {
			lines = append(lines, l)
		}
	}

	return strings.Join(lines, ", ")
}

func (a *Address) FullValue(_ context.Context, v any, _ Labeler) string { return a.TextValue(v) }

func (a *Address) ColumnType() storage.ColumnType { return storage.Text() }

func (a *Address) StorageValue(v any) any {
	av, ok := v.(AddressValue)
	if !ok {
		return nil
	}

	data, err := json.Marshal(av)
	if err != nil {
		return nil
	}

	return string(data)
}

func (a *Address) ParseStorageValue(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	v, err := a.ParseValue(cast.ToString(raw), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.a.Name, err)
	}

	return v, nil
}

func (a *Address) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(a.StorageValue(v)) }

// Filter searches every part for Like and compares all parts for Match.
func (a *Address) Filter(op Op, v, against any) bool {
	av, set := v.(AddressValue)

	switch op {
	case OpIsSet:
		return set
	case OpLike:
		for _, p := range addressParts {
			if textOps.filter(OpLike, av.parts()[p], against) {
				return true
			}
		}
	case OpMatch:
		want, err := a.ParseValue(against, nil)
		if err != nil {
			return false
		}

		return v == want
	case OpOneOf:
		for _, e := range toList(against) {
			if e != nil && a.Filter(OpMatch, v, e) {
				return true
			}
		}
	}

	return false
}

func (a *Address) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	switch op {
	case OpIsSet:
		parts := make([]string, len(addressParts))
		for i, p := range addressParts {
			parts[i] = textOps.filterSQL(OpIsSet, column+"_"+p, nil, q)
		}

		return sqlOr(parts)
	case OpLike:
		parts := make([]string, len(addressParts))
		for i, p := range addressParts {
			parts[i] = textOps.filterSQL(OpLike, column+"_"+p, against, q)
		}

		return sqlOr(parts)
	case OpMatch:
		want, err := a.ParseValue(against, nil)
		if err != nil {
			return falseSQL
		}

		wv, _ := want.(AddressValue)
		parts := make([]string, len(addressParts))

		for i, p := range addressParts {
			var part any
			if s := wv.parts()[p]; s != "" {
				part = s
			}

			parts[i] = textOps.filterSQL(OpMatch, column+"_"+p, part, q)
		}

		return sqlAnd(parts)
	case OpOneOf:
		var parts []string

		for _, e := range toList(against) {
			if e != nil {
				parts = append(parts, a.FilterSQL(OpMatch, column, e, q))
			}
		}

		return sqlOr(parts)
	}

	return falseSQL
}

func (a *Address) FormField() FormField { return a.formField() }

// CurrencyValue is an amount in a foreign currency together with its value
// in the local currency.
type CurrencyValue struct {
	Local    float64 `json:"localvalue"`
	Currency string  `json:"currency,omitempty"`
	Foreign  float64 `json:"foreignvalue"`
}

const (
	currencyLocalPart   = "localvalue"
	currencyCodePart    = "currency"
	currencyForeignPart = "foreignvalue"
)

// Currency is a composite of local value, currency code and foreign value.
// Ordering filters compare the local value; Like searches the currency code.
type Currency struct {
	base
}

func NewCurrency(name string, opts ...Option) *Currency {
	return &Currency{base: newBase(name, KindCurrency, opts)}
}

func (c *Currency) with(fn func(*Attributes)) Type {
	cl := *c
	fn(&cl.a)

	return &cl
}

func (c *Currency) AdditionalStructure() []Type {
	return []Type{
		NewFloat(currencyLocalPart),
		NewText(currencyCodePart).WithSize(3),
		NewFloat(currencyForeignPart),
	}
}

func (c *Currency) Compose(parts map[string]any) any {
	local, hasLocal := parts[currencyLocalPart].(float64)
	code, _ := parts[currencyCodePart].(string)
	foreign, hasForeign := parts[currencyForeignPart].(float64)

	if !hasLocal && !hasForeign && code == "" {
		return nil
	}

	return CurrencyValue{Local: local, Currency: code, Foreign: foreign}
}

func (c *Currency) Decompose(v any) map[string]any {
	cv, ok := v.(CurrencyValue)
	if !ok {
		return map[string]any{currencyLocalPart: nil, currencyCodePart: nil, currencyForeignPart: nil}
	}

	var code any
	if cv.Currency != "" {
		code = cv.Currency
	}

	return map[string]any{currencyLocalPart: cv.Local, currencyCodePart: code, currencyForeignPart: cv.Foreign}
}

// ParseValue accepts a CurrencyValue, a part map, JSON, or a bare number
// meaning a local amount.
func (c *Currency) ParseValue(input any, _ any) (any, error) {
	switch t := input.(type) {
	case nil:
		return nil, nil
	case CurrencyValue:
		t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))

		return t, nil
	case *CurrencyValue:
		if t == nil {
			return nil, nil
		}

		return c.ParseValue(*t, nil)
	case map[string]any:
		parts := make(map[string]any, len(t))
		for k, raw := range t {
			if k == currencyCodePart {
				parts[k] = cast.ToString(raw)

				continue
			}

			f, err := parseFloat64(raw)
			if err != nil {
				return nil, c.problem("is not an amount")
			}

			parts[k] = f
		}

		return c.ParseValue(c.Compose(parts), nil)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}

		if strings.HasPrefix(s, "{") {
			var v CurrencyValue
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, c.problem("is not an amount")
			}

			return c.ParseValue(v, nil)
		}
	}

	f, err := parseFloat64(input)
	if err != nil || f == nil {
		return nil, c.problem("is not an amount")
	}

	return CurrencyValue{Local: f.(float64)}, nil
}

func (c *Currency) ValidateValue(v any) error {
	if v == nil {
		return c.requiredProblem()
	}

	cv, ok := v.(CurrencyValue)
	if !ok {
		return c.problem("is not an amount")
	}

	if cv.Currency != "" && len(cv.Currency) != 3 {
		return c.problem("currency must be a three letter code")
	}

	return nil
}

func (c *Currency) TextValue(v any) string {
	cv, ok := v.(CurrencyValue)
	if !ok {
		return ""
	}

	local := printer.Sprint(number.Decimal(cv.Local, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	if cv.Currency == "" {
		return local
	}

	foreign := printer.Sprint(number.Decimal(cv.Foreign, number.MinFractionDigits(2), number.MaxFractionDigits(2)))

	return fmt.Sprintf("%s %s (%s)", cv.Currency, foreign, local)
}

func (c *Currency) FullValue(_ context.Context, v any, _ Labeler) string { return c.TextValue(v) }

func (c *Currency) ColumnType() storage.ColumnType { return storage.Text() }

func (c *Currency) StorageValue(v any) any {
	cv, ok := v.(CurrencyValue)
	if !ok {
		return nil
	}

	data, err := json.Marshal(cv)
	if err != nil {
		return nil
	}

	return string(data)
}

func (c *Currency) ParseStorageValue(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	v, err := c.ParseValue(cast.ToString(raw), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.a.Name, err)
	}

	return v, nil
}

func (c *Currency) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(c.StorageValue(v)) }

// localAgainst reduces a filter argument to a local amount.
func (c *Currency) localAgainst(against any) any {
	if cv, ok := against.(CurrencyValue); ok {
		return cv.Local
	}

	return against
}

func (c *Currency) Filter(op Op, v, against any) bool {
	cv, set := v.(CurrencyValue)

	var local, code any
	if set {
		local = cv.Local
		if cv.Currency != "" {
			code = cv.Currency
		}
	}

	switch op {
	case OpIsSet:
		return set
	case OpLike:
		return textOps.filter(OpLike, code, against)
	case OpOneOf:
		list := toList(against)
		mapped := make([]any, 0, len(list))

		for _, e := range list {
			mapped = append(mapped, c.localAgainst(e))
		}

		return floatOps.filter(OpOneOf, local, mapped)
	}

	return floatOps.filter(op, local, c.localAgainst(against))
}

func (c *Currency) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	localColumn := column + "_" + currencyLocalPart

	switch op {
	case OpIsSet:
		return q.QuoteIdent(localColumn) + " IS NOT NULL"
	case OpLike:
		return textOps.filterSQL(OpLike, column+"_"+currencyCodePart, against, q)
	case OpOneOf:
		list := toList(against)
		mapped := make([]any, 0, len(list))

		for _, e := range list {
			mapped = append(mapped, c.localAgainst(e))
		}

		return floatOps.filterSQL(OpOneOf, localColumn, mapped, q)
	}

	return floatOps.filterSQL(op, localColumn, c.localAgainst(against), q)
}

// CurrencyCodes are offered by the currency form control.
var CurrencyCodes = []string{"EUR", "USD", "GBP", "DKK", "SEK", "NOK", "CHF"}

func (c *Currency) FormField() FormField {
	options := make([]FormOption, len(CurrencyCodes))
	for i, code := range CurrencyCodes {
		options[i] = FormOption{Value: code, Label: code}
	}

	return c.formField(options...)
}
