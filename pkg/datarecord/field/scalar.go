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
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

const defaultTextSize = 255

var printer = message.NewPrinter(language.English)

func identity(v any) any { return v }

func parseInt64(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, nil
		}

		return strconv.ParseInt(t, 10, 64)
	default:
		return cast.ToInt64E(v)
	}
}

func parseFloat64(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, nil
		}

		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, err
		}

		return finite(f)
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}

		return finite(f)
	}
}

// finite refuses NaN and the infinities, which no SQL literal can carry.
func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", f)
	}

	return f, nil
}

func parseString(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	return cast.ToStringE(v)
}

func parseBool(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "off", "no", "false", "f":
			return false, nil
		case "1", "on", "yes", "true", "t":
			return true, nil
		}

		return nil, fmt.Errorf("%q is not a boolean", t)
	default:
		return cast.ToBoolE(v)
	}
}

// storageParser adapts a parse function to ParseStorageValue, where nil
// always stays nil.
func storageParser(parse func(any) (any, error)) func(any) (any, error) {
	return func(raw any) (any, error) {
		if raw == nil {
			return nil, nil
		}

		return parse(raw)
	}
}

// Key is the auto-generated or manually assigned primary key.
type Key struct {
	base
}

var integerOps = scalar{normalize: parseInt64, store: identity}

// NewKey declares the primary key of a structure.
func NewKey(name string, opts ...Option) *Key {
	k := &Key{base: newBase(name, KindKey, opts)}
	k.a.PrimaryKey = true
	k.a.Store = StoreDatabase

	return k
}

func (k *Key) with(fn func(*Attributes)) Type { c := *k; fn(&c.a); return &c }

func (k *Key) ParseValue(input any, _ any) (any, error) {
	v, err := parseInt64(input)
	if err != nil {
		return nil, k.problem("must be an integer")
	}

	return v, nil
}

func (k *Key) ValidateValue(v any) error {
	if v == nil {
		return nil
	}

	if id, ok := v.(int64); !ok || id <= 0 {
		return k.problem("must be a positive integer")
	}

	return nil
}

func (k *Key) TextValue(v any) string {
	if v == nil {
		return ""
	}

	return strconv.FormatInt(cast.ToInt64(v), 10)
}

func (k *Key) FullValue(_ context.Context, v any, _ Labeler) string { return k.TextValue(v) }
func (k *Key) ColumnType() storage.ColumnType                       { return storage.BigInt() }
func (k *Key) StorageValue(v any) any                               { return v }
func (k *Key) ParseStorageValue(raw any) (any, error)               { return storageParser(parseInt64)(raw) }

func (k *Key) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(k.StorageValue(v)) }

func (k *Key) Filter(op Op, v, against any) bool { return integerOps.filter(op, v, against) }

func (k *Key) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return integerOps.filterSQL(op, column, against, q)
}

func (k *Key) FormField() FormField { return k.formField() }

// Text is a bounded string stored in a VARCHAR column, or an unbounded one
// for BigText.
type Text struct {
	base
	size int
}

var textOps = scalar{normalize: parseString, store: identity, textual: true, emptyText: true}

func NewText(name string, opts ...Option) *Text {
	return &Text{base: newBase(name, KindText, opts), size: defaultTextSize}
}

// NewBigText declares a text without length limit.
func NewBigText(name string, opts ...Option) *Text {
	return &Text{base: newBase(name, KindBigText, opts)}
}

// WithSize changes the maximum length in characters.
func (t *Text) WithSize(size int) *Text {
	c := *t
	c.size = size

	return &c
}

func (t *Text) with(fn func(*Attributes)) Type { c := *t; fn(&c.a); return &c }

func (t *Text) IsEmpty(v any) bool { return !textOps.isSet(v) }

func (t *Text) ParseValue(input any, _ any) (any, error) {
	v, err := parseString(input)
	if err != nil {
		return nil, t.problem("must be text")
	}

	return v, nil
}

func (t *Text) ValidateValue(v any) error {
	if t.IsEmpty(v) {
		return t.requiredProblem()
	}

	s, ok := v.(string)
	if !ok {
		return t.problem("must be text")
	}

	if t.kind != KindBigText && utf8.RuneCountInString(s) > t.size {
		return t.problem("must be at most %d characters", t.size)
	}

	return nil
}

func (t *Text) TextValue(v any) string {
	if v == nil {
		return ""
	}

	return cast.ToString(v)
}

func (t *Text) FullValue(_ context.Context, v any, _ Labeler) string { return t.TextValue(v) }

func (t *Text) ColumnType() storage.ColumnType {
	if t.kind == KindBigText {
		return storage.Text()
	}

	return storage.Varchar(t.size)
}

func (t *Text) StorageValue(v any) any                         { return v }
func (t *Text) ParseStorageValue(raw any) (any, error)         { return storageParser(parseString)(raw) }
func (t *Text) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(t.StorageValue(v)) }
func (t *Text) Filter(op Op, v, against any) bool              { return textOps.filter(op, v, against) }

func (t *Text) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return textOps.filterSQL(op, column, against, q)
}

func (t *Text) FormField() FormField { return t.formField() }

// Email is a text holding a single bare address.
type Email struct {
	Text
}

func NewEmail(name string, opts ...Option) *Email {
	e := &Email{Text: Text{base: newBase(name, KindEmail, opts), size: defaultTextSize}}

	return e
}

func (e *Email) with(fn func(*Attributes)) Type { c := *e; fn(&c.a); return &c }

func (e *Email) ParseValue(input any, existing any) (any, error) {
	v, err := e.Text.ParseValue(input, existing)
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), err
	}

	return v, err
}

func (e *Email) ValidateValue(v any) error {
	if err := e.Text.ValidateValue(v); err != nil || e.IsEmpty(v) {
		return err
	}

	s, _ := v.(string)

	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return e.problem("is not a valid email address")
	}

	return nil
}

// Integer is a whole number, optionally rendered with digit grouping.
type Integer struct {
	base
	formatted bool
	wide      bool
}

func NewInteger(name string, opts ...Option) *Integer {
	return &Integer{base: newBase(name, KindInteger, opts)}
}

// Formatted renders text values with digit grouping.
func (i *Integer) Formatted() *Integer {
	c := *i
	c.formatted = true

	return &c
}

// Wide stores the integer in a 64-bit column.
func (i *Integer) Wide() *Integer {
	c := *i
	c.wide = true

	return &c
}

func (i *Integer) with(fn func(*Attributes)) Type { c := *i; fn(&c.a); return &c }

func (i *Integer) ParseValue(input any, _ any) (any, error) {
	v, err := parseInt64(input)
	if err != nil {
		return nil, i.problem("must be an integer")
	}

	return v, nil
}

func (i *Integer) ValidateValue(v any) error {
	if v == nil {
		return i.requiredProblem()
	}

	n, ok := v.(int64)
	if !ok {
		return i.problem("must be an integer")
	}

	if !i.wide && (n < math.MinInt32 || n > math.MaxInt32) {
		return i.problem("is out of range")
	}

	return nil
}

func (i *Integer) TextValue(v any) string {
	if v == nil {
		return ""
	}

	n := cast.ToInt64(v)
	if i.formatted {
		return printer.Sprint(number.Decimal(n))
	}

	return strconv.FormatInt(n, 10)
}

func (i *Integer) FullValue(_ context.Context, v any, _ Labeler) string { return i.TextValue(v) }
func (i *Integer) StorageValue(v any) any                               { return v }
func (i *Integer) ParseStorageValue(raw any) (any, error)               { return storageParser(parseInt64)(raw) }

func (i *Integer) ColumnType() storage.ColumnType {
	if i.wide {
		return storage.BigInt()
	}

	return storage.Integer()
}

func (i *Integer) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(i.StorageValue(v)) }

func (i *Integer) Filter(op Op, v, against any) bool { return integerOps.filter(op, v, against) }

func (i *Integer) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return integerOps.filterSQL(op, column, against, q)
}

func (i *Integer) FormField() FormField { return i.formField() }

// Float is a floating point number. Formatted floats render with digit
// grouping and between minDecimals and maxDecimals fraction digits.
type Float struct {
	base
	formatted   bool
	minDecimals int
	maxDecimals int
}

var floatOps = scalar{normalize: parseFloat64, store: identity}

func NewFloat(name string, opts ...Option) *Float {
	return &Float{base: newBase(name, KindFloat, opts)}
}

func (f *Float) Formatted(minDecimals, maxDecimals int) *Float {
	c := *f
	c.formatted = true
	c.minDecimals = minDecimals
	c.maxDecimals = max(minDecimals, maxDecimals)

	return &c
}

func (f *Float) with(fn func(*Attributes)) Type { c := *f; fn(&c.a); return &c }

func (f *Float) ParseValue(input any, _ any) (any, error) {
	v, err := parseFloat64(input)
	if err != nil {
		return nil, f.problem("must be a number")
	}

	return v, nil
}

func (f *Float) ValidateValue(v any) error {
	if v == nil {
		return f.requiredProblem()
	}

	n, ok := v.(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return f.problem("must be a number")
	}

	return nil
}

func (f *Float) TextValue(v any) string {
	if v == nil {
		return ""
	}

	n := cast.ToFloat64(v)
	if f.formatted {
		return printer.Sprint(number.Decimal(n,
			number.MinFractionDigits(f.minDecimals),
			number.MaxFractionDigits(f.maxDecimals)))
	}

	return strconv.FormatFloat(n, 'f', -1, 64)
}

func (f *Float) FullValue(_ context.Context, v any, _ Labeler) string { return f.TextValue(v) }
func (f *Float) ColumnType() storage.ColumnType                       { return storage.Float() }
func (f *Float) StorageValue(v any) any                               { return v }
func (f *Float) ParseStorageValue(raw any) (any, error)               { return storageParser(parseFloat64)(raw) }

func (f *Float) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(f.StorageValue(v)) }

func (f *Float) Filter(op Op, v, against any) bool { return floatOps.filter(op, v, against) }

func (f *Float) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return floatOps.filterSQL(op, column, against, q)
}

func (f *Float) FormField() FormField { return f.formField() }

// Bool is a flag. Unset input parses as false.
type Bool struct {
	base
}

var boolOps = scalar{normalize: parseBool, store: identity}

func NewBool(name string, opts ...Option) *Bool {
	b := &Bool{base: newBase(name, KindBool, append([]Option{Default(false)}, opts...))}

	return b
}

func (b *Bool) with(fn func(*Attributes)) Type { c := *b; fn(&c.a); return &c }

func (b *Bool) ParseValue(input any, _ any) (any, error) {
	v, err := parseBool(input)
	if err != nil {
		return nil, b.problem("must be yes or no")
	}

	return v, nil
}

func (b *Bool) ValidateValue(v any) error {
	if v == nil {
		return b.requiredProblem()
	}

	if _, ok := v.(bool); !ok {
		return b.problem("must be yes or no")
	}

	return nil
}

func (b *Bool) TextValue(v any) string {
	if v == nil {
		return ""
	}

	if cast.ToBool(v) {
		return "Yes"
	}

	return "No"
}

func (b *Bool) FullValue(_ context.Context, v any, _ Labeler) string { return b.TextValue(v) }
func (b *Bool) ColumnType() storage.ColumnType                       { return storage.Bool() }
func (b *Bool) StorageValue(v any) any                               { return v }
func (b *Bool) ParseStorageValue(raw any) (any, error)               { return storageParser(parseBool)(raw) }

func (b *Bool) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(b.StorageValue(v)) }

func (b *Bool) Filter(op Op, v, against any) bool { return boolOps.filter(op, v, against) }

func (b *Bool) FilterSQL(op Op, column string, against any, q storage.Quoter) string {
	return boolOps.filterSQL(op, column, against, q)
}

func (b *Bool) FormField() FormField { return b.formField() }

// Password stores a bcrypt hash. Empty input keeps the existing hash, and
// only IsSet can be filtered on.
type Password struct {
	base
}

func NewPassword(name string, opts ...Option) *Password {
	return &Password{base: newBase(name, KindPassword, opts)}
}

func (p *Password) with(fn func(*Attributes)) Type { c := *p; fn(&c.a); return &c }

func (p *Password) IsEmpty(v any) bool { return !textOps.isSet(v) }

func (p *Password) ParseValue(input any, existing any) (any, error) {
	plain, err := cast.ToStringE(input)
	if err != nil {
		return nil, p.problem("must be text")
	}

	if plain == "" {
		return existing, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, p.problem("is too long")
		}

		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

func (p *Password) ValidateValue(v any) error {
	if p.IsEmpty(v) {
		return p.requiredProblem()
	}

	if _, ok := v.(string); !ok {
		return p.problem("must be text")
	}

	return nil
}

// Verify reports whether plain matches the stored hash.
func (p *Password) Verify(hash any, plain string) bool {
	h, ok := hash.(string)
	if !ok || h == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(h), []byte(plain)) == nil
}

func (p *Password) TextValue(v any) string {
	if p.IsEmpty(v) {
		return ""
	}

	return "********"
}

func (p *Password) FullValue(_ context.Context, v any, _ Labeler) string { return p.TextValue(v) }
func (p *Password) ColumnType() storage.ColumnType                       { return storage.Varchar(defaultTextSize) }
func (p *Password) StorageValue(v any) any                               { return v }
func (p *Password) ParseStorageValue(raw any) (any, error)               { return storageParser(parseString)(raw) }

func (p *Password) FieldForStorage(v any, q storage.Quoter) string { return q.Quote(p.StorageValue(v)) }

func (p *Password) Filter(op Op, v, _ any) bool {
	return op == OpIsSet && !p.IsEmpty(v)
}

func (p *Password) FilterSQL(op Op, column string, _ any, q storage.Quoter) string {
	if op == OpIsSet {
		return textOps.filterSQL(OpIsSet, column, nil, q)
	}

	return falseSQL
}

func (p *Password) FormField() FormField { return p.formField() }
