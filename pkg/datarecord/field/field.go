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

// Package field describes record attributes: how a value is parsed from
// input, validated, rendered, filtered in memory and in SQL, and
// represented in storage.
//
// The set of field kinds is closed. Every kind is constructed through a New*
// function and is immutable afterwards; Structure clones fields when it needs
// to rename or relocate them.
package field

import (
	"context"
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/datarecord/pkg/storage"
)

// ErrInvalid marks recoverable, field-scoped validation problems.
var ErrInvalid = errors.New("invalid value")

// ValidationError describes why a value was rejected for one field.
type ValidationError struct {
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Problem)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Kind identifies a field variant.
type Kind string

const (
	KindKey              Kind = "key"
	KindText             Kind = "text"
	KindBigText          Kind = "bigtext"
	KindInteger          Kind = "integer"
	KindFloat            Kind = "float"
	KindBool             Kind = "bool"
	KindDateTime         Kind = "datetime"
	KindDate             Kind = "date"
	KindPassword         Kind = "password"
	KindEmail            Kind = "email"
	KindArray            Kind = "array"
	KindObject           Kind = "object"
	KindEnumeration      Kind = "enumeration"
	KindMultiEnumeration Kind = "multienumeration"
	KindReference        Kind = "reference"
	KindMultiReference   Kind = "multireference"
	KindHyperReference   Kind = "hyperreference"
	KindFile             Kind = "file"
	KindImage            Kind = "image"
	KindAddress          Kind = "address"
	KindCurrency         Kind = "currency"
)

// StoreLocation says where a field's value is persisted.
type StoreLocation int

const (
	// StoreDatabase gives the field its own column.
	StoreDatabase StoreLocation = iota
	// StoreMetadata packs the field into the shared JSON metadata column.
	StoreMetadata
	// StoreNowhere is not persisted. Composite parents are relocated here
	// once their children are flattened into the structure.
	StoreNowhere
)

func (s StoreLocation) String() string {
	switch s {
	case StoreDatabase:
		return "database"
	case StoreMetadata:
		return "metadata"
	default:
		return "nowhere"
	}
}

// ListVisibility controls whether a field appears in list views.
type ListVisibility int

const (
	ListDefault ListVisibility = iota
	ListOptional
	ListNever
)

// IndexKind selects how a field is indexed.
type IndexKind int

const (
	IndexNone IndexKind = iota
	IndexSingle
	IndexMulti
)

// IndexSpec declares a secondary index. Fields sharing an IndexMulti Name
// form one multi-column index, ordered as in the structure.
type IndexSpec struct {
	Kind IndexKind
	Name string
}

// Op is a filter predicate.
type Op int

const (
	OpMatch Op = iota
	OpGreater
	OpGreaterEqual
	OpLesser
	OpLesserEqual
	// OpLike is a case-insensitive substring search. On reference fields the
	// argument must already be expanded into a set of matching ids.
	OpLike
	OpIsSet
	OpOneOf
)

func (o Op) String() string {
	switch o {
	case OpMatch:
		return "match"
	case OpGreater:
		return "greater"
	case OpGreaterEqual:
		return "greaterEqual"
	case OpLesser:
		return "lesser"
	case OpLesserEqual:
		return "lesserEqual"
	case OpLike:
		return "like"
	case OpIsSet:
		return "isSet"
	case OpOneOf:
		return "oneOf"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Attributes are the properties shared by every field kind.
type Attributes struct {
	Name       string
	Title      string
	Default    any
	Store      StoreLocation
	List       ListVisibility
	PrimaryKey bool
	Required   bool
	Readonly   bool
	Searchable bool
	Index      IndexSpec
}

// Option adjusts Attributes at construction time.
type Option func(*Attributes)

func Title(title string) Option { return func(a *Attributes) { a.Title = title } }

func Default(v any) Option { return func(a *Attributes) { a.Default = v } }

func Required() Option { return func(a *Attributes) { a.Required = true } }

func Readonly() Option { return func(a *Attributes) { a.Readonly = true } }

// Searchable includes the field in keyword searches.
func Searchable() Option { return func(a *Attributes) { a.Searchable = true } }

// InMetadata stores the field in the metadata overflow column.
func InMetadata() Option { return func(a *Attributes) { a.Store = StoreMetadata } }

// NotStored keeps the field in memory only.
func NotStored() Option { return func(a *Attributes) { a.Store = StoreNowhere } }

func Listed(v ListVisibility) Option { return func(a *Attributes) { a.List = v } }

// Indexed creates a single-column index named <field>_key.
func Indexed() Option {
	return func(a *Attributes) { a.Index = IndexSpec{Kind: IndexSingle} }
}

// IndexedWith joins the multi-column index named <name>_key.
func IndexedWith(name string) Option {
	return func(a *Attributes) { a.Index = IndexSpec{Kind: IndexMulti, Name: name} }
}

// Labeler resolves a (class, id) pair to a display label.
type Labeler interface {
	Label(ctx context.Context, class string, id int64) (string, error)
}

// FormOption is one choice offered by a form control.
type FormOption struct {
	Value any
	Label string
}

// FormField is what a form-building collaborator needs to render a control.
type FormField struct {
	Kind     Kind
	Name     string
	Label    string
	Required bool
	Readonly bool
	Options  []FormOption
}

// ParsedDefault returns the declared default of t parsed like caller input,
// so a default given as text ("1", "2024-01-31") is stored in its kind.
func ParsedDefault(t Type) (any, error) {
	def := t.DefaultValue()
	if def == nil {
		return nil, nil
	}

	v, err := t.ParseValue(def, nil)
	if err != nil {
		return nil, fmt.Errorf("default of %s: %w", t.Name(), err)
	}

	return v, nil
}

// Type is implemented by every field kind.
type Type interface {
	Name() string
	Title() string
	Kind() Kind
	Attributes() Attributes
	DefaultValue() any
	StoreLocation() StoreLocation
	ListVisibility() ListVisibility
	IsPrimaryKey() bool
	IsRequired() bool
	IsReadonly() bool
	IsSearchable() bool
	IsReference() bool
	Index() IndexSpec

	// ParseValue turns caller input into a value of this kind. existing is
	// the current value, used by kinds where empty input keeps it.
	ParseValue(input any, existing any) (any, error)
	// ValidateValue returns a *ValidationError describing the problem, or nil.
	ValidateValue(v any) error
	IsEmpty(v any) bool

	RawValue(v any) any
	TextValue(v any) string
	FullValue(ctx context.Context, v any, labels Labeler) string

	ColumnType() storage.ColumnType
	// StorageValue converts a value to its storage form: nil, int64,
	// float64, bool or string. Values are compared in this form both for
	// the dirty-field diff and in filters.
	StorageValue(v any) any
	// ParseStorageValue is the inverse of StorageValue and accepts whatever
	// the drivers return for the column.
	ParseStorageValue(raw any) (any, error)
	// FieldForStorage renders the value as a SQL literal.
	FieldForStorage(v any, q storage.Quoter) string

	Filter(op Op, v any, against any) bool
	// FilterSQL renders the same predicate as Filter for the given unquoted
	// column name.
	FilterSQL(op Op, column string, against any, q storage.Quoter) string

	// AdditionalStructure lists the child fields of a composite, named by
	// suffix.
	AdditionalStructure() []Type
	FormField() FormField

	with(fn func(*Attributes)) Type
}

// Composite is a field assembled from its AdditionalStructure children.
// Part maps are keyed by child suffix.
type Composite interface {
	Type
	Compose(parts map[string]any) any
	Decompose(v any) map[string]any
}

// Ref identifies a referenced record.
type Ref struct {
	Class string
	ID    int64
}

// Referencer is a field pointing at other records.
type Referencer interface {
	Type
	// ForeignClass is the referenced class, empty when it varies per value.
	ForeignClass() string
	// Dependent referrers are deleted together with the referenced record.
	Dependent() bool
	Refs(v any) []Ref
	// Without removes the reference to target from v.
	Without(v any, target Ref) any
	// ReferenceSQL matches rows referencing target, or is empty when this
	// field cannot reference target's class.
	ReferenceSQL(column string, target Ref, q storage.Quoter) string
}
