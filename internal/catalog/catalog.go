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

// Package catalog declares the record classes served by recordctl.
package catalog

import (
	"context"
	"strings"

	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord"
	"github.com/united-manufacturing-hub/datarecord/pkg/datarecord/field"
)

const (
	Company = "company"
	Contact = "contact"
	Tag     = "tag"
	File    = field.FileClass
)

// Contact states.
const (
	StatusLead int64 = iota + 1
	StatusCustomer
	StatusFormer
)

var statuses = []field.EnumOption{
	{Value: StatusLead, Label: "Lead", Color: "#f0ad4e"},
	{Value: StatusCustomer, Label: "Customer", Color: "#5cb85c"},
	{Value: StatusFormer, Label: "Former customer", Color: "#777777"},
}

// Register adds the catalog classes to reg.
func Register(reg *datarecord.Registry) {
	reg.Register(datarecord.ClassDefinition{
		Name:           Company,
		DeleteStrategy: datarecord.DeleteBlock,
		Fields: func() []field.Type {
			return []field.Type{
				field.NewKey("id"),
				field.NewText("name", field.Required(), field.Searchable(), field.Indexed()),
				field.NewText("website"),
				field.NewAddress("address"),
				field.NewInteger("employees"),
				field.NewCurrency("revenue", field.InMetadata()),
			}
		},
	})

	reg.Register(datarecord.ClassDefinition{
		Name:           Contact,
		DeleteMode:     datarecord.DeleteMark,
		DeleteStrategy: datarecord.DeletePurge,
		Fields: func() []field.Type {
			return []field.Type{
				field.NewKey("id"),
				field.NewText("first_name", field.Searchable(), field.IndexedWith("name")),
				field.NewText("last_name", field.Required(), field.Searchable(), field.IndexedWith("name")),
				field.NewEmail("email", field.Indexed()),
				field.NewReference("company", Company, field.Searchable()),
				field.NewMultiReference("tags", Tag),
				field.NewEnumeration("status", statuses, field.Default(StatusLead)),
				field.NewDate("birthday"),
				field.NewImage("avatar"),
				field.NewPassword("portal_password"),
				field.NewBigText("notes", field.InMetadata()),
			}
		},
		Title: func(r *datarecord.Record) string {
			first, _ := r.TextValue("first_name")
			last, _ := r.TextValue("last_name")

			return strings.TrimSpace(first + " " + last)
		},
		BeforeSave: func(_ context.Context, r *datarecord.Record) error {
			email, err := r.TextValue("email")
			if err != nil || email == "" {
				return err
			}

			return r.Set("email", strings.ToLower(email))
		},
	})

	reg.Register(datarecord.ClassDefinition{
		Name:           Tag,
		DeleteStrategy: datarecord.DeletePurge,
		Fields: func() []field.Type {
			return []field.Type{
				field.NewKey("id"),
				field.NewText("name", field.Required(), field.Searchable(), field.Indexed()),
			}
		},
	})

	reg.Register(datarecord.ClassDefinition{
		Name:           File,
		DeleteStrategy: datarecord.DeletePurge,
		Fields: func() []field.Type {
			return []field.Type{
				field.NewKey("id"),
				field.NewText("name", field.Required(), field.Searchable()),
				field.NewText("mime_type"),
				field.NewInteger("size").Wide(),
				field.NewText("checksum"),
			}
		},
	})
}
