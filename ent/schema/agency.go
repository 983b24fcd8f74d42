package schema

import (
	"github.com/marketopshq/connecthub/ent/schema/mixins"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Agency is the tenant that owns connections, members and clients.
type Agency struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (Agency) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "agencies"},
	}
}

// Mixin returns the shared schema fragments.
func (Agency) Mixin() []ent.Mixin {
	return []ent.Mixin{
		mixins.TimeMixin{},
	}
}

// Fields defines the Agency columns.
func (Agency) Fields() []ent.Field {
	return []ent.Field{
		field.String("name"),
	}
}

// AgencyMember is a person with access to the agency workspace.
type AgencyMember struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (AgencyMember) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "agency_members"},
	}
}

// Fields defines the AgencyMember columns.
func (AgencyMember) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("agency_id"),
		field.String("email"),
		field.String("role").
			Default("member"),
	}
}

// Indexes defines the AgencyMember indexes.
func (AgencyMember) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agency_id", "email").Unique(),
	}
}

// Client is a brand the agency runs campaigns for.
type Client struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (Client) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "clients"},
	}
}

// Fields defines the Client columns.
func (Client) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("agency_id"),
		field.String("name"),
	}
}

// Indexes defines the Client indexes.
func (Client) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agency_id"),
	}
}
