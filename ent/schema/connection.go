// Package schema declares the database entities. The runtime data access
// layer speaks SQL directly against the same tables; these declarations are
// the canonical description of their shape.
package schema

import (
	"github.com/marketopshq/connecthub/ent/schema/mixins"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Connection records an agency's authorization against one provider. Token
// material is not stored here; secret_ref points into the vault.
type Connection struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (Connection) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "connections"},
	}
}

// Mixin returns the shared schema fragments.
func (Connection) Mixin() []ent.Mixin {
	return []ent.Mixin{
		mixins.TimeMixin{},
	}
}

// Fields defines the Connection columns.
func (Connection) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("agency_id"),
		field.String("provider"),
		field.Enum("mode").
			Values("oauth", "manual_invitation"),
		field.Enum("status").
			Values("active", "revoked", "expired", "invalid"),
		field.String("scope").
			Default(""),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.String("secret_ref").
			Default("").
			Comment("opaque vault reference, set iff mode is oauth"),
		field.Time("expires_at").
			Optional().
			Nillable().
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
		field.Time("last_refreshed_at").
			Optional().
			Nillable().
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
		field.String("connected_by").
			Default(""),
		field.Time("connected_at").
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
		field.String("revoked_by").
			Default(""),
		field.Time("revoked_at").
			Optional().
			Nillable().
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
	}
}

// Indexes defines the Connection indexes. The partial unique index backing
// the one-active-connection rule is created by the SQL migration; declaring
// the plain composite here keeps lookups covered.
func (Connection) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agency_id", "provider"),
		index.Fields("status"),
		index.Fields("expires_at"),
	}
}
