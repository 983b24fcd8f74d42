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

// Subscription binds an agency to a billing tier for a period. Quota limits
// derive from the tier of the newest active row.
type Subscription struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (Subscription) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "subscriptions"},
	}
}

// Mixin returns the shared schema fragments.
func (Subscription) Mixin() []ent.Mixin {
	return []ent.Mixin{
		mixins.TimeMixin{},
	}
}

// Fields defines the Subscription columns.
func (Subscription) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("agency_id"),
		field.Enum("tier").
			Values("free", "starter", "growth", "scale"),
		field.String("status").
			Default("active"),
		field.Time("current_period_end").
			Optional().
			Nillable().
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
	}
}

// Indexes defines the Subscription indexes.
func (Subscription) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agency_id", "status"),
	}
}
