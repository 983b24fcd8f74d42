package schema

import (
	"github.com/google/uuid"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AuditLog is the append-only history of connection mutations. Rows are never
// updated or deleted.
type AuditLog struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (AuditLog) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "audit_log"},
	}
}

// Fields defines the AuditLog columns.
func (AuditLog) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}),
		field.Int64("agency_id"),
		field.Int64("connection_id").
			Optional(),
		field.String("provider").
			Default(""),
		field.String("action"),
		field.String("actor").
			Default(""),
		field.JSON("metadata", map[string]any{}).
			Optional(),
		field.Time("created_at").
			Immutable().
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
	}
}

// Indexes defines the AuditLog indexes.
func (AuditLog) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agency_id", "created_at"),
	}
}

// SecuritySecret stores shared runtime secrets (vault sealing key, JWT
// signing secret) so every instance resolves the same value.
type SecuritySecret struct {
	ent.Schema
}

// Annotations returns the schema annotations.
func (SecuritySecret) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "security_secrets"},
	}
}

// Fields defines the SecuritySecret columns.
func (SecuritySecret) Fields() []ent.Field {
	return []ent.Field{
		field.String("key").
			Unique(),
		field.String("value"),
		field.Time("created_at").
			Immutable().
			SchemaType(map[string]string{dialect.Postgres: "timestamptz"}),
	}
}
