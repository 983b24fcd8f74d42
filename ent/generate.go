// Package ent holds the declarative schemas for the subsystem's tables. The
// repositories speak raw SQL; regenerate the typed client here when a
// consumer needs one.
package ent

//go:generate go run -mod=mod entgo.io/ent/cmd/ent generate ./schema
