// Package entity routes sync operations to the stores being synchronized.
// The engine stays ignorant of concrete entity schemas: each entity type
// registers one Store exposing the same apply/snapshot capability.
package entity

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Entity types the sync engine accepts.
const (
	TypeKnowledge = "knowledge"
	TypeCategory  = "category"
	TypeTag       = "tag"
)

// Store applies mutations to and snapshots one entity type's backing table.
// All operations run inside the caller's transaction.
type Store interface {
	// Apply dispatches create/update/delete for a single entity.
	Apply(tx *sql.Tx, userID, entityID, operation string, payload json.RawMessage, at time.Time) error
	// Snapshot returns the current live state of the entity as a JSON
	// object, or nil if no live row exists.
	Snapshot(tx *sql.Tx, userID, entityID string) (json.RawMessage, error)
}

// Registry maps entity type tags to their stores.
type Registry struct {
	stores map[string]Store
}

// NewRegistry builds the registry with the built-in entity types.
func NewRegistry() *Registry {
	return &Registry{stores: map[string]Store{
		TypeKnowledge: &tableStore{table: "knowledge_items"},
		TypeCategory:  &tableStore{table: "categories"},
		TypeTag:       &tableStore{table: "tags"},
	}}
}

// Lookup returns the store for the entity type, or false if unknown.
func (r *Registry) Lookup(entityType string) (Store, bool) {
	s, ok := r.stores[entityType]
	return s, ok
}

// Valid reports whether the entity type is registered.
func (r *Registry) Valid(entityType string) bool {
	_, ok := r.stores[entityType]
	return ok
}

// Types returns the registered entity type tags.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.stores))
	for t := range r.stores {
		out = append(out, t)
	}
	return out
}
