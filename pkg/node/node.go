// Package node holds what every workflow node shares: a descriptor with the
// input and output schema fixed at construction, and tagged failures.
package node

import (
	"context"
	"maps"
	"slices"
)

// Schema maps field names to declared types ("string", "number", ...).
type Schema map[string]string

// Fields lists the schema's field names in sorted order.
func (s Schema) Fields() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns an independent copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// Descriptor identifies a node type and declares its I/O shape.
type Descriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Category    string `json:"category,omitempty"`
	Logo        string `json:"logo,omitempty"`
	Input       Schema `json:"input_schema"`
	Output      Schema `json:"output_schema"`
	// FixedOutput marks nodes whose output schema cannot be edited by users.
	FixedOutput bool `json:"has_fixed_output,omitempty"`
}

// Node is a typed unit of work in a workflow.
type Node[I, O any] interface {
	Descriptor() Descriptor
	Run(ctx context.Context, input I) (O, error)
}
