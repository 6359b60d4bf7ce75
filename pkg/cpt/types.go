// Package cpt implements the versioned library of conditional probability
// tables backing evidence networks. Records move through a reviewed
// lifecycle (Draft, Validated, Approved); approved records are frozen and
// any change spawns a new draft version linked by lineage, giving the
// library an append-only audit history suitable for regulated use.
package cpt

import "time"

// Status is the lifecycle state of a CPT record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusApproved  Status = "approved"
)

// Valid reports whether the status is a recognized lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusValidated, StatusApproved:
		return true
	}
	return false
}

// Metadata carries the versioning and regulatory bookkeeping of a record.
type Metadata struct {
	Version        int        `json:"version" yaml:"version"`
	Status         Status     `json:"status" yaml:"status"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	RegulatoryRefs []string   `json:"regulatory_refs" yaml:"regulatory_refs"`
	Typologies     []string   `json:"typologies,omitempty" yaml:"typologies,omitempty"`
	Lineage        string     `json:"lineage,omitempty" yaml:"lineage,omitempty"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	ApprovedBy     string     `json:"approved_by,omitempty" yaml:"approved_by,omitempty"`
	Attestation    string     `json:"attestation,omitempty" yaml:"attestation,omitempty"`
}

// Record is one versioned conditional probability table. It references its
// child and parent nodes by id only; the node definitions live in the node
// registry.
type Record struct {
	ID        string   `json:"id" yaml:"id"`
	ChildID   string   `json:"child_id" yaml:"child_id"`
	ParentIDs []string `json:"parent_ids" yaml:"parent_ids"`
	Table     *Table   `json:"table" yaml:"table"`
	Meta      Metadata `json:"meta" yaml:"meta"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := &Record{
		ID:        r.ID,
		ChildID:   r.ChildID,
		ParentIDs: make([]string, len(r.ParentIDs)),
		Meta:      r.Meta,
	}
	copy(cp.ParentIDs, r.ParentIDs)
	if r.Table != nil {
		cp.Table = r.Table.Clone()
	}
	cp.Meta.RegulatoryRefs = append([]string(nil), r.Meta.RegulatoryRefs...)
	cp.Meta.Typologies = append([]string(nil), r.Meta.Typologies...)
	if r.Meta.ApprovedAt != nil {
		at := *r.Meta.ApprovedAt
		cp.Meta.ApprovedAt = &at
	}
	return cp
}
