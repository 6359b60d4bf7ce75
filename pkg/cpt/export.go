package cpt

import (
	"time"

	"golang.org/x/exp/slices"
)

// FlatRecord is the flat, fully serializable shape of a CPT record used
// for external audit storage. It carries no internal references; node ids
// and lineage are plain strings, and typology associations are resolved
// from the library index at export time.
type FlatRecord struct {
	ID             string      `json:"id" yaml:"id"`
	ChildID        string      `json:"child_id" yaml:"child_id"`
	ParentIDs      []string    `json:"parent_ids" yaml:"parent_ids"`
	ParentCards    []int       `json:"parent_cards" yaml:"parent_cards"`
	Rows           [][]float64 `json:"rows" yaml:"rows"`
	Version        int         `json:"version" yaml:"version"`
	Status         string      `json:"status" yaml:"status"`
	Description    string      `json:"description,omitempty" yaml:"description,omitempty"`
	RegulatoryRefs []string    `json:"regulatory_refs" yaml:"regulatory_refs"`
	Typologies     []string    `json:"typologies,omitempty" yaml:"typologies,omitempty"`
	Lineage        string      `json:"lineage,omitempty" yaml:"lineage,omitempty"`
	CreatedAt      time.Time   `json:"created_at" yaml:"created_at"`
	ApprovedAt     *time.Time  `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	ApprovedBy     string      `json:"approved_by,omitempty" yaml:"approved_by,omitempty"`
	Attestation    string      `json:"attestation,omitempty" yaml:"attestation,omitempty"`
}

// Export flattens one record for external audit storage.
func (l *Library) Export(id string) (*FlatRecord, error) {
	rec, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	return l.flatten(rec), nil
}

// ExportAll flattens every record, ordered by child id then version.
func (l *Library) ExportAll() []*FlatRecord {
	records := l.List()
	out := make([]*FlatRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, l.flatten(rec))
	}
	return out
}

func (l *Library) flatten(rec *Record) *FlatRecord {
	flat := &FlatRecord{
		ID:             rec.ID,
		ChildID:        rec.ChildID,
		ParentIDs:      append([]string(nil), rec.ParentIDs...),
		ParentCards:    append([]int(nil), rec.Table.ParentCards...),
		Rows:           rec.Table.Clone().Rows,
		Version:        rec.Meta.Version,
		Status:         string(rec.Meta.Status),
		Description:    rec.Meta.Description,
		RegulatoryRefs: append([]string(nil), rec.Meta.RegulatoryRefs...),
		Typologies:     l.typologiesOf(rec.ID),
		Lineage:        rec.Meta.Lineage,
		CreatedAt:      rec.Meta.CreatedAt,
		ApprovedAt:     rec.Meta.ApprovedAt,
		ApprovedBy:     rec.Meta.ApprovedBy,
		Attestation:    rec.Meta.Attestation,
	}
	return flat
}

// typologiesOf returns the sorted typology names a record belongs to.
func (l *Library) typologiesOf(id string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0)
	for name, set := range l.typologies {
		if _, ok := set[id]; ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Import restores a flattened record, preserving version, status, lineage
// and approval metadata exactly. Structural invariants are still enforced;
// a flat record that no longer matches the node registry is rejected.
func (l *Library) Import(flat *FlatRecord) (*Record, error) {
	rec := &Record{
		ID:        flat.ID,
		ChildID:   flat.ChildID,
		ParentIDs: append([]string(nil), flat.ParentIDs...),
		Table: &Table{
			ParentCards: append([]int(nil), flat.ParentCards...),
			Rows:        flat.Rows,
		},
		Meta: Metadata{
			Version:        flat.Version,
			Status:         Status(flat.Status),
			Description:    flat.Description,
			RegulatoryRefs: append([]string(nil), flat.RegulatoryRefs...),
			Typologies:     append([]string(nil), flat.Typologies...),
			Lineage:        flat.Lineage,
			CreatedAt:      flat.CreatedAt,
			ApprovedAt:     flat.ApprovedAt,
			ApprovedBy:     flat.ApprovedBy,
			Attestation:    flat.Attestation,
		},
	}

	if !rec.Meta.Status.Valid() {
		return nil, &ValidationError{CPTID: rec.ID, Issues: []RowIssue{
			{Row: -1, Reason: "unknown status " + flat.Status},
		}}
	}
	if err := l.checkStructure(rec); err != nil {
		return nil, err
	}

	lock := l.lockFor(rec.ChildID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[rec.ID]; exists {
		return nil, &ValidationError{CPTID: rec.ID, Issues: []RowIssue{
			{Row: -1, Reason: "record id already registered"},
		}}
	}
	l.store(rec)
	return rec.Clone(), nil
}
