package cpt

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// Library is the versioned CPT record store. Reads are lock-free beyond an
// RWMutex; lifecycle mutations additionally serialize on a per-child-node
// writer lock so concurrent status changes on the same table cannot race.
type Library struct {
	registry *nodes.Registry
	attestor *Attestor
	logger   logging.Logger

	mu         sync.RWMutex
	records    map[string]*Record
	byChild    map[string][]string            // child id -> record ids, registration order
	typologies map[string]map[string]struct{} // typology name -> record ids

	lockMu     sync.Mutex
	childLocks map[string]*sync.Mutex
}

// Option configures a Library.
type Option func(*Library)

// WithAttestor installs an approval attestor; every Approve then mints a
// signed attestation token into the record metadata.
func WithAttestor(a *Attestor) Option {
	return func(l *Library) { l.attestor = a }
}

// WithLogger sets the library's structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Library) { l.logger = logger }
}

// NewLibrary creates an empty CPT library resolving node references
// through the given registry.
func NewLibrary(registry *nodes.Registry, opts ...Option) *Library {
	l := &Library{
		registry:   registry,
		logger:     logging.Nop(),
		records:    make(map[string]*Record),
		byChild:    make(map[string][]string),
		typologies: make(map[string]map[string]struct{}),
		childLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lockFor returns the single-writer lock for a child node id.
func (l *Library) lockFor(childID string) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	m, ok := l.childLocks[childID]
	if !ok {
		m = &sync.Mutex{}
		l.childLocks[childID] = m
	}
	return m
}

// Register validates a draft and stores it as version 1 in Draft status.
// Structural validation collects every offending row before failing, so a
// rejected draft reports all problems at once.
func (l *Library) Register(draft *Record) (*Record, error) {
	if draft == nil {
		return nil, &ValidationError{Issues: []RowIssue{{Row: -1, Reason: "nil record"}}}
	}

	rec := draft.Clone()
	if rec.ID == "" {
		rec.ID = "cpt-" + uuid.New().String()
	}
	rec.Meta.Version = 1
	rec.Meta.Status = StatusDraft
	rec.Meta.Lineage = ""
	rec.Meta.ApprovedAt = nil
	rec.Meta.ApprovedBy = ""
	rec.Meta.Attestation = ""
	if rec.Meta.CreatedAt.IsZero() {
		rec.Meta.CreatedAt = time.Now().UTC()
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
		return nil, &ValidationError{CPTID: rec.ID, Issues: []RowIssue{{Row: -1, Reason: "record id already registered"}}}
	}
	l.store(rec)

	l.logger.Info("cpt draft registered",
		logging.CPTID(rec.ID),
		logging.NodeID(rec.ChildID),
		logging.CPTVersion(rec.Meta.Version))
	return rec.Clone(), nil
}

// store indexes a record. Caller holds l.mu.
func (l *Library) store(rec *Record) {
	l.records[rec.ID] = rec
	l.byChild[rec.ChildID] = append(l.byChild[rec.ChildID], rec.ID)
	for _, name := range rec.Meta.Typologies {
		l.attach(name, rec.ID)
	}
}

// attach links a record into a typology index. Caller holds l.mu.
func (l *Library) attach(name, recordID string) {
	set, ok := l.typologies[name]
	if !ok {
		set = make(map[string]struct{})
		l.typologies[name] = set
	}
	set[recordID] = struct{}{}
}

// checkStructure verifies dimensionality and row-sum invariants against
// the node registry, accumulating every issue found.
func (l *Library) checkStructure(rec *Record) error {
	issues := make([]RowIssue, 0)

	child, err := l.registry.Get(rec.ChildID)
	if err != nil {
		issues = append(issues, RowIssue{Row: -1, Reason: fmt.Sprintf("unknown child node %q", rec.ChildID)})
	}

	parentCards := make([]int, 0, len(rec.ParentIDs))
	for _, pid := range rec.ParentIDs {
		parent, perr := l.registry.Get(pid)
		if perr != nil {
			issues = append(issues, RowIssue{Row: -1, Reason: fmt.Sprintf("unknown parent node %q", pid)})
			continue
		}
		parentCards = append(parentCards, parent.Cardinality())
	}

	if rec.Table == nil {
		issues = append(issues, RowIssue{Row: -1, Reason: "missing table"})
		return &ValidationError{CPTID: rec.ID, Issues: issues}
	}

	if len(issues) == 0 {
		if !slices.Equal(rec.Table.ParentCards, parentCards) {
			issues = append(issues, RowIssue{
				Row:    -1,
				Reason: fmt.Sprintf("parent cardinalities %v do not match registry %v", rec.Table.ParentCards, parentCards),
			})
		}
		if got, want := len(rec.Table.Rows), rec.Table.ExpectedRows(); got != want {
			issues = append(issues, RowIssue{
				Row:    -1,
				Reason: fmt.Sprintf("table has %d rows, parent state space requires %d", got, want),
			})
		}
		for i, row := range rec.Table.Rows {
			if len(row) != child.Cardinality() {
				issues = append(issues, RowIssue{
					Row:    i,
					Reason: fmt.Sprintf("row has %d entries for %d child states", len(row), child.Cardinality()),
				})
				continue
			}
			if !prob.IsDistribution(row) {
				issues = append(issues, RowIssue{
					Row:    i,
					Sum:    prob.Sum(row),
					Reason: fmt.Sprintf("row sums to %.9f, want 1", prob.Sum(row)),
				})
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{CPTID: rec.ID, Issues: issues}
	}
	return nil
}

// Get returns a copy of the record with the given id.
func (l *Library) Get(id string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, NotFoundError(id)
	}
	return rec.Clone(), nil
}

// Validate re-checks structural invariants and required regulatory fields
// and moves a Draft to Validated. The record is left untouched on failure.
func (l *Library) Validate(id string) error {
	rec, err := l.Get(id)
	if err != nil {
		return err
	}

	lock := l.lockFor(rec.ChildID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	live, ok := l.records[id]
	if !ok {
		return NotFoundError(id)
	}
	if live.Meta.Status != StatusDraft {
		return &StateError{CPTID: id, From: live.Meta.Status, To: StatusValidated}
	}

	if err := l.checkStructure(live); err != nil {
		return err
	}
	if len(live.Meta.RegulatoryRefs) == 0 {
		return &ValidationError{CPTID: id, Issues: []RowIssue{
			{Row: -1, Reason: "at least one regulatory reference is required"},
		}}
	}

	live.Meta.Status = StatusValidated
	l.logger.Info("cpt validated", logging.CPTID(id), logging.CPTVersion(live.Meta.Version))
	return nil
}

// Approve moves a Validated record to Approved and freezes it. Approval
// from any other status is a StateError. No two approved records may share
// the same child and version.
func (l *Library) Approve(id, approver string) (*Record, error) {
	rec, err := l.Get(id)
	if err != nil {
		return nil, err
	}

	lock := l.lockFor(rec.ChildID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	live, ok := l.records[id]
	if !ok {
		return nil, NotFoundError(id)
	}
	if live.Meta.Status != StatusValidated {
		return nil, &StateError{CPTID: id, From: live.Meta.Status, To: StatusApproved}
	}

	for _, otherID := range l.byChild[live.ChildID] {
		other := l.records[otherID]
		if other.ID != live.ID && other.Meta.Status == StatusApproved && other.Meta.Version == live.Meta.Version {
			return nil, fmt.Errorf("cpt %q version %d: %w", id, live.Meta.Version, ErrDuplicateApproval)
		}
	}

	now := time.Now().UTC()
	live.Meta.Status = StatusApproved
	live.Meta.ApprovedAt = &now
	live.Meta.ApprovedBy = approver
	if l.attestor != nil {
		token, aerr := l.attestor.Mint(live, approver)
		if aerr != nil {
			// Roll back so a signing failure never leaves a half-approved record
			live.Meta.Status = StatusValidated
			live.Meta.ApprovedAt = nil
			live.Meta.ApprovedBy = ""
			return nil, fmt.Errorf("mint approval attestation: %w", aerr)
		}
		live.Meta.Attestation = token
	}

	l.logger.Info("cpt approved",
		logging.CPTID(id),
		logging.CPTVersion(live.Meta.Version),
		logging.String("approver", approver))
	return live.Clone(), nil
}

// CloneForUpdate spawns a new Draft from an existing record: identical
// table and references, version incremented, lineage pointing at the
// source. The source record is untouched.
func (l *Library) CloneForUpdate(id string) (*Record, error) {
	src, err := l.Get(id)
	if err != nil {
		return nil, err
	}

	lock := l.lockFor(src.ChildID)
	lock.Lock()
	defer lock.Unlock()

	next := src.Clone()
	next.ID = "cpt-" + uuid.New().String()
	next.Meta.Version = src.Meta.Version + 1
	next.Meta.Status = StatusDraft
	next.Meta.Lineage = src.ID
	next.Meta.CreatedAt = time.Now().UTC()
	next.Meta.ApprovedAt = nil
	next.Meta.ApprovedBy = ""
	next.Meta.Attestation = ""

	l.mu.Lock()
	defer l.mu.Unlock()
	l.store(next)

	l.logger.Info("cpt cloned for update",
		logging.CPTID(next.ID),
		logging.String("lineage", src.ID),
		logging.CPTVersion(next.Meta.Version))
	return next.Clone(), nil
}

// CurrentApproved returns the highest-version Approved record for a child
// node, following the lineage chain's latest state.
func (l *Library) CurrentApproved(childID string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best *Record
	for _, id := range l.byChild[childID] {
		rec := l.records[id]
		if rec.Meta.Status != StatusApproved {
			continue
		}
		if best == nil || rec.Meta.Version > best.Meta.Version {
			best = rec
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no approved cpt for child %q: %w", childID, ErrNotFound)
	}
	return best.Clone(), nil
}

// AttachTypology links a record into a typology template index. The
// association lives in the library, not the record, so approved records
// stay frozen while remaining discoverable from new templates.
func (l *Library) AttachTypology(id, typology string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[id]; !ok {
		return NotFoundError(id)
	}
	l.attach(typology, id)
	return nil
}

// FindByTypology returns every record associated with the named template,
// including cross-typology records attached after registration. Results
// are ordered by child id then version.
func (l *Library) FindByTypology(typology string) []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Record, 0)
	for id := range l.typologies[typology] {
		out = append(out, l.records[id].Clone())
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if a.ChildID != b.ChildID {
			if a.ChildID < b.ChildID {
				return -1
			}
			return 1
		}
		return a.Meta.Version - b.Meta.Version
	})
	return out
}

// List returns copies of every record, ordered by child id then version.
func (l *Library) List() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if a.ChildID != b.ChildID {
			if a.ChildID < b.ChildID {
				return -1
			}
			return 1
		}
		return a.Meta.Version - b.Meta.Version
	})
	return out
}

// Len returns the number of stored records.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
