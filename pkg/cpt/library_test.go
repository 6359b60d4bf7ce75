package cpt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

func testRegistry(t *testing.T) *nodes.Registry {
	t.Helper()
	registry := nodes.NewRegistry()
	defs := []*nodes.Node{
		{ID: "pre_announcement_trading", Kind: nodes.KindEvidence,
			States: []string{"absent", "present"}, FallbackPrior: []float64{0.95, 0.05}},
		{ID: "mnpi_access", Kind: nodes.KindEvidence,
			States: []string{"none", "possible", "confirmed"}, FallbackPrior: []float64{0.8, 0.15, 0.05}},
		{ID: "insider_risk", Kind: nodes.KindOutcome,
			States: []string{"low", "elevated"}, FallbackPrior: []float64{0.99, 0.01}},
	}
	for _, def := range defs {
		require.NoError(t, registry.Define(def))
	}
	return registry
}

func riskDraft() *Record {
	return &Record{
		ChildID:   "insider_risk",
		ParentIDs: []string{"pre_announcement_trading", "mnpi_access"},
		Table: &Table{
			ParentCards: []int{2, 3},
			Rows: [][]float64{
				{0.98, 0.02},
				{0.9, 0.1},
				{0.7, 0.3},
				{0.8, 0.2},
				{0.4, 0.6},
				{0.1, 0.9},
			},
		},
		Meta: Metadata{
			Description:    "insider dealing risk from trading and access evidence",
			RegulatoryRefs: []string{"MAR Art. 8", "MAR Art. 14"},
		},
	}
}

func TestRegisterAssignsDraftVersionOne(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, rec.Meta.Version)
	assert.Equal(t, StatusDraft, rec.Meta.Status)
	assert.Empty(t, rec.Meta.Lineage)
	assert.False(t, rec.Meta.CreatedAt.IsZero())
}

func TestRegisterCollectsAllRowIssues(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	draft := riskDraft()
	draft.Table.Rows[1] = []float64{0.5, 0.4}      // bad sum
	draft.Table.Rows[4] = []float64{0.3, 0.3, 0.4} // wrong width

	_, err := lib.Register(draft)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Issues, 2)
	assert.Equal(t, 1, verr.Issues[0].Row)
	assert.Equal(t, 4, verr.Issues[1].Row)
}

func TestRegisterUnknownNodes(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	draft := riskDraft()
	draft.ParentIDs = []string{"pre_announcement_trading", "nonexistent"}

	_, err := lib.Register(draft)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLifecycleDraftToApproved(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)

	require.NoError(t, lib.Validate(rec.ID))
	got, err := lib.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, got.Meta.Status)

	approved, err := lib.Approve(rec.ID, "compliance-officer")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Meta.Status)
	assert.Equal(t, "compliance-officer", approved.Meta.ApprovedBy)
	require.NotNil(t, approved.Meta.ApprovedAt)
}

func TestValidateRequiresRegulatoryRefs(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	draft := riskDraft()
	draft.Meta.RegulatoryRefs = nil
	rec, err := lib.Register(draft)
	require.NoError(t, err)

	err = lib.Validate(rec.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestApproveRequiresValidated(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)

	_, err = lib.Approve(rec.ID, "officer")
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StatusDraft, serr.From)
}

func TestValidateTwiceIsStateError(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(rec.ID))

	err = lib.Validate(rec.ID)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
}

func TestCloneForUpdate(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(rec.ID))
	_, err = lib.Approve(rec.ID, "officer")
	require.NoError(t, err)

	next, err := lib.CloneForUpdate(rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, next.ID)
	assert.Equal(t, 2, next.Meta.Version)
	assert.Equal(t, StatusDraft, next.Meta.Status)
	assert.Equal(t, rec.ID, next.Meta.Lineage)
	assert.Empty(t, next.Meta.Attestation)

	// Source record stays frozen
	src, err := lib.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, src.Meta.Status)
	assert.Equal(t, 1, src.Meta.Version)
}

func TestDuplicateApprovedVersionRejected(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	first, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(first.ID))
	_, err = lib.Approve(first.ID, "officer")
	require.NoError(t, err)

	// A second independent registration produces another version 1
	second, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(second.ID))

	_, err = lib.Approve(second.ID, "officer")
	require.ErrorIs(t, err, ErrDuplicateApproval)
}

func TestCurrentApprovedPicksHighestVersion(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(rec.ID))
	_, err = lib.Approve(rec.ID, "officer")
	require.NoError(t, err)

	next, err := lib.CloneForUpdate(rec.ID)
	require.NoError(t, err)
	require.NoError(t, lib.Validate(next.ID))
	_, err = lib.Approve(next.ID, "officer")
	require.NoError(t, err)

	current, err := lib.CurrentApproved("insider_risk")
	require.NoError(t, err)
	assert.Equal(t, next.ID, current.ID)
	assert.Equal(t, 2, current.Meta.Version)
}

func TestCurrentApprovedNotFound(t *testing.T) {
	lib := NewLibrary(testRegistry(t))
	_, err := lib.CurrentApproved("insider_risk")
	assert.True(t, IsNotFound(err))
}

func TestFindByTypology(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.AttachTypology(rec.ID, "insider_dealing"))

	found := lib.FindByTypology("insider_dealing")
	require.Len(t, found, 1)
	assert.Equal(t, rec.ID, found[0].ID)

	assert.Empty(t, lib.FindByTypology("spoofing"))
	assert.True(t, errors.Is(lib.AttachTypology("missing", "spoofing"), ErrNotFound))
}

func TestApproveWithAttestor(t *testing.T) {
	attestor, err := NewAttestor([]byte("test-secret"), "test-issuer")
	require.NoError(t, err)
	lib := NewLibrary(testRegistry(t), WithAttestor(attestor))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(rec.ID))

	approved, err := lib.Approve(rec.ID, "officer")
	require.NoError(t, err)
	require.NotEmpty(t, approved.Meta.Attestation)

	claims, err := attestor.Verify(approved.Meta.Attestation)
	require.NoError(t, err)
	assert.Equal(t, approved.ID, claims.CPTID)
	assert.Equal(t, 1, claims.Version)
	assert.Equal(t, "officer", claims.Approver)
	assert.Equal(t, []string{"MAR Art. 8", "MAR Art. 14"}, claims.RegulatoryRefs)

	// A different secret must not verify
	other, err := NewAttestor([]byte("wrong"), "test-issuer")
	require.NoError(t, err)
	_, err = other.Verify(approved.Meta.Attestation)
	assert.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	registry := testRegistry(t)
	lib := NewLibrary(registry)

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)
	require.NoError(t, lib.Validate(rec.ID))
	_, err = lib.Approve(rec.ID, "officer")
	require.NoError(t, err)
	require.NoError(t, lib.AttachTypology(rec.ID, "insider_dealing"))

	flat, err := lib.Export(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"insider_dealing"}, flat.Typologies)

	restored := NewLibrary(registry)
	imported, err := restored.Import(flat)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, imported.ID)
	assert.Equal(t, StatusApproved, imported.Meta.Status)
	assert.Equal(t, "officer", imported.Meta.ApprovedBy)

	// Re-import of the same id is rejected
	_, err = restored.Import(flat)
	assert.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	lib := NewLibrary(testRegistry(t))

	rec, err := lib.Register(riskDraft())
	require.NoError(t, err)

	got, err := lib.Get(rec.ID)
	require.NoError(t, err)
	got.Table.Rows[0][0] = 0.123

	again, err := lib.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.98, again.Table.Rows[0][0])
}
