package archive

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

func testLibrary(t *testing.T) (*nodes.Registry, *cpt.Library) {
	t.Helper()
	registry := nodes.NewRegistry()
	require.NoError(t, registry.Define(&nodes.Node{
		ID:            "order_cancellation_ratio",
		Kind:          nodes.KindEvidence,
		States:        []string{"normal", "elevated"},
		FallbackPrior: []float64{0.85, 0.15},
	}))
	require.NoError(t, registry.Define(&nodes.Node{
		ID:            "spoofing_risk",
		Kind:          nodes.KindOutcome,
		States:        []string{"inactive", "active"},
		FallbackPrior: []float64{0.99, 0.01},
	}))
	return registry, cpt.NewLibrary(registry)
}

func draftRecord() *cpt.Record {
	return &cpt.Record{
		ChildID:   "spoofing_risk",
		ParentIDs: []string{"order_cancellation_ratio"},
		Table: &cpt.Table{
			ParentCards: []int{2},
			Rows:        [][]float64{{0.95, 0.05}, {0.4, 0.6}},
		},
		Meta: cpt.Metadata{
			Description:    "Cancellation-driven spoofing risk",
			RegulatoryRefs: []string{"MAR Art. 12"},
		},
	}
}

func TestBundleRoundTrip(t *testing.T) {
	_, library := testLibrary(t)
	rec, err := library.Register(draftRecord())
	require.NoError(t, err)

	records := library.ExportAll()
	require.Len(t, records, 1)

	data, err := Encode("snapshot-1", records)
	require.NoError(t, err)

	bundle, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-1", bundle.Manifest.Name)
	assert.Equal(t, 1, bundle.Manifest.Records)
	require.Len(t, bundle.Records, 1)
	assert.Equal(t, rec.ID, bundle.Records[0].ID)
	assert.Equal(t, "spoofing_risk", bundle.Records[0].ChildID)
	assert.Equal(t, [][]float64{{0.95, 0.05}, {0.4, 0.6}}, bundle.Records[0].Rows)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	_, library := testLibrary(t)
	_, err := library.Register(draftRecord())
	require.NoError(t, err)

	data, err := Encode("snapshot-2", library.ExportAll())
	require.NoError(t, err)

	// Flipping compressed bytes must fail either decompression or the
	// checksum, never silently succeed
	data[len(data)/2] ^= 0xff
	_, err = Decode(data)
	assert.Error(t, err)
}

func TestFSSinkStoreLoad(t *testing.T) {
	sink, err := NewFSSink(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Store(ctx, "snap", []byte("payload")))

	data, err := sink.Load(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = sink.Load(ctx, "absent")
	assert.Error(t, err)
}

func TestArchiverSnapshotRestore(t *testing.T) {
	_, source := testLibrary(t)
	rec, err := source.Register(draftRecord())
	require.NoError(t, err)
	require.NoError(t, source.Validate(rec.ID))
	_, err = source.Approve(rec.ID, "approver1")
	require.NoError(t, err)

	sink, err := NewFSSink(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, NewArchiver(source, sink, nil).Snapshot(ctx, "daily"))

	// Restore into a fresh library over the same registry
	_, target := testLibrary(t)
	restored, err := NewArchiver(target, sink, nil).Restore(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	got, err := target.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, cpt.StatusApproved, got.Meta.Status)
	assert.Equal(t, "approver1", got.Meta.ApprovedBy)
}

func TestArchiverRestoreSkipsDuplicates(t *testing.T) {
	_, library := testLibrary(t)
	_, err := library.Register(draftRecord())
	require.NoError(t, err)

	sink, err := NewFSSink(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	archiver := NewArchiver(library, sink, nil)
	require.NoError(t, archiver.Snapshot(ctx, "snap"))

	// Restoring into the source library collides on every id
	restored, err := archiver.Restore(ctx, "snap")
	require.NoError(t, err)
	assert.Zero(t, restored)
}

func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("KORINSIC_ARCHIVE_DSN")
	if dsn == "" {
		t.Skip("KORINSIC_ARCHIVE_DSN not set")
	}

	ctx := context.Background()
	sink, err := NewPostgresSink(ctx, dsn)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Store(ctx, "pg-test", []byte("payload")))
	data, err := sink.Load(ctx, "pg-test")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}
