package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tamper(t *testing.T, path, old, replacement string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), old)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), old, replacement, 1)), 0o644))
}

func TestMemoryTrailRecordAndRead(t *testing.T) {
	trail := NewMemoryTrail(10)

	require.NoError(t, trail.Record(NewEvent("analyst1", ActionRegister, ResourceCPT, "cpt-1")))
	require.NoError(t, trail.Record(NewEvent("analyst1", ActionValidate, ResourceCPT, "cpt-1")))
	require.NoError(t, trail.Record(NewEvent("approver1", ActionApprove, ResourceCPT, "cpt-1")))

	assert.Equal(t, int64(3), trail.EventCount())

	events := trail.Events(nil)
	require.Len(t, events, 3)
	assert.Equal(t, ActionRegister, events[0].Action)
	assert.Equal(t, ActionApprove, events[2].Action)
}

func TestMemoryTrailRingEviction(t *testing.T) {
	trail := NewMemoryTrail(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, trail.Record(NewEvent("a", ActionEvaluate, ResourceEvaluation, "run")))
	}
	assert.Equal(t, int64(3), trail.EventCount())
	assert.Len(t, trail.Events(nil), 3)
}

func TestMemoryTrailFilter(t *testing.T) {
	trail := NewMemoryTrail(10)
	require.NoError(t, trail.Record(NewEvent("analyst1", ActionRegister, ResourceCPT, "cpt-1")))
	require.NoError(t, trail.Record(NewFailedEvent("analyst2", ActionApprove, ResourceCPT, "cpt-1", "not validated")))
	require.NoError(t, trail.Record(NewEvent("analyst1", ActionBuildNetwork, ResourceNetwork, "hash1")))

	byActor := trail.Events(&Filter{Actor: "analyst1"})
	assert.Len(t, byActor, 2)

	failures := trail.Events(&Filter{Status: StatusFailure})
	require.Len(t, failures, 1)
	assert.Equal(t, "not validated", failures[0].ErrorMessage)

	byResource := trail.Events(&Filter{ResourceType: ResourceNetwork})
	require.Len(t, byResource, 1)
	assert.Equal(t, "hash1", byResource[0].ResourceID)
}

func TestMemoryTrailFilterTimeWindow(t *testing.T) {
	trail := NewMemoryTrail(10)

	old := NewEvent("a", ActionRegister, ResourceCPT, "cpt-old")
	old.Timestamp = time.Now().Add(-2 * time.Hour)
	require.NoError(t, trail.Record(old))
	require.NoError(t, trail.Record(NewEvent("a", ActionRegister, ResourceCPT, "cpt-new")))

	cutoff := time.Now().Add(-time.Hour)
	recent := trail.Events(&Filter{StartTime: &cutoff})
	require.Len(t, recent, 1)
	assert.Equal(t, "cpt-new", recent[0].ResourceID)
}

func TestMemoryTrailRecent(t *testing.T) {
	trail := NewMemoryTrail(10)
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, trail.Record(NewEvent("a", ActionRegister, ResourceCPT, id)))
	}

	recent := trail.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].ResourceID)
	assert.Equal(t, "second", recent[1].ResourceID)
}

func TestPersistentTrailChainVerifies(t *testing.T) {
	dir := t.TempDir()
	trail, err := NewPersistentTrail(PersistentConfig{Dir: dir})
	require.NoError(t, err)

	ev := NewEvent("approver1", ActionApprove, ResourceCPT, "cpt-7")
	ev.Metadata = map[string]any{"version": 3, "network_hash": "abc123"}
	require.NoError(t, trail.Record(ev))
	require.NoError(t, trail.Record(NewEvent("engine", ActionEvaluate, ResourceEvaluation, "run-1")))
	require.NoError(t, trail.Record(NewFailedEvent("analyst", ActionValidate, ResourceCPT, "cpt-8", "row 2 sums to 0.9")))
	require.NoError(t, trail.Close())

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	verified, err := Verify(files[0])
	require.NoError(t, err)
	assert.Equal(t, 3, verified)
}

func TestPersistentTrailResumesChain(t *testing.T) {
	dir := t.TempDir()

	trail, err := NewPersistentTrail(PersistentConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, trail.Record(NewEvent("a", ActionRegister, ResourceCPT, "cpt-1")))
	require.NoError(t, trail.Close())

	// Reopen and append: the chain must continue, not restart
	trail, err = NewPersistentTrail(PersistentConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, trail.Record(NewEvent("a", ActionValidate, ResourceCPT, "cpt-1")))
	require.NoError(t, trail.Close())

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	verified, err := Verify(files[0])
	require.NoError(t, err)
	assert.Equal(t, 2, verified)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	trail, err := NewPersistentTrail(PersistentConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, trail.Record(NewEvent("a", ActionApprove, ResourceCPT, "cpt-1")))
	require.NoError(t, trail.Record(NewEvent("a", ActionApprove, ResourceCPT, "cpt-2")))
	require.NoError(t, trail.Close())

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	tamper(t, files[0], "cpt-2", "cpt-9")

	_, err = Verify(files[0])
	assert.Error(t, err)
}
