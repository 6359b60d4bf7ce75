package fanin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

func TestActivation(t *testing.T) {
	assert.Equal(t, 0.0, Activation(0, 2))
	assert.Equal(t, 1.0, Activation(1, 2))
	assert.Equal(t, 0.5, Activation(1, 3))
	assert.Equal(t, 0.0, Activation(0, 1))
}

func TestBuildTableNoisyOR(t *testing.T) {
	leak := 0.02
	table := BuildTable(leak, []int{2, 2, 2}, []float64{0.8, 0.6, 0.4})

	require.Len(t, table.Rows, 8)
	for _, row := range table.Rows {
		assert.True(t, prob.IsDistribution(row))
	}

	// All parents inactive: only the leak fires
	assert.InDelta(t, leak, table.Rows[0][1], 1e-12)

	// First parent active, rest inactive
	row := table.Rows[4] // states (1,0,0)
	assert.InDelta(t, 1-(1-leak)*(1-0.8), row[1], 1e-12)

	// All parents active
	row = table.Rows[7]
	assert.InDelta(t, 1-(1-leak)*0.2*0.4*0.6, row[1], 1e-12)
}

func TestBuildTableMonotoneInParents(t *testing.T) {
	table := BuildTable(0.01, []int{2, 2}, []float64{0.7, 0.5})

	// Activating any parent can only raise the activation probability
	assert.Less(t, table.Rows[0][1], table.Rows[1][1])
	assert.Less(t, table.Rows[1][1], table.Rows[3][1])
	assert.Less(t, table.Rows[0][1], table.Rows[2][1])
	assert.Less(t, table.Rows[2][1], table.Rows[3][1])
}

func TestBuildTableGradedParent(t *testing.T) {
	// A three-state parent exerts half influence in its middle state
	table := BuildTable(0, []int{3}, []float64{0.8})
	assert.InDelta(t, 0.0, table.Rows[0][1], 1e-12)
	assert.InDelta(t, 0.4, table.Rows[1][1], 1e-12)
	assert.InDelta(t, 0.8, table.Rows[2][1], 1e-12)
}

func TestExpectedActivation(t *testing.T) {
	assert.InDelta(t, 0.1, ExpectedActivation([]float64{0.9, 0.1}), 1e-12)
	assert.InDelta(t, 0.5, ExpectedActivation([]float64{0.25, 0.5, 0.25}), 1e-12)
}

func evidenceNode(id string) *nodes.Node {
	return &nodes.Node{
		ID:            id,
		Kind:          nodes.KindEvidence,
		States:        []string{"absent", "present"},
		FallbackPrior: []float64{0.9, 0.1},
	}
}

func riskChild() *nodes.Node {
	return &nodes.Node{
		ID:            "wash_trading_risk",
		Kind:          nodes.KindOutcome,
		States:        []string{"low", "elevated"},
		FallbackPrior: []float64{0.99, 0.01},
	}
}

func testClusters() []Cluster {
	return []Cluster{
		{
			Name:    "volume",
			Members: []string{"self_match_rate", "turnover_spike"},
			Leak:    0.01,
			Influences: map[string]float64{
				"self_match_rate": 0.8,
				"turnover_spike":  0.5,
			},
		},
		{
			Name:    "pricing",
			Members: []string{"zero_pnl_trades", "price_stasis", "quote_mirroring"},
			Leak:    0.02,
			Influences: map[string]float64{
				"zero_pnl_trades": 0.7,
				"price_stasis":    0.4,
				"quote_mirroring": 0.6,
			},
		},
	}
}

func testChildConfig() ChildConfig {
	return ChildConfig{
		Leak: 0.01,
		ClusterInfluences: map[string]float64{
			"volume":  0.75,
			"pricing": 0.65,
		},
	}
}

func testParents() []*nodes.Node {
	ids := []string{"self_match_rate", "turnover_spike", "zero_pnl_trades", "price_stasis", "quote_mirroring"}
	parents := make([]*nodes.Node, len(ids))
	for i, id := range ids {
		parents[i] = evidenceNode(id)
	}
	return parents
}

func TestReduceBuildsIntermediates(t *testing.T) {
	reducer := NewReducer(nil)

	reduction, err := reducer.Reduce(riskChild(), testParents(), testClusters(), testChildConfig())
	require.NoError(t, err)

	require.Len(t, reduction.Intermediates, 2)
	assert.Equal(t, []string{
		"wash_trading_risk__volume",
		"wash_trading_risk__pricing",
	}, reduction.ChildParents)

	volume := reduction.Intermediates[0]
	assert.Equal(t, nodes.KindIntermediate, volume.Node.Kind)
	assert.Equal(t, []string{"inactive", "active"}, volume.Node.States)
	assert.Equal(t, []string{"self_match_rate", "turnover_spike"}, volume.Parents)
	assert.Len(t, volume.Table.Rows, 4)

	pricing := reduction.Intermediates[1]
	assert.Len(t, pricing.Table.Rows, 8)

	// Child table spans the two binary intermediates
	require.NotNil(t, reduction.ChildTable)
	assert.Len(t, reduction.ChildTable.Rows, 4)
	for _, row := range reduction.ChildTable.Rows {
		assert.True(t, prob.IsDistribution(row))
	}
}

func TestReduceIntermediateFallbackPrior(t *testing.T) {
	reducer := NewReducer(nil)

	reduction, err := reducer.Reduce(riskChild(), testParents(), testClusters(), testChildConfig())
	require.NoError(t, err)

	// The aggregate's fallback is the noisy-OR under every member's prior
	volume := reduction.Intermediates[0]
	wantInactive := (1 - 0.01) * (1 - 0.8*0.1) * (1 - 0.5*0.1)
	assert.InDelta(t, wantInactive, volume.Node.FallbackPrior[0], 1e-12)
	assert.True(t, prob.IsDistribution(volume.Node.FallbackPrior))
}

func TestReduceUnassignedParent(t *testing.T) {
	reducer := NewReducer(nil)

	clusters := testClusters()
	clusters[1].Members = clusters[1].Members[:2] // quote_mirroring left out
	delete(clusters[1].Influences, "quote_mirroring")

	_, err := reducer.Reduce(riskChild(), testParents(), clusters, testChildConfig())
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "quote_mirroring")
}

func TestReduceUnknownMember(t *testing.T) {
	reducer := NewReducer(nil)

	clusters := testClusters()
	clusters[0].Members = append(clusters[0].Members, "phantom")
	clusters[0].Influences["phantom"] = 0.5

	_, err := reducer.Reduce(riskChild(), testParents(), clusters, testChildConfig())
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestReduceMissingInfluence(t *testing.T) {
	reducer := NewReducer(nil)

	clusters := testClusters()
	delete(clusters[0].Influences, "turnover_spike")

	_, err := reducer.Reduce(riskChild(), testParents(), clusters, testChildConfig())
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestReduceDoubleAssignment(t *testing.T) {
	reducer := NewReducer(nil)

	clusters := testClusters()
	clusters[1].Members = append(clusters[1].Members, "self_match_rate")
	clusters[1].Influences["self_match_rate"] = 0.3

	_, err := reducer.Reduce(riskChild(), testParents(), clusters, testChildConfig())
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestReduceLeakOutOfRange(t *testing.T) {
	reducer := NewReducer(nil)

	clusters := testClusters()
	clusters[0].Leak = 1.0

	_, err := reducer.Reduce(riskChild(), testParents(), clusters, testChildConfig())
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestReduceMultiStateChildNeedsExplicitTable(t *testing.T) {
	reducer := NewReducer(nil)

	child := riskChild()
	child.States = []string{"low", "medium", "high"}
	child.FallbackPrior = []float64{0.9, 0.08, 0.02}

	_, err := reducer.Reduce(child, testParents(), testClusters(), testChildConfig())
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestReduceMissingClusterInfluence(t *testing.T) {
	reducer := NewReducer(nil)

	cfg := testChildConfig()
	delete(cfg.ClusterInfluences, "pricing")

	_, err := reducer.Reduce(riskChild(), testParents(), testClusters(), cfg)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
}
