package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/audit"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/config"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/validation"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Audit.DisablePersistence = true
	eng, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// defineSpoofingNodes registers a minimal two-evidence spoofing scenario.
func defineSpoofingNodes(t *testing.T, eng *Engine) {
	t.Helper()
	defs := []*nodes.Node{
		{ID: "order_burst", Kind: nodes.KindEvidence,
			States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
		{ID: "cancel_spike", Kind: nodes.KindEvidence,
			States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
		{ID: "spoofing_risk", Kind: nodes.KindOutcome,
			States: []string{"low", "elevated"}, FallbackPrior: []float64{0.99, 0.01}},
	}
	for _, def := range defs {
		require.NoError(t, eng.Registry().Define(def))
	}
}

// approveSpoofingCPT walks a symmetric risk table through the full
// draft -> validated -> approved lifecycle.
func approveSpoofingCPT(t *testing.T, eng *Engine) string {
	t.Helper()
	rec, err := eng.RegisterDraft("analyst", &validation.DraftRequest{
		ChildID:   "spoofing_risk",
		ParentIDs: []string{"order_burst", "cancel_spike"},
		Rows: [][]float64{
			{0.95, 0.05},
			{0.4, 0.6},
			{0.4, 0.6},
			{0.1, 0.9},
		},
		Description:    "spoofing risk from order flow anomalies",
		RegulatoryRefs: []string{"MAR Art. 12(1)(a)"},
		Typologies:     []string{"spoofing"},
	})
	require.NoError(t, err)
	require.NoError(t, eng.ValidateCPT("reviewer", rec.ID))
	_, err = eng.ApproveCPT("supervisor", rec.ID)
	require.NoError(t, err)
	return rec.ID
}

func spoofingSpec() *network.Spec {
	return &network.Spec{
		Name:    "spoofing",
		Version: "1",
		Nodes: []network.NodeSpec{
			{ID: "order_burst"},
			{ID: "cancel_spike"},
			{ID: "spoofing_risk"},
		},
		Edges: []network.EdgeSpec{
			{Parent: "order_burst", Child: "spoofing_risk"},
			{Parent: "cancel_spike", Child: "spoofing_risk"},
		},
		CPTs: []network.CPTSpec{{Child: "spoofing_risk"}},
	}
}

func TestEngineLifecycleEndToEnd(t *testing.T) {
	eng := testEngine(t)
	defineSpoofingNodes(t, eng)
	approveSpoofingCPT(t, eng)

	net, err := eng.BuildNetwork("operator", spoofingSpec())
	require.NoError(t, err)
	assert.Equal(t, "spoofing", net.Name())
	assert.Contains(t, eng.Networks(), "spoofing")

	eval, err := eng.Evaluate(context.Background(), "operator", &validation.EvaluateRequest{
		Network:  "spoofing",
		Evidence: map[string]string{"order_burst": "present"},
		Query:    []string{"spoofing_risk"},
	})
	require.NoError(t, err)

	// One parent observed active, the other on its [0.9, 0.1] fallback:
	// P(elevated) = 0.9*0.6 + 0.1*0.9
	post := eval.Inference.Posteriors["spoofing_risk"]
	assert.InDelta(t, 0.63, post.Probs[1], 1e-9)
	assert.InDelta(t, 0.5, eval.Inference.Completeness, 1e-9)
	assert.Equal(t, []string{"cancel_spike"}, eval.Inference.FallbackUsed)

	require.NotNil(t, eval.ESI)
	assert.Greater(t, eval.ESI.Score, 0.0)
	assert.LessOrEqual(t, eval.ESI.Score, 1.0)
	assert.NotEmpty(t, eval.ESI.Label)

	// The full lifecycle leaves an audit trace
	actions := make(map[audit.Action]bool)
	for _, event := range eng.RecentEvents(50) {
		actions[event.Action] = true
	}
	for _, want := range []audit.Action{
		audit.ActionRegister, audit.ActionValidate, audit.ActionApprove,
		audit.ActionBuildNetwork, audit.ActionEvaluate,
	} {
		assert.True(t, actions[want], "missing audit action %s", want)
	}
}

func TestEngineRegisterDraftUnknownParent(t *testing.T) {
	eng := testEngine(t)
	defineSpoofingNodes(t, eng)

	_, err := eng.RegisterDraft("analyst", &validation.DraftRequest{
		ChildID:   "spoofing_risk",
		ParentIDs: []string{"no_such_node"},
		Rows:      [][]float64{{0.5, 0.5}, {0.5, 0.5}},
	})
	assert.Error(t, err)
}

func TestEngineApproveRequiresValidated(t *testing.T) {
	eng := testEngine(t)
	defineSpoofingNodes(t, eng)

	rec, err := eng.RegisterDraft("analyst", &validation.DraftRequest{
		ChildID:   "spoofing_risk",
		ParentIDs: []string{"order_burst", "cancel_spike"},
		Rows: [][]float64{
			{0.95, 0.05}, {0.4, 0.6}, {0.4, 0.6}, {0.1, 0.9},
		},
	})
	require.NoError(t, err)

	_, err = eng.ApproveCPT("supervisor", rec.ID)
	assert.Error(t, err)
}

func TestEngineEvaluateUnknownNetwork(t *testing.T) {
	eng := testEngine(t)

	_, err := eng.Evaluate(context.Background(), "operator", &validation.EvaluateRequest{
		Network: "missing",
		Query:   []string{"spoofing_risk"},
	})
	assert.ErrorContains(t, err, "unknown network")
}

func TestEngineBuildNetworkCacheHit(t *testing.T) {
	eng := testEngine(t)
	defineSpoofingNodes(t, eng)
	approveSpoofingCPT(t, eng)

	first, err := eng.BuildNetwork("operator", spoofingSpec())
	require.NoError(t, err)
	second, err := eng.BuildNetwork("operator", spoofingSpec())
	require.NoError(t, err)
	assert.Equal(t, first.Hash(), second.Hash())
	assert.Same(t, first, second)
}

func TestEngineEvaluateBatch(t *testing.T) {
	eng := testEngine(t)
	defineSpoofingNodes(t, eng)
	approveSpoofingCPT(t, eng)
	_, err := eng.BuildNetwork("operator", spoofingSpec())
	require.NoError(t, err)

	items := []BatchItem{
		{ID: "alert-1", Request: &validation.EvaluateRequest{
			Network:  "spoofing",
			Evidence: map[string]string{"order_burst": "present", "cancel_spike": "present"},
			Query:    []string{"spoofing_risk"},
		}},
		{ID: "alert-2", Request: &validation.EvaluateRequest{
			Network: "spoofing",
			Query:   []string{"spoofing_risk"},
		}},
		{ID: "alert-3", Request: &validation.EvaluateRequest{
			Network: "missing",
			Query:   []string{"spoofing_risk"},
		}},
	}

	results, err := eng.EvaluateBatch("operator", items)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[string]BatchResult, len(results))
	for _, res := range results {
		byID[res.ID] = res
	}

	require.NoError(t, byID["alert-1"].Err)
	post := byID["alert-1"].Evaluation.Inference.Posteriors["spoofing_risk"]
	assert.InDelta(t, 0.9, post.Probs[1], 1e-9)

	require.NoError(t, byID["alert-2"].Err)
	assert.InDelta(t, 0.0, byID["alert-2"].Evaluation.Inference.Completeness, 1e-9)

	assert.ErrorContains(t, byID["alert-3"].Err, "unknown network")
}

func TestEngineInstallBuiltinTypologies(t *testing.T) {
	eng := testEngine(t)
	require.NoError(t, eng.InstallBuiltinTypologies())

	for _, typology := range []string{"insider_dealing", "spoofing", "wash_trading"} {
		assert.NotEmpty(t, eng.Library().FindByTypology(typology), typology)
	}
}

func TestEngineRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Backend = "tape"
	_, err := New(cfg, logging.Nop())
	assert.Error(t, err)
}

func TestEngineConfiguredFanInThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.DisablePersistence = true
	cfg.FanIn.Threshold = 1
	eng, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	defineSpoofingNodes(t, eng)
	approveSpoofingCPT(t, eng)

	// Two parents exceed the configured engine-wide threshold and the
	// spec configures no clusters
	_, err = eng.BuildNetwork("operator", spoofingSpec())
	var cfgErr *network.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "spoofing_risk", cfgErr.NodeID)
	assert.Contains(t, cfgErr.Reason, "fan-in threshold 1")
}
