package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/evidence"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/fanin"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/prob"
)

// riskSpec builds a three-signal noisy-OR risk network: binary evidence
// nodes a, b, c feeding a binary risk node with the given leak and
// influences.
func riskSpec(name string, leak float64, influences []float64) *network.Spec {
	rows := fanin.BuildTable(leak, []int{2, 2, 2}, influences).Rows
	return &network.Spec{
		Name:    name,
		Version: "1",
		Nodes: []network.NodeSpec{
			{ID: name + "_a", Kind: nodes.KindEvidence, States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
			{ID: name + "_b", Kind: nodes.KindEvidence, States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
			{ID: name + "_c", Kind: nodes.KindEvidence, States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
			{ID: name + "_risk", Kind: nodes.KindOutcome, States: []string{"inactive", "active"}, FallbackPrior: []float64{0.99, 0.01}},
		},
		Edges: []network.EdgeSpec{
			{Parent: name + "_a", Child: name + "_risk"},
			{Parent: name + "_b", Child: name + "_risk"},
			{Parent: name + "_c", Child: name + "_risk"},
		},
		CPTs: []network.CPTSpec{
			{Child: name + "_risk", Rows: rows},
		},
	}
}

func buildNetwork(t *testing.T, spec *network.Spec) *network.CompiledNetwork {
	t.Helper()
	registry := nodes.NewRegistry()
	library := cpt.NewLibrary(registry)
	builder := network.NewBuilder(registry, library)
	net, err := builder.Build(spec)
	require.NoError(t, err)
	return net
}

func TestInferNoisyORWithFallback(t *testing.T) {
	// a observed present, b observed absent, c missing and completed
	// from its fallback prior [0.9, 0.1]. With leak 0.02 and influences
	// [0.8, 0.6, 0.4]:
	//   P(active | a=1, b=0, c=0) = 1 - 0.98*0.2       = 0.804
	//   P(active | a=1, b=0, c=1) = 1 - 0.98*0.2*0.6   = 0.8824
	//   P(active) = 0.9*0.804 + 0.1*0.8824             = 0.81184
	spec := riskSpec("t1", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	res, err := evidence.Resolve(net, evidence.Assignment{
		"t1_a": "present",
		"t1_b": "absent",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1_c"}, res.FallbackUsed)

	exec := NewExecutor(nil)
	result, err := exec.Infer(context.Background(), net, res, []string{"t1_risk"})
	require.NoError(t, err)

	post := result.Posteriors["t1_risk"]
	require.Equal(t, []string{"inactive", "active"}, post.States)
	assert.InDelta(t, 0.81184, post.Probs[1], 1e-9)
	assert.InDelta(t, 1.0, prob.Sum(post.Probs), 1e-9)

	assert.Equal(t, net.Hash(), result.NetworkHash)
	assert.Equal(t, []string{"t1_a", "t1_b"}, result.ActiveNodes)
	assert.Equal(t, []string{"t1_c"}, result.FallbackUsed)
	assert.InDelta(t, 2.0/3.0, result.Completeness, 1e-9)
}

func TestInferMissingEvidenceNeverErrors(t *testing.T) {
	spec := riskSpec("t2", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	// No evidence at all: every evidence node falls back
	res, err := evidence.Resolve(net, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Observed)
	assert.Equal(t, []string{"t2_a", "t2_b", "t2_c"}, res.FallbackUsed)
	assert.Zero(t, res.Completeness)

	exec := NewExecutor(nil)
	result, err := exec.Infer(context.Background(), net, res, []string{"t2_risk"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, prob.Sum(result.Posteriors["t2_risk"].Probs), 1e-9)
}

func TestInferObservedQueryIsDegenerate(t *testing.T) {
	spec := riskSpec("t3", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	res, err := evidence.Resolve(net, evidence.Assignment{"t3_a": "present"})
	require.NoError(t, err)

	exec := NewExecutor(nil)
	result, err := exec.Infer(context.Background(), net, res, []string{"t3_a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, result.Posteriors["t3_a"].Probs)
}

func TestInferUnknownQueryNode(t *testing.T) {
	spec := riskSpec("t4", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	res, err := evidence.Resolve(net, nil)
	require.NoError(t, err)

	exec := NewExecutor(nil)
	_, err = exec.Infer(context.Background(), net, res, []string{"nope"})
	var evErr *evidence.EvidenceError
	require.ErrorAs(t, err, &evErr)
	assert.Equal(t, "nope", evErr.NodeID)
}

func TestInferContributionTrace(t *testing.T) {
	spec := riskSpec("t5", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	res, err := evidence.Resolve(net, evidence.Assignment{
		"t5_a": "present",
		"t5_b": "absent",
	})
	require.NoError(t, err)

	exec := NewExecutor(nil)
	result, err := exec.Infer(context.Background(), net, res, []string{"t5_risk"})
	require.NoError(t, err)

	// Every evidence node gets a contribution entry, observed or not
	require.Len(t, result.Contributions, 3)
	for _, id := range []string{"t5_a", "t5_b", "t5_c"} {
		c, ok := result.Contributions[id]
		require.True(t, ok, id)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}

	// a carries influence 0.8 against b's 0.6, and a's observation
	// (present) sits further from its fallback prior than b's (absent),
	// so a must dominate the trace.
	assert.Greater(t, result.Contributions["t5_a"], result.Contributions["t5_b"])
}

func TestInferExplainingAway(t *testing.T) {
	// With a strong cause already observed active, observing the weak
	// cause moves the risk posterior less than it does when the strong
	// cause is absent. The multiplicative inactive term of the noisy-OR
	// is what produces this saturation.
	rows := fanin.BuildTable(0.01, []int{2, 2}, []float64{0.8, 0.3}).Rows
	spec := &network.Spec{
		Name:    "t6",
		Version: "1",
		Nodes: []network.NodeSpec{
			{ID: "t6_strong", Kind: nodes.KindEvidence, States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
			{ID: "t6_weak", Kind: nodes.KindEvidence, States: []string{"absent", "present"}, FallbackPrior: []float64{0.9, 0.1}},
			{ID: "t6_risk", Kind: nodes.KindOutcome, States: []string{"inactive", "active"}, FallbackPrior: []float64{0.99, 0.01}},
		},
		Edges: []network.EdgeSpec{
			{Parent: "t6_strong", Child: "t6_risk"},
			{Parent: "t6_weak", Child: "t6_risk"},
		},
		CPTs: []network.CPTSpec{{Child: "t6_risk", Rows: rows}},
	}
	net := buildNetwork(t, spec)
	exec := NewExecutor(nil)

	active := func(strong, weak string) float64 {
		res, err := evidence.Resolve(net, evidence.Assignment{
			"t6_strong": strong,
			"t6_weak":   weak,
		})
		require.NoError(t, err)
		result, err := exec.Infer(context.Background(), net, res, []string{"t6_risk"})
		require.NoError(t, err)
		return result.Posteriors["t6_risk"].Probs[1]
	}

	liftWithStrong := active("present", "present") - active("present", "absent")
	liftWithoutStrong := active("absent", "present") - active("absent", "absent")
	assert.Less(t, liftWithStrong, liftWithoutStrong)
	assert.Greater(t, liftWithStrong, 0.0)
}

func TestInferDeadline(t *testing.T) {
	spec := riskSpec("t7", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	res, err := evidence.Resolve(net, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(nil)
	_, err = exec.Infer(ctx, net, res, []string{"t7_risk"})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestInferPosteriorProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	exec := NewExecutor(nil)

	properties.Property("posterior is a distribution for any influences", prop.ForAll(
		func(i1, i2, i3, leak float64) bool {
			spec := riskSpec("p1", leak, []float64{i1, i2, i3})
			net := buildNetwork(t, spec)
			res, err := evidence.Resolve(net, evidence.Assignment{"p1_a": "present"})
			if err != nil {
				return false
			}
			result, err := exec.Infer(context.Background(), net, res, []string{"p1_risk"})
			if err != nil {
				return false
			}
			return prob.IsDistribution(result.Posteriors["p1_risk"].Probs)
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 0.5),
	))

	properties.Property("observing a positive-influence cause never lowers risk", prop.ForAll(
		func(i1, i2, i3 float64) bool {
			spec := riskSpec("p2", 0.01, []float64{i1, i2, i3})
			net := buildNetwork(t, spec)

			baseline, err := evidence.Resolve(net, evidence.Assignment{"p2_a": "absent"})
			if err != nil {
				return false
			}
			observed, err := evidence.Resolve(net, evidence.Assignment{"p2_a": "present"})
			if err != nil {
				return false
			}
			base, err := exec.Infer(context.Background(), net, baseline, []string{"p2_risk"})
			if err != nil {
				return false
			}
			obs, err := exec.Infer(context.Background(), net, observed, []string{"p2_risk"})
			if err != nil {
				return false
			}
			return obs.Posteriors["p2_risk"].Probs[1] >= base.Posteriors["p2_risk"].Probs[1]-1e-12
		},
		gen.Float64Range(0.01, 0.99),
		gen.Float64Range(0.01, 0.99),
		gen.Float64Range(0.01, 0.99),
	))

	properties.TestingRun(t)
}

func TestPoolRunsTasks(t *testing.T) {
	spec := riskSpec("t8", 0.02, []float64{0.8, 0.6, 0.4})
	net := buildNetwork(t, spec)

	pool := NewPool(NewExecutor(nil), 4, nil)
	pool.Start()

	const tasks = 20
	go func() {
		for i := 0; i < tasks; i++ {
			obs := evidence.Assignment{"t8_a": "present"}
			if i%2 == 0 {
				obs["t8_b"] = "absent"
			}
			_ = pool.Submit(Task{
				ID:       "task-" + string(rune('a'+i)),
				Network:  net,
				Evidence: obs,
				Query:    []string{"t8_risk"},
			})
		}
		pool.Stop()
	}()

	got := 0
	for result := range pool.Results() {
		require.NoError(t, result.Err)
		require.NotNil(t, result.Result)
		assert.InDelta(t, 1.0, prob.Sum(result.Result.Posteriors["t8_risk"].Probs), 1e-9)
		got++
	}
	assert.Equal(t, tasks, got)

	stats := pool.Stats()
	assert.Equal(t, int64(tasks), stats.Processed)
	assert.Zero(t, stats.TimedOut)
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool := NewPoolWithTimeout(NewExecutor(nil), 1, time.Second, nil)
	pool.Start()
	pool.Stop()

	err := pool.Submit(Task{ID: "late"})
	assert.Error(t, err)
}

func TestValidateTaskTimeout(t *testing.T) {
	assert.Equal(t, DefaultTaskTimeout, ValidateTaskTimeout(0))
	assert.Equal(t, DefaultTaskTimeout, ValidateTaskTimeout(time.Millisecond))
	assert.Equal(t, 5*time.Second, ValidateTaskTimeout(5*time.Second))
}
