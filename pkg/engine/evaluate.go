package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/audit"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/esi"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/events"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/evidence"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/inference"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/validation"
)

// Evaluation is the complete outcome of one scored inference run:
// posteriors with provenance, plus the strength index over them.
type Evaluation struct {
	Network     string            `json:"network"`
	NetworkHash string            `json:"network_hash"`
	Inference   *inference.Result `json:"inference"`
	ESI         *esi.Result       `json:"esi"`
}

// RegisterNetworkSpec parses a YAML network specification and compiles
// it, making it available for evaluation under its spec name.
func (e *Engine) RegisterNetworkSpec(actor string, data []byte) (*network.CompiledNetwork, error) {
	spec, err := network.ParseSpec(data)
	if err != nil {
		e.metrics.RecordNetworkBuild("failure", 0, false)
		return nil, err
	}
	return e.BuildNetwork(actor, spec)
}

// BuildNetwork compiles a spec and registers the result under the spec
// name, replacing any previous compilation of that name.
func (e *Engine) BuildNetwork(actor string, spec *network.Spec) (*network.CompiledNetwork, error) {
	cacheHit := false
	if spec != nil {
		if hash, err := spec.Hash(); err == nil {
			_, cacheHit = e.cache.Get(hash)
		}
	}

	started := time.Now()
	net, err := e.builder.Build(spec)
	elapsed := time.Since(started)
	if err != nil {
		e.metrics.RecordNetworkBuild("failure", elapsed, false)
		name := ""
		if spec != nil {
			name = spec.Name
		}
		e.record(audit.NewFailedEvent(actor, audit.ActionBuildNetwork, audit.ResourceNetwork, name, err.Error()))
		return nil, err
	}

	e.mu.Lock()
	e.networks[net.Name()] = net
	e.mu.Unlock()

	e.metrics.RecordNetworkBuild("success", elapsed, cacheHit)
	e.metrics.NetworkNodesTotal.WithLabelValues("compiled").Observe(float64(net.Len()))

	event := audit.NewEvent(actor, audit.ActionBuildNetwork, audit.ResourceNetwork, net.Name())
	event.Metadata = map[string]any{
		"hash":      net.Hash(),
		"nodes":     net.Len(),
		"cache_hit": cacheHit,
	}
	e.record(event)
	e.publish(events.TopicNetworkCompiled, map[string]any{
		"network": net.Name(),
		"hash":    net.Hash(),
		"nodes":   net.Len(),
	})
	return net, nil
}

// Evaluate runs one scored inference: resolve evidence against the named
// network, compute posteriors for the query nodes, score the result. The
// configured task timeout bounds the run on top of any caller deadline.
func (e *Engine) Evaluate(ctx context.Context, actor string, req *validation.EvaluateRequest) (*Evaluation, error) {
	if err := validation.ValidateEvaluateRequest(req); err != nil {
		return nil, err
	}

	net, ok := e.Network(req.Network)
	if !ok {
		return nil, fmt.Errorf("unknown network %q", req.Network)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Inference.TaskTimeout)
	defer cancel()

	res, err := evidence.Resolve(net, evidence.Assignment(req.Evidence))
	if err != nil {
		e.recordEvaluateFailure(actor, net, err, 0)
		return nil, err
	}

	started := time.Now()
	result, err := e.executor.Infer(ctx, net, res, req.Query)
	if err != nil {
		e.recordEvaluateFailure(actor, net, err, time.Since(started))
		return nil, err
	}

	score := e.scorer.Compute(net, result)
	e.metrics.RecordInference(net.Name(), "success", result.Elapsed,
		result.Completeness, len(result.FallbackUsed))
	e.metrics.RecordEvaluation(net.Name(), "success", score.Score, string(score.Label))

	event := audit.NewEvent(actor, audit.ActionEvaluate, audit.ResourceEvaluation, net.Name())
	event.Metadata = map[string]any{
		"network_hash": net.Hash(),
		"query":        req.Query,
		"completeness": result.Completeness,
		"fallback":     result.FallbackUsed,
		"esi_score":    score.Score,
		"esi_label":    string(score.Label),
	}
	e.record(event)
	e.publish(events.TopicEvaluationScored, map[string]any{
		"network":      net.Name(),
		"network_hash": net.Hash(),
		"esi_score":    score.Score,
		"esi_label":    string(score.Label),
		"completeness": result.Completeness,
	})

	e.logger.Info("evaluation complete",
		logging.Component("engine"),
		logging.String("network", net.Name()),
		logging.Float64("esi_score", score.Score),
		logging.String("esi_label", string(score.Label)),
		logging.Duration("elapsed", result.Elapsed))

	return &Evaluation{
		Network:     net.Name(),
		NetworkHash: net.Hash(),
		Inference:   result,
		ESI:         score,
	}, nil
}

func (e *Engine) recordEvaluateFailure(actor string, net *network.CompiledNetwork, cause error, elapsed time.Duration) {
	status := "failure"
	var timeoutErr *inference.TimeoutError
	if errors.As(cause, &timeoutErr) {
		status = "timeout"
	}
	e.metrics.RecordInference(net.Name(), status, elapsed, 0, 0)
	e.metrics.RecordEvaluation(net.Name(), status, 0, "")
	e.record(audit.NewFailedEvent(actor, audit.ActionEvaluate, audit.ResourceEvaluation, net.Name(), cause.Error()))
}

// BatchItem pairs one evaluation request with a correlation id.
type BatchItem struct {
	ID      string
	Request *validation.EvaluateRequest
}

// BatchResult carries the outcome for one batch item; exactly one of
// Evaluation and Err is set.
type BatchResult struct {
	ID         string
	Evaluation *Evaluation
	Err        error
	TimedOut   bool
}

// EvaluateBatch runs a set of evaluations across the configured worker
// count, for bulk rescans after a CPT version change. Results come back
// keyed by item id, in no particular order.
func (e *Engine) EvaluateBatch(actor string, items []BatchItem) ([]BatchResult, error) {
	pool := inference.NewPoolWithTimeout(e.executor,
		e.cfg.Inference.Workers, e.cfg.Inference.TaskTimeout, e.logger)
	pool.Start()

	nets := make(map[string]*network.CompiledNetwork, len(items))
	out := make([]BatchResult, 0, len(items))
	submitted := 0
	for _, item := range items {
		if err := validation.ValidateEvaluateRequest(item.Request); err != nil {
			out = append(out, BatchResult{ID: item.ID, Err: err})
			continue
		}
		net, ok := e.Network(item.Request.Network)
		if !ok {
			out = append(out, BatchResult{
				ID:  item.ID,
				Err: fmt.Errorf("unknown network %q", item.Request.Network),
			})
			continue
		}
		nets[item.ID] = net
		if err := pool.Submit(inference.Task{
			ID:       item.ID,
			Network:  net,
			Evidence: evidence.Assignment(item.Request.Evidence),
			Query:    item.Request.Query,
		}); err != nil {
			out = append(out, BatchResult{ID: item.ID, Err: err})
			continue
		}
		submitted++
	}

	go pool.Stop()
	for tr := range pool.Results() {
		net := nets[tr.TaskID]
		br := BatchResult{ID: tr.TaskID, Err: tr.Err, TimedOut: tr.TimedOut}
		if tr.Err == nil {
			score := e.scorer.Compute(net, tr.Result)
			br.Evaluation = &Evaluation{
				Network:     net.Name(),
				NetworkHash: net.Hash(),
				Inference:   tr.Result,
				ESI:         score,
			}
			e.metrics.RecordInference(net.Name(), "success", tr.Result.Elapsed,
				tr.Result.Completeness, len(tr.Result.FallbackUsed))
			e.metrics.RecordEvaluation(net.Name(), "success", score.Score, string(score.Label))
		} else {
			status := "failure"
			if tr.TimedOut {
				status = "timeout"
			}
			e.metrics.RecordInference(net.Name(), status, tr.Duration, 0, 0)
			e.metrics.RecordEvaluation(net.Name(), status, 0, "")
		}
		out = append(out, br)
	}

	event := audit.NewEvent(actor, audit.ActionEvaluate, audit.ResourceEvaluation, "batch")
	event.Metadata = map[string]any{"items": len(items), "submitted": submitted}
	e.record(event)
	return out, nil
}
