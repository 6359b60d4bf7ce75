// Package fanin collapses combinatorially wide parent sets into a small
// number of semantically labeled aggregator nodes. A child with N direct
// parents needs a table exponential in N; clustering the parents and
// inserting one noisy-OR intermediate per cluster reduces the child's
// table to a small product over the intermediates while preserving the
// explaining-away behavior of the underlying evidence.
package fanin

import (
	"fmt"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

// DefaultThreshold is the parent count above which reduction kicks in.
const DefaultThreshold = 4

// Cluster is one caller-supplied semantic grouping of parents, for example
// "market impact" or "behavioral intent". Leak and per-member influences
// are configuration, one set per cluster.
type Cluster struct {
	Name       string             `json:"name" yaml:"name"`
	Members    []string           `json:"members" yaml:"members"`
	Leak       float64            `json:"leak" yaml:"leak"`
	Influences map[string]float64 `json:"influences" yaml:"influences"`
}

// ChildConfig describes how the reduced child combines its intermediates
// when no explicit cluster-level CPT is supplied.
type ChildConfig struct {
	Leak              float64            `json:"leak" yaml:"leak"`
	ClusterInfluences map[string]float64 `json:"cluster_influences" yaml:"cluster_influences"`
}

// Intermediate is one synthesized aggregator node plus its noisy-OR table.
type Intermediate struct {
	Node    *nodes.Node
	Parents []string
	Table   *cpt.Table
}

// Reduction is the outcome of reducing one child: the intermediates to
// insert, the child's new parent list (the intermediate ids, in cluster
// order) and the child's rewritten table over those intermediates.
type Reduction struct {
	Intermediates []*Intermediate
	ChildParents  []string
	ChildTable    *cpt.Table
}

// Reducer builds fan-in reductions.
type Reducer struct {
	logger logging.Logger
}

// NewReducer creates a reducer.
func NewReducer(logger logging.Logger) *Reducer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reducer{logger: logger}
}

// Reduce partitions the child's parents into the given clusters and
// synthesizes one binary noisy-OR intermediate per cluster. Every parent
// must be assigned to exactly one cluster and every member must carry an
// influence parameter; anything else is a ConfigurationError.
func (r *Reducer) Reduce(child *nodes.Node, parents []*nodes.Node, clusters []Cluster, childCfg ChildConfig) (*Reduction, error) {
	if len(clusters) == 0 {
		return nil, &ConfigurationError{ChildID: child.ID, Reason: "no clusters configured"}
	}

	parentByID := make(map[string]*nodes.Node, len(parents))
	for _, p := range parents {
		parentByID[p.ID] = p
	}

	assigned := make(map[string]string, len(parents))
	reduction := &Reduction{}

	for _, cluster := range clusters {
		if cluster.Name == "" {
			return nil, &ConfigurationError{ChildID: child.ID, Reason: "cluster with empty name"}
		}
		if len(cluster.Members) == 0 {
			return nil, &ConfigurationError{ChildID: child.ID, Cluster: cluster.Name, Reason: "cluster has no members"}
		}
		if cluster.Leak < 0 || cluster.Leak >= 1 {
			return nil, &ConfigurationError{
				ChildID: child.ID, Cluster: cluster.Name,
				Reason: fmt.Sprintf("leak %.4f outside [0,1)", cluster.Leak),
			}
		}

		memberNodes := make([]*nodes.Node, 0, len(cluster.Members))
		cards := make([]int, 0, len(cluster.Members))
		influences := make([]float64, 0, len(cluster.Members))
		for _, member := range cluster.Members {
			parent, ok := parentByID[member]
			if !ok {
				return nil, &ConfigurationError{
					ChildID: child.ID, Cluster: cluster.Name,
					Reason: fmt.Sprintf("member %q is not a parent of the child", member),
				}
			}
			if prev, dup := assigned[member]; dup {
				return nil, &ConfigurationError{
					ChildID: child.ID, Cluster: cluster.Name,
					Reason: fmt.Sprintf("parent %q already assigned to cluster %q", member, prev),
				}
			}
			influence, ok := cluster.Influences[member]
			if !ok {
				return nil, &ConfigurationError{
					ChildID: child.ID, Cluster: cluster.Name,
					Reason: fmt.Sprintf("no influence configured for member %q", member),
				}
			}
			if influence < 0 || influence > 1 {
				return nil, &ConfigurationError{
					ChildID: child.ID, Cluster: cluster.Name,
					Reason: fmt.Sprintf("influence %.4f for member %q outside [0,1]", influence, member),
				}
			}
			assigned[member] = cluster.Name
			memberNodes = append(memberNodes, parent)
			cards = append(cards, parent.Cardinality())
			influences = append(influences, influence)
		}

		intermediate := r.buildIntermediate(child, cluster, memberNodes, cards, influences)
		reduction.Intermediates = append(reduction.Intermediates, intermediate)
		reduction.ChildParents = append(reduction.ChildParents, intermediate.Node.ID)
	}

	// Every direct parent must end up in some cluster
	for _, p := range parents {
		if _, ok := assigned[p.ID]; !ok {
			return nil, &ConfigurationError{
				ChildID: child.ID,
				Reason:  fmt.Sprintf("parent %q not assigned to any cluster", p.ID),
			}
		}
	}

	childTable, err := r.buildChildTable(child, clusters, childCfg)
	if err != nil {
		return nil, err
	}
	reduction.ChildTable = childTable

	r.logger.Info("fan-in reduction applied",
		logging.NodeID(child.ID),
		logging.Int("parents", len(parents)),
		logging.Int("intermediates", len(reduction.Intermediates)))
	return reduction, nil
}

// buildIntermediate synthesizes one binary aggregator for a cluster. Its
// fallback prior is the noisy-OR activation under every member's fallback
// prior, so an entirely unobserved cluster defaults consistently.
func (r *Reducer) buildIntermediate(child *nodes.Node, cluster Cluster, members []*nodes.Node, cards []int, influences []float64) *Intermediate {
	inactive := 1 - cluster.Leak
	for i, member := range members {
		inactive *= 1 - influences[i]*ExpectedActivation(member.FallbackPrior)
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}

	return &Intermediate{
		Node: &nodes.Node{
			ID:            child.ID + "__" + cluster.Name,
			Kind:          nodes.KindIntermediate,
			States:        []string{"inactive", "active"},
			FallbackPrior: []float64{inactive, 1 - inactive},
		},
		Parents: memberIDs,
		Table:   BuildTable(cluster.Leak, cards, influences),
	}
}

// buildChildTable rewrites the child's CPT over the intermediates as a
// noisy-OR of clusters. Synthesis only supports binary children; a
// multi-state child must ship an explicit cluster-level table instead.
func (r *Reducer) buildChildTable(child *nodes.Node, clusters []Cluster, cfg ChildConfig) (*cpt.Table, error) {
	if child.Cardinality() != 2 {
		return nil, &ConfigurationError{
			ChildID: child.ID,
			Reason: fmt.Sprintf(
				"cannot synthesize a cluster-level table for a %d-state child; supply an explicit CPT over the intermediates",
				child.Cardinality()),
		}
	}
	if cfg.Leak < 0 || cfg.Leak >= 1 {
		return nil, &ConfigurationError{
			ChildID: child.ID,
			Reason:  fmt.Sprintf("child leak %.4f outside [0,1)", cfg.Leak),
		}
	}

	cards := make([]int, len(clusters))
	influences := make([]float64, len(clusters))
	for i, cluster := range clusters {
		cards[i] = 2
		influence, ok := cfg.ClusterInfluences[cluster.Name]
		if !ok {
			return nil, &ConfigurationError{
				ChildID: child.ID, Cluster: cluster.Name,
				Reason: "no cluster influence configured for the reduced child",
			}
		}
		if influence < 0 || influence > 1 {
			return nil, &ConfigurationError{
				ChildID: child.ID, Cluster: cluster.Name,
				Reason: fmt.Sprintf("cluster influence %.4f outside [0,1]", influence),
			}
		}
		influences[i] = influence
	}
	return BuildTable(cfg.Leak, cards, influences), nil
}
