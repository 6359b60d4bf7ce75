package cpt

import (
	"fmt"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

// Template is a named, reusable bundle of node and CPT definitions for one
// detection scenario. Instantiating a template into a registry/library
// pair gives every network built from it a consistent sub-graph.
type Template struct {
	Name        string
	Description string
	Nodes       []*nodes.Node
	Drafts      []*Record
}

// Install defines the template's nodes and registers its CPT drafts,
// attaching each to the template's typology. Node definitions shared
// between templates (cross-typology nodes) are tolerated as long as the
// definitions agree.
func (t *Template) Install(registry *nodes.Registry, library *Library) ([]*Record, error) {
	for _, node := range t.Nodes {
		if err := registry.Define(node); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
	}

	registered := make([]*Record, 0, len(t.Drafts))
	for _, draft := range t.Drafts {
		d := draft.Clone()
		d.Meta.Typologies = appendUnique(d.Meta.Typologies, t.Name)
		rec, err := library.Register(d)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		registered = append(registered, rec)
	}
	return registered, nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// binary is the shared two-state space used by catalog evidence nodes.
var binary = []string{"inactive", "active"}

func evidenceNode(id string, activePrior float64) *nodes.Node {
	return &nodes.Node{
		ID:            id,
		Kind:          nodes.KindEvidence,
		States:        binary,
		FallbackPrior: []float64{1 - activePrior, activePrior},
	}
}

func outcomeNode(id string) *nodes.Node {
	return &nodes.Node{
		ID:            id,
		Kind:          nodes.KindOutcome,
		States:        binary,
		FallbackPrior: []float64{0.99, 0.01},
	}
}

// noisyORRows builds the table rows for a binary child with binary parents
// combined by a leaky noisy-OR. The leak is the probability the child
// activates with every parent inactive; influences are per-parent
// activation probabilities. Rows are ordered with the last parent varying
// fastest.
func noisyORRows(leak float64, influences []float64) [][]float64 {
	n := len(influences)
	rows := make([][]float64, 1<<n)
	for combo := range rows {
		inactive := 1 - leak
		for i := 0; i < n; i++ {
			// Bit i of combo is parent i's state, last parent in the low bit
			if combo>>(n-1-i)&1 == 1 {
				inactive *= 1 - influences[i]
			}
		}
		rows[combo] = []float64{inactive, 1 - inactive}
	}
	return rows
}

func noisyORDraft(id, child string, parents []string, leak float64, influences []float64, desc string, refs []string) *Record {
	cards := make([]int, len(parents))
	for i := range cards {
		cards[i] = 2
	}
	return &Record{
		ID:        id,
		ChildID:   child,
		ParentIDs: parents,
		Table: &Table{
			ParentCards: cards,
			Rows:        noisyORRows(leak, influences),
		},
		Meta: Metadata{
			Description:    desc,
			RegulatoryRefs: refs,
		},
	}
}

// BuiltinTemplates returns the surveillance scenario catalog shipped with
// the engine. Leak and influence figures are the reviewed defaults for
// each evidence type; deployments override them through configuration.
func BuiltinTemplates() []*Template {
	return []*Template{
		{
			Name:        "insider_dealing",
			Description: "Trading ahead of material non-public information",
			Nodes: []*nodes.Node{
				evidenceNode("trade_ahead_of_announcement", 0.05),
				evidenceNode("pnl_outlier", 0.10),
				evidenceNode("comms_intent_signal", 0.02),
				outcomeNode("insider_dealing_risk"),
			},
			Drafts: []*Record{
				noisyORDraft(
					"cpt-insider-dealing-v1",
					"insider_dealing_risk",
					[]string{"trade_ahead_of_announcement", "pnl_outlier", "comms_intent_signal"},
					0.01, []float64{0.85, 0.55, 0.70},
					"Insider dealing outcome given timing, P&L and communications evidence",
					[]string{"MAR Art.8", "MAR Art.14"},
				),
			},
		},
		{
			Name:        "spoofing",
			Description: "Orders placed without intent to execute to move the price",
			Nodes: []*nodes.Node{
				evidenceNode("order_cancellation_ratio", 0.08),
				evidenceNode("order_book_imbalance", 0.12),
				evidenceNode("rapid_order_replacement", 0.06),
				outcomeNode("spoofing_risk"),
			},
			Drafts: []*Record{
				noisyORDraft(
					"cpt-spoofing-v1",
					"spoofing_risk",
					[]string{"order_cancellation_ratio", "order_book_imbalance", "rapid_order_replacement"},
					0.02, []float64{0.80, 0.60, 0.65},
					"Spoofing outcome given order lifecycle evidence",
					[]string{"MAR Art.12", "MiFID II RTS 6"},
				),
			},
		},
		{
			Name:        "wash_trading",
			Description: "Self-matching trades creating a false impression of activity",
			Nodes: []*nodes.Node{
				evidenceNode("self_match_ratio", 0.03),
				evidenceNode("beneficial_owner_overlap", 0.04),
				evidenceNode("volume_without_price_move", 0.10),
				outcomeNode("wash_trading_risk"),
			},
			Drafts: []*Record{
				noisyORDraft(
					"cpt-wash-trading-v1",
					"wash_trading_risk",
					[]string{"self_match_ratio", "beneficial_owner_overlap", "volume_without_price_move"},
					0.015, []float64{0.90, 0.70, 0.45},
					"Wash trading outcome given matching and volume evidence",
					[]string{"MAR Art.12(1)(a)"},
				),
			},
		},
	}
}
