// Package network compiles declarative network specifications into
// immutable, concurrently readable evidence networks.
package network

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/fanin"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/nodes"
)

// Spec is the declarative, serializable description of one network:
// nodes, directed edges and CPT bindings. Specs are what operators author
// and review; everything else is derived.
type Spec struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`
	Edges []EdgeSpec `yaml:"edges" json:"edges"`
	CPTs  []CPTSpec  `yaml:"cpts,omitempty" json:"cpts,omitempty"`

	// StrictCPTs makes a node without an explicit CPT a configuration
	// error instead of defaulting to a uniform table.
	StrictCPTs bool `yaml:"strict_cpts" json:"strict_cpts"`

	FanIn FanInSpec `yaml:"fan_in,omitempty" json:"fan_in,omitempty"`
}

// NodeSpec either defines a node inline (states present) or references a
// node already held by the registry (states absent).
type NodeSpec struct {
	ID            string     `yaml:"id" json:"id"`
	Kind          nodes.Kind `yaml:"kind,omitempty" json:"kind,omitempty"`
	States        []string   `yaml:"states,omitempty" json:"states,omitempty"`
	FallbackPrior []float64  `yaml:"fallback_prior,omitempty" json:"fallback_prior,omitempty"`
}

// EdgeSpec is one directed parent -> child dependency.
type EdgeSpec struct {
	Parent string `yaml:"parent" json:"parent"`
	Child  string `yaml:"child" json:"child"`
}

// CPTSpec binds a child node to a conditional table, either by reference
// into the CPT library (Ref, or the child's current approved record when
// Ref is empty) or as an inline table for ad-hoc networks.
type CPTSpec struct {
	Child string `yaml:"child" json:"child"`
	Ref   string `yaml:"ref,omitempty" json:"ref,omitempty"`

	// Inline table, mutually exclusive with Ref
	Rows [][]float64 `yaml:"rows,omitempty" json:"rows,omitempty"`
}

// FanInSpec configures fan-in reduction: the parent-count threshold, the
// per-child semantic clusters, and how each reduced child combines its
// intermediates.
type FanInSpec struct {
	Threshold int                          `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Clusters  map[string][]fanin.Cluster   `yaml:"clusters,omitempty" json:"clusters,omitempty"`
	Children  map[string]fanin.ChildConfig `yaml:"children,omitempty" json:"children,omitempty"`
}

// ParseSpec decodes a YAML network specification document.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse network spec: %w", err)
	}
	return &spec, nil
}

// Marshal encodes the spec back to its canonical YAML form.
func (s *Spec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Hash returns the hex BLAKE2b-256 digest of the canonical YAML encoding.
// Builds are cached and deduplicated by this value.
func (s *Spec) Hash() (string, error) {
	data, err := s.Marshal()
	if err != nil {
		return "", fmt.Errorf("hash network spec: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
