package network

import (
	"fmt"
	"strings"
)

// ConstructionError reports a structural failure while compiling a network:
// a cyclic edge set, a self-loop, or a dangling node reference. Builds that
// fail this way are fatal and never partially succeed.
type ConstructionError struct {
	NodeID string
	Cycle  []string
	Reason string
}

func (e *ConstructionError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("network construction failed: cycle detected [%s]", strings.Join(e.Cycle, " -> "))
	}
	if e.NodeID != "" {
		return fmt.Sprintf("network construction failed at node %q: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("network construction failed: %s", e.Reason)
}

// ConfigurationError reports a malformed network specification: a node
// without a usable CPT under strict mode, an inline table that is not a
// valid distribution, or fan-in settings that cannot be applied.
type ConfigurationError struct {
	NodeID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("network configuration error at node %q: %s", e.NodeID, e.Reason)
	}
	return fmt.Sprintf("network configuration error: %s", e.Reason)
}
