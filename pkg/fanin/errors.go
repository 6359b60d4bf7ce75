package fanin

import "fmt"

// ConfigurationError reports an invalid fan-in reduction configuration,
// such as a parent left out of every cluster or a member with no influence
// parameter.
type ConfigurationError struct {
	ChildID string
	Cluster string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Cluster != "" {
		return fmt.Sprintf("fan-in reduction for %q, cluster %q: %s", e.ChildID, e.Cluster, e.Reason)
	}
	return fmt.Sprintf("fan-in reduction for %q: %s", e.ChildID, e.Reason)
}
