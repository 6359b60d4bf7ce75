package nodes

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrNotFound      = errors.New("node not found")
	ErrAlreadyExists = errors.New("node already defined")
)

// DefinitionError reports an invalid node definition. It covers malformed
// state spaces and fallback priors that are not valid distributions.
type DefinitionError struct {
	NodeID string
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("invalid node definition: %s", e.Reason)
	}
	return fmt.Sprintf("invalid node definition %q: %s", e.NodeID, e.Reason)
}

// NotFoundError wraps ErrNotFound with the missing node id.
func NotFoundError(id string) error {
	return fmt.Errorf("node %q: %w", id, ErrNotFound)
}

// IsNotFound returns true if the error is a node lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
