package cpt

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	ErrNotFound          = errors.New("cpt record not found")
	ErrApprovedImmutable = errors.New("approved cpt record is immutable")
	ErrDuplicateApproval = errors.New("approved version already exists for child")
)

// RowIssue describes one offending row found during table validation.
// Row is the row index in parent-combination order; Row -1 marks an issue
// with the table shape rather than a specific row.
type RowIssue struct {
	Row    int     `json:"row"`
	Sum    float64 `json:"sum,omitempty"`
	Reason string  `json:"reason"`
}

// ValidationError reports every structural problem found in a CPT draft in
// a single pass, so a submitter can fix all rows at once.
type ValidationError struct {
	CPTID  string
	Issues []RowIssue
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpt %q failed validation (%d issues):", e.CPTID, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Row >= 0 {
			fmt.Fprintf(&sb, " [row %d: %s]", issue.Row, issue.Reason)
		} else {
			fmt.Fprintf(&sb, " [%s]", issue.Reason)
		}
	}
	return sb.String()
}

// StateError reports an illegal lifecycle transition.
type StateError struct {
	CPTID string
	From  Status
	To    Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cpt %q: illegal transition %s -> %s", e.CPTID, e.From, e.To)
}

// NotFoundError wraps ErrNotFound with the missing record id.
func NotFoundError(id string) error {
	return fmt.Errorf("cpt %q: %w", id, ErrNotFound)
}

// IsNotFound returns true if the error is a record lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
