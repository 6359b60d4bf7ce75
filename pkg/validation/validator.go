// Package validation checks inbound requests before they reach the
// engine: CPT draft submissions, evaluation requests, and configuration
// structs. Structural and probabilistic invariants live with the domain
// packages; this layer rejects malformed input early with field-level
// messages.
package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Validation constants
	MaxNodeIDLength  = 100
	MaxParents       = 32
	MaxStates        = 16
	MaxDescription   = 2000
	MaxRegulatoryRef = 200
	MaxEvidenceNodes = 500
	MaxQueryNodes    = 50

	// Node ids are snake_case identifiers
	nodeIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

func init() {
	validate = validator.New()
}

// DraftRequest is a request to register a new draft CPT.
type DraftRequest struct {
	ChildID        string      `json:"child_id" validate:"required,max=100"`
	ParentIDs      []string    `json:"parent_ids" validate:"max=32,dive,required,max=100"`
	Rows           [][]float64 `json:"rows" validate:"required,min=1"`
	Description    string      `json:"description" validate:"omitempty,max=2000"`
	RegulatoryRefs []string    `json:"regulatory_refs" validate:"omitempty,dive,required,max=200"`
	Typologies     []string    `json:"typologies" validate:"omitempty,dive,required,max=100"`
}

// EvaluateRequest is a request to run one evaluation against a compiled
// network.
type EvaluateRequest struct {
	Network  string            `json:"network" validate:"required,max=100"`
	Evidence map[string]string `json:"evidence" validate:"omitempty,max=500"`
	Query    []string          `json:"query" validate:"required,min=1,max=50,dive,required,max=100"`
}

// ValidateDraftRequest validates a draft CPT submission.
func ValidateDraftRequest(req *DraftRequest) error {
	if req == nil {
		return errors.New("draft request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}

	if err := ValidateNodeID(req.ChildID); err != nil {
		return fmt.Errorf("ChildID: %w", err)
	}
	for i, pid := range req.ParentIDs {
		if err := ValidateNodeID(pid); err != nil {
			return fmt.Errorf("ParentIDs: parent at index %d: %w", i, err)
		}
		if pid == req.ChildID {
			return fmt.Errorf("ParentIDs: node %q cannot parent itself", pid)
		}
	}

	width := 0
	for i, row := range req.Rows {
		if len(row) == 0 {
			return fmt.Errorf("Rows: row %d is empty", i)
		}
		if i == 0 {
			width = len(row)
		} else if len(row) != width {
			return fmt.Errorf("Rows: row %d has %d entries, row 0 has %d", i, len(row), width)
		}
	}
	if width > MaxStates {
		return fmt.Errorf("Rows: %d child states exceed maximum %d", width, MaxStates)
	}
	return nil
}

// ValidateEvaluateRequest validates an evaluation submission.
func ValidateEvaluateRequest(req *EvaluateRequest) error {
	if req == nil {
		return errors.New("evaluate request cannot be nil")
	}
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}

	for id := range req.Evidence {
		if err := ValidateNodeID(id); err != nil {
			return fmt.Errorf("Evidence: %w", err)
		}
	}
	for i, id := range req.Query {
		if err := ValidateNodeID(id); err != nil {
			return fmt.Errorf("Query: node at index %d: %w", i, err)
		}
	}
	return nil
}

// ValidateNodeID validates a node identifier.
func ValidateNodeID(id string) error {
	if id == "" {
		return errors.New("node id cannot be empty")
	}
	if len(id) > MaxNodeIDLength {
		return fmt.Errorf("node id '%s' exceeds maximum length of %d characters", id, MaxNodeIDLength)
	}
	if !nodeIDPattern.MatchString(id) {
		return fmt.Errorf("node id '%s' is invalid (must start with a lowercase letter, followed by lowercase alphanumeric or underscore)", id)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "dive":
			return fmt.Errorf("%s: invalid element in array", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
