// Package audit records the immutable event trail behind every CPT
// lifecycle change and model evaluation. Regulated surveillance decisions
// must be reconstructible after the fact: which table versions fired,
// what evidence was present, who approved what and when.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened.
type Action string

const (
	ActionRegister       Action = "cpt_register"
	ActionValidate       Action = "cpt_validate"
	ActionApprove        Action = "cpt_approve"
	ActionCloneForUpdate Action = "cpt_clone_for_update"
	ActionAttachTypology Action = "typology_attach"
	ActionBuildNetwork   Action = "network_build"
	ActionEvaluate       Action = "evaluate"
)

// ResourceType identifies the kind of resource an event concerns.
type ResourceType string

const (
	ResourceCPT        ResourceType = "cpt"
	ResourceNetwork    ResourceType = "network"
	ResourceEvaluation ResourceType = "evaluation"
)

// Status is the outcome of the recorded action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Event is a single audit trail entry.
type Event struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Actor        string       `json:"actor,omitempty"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty"`
	Status       Status       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	// Metadata carries action-specific detail: CPT versions, network
	// hashes, posterior peaks, ESI scores.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// String renders the event for log lines and operator tooling.
func (e *Event) String() string {
	return fmt.Sprintf("[%s] %s %s %s (actor: %s, status: %s)",
		e.Timestamp.Format(time.RFC3339),
		e.Action,
		e.ResourceType,
		e.ResourceID,
		e.Actor,
		e.Status,
	)
}

// NewEvent creates a successful event with a fresh id and timestamp.
func NewEvent(actor string, action Action, resourceType ResourceType, resourceID string) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
	}
}

// NewFailedEvent creates a failure event carrying the error message.
func NewFailedEvent(actor string, action Action, resourceType ResourceType, resourceID, errorMsg string) *Event {
	ev := NewEvent(actor, action, resourceType, resourceID)
	ev.Status = StatusFailure
	ev.ErrorMessage = errorMsg
	return ev
}

// Filter selects events when reading the trail back. Zero fields match
// everything.
type Filter struct {
	Actor        string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	Status       Status
	StartTime    *time.Time
	EndTime      *time.Time
}

func (f *Filter) matches(event *Event) bool {
	if f == nil {
		return true
	}
	if f.Actor != "" && event.Actor != f.Actor {
		return false
	}
	if f.Action != "" && event.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && event.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && event.ResourceID != f.ResourceID {
		return false
	}
	if f.Status != "" && event.Status != f.Status {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Trail is where audit events go. The in-memory ring and the persistent
// hash-chained log both implement it.
type Trail interface {
	// Record appends an event to the trail.
	Record(event *Event) error
	// EventCount returns the number of events held.
	EventCount() int64
}

// MemoryTrail keeps the most recent events in a fixed circular buffer.
// It backs tests and the operator tooling's "recent activity" views; the
// durable record lives in PersistentTrail.
type MemoryTrail struct {
	events     []*Event
	bufferSize int
	index      int
	count      int
	mu         sync.RWMutex
}

// NewMemoryTrail creates a ring holding at most bufferSize events.
func NewMemoryTrail(bufferSize int) *MemoryTrail {
	return &MemoryTrail{
		events:     make([]*Event, bufferSize),
		bufferSize: bufferSize,
	}
}

// Record appends an event, evicting the oldest once the ring is full.
func (t *MemoryTrail) Record(event *Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	t.events[t.index] = event
	t.index = (t.index + 1) % t.bufferSize
	if t.count < t.bufferSize {
		t.count++
	}
	return nil
}

// Events returns the stored events matching the filter, oldest first.
func (t *MemoryTrail) Events(filter *Filter) []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Event, 0, t.count)
	for i := 0; i < t.count; i++ {
		idx := (t.index - t.count + i + t.bufferSize) % t.bufferSize
		event := t.events[idx]
		if event == nil || !filter.matches(event) {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Recent returns the n most recent events, newest first.
func (t *MemoryTrail) Recent(n int) []*Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n > t.count {
		n = t.count
	}
	result := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.index - 1 - i + t.bufferSize) % t.bufferSize
		if t.events[idx] != nil {
			result = append(result, t.events[idx])
		}
	}
	return result
}

// EventCount returns the number of events currently held.
func (t *MemoryTrail) EventCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int64(t.count)
}
