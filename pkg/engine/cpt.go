package engine

import (
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/audit"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/events"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/validation"
)

// RegisterDraft validates a draft submission and registers it as a new
// version-1 Draft record.
func (e *Engine) RegisterDraft(actor string, req *validation.DraftRequest) (*cpt.Record, error) {
	if err := validation.ValidateDraftRequest(req); err != nil {
		e.metrics.RecordCPTOperation("register", "failure")
		return nil, err
	}

	cards := make([]int, len(req.ParentIDs))
	for i, pid := range req.ParentIDs {
		node, err := e.registry.Get(pid)
		if err != nil {
			e.metrics.RecordCPTOperation("register", "failure")
			return nil, err
		}
		cards[i] = node.Cardinality()
	}

	draft := &cpt.Record{
		ChildID:   req.ChildID,
		ParentIDs: req.ParentIDs,
		Table: &cpt.Table{
			ParentCards: cards,
			Rows:        req.Rows,
		},
		Meta: cpt.Metadata{
			Description:    req.Description,
			RegulatoryRefs: req.RegulatoryRefs,
			Typologies:     req.Typologies,
		},
	}

	rec, err := e.library.Register(draft)
	if err != nil {
		e.metrics.RecordCPTOperation("register", "failure")
		e.metrics.CPTValidationErrors.Inc()
		e.record(audit.NewFailedEvent(actor, audit.ActionRegister, audit.ResourceCPT, req.ChildID, err.Error()))
		return nil, err
	}

	for _, typ := range req.Typologies {
		if err := e.library.AttachTypology(rec.ID, typ); err != nil {
			return nil, err
		}
	}

	e.metrics.RecordCPTOperation("register", "success")
	e.updateRecordGauges()
	e.record(audit.NewEvent(actor, audit.ActionRegister, audit.ResourceCPT, rec.ID))
	e.publish(events.TopicCPTRegistered, map[string]any{
		"cpt_id":   rec.ID,
		"child_id": rec.ChildID,
		"version":  rec.Meta.Version,
	})
	return rec, nil
}

// ValidateCPT moves a draft to Validated.
func (e *Engine) ValidateCPT(actor, id string) error {
	if err := e.library.Validate(id); err != nil {
		e.metrics.RecordCPTOperation("validate", "failure")
		e.record(audit.NewFailedEvent(actor, audit.ActionValidate, audit.ResourceCPT, id, err.Error()))
		return err
	}
	e.metrics.RecordCPTOperation("validate", "success")
	e.updateRecordGauges()
	e.record(audit.NewEvent(actor, audit.ActionValidate, audit.ResourceCPT, id))
	return nil
}

// ApproveCPT moves a validated record to Approved, minting an
// attestation when signing is configured.
func (e *Engine) ApproveCPT(actor, id string) (*cpt.Record, error) {
	rec, err := e.library.Approve(id, actor)
	if err != nil {
		e.metrics.RecordCPTOperation("approve", "failure")
		e.record(audit.NewFailedEvent(actor, audit.ActionApprove, audit.ResourceCPT, id, err.Error()))
		return nil, err
	}

	e.metrics.RecordCPTOperation("approve", "success")
	e.updateRecordGauges()
	event := audit.NewEvent(actor, audit.ActionApprove, audit.ResourceCPT, id)
	event.Metadata = map[string]any{
		"child_id": rec.ChildID,
		"version":  rec.Meta.Version,
	}
	e.record(event)
	e.publish(events.TopicCPTApproved, map[string]any{
		"cpt_id":   rec.ID,
		"child_id": rec.ChildID,
		"version":  rec.Meta.Version,
		"approver": actor,
	})
	return rec, nil
}

// CloneCPTForUpdate spawns a fresh draft from an approved record.
func (e *Engine) CloneCPTForUpdate(actor, id string) (*cpt.Record, error) {
	rec, err := e.library.CloneForUpdate(id)
	if err != nil {
		e.metrics.RecordCPTOperation("clone_for_update", "failure")
		e.record(audit.NewFailedEvent(actor, audit.ActionCloneForUpdate, audit.ResourceCPT, id, err.Error()))
		return nil, err
	}
	e.metrics.RecordCPTOperation("clone_for_update", "success")
	e.updateRecordGauges()
	event := audit.NewEvent(actor, audit.ActionCloneForUpdate, audit.ResourceCPT, rec.ID)
	event.Metadata = map[string]any{"lineage": id, "version": rec.Meta.Version}
	e.record(event)
	return rec, nil
}

// updateRecordGauges refreshes the per-status record counts.
func (e *Engine) updateRecordGauges() {
	var draft, validated, approved int
	for _, rec := range e.library.List() {
		switch rec.Meta.Status {
		case cpt.StatusDraft:
			draft++
		case cpt.StatusValidated:
			validated++
		case cpt.StatusApproved:
			approved++
		}
	}
	e.metrics.SetCPTRecords(draft, validated, approved)
}
