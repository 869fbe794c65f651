// SPDX-License-Identifier: Apache-2.0

// Package workflow applies approval transitions to a document and its step
// ledger. It performs no I/O; callers load a Ledger inside a transaction,
// apply one operation and persist the result.
package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/google/uuid"
)

type Ledger struct {
	Document domain.Document
	Steps    []domain.StepRecord
}

// Outcome describes what a successful operation did, for auditing.
type Outcome struct {
	Event     domain.DocumentEvent
	AuditType string
	StepOrder int
	Comment   string
}

// Transition applies one operation to a ledger loaded by the store.
type Transition func(l *Ledger) (Outcome, error)

// Submit builds the ledger for a new document from a line snapshot. The
// document id and approval number are left for the store to assign.
func Submit(drafter domain.Person, params domain.SubmitParams, line domain.Line, now time.Time) (*Ledger, Outcome, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, Outcome{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if strings.TrimSpace(drafter.ID) == "" {
		return nil, Outcome{}, fmt.Errorf("%w: drafter is required", domain.ErrValidation)
	}
	if !line.InUse {
		return nil, Outcome{}, fmt.Errorf("%w: line %s is not in use", domain.ErrInvalidLine, line.ID)
	}
	if len(line.Steps) == 0 {
		return nil, Outcome{}, fmt.Errorf("%w: line %s has no steps", domain.ErrInvalidLine, line.ID)
	}
	if params.WorkTypeCode != "" && params.WorkTypeCode != line.WorkTypeCode {
		return nil, Outcome{}, fmt.Errorf("%w: line %s belongs to work type %s",
			domain.ErrInvalidLine, line.ID, line.WorkTypeCode)
	}
	if err := domain.ValidateLineSteps(line.Steps); err != nil {
		return nil, Outcome{}, fmt.Errorf("%w: %v", domain.ErrInvalidLine, err)
	}

	status, ok := domain.NextStatus(domain.DocumentDraft, domain.EventSubmit)
	if !ok {
		return nil, Outcome{}, fmt.Errorf("%w: cannot submit draft", domain.ErrInvalidState)
	}

	snapshot := make([]domain.LineStep, len(line.Steps))
	copy(snapshot, line.Steps)
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].StepOrder < snapshot[j].StepOrder })

	steps := make([]domain.StepRecord, 0, len(snapshot))
	for _, ls := range snapshot {
		action := domain.StepWaiting
		if ls.StepOrder == 1 {
			action = domain.StepActive
		}
		name := ls.ApproverName
		if name == "" {
			name = ls.ApproverID
		}
		steps = append(steps, domain.StepRecord{
			ID:        uuid.New(),
			StepOrder: ls.StepOrder,
			StepName:  ls.StepName,
			Approver:  domain.Person{ID: ls.ApproverID, Name: name},
			Action:    action,
		})
	}

	first := steps[0]
	doc := domain.Document{
		WorkTypeCode:        line.WorkTypeCode,
		Title:               strings.TrimSpace(params.Title),
		Content:             params.Content,
		LineID:              line.ID,
		LineName:            line.Name,
		Drafter:             drafter,
		DraftedAt:           now,
		Reference:           params.Reference,
		Urgent:              params.Urgent,
		Status:              status,
		CurrentStep:         first.StepOrder,
		TotalSteps:          len(steps),
		CurrentApproverID:   first.Approver.ID,
		CurrentApproverName: first.Approver.Name,
		UpdatedAt:           now,
	}

	return &Ledger{Document: doc, Steps: steps}, Outcome{
		Event:     domain.EventSubmit,
		AuditType: domain.AuditSubmitted,
		StepOrder: first.StepOrder,
	}, nil
}

// Approve records the actor's approval of the active step and either
// activates the next step or completes the document.
func (l *Ledger) Approve(actor domain.Person, comment string, now time.Time) (Outcome, error) {
	active, err := l.actionableStep(actor)
	if err != nil {
		return Outcome{}, err
	}

	next := l.step(active.StepOrder + 1)
	ev := domain.EventAdvance
	if next == nil {
		ev = domain.EventComplete
	}
	status, ok := domain.NextStatus(l.Document.Status, ev)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s cannot %s", domain.ErrInvalidState, l.Document.Status, ev)
	}

	decide(active, domain.StepApproved, actor, comment, now)
	l.Document.Status = status
	l.Document.UpdatedAt = now

	out := Outcome{Event: ev, StepOrder: active.StepOrder, Comment: comment}
	if next != nil {
		next.Action = domain.StepActive
		l.Document.CurrentStep = next.StepOrder
		l.Document.CurrentApproverID = next.Approver.ID
		l.Document.CurrentApproverName = next.Approver.Name
		out.AuditType = domain.AuditStepApproved
		return out, nil
	}

	completed := now
	l.Document.CompletedAt = &completed
	l.clearApprover()
	out.AuditType = domain.AuditDocumentApproved
	return out, nil
}

// Reject records the actor's rejection of the active step, terminates the
// document and skips every step that was still waiting.
func (l *Ledger) Reject(actor domain.Person, comment string, now time.Time) (Outcome, error) {
	active, err := l.actionableStep(actor)
	if err != nil {
		return Outcome{}, err
	}

	status, ok := domain.NextStatus(l.Document.Status, domain.EventReject)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s cannot reject", domain.ErrInvalidState, l.Document.Status)
	}

	decide(active, domain.StepRejected, actor, comment, now)
	l.skipPending()
	l.Document.Status = status
	l.Document.UpdatedAt = now
	l.clearApprover()

	return Outcome{
		Event:     domain.EventReject,
		AuditType: domain.AuditDocumentRejected,
		StepOrder: active.StepOrder,
		Comment:   comment,
	}, nil
}

// Withdraw cancels the document on the drafter's behalf. It is refused once
// any step has been approved.
func (l *Ledger) Withdraw(actorID string, now time.Time) (Outcome, error) {
	if actorID != l.Document.Drafter.ID {
		return Outcome{}, fmt.Errorf("%w: only the drafter may withdraw %s", domain.ErrUnauthorized, l.Document.ID)
	}
	for _, st := range l.Steps {
		if st.Action == domain.StepApproved {
			return Outcome{}, fmt.Errorf("%w: already approved by a prior step", domain.ErrNotCancellable)
		}
	}

	status, ok := domain.NextStatus(l.Document.Status, domain.EventWithdraw)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: document is %s", domain.ErrInvalidState, l.Document.Status)
	}

	l.skipPending()
	l.Document.Status = status
	l.Document.UpdatedAt = now
	l.clearApprover()

	return Outcome{
		Event:     domain.EventWithdraw,
		AuditType: domain.AuditDocumentWithdrawn,
		StepOrder: l.Document.CurrentStep,
	}, nil
}

// Active returns the step the document is waiting on, if any.
func (l *Ledger) Active() *domain.StepRecord {
	st := l.step(l.Document.CurrentStep)
	if st == nil || st.Action != domain.StepActive {
		return nil
	}
	return st
}

// CanAct reports whether userID holds the step the document is waiting on.
func (l *Ledger) CanAct(userID string) bool {
	if userID == "" || !l.Document.Status.IsActionable() {
		return false
	}
	active := l.Active()
	return active != nil && active.Approver.ID == userID
}

// HasApproval reports whether the given user approved any step.
func (l *Ledger) HasApproval(userID string) bool {
	for _, st := range l.Steps {
		if st.Approver.ID == userID && st.Action == domain.StepApproved {
			return true
		}
	}
	return false
}

// Check verifies the structural invariants of the ledger.
func (l *Ledger) Check() error {
	n := len(l.Steps)
	if n != l.Document.TotalSteps {
		return fmt.Errorf("ledger has %d steps, document expects %d", n, l.Document.TotalSteps)
	}

	seen := make(map[int]bool, n)
	active := 0
	for _, st := range l.Steps {
		if st.StepOrder < 1 || st.StepOrder > n || seen[st.StepOrder] {
			return fmt.Errorf("step order %d breaks 1..%d", st.StepOrder, n)
		}
		seen[st.StepOrder] = true

		switch st.Action {
		case domain.StepActive:
			active++
			if st.StepOrder != l.Document.CurrentStep {
				return fmt.Errorf("active step %d differs from current step %d", st.StepOrder, l.Document.CurrentStep)
			}
		case domain.StepWaiting, domain.StepApproved, domain.StepRejected, domain.StepSkipped:
		default:
			return fmt.Errorf("step %d has unknown action %q", st.StepOrder, st.Action)
		}
	}

	switch {
	case l.Document.Status.IsTerminal() && active != 0:
		return fmt.Errorf("terminal document has %d active steps", active)
	case l.Document.Status.IsActionable() && active != 1:
		return fmt.Errorf("in-flight document has %d active steps", active)
	}
	return nil
}

func (l *Ledger) actionableStep(actor domain.Person) (*domain.StepRecord, error) {
	if l.Document.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: document is %s", domain.ErrInvalidState, l.Document.Status)
	}
	active := l.Active()
	if active == nil {
		return nil, fmt.Errorf("%w: no active step", domain.ErrInvalidState)
	}
	if active.Approver.ID != actor.ID {
		return nil, fmt.Errorf("%w: step %d is assigned to %s", domain.ErrUnauthorized, active.StepOrder, active.Approver.ID)
	}
	return active, nil
}

func (l *Ledger) step(order int) *domain.StepRecord {
	for i := range l.Steps {
		if l.Steps[i].StepOrder == order {
			return &l.Steps[i]
		}
	}
	return nil
}

func (l *Ledger) skipPending() {
	for i := range l.Steps {
		switch l.Steps[i].Action {
		case domain.StepWaiting, domain.StepActive:
			l.Steps[i].Action = domain.StepSkipped
		}
	}
}

func (l *Ledger) clearApprover() {
	l.Document.CurrentApproverID = ""
	l.Document.CurrentApproverName = ""
}

func decide(st *domain.StepRecord, action domain.StepAction, actor domain.Person, comment string, now time.Time) {
	acted := now
	st.Action = action
	st.Comment = comment
	st.ActedAt = &acted
	if actor.Name != "" && actor.Name != actor.ID {
		st.Approver.Name = actor.Name
	}
	st.Approver.DeptCode = actor.DeptCode
	st.Approver.DeptName = actor.DeptName
}
