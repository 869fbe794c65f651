// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/adiadia/approval-engine/internal/domain"
)

var (
	drafterU  = domain.Person{ID: "U", Name: "Drafter"}
	approverA = domain.Person{ID: "A", Name: "Approver A", DeptCode: "D1", DeptName: "Risk"}
	approverB = domain.Person{ID: "B", Name: "Approver B"}
	approverC = domain.Person{ID: "C", Name: "Approver C"}
	baseTime  = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func lineOf(approvers ...string) domain.Line {
	steps := make([]domain.LineStep, 0, len(approvers))
	for i, id := range approvers {
		steps = append(steps, domain.LineStep{StepOrder: i + 1, ApproverID: id})
	}
	return domain.Line{
		ID:           "AL00001",
		Name:         "chain",
		WorkTypeCode: "RPT",
		InUse:        true,
		Steps:        steps,
	}
}

func mustSubmit(t *testing.T, line domain.Line) *Ledger {
	t.Helper()

	l, out, err := Submit(drafterU, domain.SubmitParams{Title: "Q3 plan", WorkTypeCode: line.WorkTypeCode}, line, baseTime)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.AuditType != domain.AuditSubmitted {
		t.Fatalf("expected SUBMITTED audit, got %s", out.AuditType)
	}
	mustCheck(t, l)
	return l
}

func mustCheck(t *testing.T, l *Ledger) {
	t.Helper()
	if err := l.Check(); err != nil {
		t.Fatalf("ledger invariant broken: %v", err)
	}
}

func actions(l *Ledger) []domain.StepAction {
	out := make([]domain.StepAction, len(l.Steps))
	for i, st := range l.Steps {
		out[i] = st.Action
	}
	return out
}

func expectActions(t *testing.T, l *Ledger, want ...domain.StepAction) {
	t.Helper()
	got := actions(l)
	if len(got) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: expected %s, got %s (all=%v)", i+1, want[i], got[i], got)
		}
	}
}

func TestSubmitTwoStepLine(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	if l.Document.Status != domain.DocumentSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", l.Document.Status)
	}
	expectActions(t, l, domain.StepActive, domain.StepWaiting)
	if l.Document.CurrentApproverID != "A" || l.Document.CurrentStep != 1 {
		t.Fatalf("expected A at step 1, got %s at %d", l.Document.CurrentApproverID, l.Document.CurrentStep)
	}
	if l.Document.TotalSteps != 2 {
		t.Fatalf("expected 2 total steps, got %d", l.Document.TotalSteps)
	}
}

func TestSubmitSortsAndCopiesLineSteps(t *testing.T) {
	line := domain.Line{
		ID: "AL00002", WorkTypeCode: "RPT", InUse: true,
		Steps: []domain.LineStep{
			{StepOrder: 2, ApproverID: "B"},
			{StepOrder: 1, ApproverID: "A"},
		},
	}

	l := mustSubmit(t, line)
	line.Steps[0].ApproverID = "Z"

	if l.Steps[0].Approver.ID != "A" || l.Steps[1].Approver.ID != "B" {
		t.Fatalf("expected snapshot A,B got %s,%s", l.Steps[0].Approver.ID, l.Steps[1].Approver.ID)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	inactive := lineOf("A")
	inactive.InUse = false

	gapped := lineOf("A", "B")
	gapped.Steps[1].StepOrder = 3

	cases := []struct {
		name   string
		line   domain.Line
		params domain.SubmitParams
		want   error
	}{
		{"inactive", inactive, domain.SubmitParams{Title: "x"}, domain.ErrInvalidLine},
		{"empty", lineOf(), domain.SubmitParams{Title: "x"}, domain.ErrInvalidLine},
		{"gap", gapped, domain.SubmitParams{Title: "x"}, domain.ErrInvalidLine},
		{"work type", lineOf("A"), domain.SubmitParams{Title: "x", WorkTypeCode: "OTHER"}, domain.ErrInvalidLine},
		{"title", lineOf("A"), domain.SubmitParams{Title: "  "}, domain.ErrValidation},
	}

	for _, tc := range cases {
		_, _, err := Submit(drafterU, tc.params, tc.line, baseTime)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestApproveAdvancesThenCompletes(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	out, err := l.Approve(approverA, "ok", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("approve A: %v", err)
	}
	mustCheck(t, l)
	if out.AuditType != domain.AuditStepApproved {
		t.Fatalf("expected STEP_APPROVED, got %s", out.AuditType)
	}
	expectActions(t, l, domain.StepApproved, domain.StepActive)
	if l.Document.Status != domain.DocumentInProgress || l.Document.CurrentApproverID != "B" {
		t.Fatalf("expected IN_PROGRESS at B, got %s at %s", l.Document.Status, l.Document.CurrentApproverID)
	}
	if l.Steps[0].Comment != "ok" || l.Steps[0].ActedAt == nil || l.Steps[0].Approver.DeptCode != "D1" {
		t.Fatalf("expected step 1 decision recorded, got %+v", l.Steps[0])
	}
	if l.Document.CompletedAt != nil {
		t.Fatal("completion must not be set before the last step")
	}

	out, err = l.Approve(approverB, "fine", baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("approve B: %v", err)
	}
	mustCheck(t, l)
	if out.AuditType != domain.AuditDocumentApproved {
		t.Fatalf("expected DOCUMENT_APPROVED, got %s", out.AuditType)
	}
	if l.Document.Status != domain.DocumentApproved || l.Document.CompletedAt == nil {
		t.Fatalf("expected APPROVED with completion, got %s %v", l.Document.Status, l.Document.CompletedAt)
	}
	if l.Document.CurrentApproverID != "" {
		t.Fatalf("expected current approver cleared, got %s", l.Document.CurrentApproverID)
	}
}

func TestRejectSkipsWaitingSteps(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B", "C"))

	if _, err := l.Approve(approverA, "ok", baseTime); err != nil {
		t.Fatalf("approve: %v", err)
	}
	out, err := l.Reject(approverB, "needs rework", baseTime)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	mustCheck(t, l)

	if out.AuditType != domain.AuditDocumentRejected {
		t.Fatalf("expected DOCUMENT_REJECTED, got %s", out.AuditType)
	}
	expectActions(t, l, domain.StepApproved, domain.StepRejected, domain.StepSkipped)
	if l.Document.Status != domain.DocumentRejected || l.Document.CompletedAt != nil {
		t.Fatalf("expected REJECTED without completion, got %s", l.Document.Status)
	}
}

func TestApproveByWrongActor(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	if _, err := l.Approve(approverB, "", baseTime); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := l.Reject(approverC, "", baseTime); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	expectActions(t, l, domain.StepActive, domain.StepWaiting)
}

func TestCanActTracksActiveStep(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	if !l.CanAct("A") || l.CanAct("B") || l.CanAct("U") || l.CanAct("") {
		t.Fatal("only A should be able to act on a fresh document")
	}

	if _, err := l.Approve(approverA, "", baseTime); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if l.CanAct("A") || !l.CanAct("B") {
		t.Fatal("authority should move to B after A approves")
	}

	if _, err := l.Approve(approverB, "", baseTime); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if l.CanAct("B") {
		t.Fatal("nobody may act on an approved document")
	}
}

func TestApproveWithoutActiveStep(t *testing.T) {
	l := mustSubmit(t, lineOf("A"))
	l.Steps[0].Action = domain.StepWaiting

	if _, err := l.Approve(approverA, "", baseTime); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestTerminalDocumentsAreFrozen(t *testing.T) {
	build := map[string]func(t *testing.T) *Ledger{
		"approved": func(t *testing.T) *Ledger {
			l := mustSubmit(t, lineOf("A"))
			if _, err := l.Approve(approverA, "", baseTime); err != nil {
				t.Fatalf("approve: %v", err)
			}
			return l
		},
		"rejected": func(t *testing.T) *Ledger {
			l := mustSubmit(t, lineOf("A", "B"))
			if _, err := l.Reject(approverA, "", baseTime); err != nil {
				t.Fatalf("reject: %v", err)
			}
			return l
		},
		"withdrawn": func(t *testing.T) *Ledger {
			l := mustSubmit(t, lineOf("A", "B"))
			if _, err := l.Withdraw("U", baseTime); err != nil {
				t.Fatalf("withdraw: %v", err)
			}
			return l
		},
	}

	for name, fn := range build {
		l := fn(t)
		before := actions(l)
		status := l.Document.Status

		for _, actor := range []domain.Person{approverA, approverB} {
			if _, err := l.Approve(actor, "", baseTime); !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("%s approve: expected ErrInvalidState, got %v", name, err)
			}
			if _, err := l.Reject(actor, "", baseTime); !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("%s reject: expected ErrInvalidState, got %v", name, err)
			}
		}
		_, err := l.Withdraw("U", baseTime)
		if !errors.Is(err, domain.ErrInvalidState) && !errors.Is(err, domain.ErrNotCancellable) {
			t.Fatalf("%s withdraw: expected InvalidState or NotCancellable, got %v", name, err)
		}

		if l.Document.Status != status {
			t.Fatalf("%s: status changed to %s", name, l.Document.Status)
		}
		expectActions(t, l, before...)
		mustCheck(t, l)
	}
}

func TestWithdrawBeforeAnyApproval(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	out, err := l.Withdraw("U", baseTime)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	mustCheck(t, l)

	if out.AuditType != domain.AuditDocumentWithdrawn {
		t.Fatalf("expected DOCUMENT_WITHDRAWN, got %s", out.AuditType)
	}
	expectActions(t, l, domain.StepSkipped, domain.StepSkipped)
	if l.Document.Status != domain.DocumentWithdrawn || l.Document.CurrentApproverID != "" {
		t.Fatalf("expected WITHDRAWN and no approver, got %s %s", l.Document.Status, l.Document.CurrentApproverID)
	}
}

func TestWithdrawGuards(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	if _, err := l.Withdraw("A", baseTime); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := l.Approve(approverA, "ok", baseTime); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := l.Withdraw("U", baseTime)
	if !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if l.Document.Status != domain.DocumentInProgress {
		t.Fatalf("expected document untouched, got %s", l.Document.Status)
	}
}

// Walks the literal two-step scenario end to end: submit, approve, reject,
// then a refused withdraw.
func TestTwoStepScenario(t *testing.T) {
	l := mustSubmit(t, lineOf("A", "B"))

	if _, err := l.Approve(approverA, "ok", baseTime); err != nil {
		t.Fatalf("approve: %v", err)
	}
	expectActions(t, l, domain.StepApproved, domain.StepActive)

	if _, err := l.Reject(approverB, "needs rework", baseTime); err != nil {
		t.Fatalf("reject: %v", err)
	}
	expectActions(t, l, domain.StepApproved, domain.StepRejected)
	if l.Document.Status != domain.DocumentRejected {
		t.Fatalf("expected REJECTED, got %s", l.Document.Status)
	}

	if _, err := l.Withdraw("U", baseTime); !errors.Is(err, domain.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if !l.HasApproval("A") || l.HasApproval("B") {
		t.Fatal("expected only A to have approved")
	}
}

func TestPartitionHoldsAcrossLongChain(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	l := mustSubmit(t, lineOf(ids...))

	for i, id := range ids {
		if _, err := l.Approve(domain.Person{ID: id}, "", baseTime); err != nil {
			t.Fatalf("approve %s: %v", id, err)
		}
		mustCheck(t, l)

		approved := 0
		for _, st := range l.Steps {
			if st.Action == domain.StepApproved {
				approved++
			}
		}
		if approved != i+1 {
			t.Fatalf("expected %d approved steps, got %d", i+1, approved)
		}
	}

	if l.Document.Status != domain.DocumentApproved {
		t.Fatalf("expected APPROVED, got %s", l.Document.Status)
	}
}
