// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	// DocumentDraft only exists on the pre-submission value; it is never persisted.
	DocumentDraft      DocumentStatus = "DRAFT"
	DocumentSubmitted  DocumentStatus = "SUBMITTED"
	DocumentInProgress DocumentStatus = "IN_PROGRESS"
	DocumentApproved   DocumentStatus = "APPROVED"
	DocumentRejected   DocumentStatus = "REJECTED"
	DocumentWithdrawn  DocumentStatus = "WITHDRAWN"
)

// PersistedStatuses lists every status a stored document can carry.
var PersistedStatuses = []DocumentStatus{
	DocumentSubmitted,
	DocumentInProgress,
	DocumentApproved,
	DocumentRejected,
	DocumentWithdrawn,
}

// legacyStatusCodes maps the numeric codes older clients still send in
// approvalStatusCd query parameters.
var legacyStatusCodes = map[string]DocumentStatus{
	"01": DocumentSubmitted,
	"02": DocumentInProgress,
	"03": DocumentApproved,
	"04": DocumentRejected,
	"05": DocumentWithdrawn,
}

func (s DocumentStatus) IsTerminal() bool {
	switch s {
	case DocumentApproved, DocumentRejected, DocumentWithdrawn:
		return true
	default:
		return false
	}
}

// IsActionable reports whether approvers can still act on the document.
func (s DocumentStatus) IsActionable() bool {
	return s == DocumentSubmitted || s == DocumentInProgress
}

func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentDraft, DocumentSubmitted, DocumentInProgress,
		DocumentApproved, DocumentRejected, DocumentWithdrawn:
		return true
	default:
		return false
	}
}

// ParseDocumentStatus accepts a persisted status name (case-insensitive) or a
// legacy two-digit code.
func ParseDocumentStatus(raw string) (DocumentStatus, bool) {
	v := strings.TrimSpace(raw)
	if s, ok := legacyStatusCodes[v]; ok {
		return s, true
	}
	s := DocumentStatus(strings.ToUpper(v))
	if s == DocumentDraft || !s.IsValid() {
		return "", false
	}
	return s, true
}

// DocumentEvent is an input to the document state machine.
type DocumentEvent string

const (
	EventSubmit   DocumentEvent = "SUBMIT"
	EventAdvance  DocumentEvent = "ADVANCE"
	EventComplete DocumentEvent = "COMPLETE"
	EventReject   DocumentEvent = "REJECT"
	EventWithdraw DocumentEvent = "WITHDRAW"
)

// NextStatus is the single transition function for documents. It returns
// false for every pair that is not an allowed transition.
func NextStatus(from DocumentStatus, ev DocumentEvent) (DocumentStatus, bool) {
	switch from {
	case DocumentDraft:
		if ev == EventSubmit {
			return DocumentSubmitted, true
		}
	case DocumentSubmitted, DocumentInProgress:
		switch ev {
		case EventAdvance:
			return DocumentInProgress, true
		case EventComplete:
			return DocumentApproved, true
		case EventReject:
			return DocumentRejected, true
		case EventWithdraw:
			return DocumentWithdrawn, true
		}
	case DocumentApproved, DocumentRejected, DocumentWithdrawn:
	}
	return "", false
}

type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Person struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DeptCode string `json:"dept_code,omitempty"`
	DeptName string `json:"dept_name,omitempty"`
}

type Document struct {
	ID                  string         `json:"id"`
	ApprovalNo          string         `json:"approval_no"`
	WorkTypeCode        string         `json:"work_type_cd"`
	Title               string         `json:"title"`
	Content             string         `json:"content,omitempty"`
	LineID              string         `json:"line_id"`
	LineName            string         `json:"line_name"`
	Drafter             Person         `json:"drafter"`
	DraftedAt           time.Time      `json:"drafted_at"`
	Reference           *Reference     `json:"reference,omitempty"`
	Urgent              bool           `json:"urgent"`
	Status              DocumentStatus `json:"status"`
	CurrentStep         int            `json:"current_step"`
	TotalSteps          int            `json:"total_steps"`
	CurrentApproverID   string         `json:"current_approver_id,omitempty"`
	CurrentApproverName string         `json:"current_approver_name,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	Version             int64          `json:"version"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// DocumentDetail is a document together with its step ledger.
type DocumentDetail struct {
	Document
	Steps []StepRecord `json:"steps"`
}

// Authority answers whether a user may decide a document's current step.
type Authority struct {
	DocumentID  string         `json:"document_id"`
	UserID      string         `json:"user_id"`
	CanAct      bool           `json:"can_act"`
	Status      DocumentStatus `json:"status"`
	CurrentStep int            `json:"current_step"`
}

// SubmitParams is the transient DRAFT value handed to Submit.
type SubmitParams struct {
	WorkTypeCode string
	LineID       string
	Title        string
	Content      string
	Reference    *Reference
	Urgent       bool
}
