// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type StepAction string

const (
	StepWaiting  StepAction = "WAITING"
	StepActive   StepAction = "ACTIVE"
	StepApproved StepAction = "APPROVED"
	StepRejected StepAction = "REJECTED"
	StepSkipped  StepAction = "SKIPPED"
)

// StepActions lists every step action in partition order.
var StepActions = []StepAction{
	StepWaiting,
	StepActive,
	StepApproved,
	StepRejected,
	StepSkipped,
}

// IsDecided reports whether the step was acted on and is frozen.
func (a StepAction) IsDecided() bool {
	return a == StepApproved || a == StepRejected
}

type StepRecord struct {
	ID         uuid.UUID  `json:"id"`
	DocumentID string     `json:"document_id"`
	StepOrder  int        `json:"step_order"`
	StepName   string     `json:"step_name,omitempty"`
	Approver   Person     `json:"approver"`
	Action     StepAction `json:"action"`
	Comment    string     `json:"comment,omitempty"`
	ActedAt    *time.Time `json:"acted_at,omitempty"`
}

// ResultCode is the verdict carried by a process request.
type ResultCode string

const (
	ResultApprove ResultCode = "APPROVE"
	ResultReject  ResultCode = "REJECT"
)

func (r ResultCode) IsValid() bool {
	return r == ResultApprove || r == ResultReject
}
