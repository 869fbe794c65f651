// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"strings"
	"time"
)

type LineStep struct {
	StepOrder    int    `json:"step_order"`
	StepName     string `json:"step_name,omitempty"`
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name,omitempty"`
}

// Line is an approval line template. Documents copy its steps on submission
// and never read it again.
type Line struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	WorkTypeCode string     `json:"work_type_cd"`
	Sequence     int        `json:"sequence"`
	InUse        bool       `json:"in_use"`
	Editable     bool       `json:"editable"`
	Remarks      string     `json:"remarks,omitempty"`
	Steps        []LineStep `json:"steps"`
	CreatedBy    string     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type LineParams struct {
	Name         string
	WorkTypeCode string
	Editable     bool
	Remarks      string
	Steps        []LineStep
}

type LineFilter struct {
	WorkTypeCode string
	InUse        *bool
	Keyword      string
}

type LineStatistics struct {
	Total  int64 `json:"total"`
	Used   int64 `json:"used"`
	Unused int64 `json:"unused"`
}

// ValidateLineSteps checks that step orders run 1..N without gaps and that
// each approver appears once.
func ValidateLineSteps(steps []LineStep) error {
	seenOrder := make(map[int]bool, len(steps))
	seenApprover := make(map[string]int, len(steps))

	for _, st := range steps {
		if st.StepOrder < 1 || st.StepOrder > len(steps) {
			return fmt.Errorf("%w: step order %d outside 1..%d", ErrValidation, st.StepOrder, len(steps))
		}
		if seenOrder[st.StepOrder] {
			return fmt.Errorf("%w: duplicate step order %d", ErrValidation, st.StepOrder)
		}
		seenOrder[st.StepOrder] = true

		approver := strings.TrimSpace(st.ApproverID)
		if approver == "" {
			return fmt.Errorf("%w: step %d has no approver", ErrValidation, st.StepOrder)
		}
		if prev, ok := seenApprover[approver]; ok {
			return fmt.Errorf("%w: approver %s already assigned to step %d", ErrValidation, approver, prev)
		}
		seenApprover[approver] = st.StepOrder
	}

	return nil
}
