// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

type Box string

const (
	BoxDraft     Box = "draft"
	BoxPending   Box = "pending"
	BoxCompleted Box = "completed"
)

// BoxFilter narrows a box query. Nil and empty fields impose no constraint.
// From is inclusive and To is exclusive, both against the draft time.
type BoxFilter struct {
	WorkTypeCode string
	Status       *DocumentStatus
	Keyword      string
	From         *time.Time
	To           *time.Time
}

type BoxCounts struct {
	Draft     int64 `json:"draft"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
}

type BatchFailure struct {
	DocumentID string
	Reason     string
}

type BatchResult struct {
	Success  int            `json:"success"`
	Fail     int            `json:"fail"`
	Failures []BatchFailure `json:"-"`
}
