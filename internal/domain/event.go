// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

const (
	AuditSubmitted         = "SUBMITTED"
	AuditStepApproved      = "STEP_APPROVED"
	AuditDocumentApproved  = "DOCUMENT_APPROVED"
	AuditDocumentRejected  = "DOCUMENT_REJECTED"
	AuditDocumentWithdrawn = "DOCUMENT_WITHDRAWN"
)

type EventRecord struct {
	Seq        int64           `json:"seq"`
	DocumentID string          `json:"document_id"`
	Type       string          `json:"type"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
