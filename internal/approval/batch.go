// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/adiadia/approval-engine/internal/metrics"
)

const (
	defaultBatchApproveComment = "batch approved"
	defaultBatchRejectComment  = "batch rejected"
)

// Batch applies one verdict to each id in order. Every item runs in its own
// transaction; a failed item is counted and never stops the rest. If ctx ends
// midway, items not yet attempted are counted as failures and the committed
// ones are still reported.
func (s *Service) Batch(ctx context.Context, action domain.ResultCode, ids []string, actor domain.Person, comment string) (domain.BatchResult, error) {
	if !action.IsValid() {
		return domain.BatchResult{}, fmt.Errorf("%w: unknown batch action %q", domain.ErrValidation, action)
	}
	if strings.TrimSpace(comment) == "" {
		comment = defaultBatchApproveComment
		if action == domain.ResultReject {
			comment = defaultBatchRejectComment
		}
	}

	result := domain.BatchResult{Failures: []domain.BatchFailure{}}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				result.Fail++
				result.Failures = append(result.Failures, domain.BatchFailure{
					DocumentID: strings.TrimSpace(rest),
					Reason:     err.Error(),
				})
				metrics.IncBatchItem(string(action), metrics.ResultError)
			}
			s.logger.Warn("batch interrupted",
				"action", action,
				"actor_id", actor.ID,
				"committed", result.Success,
				"not_attempted", len(ids)-i,
				"error", err,
			)
			break
		}

		id = strings.TrimSpace(id)
		var err error
		if id == "" {
			err = fmt.Errorf("%w: empty document id", domain.ErrValidation)
		} else {
			_, err = s.Process(ctx, id, actor, action, comment)
		}

		if err != nil {
			result.Fail++
			result.Failures = append(result.Failures, domain.BatchFailure{DocumentID: id, Reason: err.Error()})
			metrics.IncBatchItem(string(action), metrics.ResultError)
			s.logger.Warn("batch item failed",
				"action", action,
				"document_id", id,
				"actor_id", actor.ID,
				"error", err,
			)
			continue
		}

		result.Success++
		metrics.IncBatchItem(string(action), metrics.ResultOK)
	}

	s.logger.Info("batch processed",
		"action", action,
		"actor_id", actor.ID,
		"success", result.Success,
		"fail", result.Fail,
	)
	return result, nil
}
