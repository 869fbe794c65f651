// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/approval-engine/internal/auth"
	"github.com/adiadia/approval-engine/internal/domain"
)

type ApprovalService interface {
	Submit(ctx context.Context, drafter domain.Person, params domain.SubmitParams) (domain.Document, error)
	Process(ctx context.Context, id string, actor domain.Person, result domain.ResultCode, comment string) (domain.Document, error)
	Withdraw(ctx context.Context, id string, actor domain.Person) (domain.Document, error)
	Batch(ctx context.Context, action domain.ResultCode, ids []string, actor domain.Person, comment string) (domain.BatchResult, error)
	Get(ctx context.Context, id string) (domain.DocumentDetail, error)
	Events(ctx context.Context, id string) ([]domain.EventRecord, error)
	ByReference(ctx context.Context, ref domain.Reference) (domain.DocumentDetail, error)
	Authority(ctx context.Context, id, userID string) (domain.Authority, error)
	Box(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) ([]domain.Document, error)
	Counts(ctx context.Context, userID string, f domain.BoxFilter) (domain.BoxCounts, error)
}

type LineAdminService interface {
	Get(ctx context.Context, id string) (domain.Line, error)
	ForWorkType(ctx context.Context, workTypeCode string) ([]domain.Line, error)
	List(ctx context.Context, f domain.LineFilter) ([]domain.Line, error)
	Create(ctx context.Context, params domain.LineParams, createdBy string) (domain.Line, error)
	Update(ctx context.Context, id string, params domain.LineParams) (domain.Line, error)
	Toggle(ctx context.Context, id string) (domain.Line, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	Statistics(ctx context.Context) (domain.LineStatistics, error)
}

type SessionResolver interface {
	Resolve(token string) (auth.Principal, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
