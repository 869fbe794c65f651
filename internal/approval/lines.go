// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adiadia/approval-engine/internal/domain"
)

type LineStore interface {
	LineReader
	ListLines(ctx context.Context, f domain.LineFilter) ([]domain.Line, error)
	CreateLine(ctx context.Context, params domain.LineParams, createdBy string) (domain.Line, error)
	UpdateLine(ctx context.Context, id string, params domain.LineParams) (domain.Line, error)
	ToggleLine(ctx context.Context, id string) (domain.Line, error)
	DeleteLines(ctx context.Context, ids []string) (int64, error)
	Statistics(ctx context.Context) (domain.LineStatistics, error)
}

// LineAdmin maintains approval line templates. Submitted documents hold
// their own copy of a line, so nothing here reaches them.
type LineAdmin struct {
	store  LineStore
	logger *slog.Logger
}

func NewLineAdmin(store LineStore, logger *slog.Logger) *LineAdmin {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineAdmin{store: store, logger: logger}
}

func (a *LineAdmin) Get(ctx context.Context, id string) (domain.Line, error) {
	return a.store.GetLine(ctx, id)
}

// ForWorkType lists the in-use lines a submission of the work type may use,
// ordered by sequence.
func (a *LineAdmin) ForWorkType(ctx context.Context, workTypeCode string) ([]domain.Line, error) {
	lines, err := a.store.ActiveLines(ctx, strings.TrimSpace(workTypeCode))
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []domain.Line{}
	}
	return lines, nil
}

func (a *LineAdmin) List(ctx context.Context, f domain.LineFilter) ([]domain.Line, error) {
	lines, err := a.store.ListLines(ctx, f)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []domain.Line{}
	}
	return lines, nil
}

func (a *LineAdmin) Create(ctx context.Context, params domain.LineParams, createdBy string) (domain.Line, error) {
	params, err := normalizeLine(params)
	if err != nil {
		return domain.Line{}, err
	}
	return a.store.CreateLine(ctx, params, createdBy)
}

func (a *LineAdmin) Update(ctx context.Context, id string, params domain.LineParams) (domain.Line, error) {
	current, err := a.store.GetLine(ctx, id)
	if err != nil {
		return domain.Line{}, err
	}
	if !current.Editable {
		return domain.Line{}, fmt.Errorf("%w: line %s is not editable", domain.ErrInvalidState, id)
	}

	params, err = normalizeLine(params)
	if err != nil {
		return domain.Line{}, err
	}
	return a.store.UpdateLine(ctx, id, params)
}

func (a *LineAdmin) Toggle(ctx context.Context, id string) (domain.Line, error) {
	return a.store.ToggleLine(ctx, id)
}

// Delete removes one or many lines. Unknown ids are ignored; asking for
// nothing is a validation error.
func (a *LineAdmin) Delete(ctx context.Context, ids []string) (int64, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, fmt.Errorf("%w: no line ids given", domain.ErrValidation)
	}
	return a.store.DeleteLines(ctx, clean)
}

func (a *LineAdmin) Statistics(ctx context.Context) (domain.LineStatistics, error) {
	return a.store.Statistics(ctx)
}

func normalizeLine(p domain.LineParams) (domain.LineParams, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.WorkTypeCode = strings.TrimSpace(p.WorkTypeCode)

	if p.Name == "" {
		return p, fmt.Errorf("%w: line name is required", domain.ErrValidation)
	}
	if p.WorkTypeCode == "" {
		return p, fmt.Errorf("%w: work type is required", domain.ErrValidation)
	}
	if len(p.Steps) == 0 {
		return p, fmt.Errorf("%w: a line needs at least one step", domain.ErrValidation)
	}

	steps := make([]domain.LineStep, len(p.Steps))
	for i, st := range p.Steps {
		st.ApproverID = strings.TrimSpace(st.ApproverID)
		st.StepName = strings.TrimSpace(st.StepName)
		steps[i] = st
	}
	if err := domain.ValidateLineSteps(steps); err != nil {
		return p, err
	}

	p.Steps = steps
	return p, nil
}
