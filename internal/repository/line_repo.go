// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const lineColumns = `id, name, work_type_cd, sequence, in_use, editable, remarks, created_by, created_at, updated_at`

type LineRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewLineRepository(pool *pgxpool.Pool, logger *slog.Logger) *LineRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &LineRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *LineRepository) GetLine(ctx context.Context, id string) (domain.Line, error) {
	line, err := scanLine(r.pool.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM approval_lines WHERE id=$1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Line{}, fmt.Errorf("%w: line %s", domain.ErrNotFound, id)
		}
		r.logger.Error("get line failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	steps, err := r.lineSteps(ctx, r.pool, id)
	if err != nil {
		r.logger.Error("get line steps failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}
	line.Steps = steps

	return line, nil
}

// ActiveLines returns the in-use lines of a work type ordered by sequence.
func (r *LineRepository) ActiveLines(ctx context.Context, workTypeCode string) ([]domain.Line, error) {
	inUse := true
	return r.ListLines(ctx, domain.LineFilter{WorkTypeCode: workTypeCode, InUse: &inUse})
}

func (r *LineRepository) ListLines(ctx context.Context, f domain.LineFilter) ([]domain.Line, error) {
	var p predicate
	if f.WorkTypeCode != "" {
		p.add("work_type_cd = ?", f.WorkTypeCode)
	}
	if f.InUse != nil {
		p.add("in_use = ?", *f.InUse)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		p.add("(name ILIKE ? OR remarks ILIKE ?)", "%"+escapeLike(kw)+"%")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+lineColumns+` FROM approval_lines WHERE `+p.sql()+` ORDER BY work_type_cd, sequence, id`,
		p.args...,
	)
	if err != nil {
		r.logger.Error("list lines query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.Line, 0, 16)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			r.logger.Error("scan line row failed", "error", err)
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("line rows iteration failed", "error", err)
		return nil, err
	}

	for i := range lines {
		steps, err := r.lineSteps(ctx, r.pool, lines[i].ID)
		if err != nil {
			r.logger.Error("list line steps failed", "line_id", lines[i].ID, "error", err)
			return nil, err
		}
		lines[i].Steps = steps
	}

	return lines, nil
}

func (r *LineRepository) CreateLine(ctx context.Context, params domain.LineParams, createdBy string) (domain.Line, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return domain.Line{}, err
	}
	defer tx.Rollback(ctx)

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('approval_line_seq')`).Scan(&seq); err != nil {
		r.logger.Error("allocate line id failed", "error", err)
		return domain.Line{}, err
	}
	id := fmt.Sprintf("AL%05d", seq)

	line, err := scanLine(tx.QueryRow(ctx, `
		INSERT INTO approval_lines (id, name, work_type_cd, sequence, editable, remarks, created_by)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM approval_lines WHERE work_type_cd=$3),
			$4, $5, $6)
		RETURNING `+lineColumns,
		id, params.Name, params.WorkTypeCode, params.Editable, params.Remarks, createdBy,
	))
	if err != nil {
		r.logger.Error("insert line failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	if err := insertLineSteps(ctx, tx, id, params.Steps); err != nil {
		r.logger.Error("insert line steps failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit line create failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	line.Steps = params.Steps
	r.logger.Info("line created", "line_id", id, "work_type_cd", line.WorkTypeCode, "steps", len(line.Steps))
	return line, nil
}

// UpdateLine rewrites the line header and replaces its steps. Documents that
// were already submitted keep their own copy.
func (r *LineRepository) UpdateLine(ctx context.Context, id string, params domain.LineParams) (domain.Line, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return domain.Line{}, err
	}
	defer tx.Rollback(ctx)

	line, err := scanLine(tx.QueryRow(ctx, `
		UPDATE approval_lines
		SET name=$2, work_type_cd=$3, editable=$4, remarks=$5, updated_at=NOW()
		WHERE id=$1
		RETURNING `+lineColumns,
		id, params.Name, params.WorkTypeCode, params.Editable, params.Remarks,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Line{}, fmt.Errorf("%w: line %s", domain.ErrNotFound, id)
		}
		r.logger.Error("update line failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM approval_line_steps WHERE line_id=$1`, id); err != nil {
		r.logger.Error("clear line steps failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}
	if err := insertLineSteps(ctx, tx, id, params.Steps); err != nil {
		r.logger.Error("insert line steps failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit line update failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	line.Steps = params.Steps
	r.logger.Info("line updated", "line_id", id, "steps", len(line.Steps))
	return line, nil
}

func (r *LineRepository) ToggleLine(ctx context.Context, id string) (domain.Line, error) {
	line, err := scanLine(r.pool.QueryRow(ctx, `
		UPDATE approval_lines
		SET in_use = NOT in_use, updated_at=NOW()
		WHERE id=$1
		RETURNING `+lineColumns,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Line{}, fmt.Errorf("%w: line %s", domain.ErrNotFound, id)
		}
		r.logger.Error("toggle line failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}

	steps, err := r.lineSteps(ctx, r.pool, id)
	if err != nil {
		r.logger.Error("get line steps failed", "line_id", id, "error", err)
		return domain.Line{}, err
	}
	line.Steps = steps

	r.logger.Info("line toggled", "line_id", id, "in_use", line.InUse)
	return line, nil
}

// DeleteLines removes the given lines and reports how many existed.
func (r *LineRepository) DeleteLines(ctx context.Context, ids []string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM approval_lines WHERE id = ANY($1)`, ids)
	if err != nil {
		r.logger.Error("delete lines failed", "count", len(ids), "error", err)
		return 0, err
	}

	r.logger.Info("lines deleted", "requested", len(ids), "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func (r *LineRepository) Statistics(ctx context.Context) (domain.LineStatistics, error) {
	var stats domain.LineStatistics
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE in_use),
		       COUNT(*) FILTER (WHERE NOT in_use)
		FROM approval_lines
	`).Scan(&stats.Total, &stats.Used, &stats.Unused); err != nil {
		r.logger.Error("line statistics failed", "error", err)
		return domain.LineStatistics{}, err
	}
	return stats, nil
}

func (r *LineRepository) lineSteps(ctx context.Context, q rowQuerier, lineID string) ([]domain.LineStep, error) {
	rows, err := q.Query(ctx, `
		SELECT step_order, step_name, approver_id, approver_name
		FROM approval_line_steps
		WHERE line_id=$1
		ORDER BY step_order ASC
	`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]domain.LineStep, 0, 4)
	for rows.Next() {
		var st domain.LineStep
		if err := rows.Scan(&st.StepOrder, &st.StepName, &st.ApproverID, &st.ApproverName); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}

	return steps, rows.Err()
}

func insertLineSteps(ctx context.Context, tx pgx.Tx, lineID string, steps []domain.LineStep) error {
	for _, st := range steps {
		if _, err := tx.Exec(ctx, `
			INSERT INTO approval_line_steps (line_id, step_order, step_name, approver_id, approver_name)
			VALUES ($1, $2, $3, $4, $5)
		`, lineID, st.StepOrder, st.StepName, st.ApproverID, st.ApproverName); err != nil {
			return err
		}
	}
	return nil
}

func scanLine(row pgx.Row) (domain.Line, error) {
	var line domain.Line
	err := row.Scan(
		&line.ID,
		&line.Name,
		&line.WorkTypeCode,
		&line.Sequence,
		&line.InUse,
		&line.Editable,
		&line.Remarks,
		&line.CreatedBy,
		&line.CreatedAt,
		&line.UpdatedAt,
	)
	return line, err
}
