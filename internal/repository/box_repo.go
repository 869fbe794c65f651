// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BoxRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewBoxRepository(pool *pgxpool.Pool, logger *slog.Logger) *BoxRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &BoxRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *BoxRepository) ListBox(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) ([]domain.Document, error) {
	where, args, err := boxPredicate(box, userID, f)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM approval_documents d WHERE `+where+` ORDER BY `+boxOrder(box),
		args...,
	)
	if err != nil {
		r.logger.Error("box query failed", "box", box, "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Document, 0, 16)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			r.logger.Error("scan box row failed", "box", box, "user_id", userID, "error", err)
			return nil, err
		}
		out = append(out, doc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("box rows iteration failed", "box", box, "user_id", userID, "error", err)
		return nil, err
	}

	return out, nil
}

func (r *BoxRepository) CountBox(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) (int64, error) {
	where, args, err := boxPredicate(box, userID, f)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM approval_documents d WHERE `+where,
		args...,
	).Scan(&n); err != nil {
		r.logger.Error("box count failed", "box", box, "user_id", userID, "error", err)
		return 0, err
	}

	return n, nil
}

type predicate struct {
	clauses []string
	args    []any
}

func (p *predicate) add(clause string, arg any) {
	p.args = append(p.args, arg)
	p.clauses = append(p.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(p.args))))
}

func (p *predicate) sql() string {
	if len(p.clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(p.clauses, " AND ")
}

// boxPredicate builds the WHERE clause for a box. Every filter field that is
// unset contributes nothing.
func boxPredicate(box domain.Box, userID string, f domain.BoxFilter) (string, []any, error) {
	var p predicate

	switch box {
	case domain.BoxDraft:
		p.add("d.drafter_id = ?", userID)
	case domain.BoxPending:
		p.add("d.current_approver_id = ?", userID)
		p.clauses = append(p.clauses, fmt.Sprintf("d.status IN ('%s','%s')", domain.DocumentSubmitted, domain.DocumentInProgress))
	case domain.BoxCompleted:
		p.add(fmt.Sprintf(`EXISTS (
			SELECT 1 FROM approval_steps s
			WHERE s.document_id = d.id AND s.approver_id = ? AND s.action = '%s'
		)`, domain.StepApproved), userID)
	default:
		return "", nil, fmt.Errorf("%w: unknown box %q", domain.ErrValidation, box)
	}

	if f.WorkTypeCode != "" {
		p.add("d.work_type_cd = ?", f.WorkTypeCode)
	}
	if f.Status != nil {
		p.add("d.status = ?", string(*f.Status))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		p.add("d.title ILIKE ?", "%"+escapeLike(kw)+"%")
	}
	if f.From != nil {
		p.add("d.drafted_at >= ?", *f.From)
	}
	if f.To != nil {
		p.add("d.drafted_at < ?", *f.To)
	}

	return p.sql(), p.args, nil
}

func boxOrder(box domain.Box) string {
	if box == domain.BoxCompleted {
		return "d.completed_at DESC NULLS LAST, d.drafted_at DESC, d.id DESC"
	}
	return "d.drafted_at DESC, d.id DESC"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
