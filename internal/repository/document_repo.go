// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/adiadia/approval-engine/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `
	d.id, d.approval_no, d.work_type_cd, d.title, d.content,
	d.line_id, d.line_name,
	d.drafter_id, d.drafter_name, d.drafter_dept_cd, d.drafter_dept_name, d.drafted_at,
	d.ref_type, d.ref_id, d.urgent,
	d.status, d.current_step, d.total_steps,
	d.current_approver_id, d.current_approver_name,
	d.completed_at, d.version, d.updated_at`

const uniqueViolation = "23505"

// referenceInFlightIndex is the partial unique index allowing one in-flight
// document per business reference.
const referenceInFlightIndex = "approval_documents_reference_in_flight_idx"

type DocumentRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, logger *slog.Logger) *DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &DocumentRepository{
		pool:   pool,
		logger: logger,
	}
}

// Create persists a freshly submitted ledger, its steps and the submission
// event in one transaction. It assigns the document id and approval number.
func (r *DocumentRepository) Create(ctx context.Context, l *workflow.Ledger, out workflow.Outcome) (domain.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return domain.Document{}, err
	}
	defer tx.Rollback(ctx)

	doc := l.Document

	if ref := doc.Reference; ref != nil {
		var existing string
		err := tx.QueryRow(ctx, `
			SELECT id FROM approval_documents
			WHERE ref_type=$1 AND ref_id=$2 AND status IN ($3,$4)
			LIMIT 1
		`, ref.Type, ref.ID, domain.DocumentSubmitted, domain.DocumentInProgress).Scan(&existing)
		switch {
		case err == nil:
			r.logger.Info("submit refused: reference in flight",
				"ref_type", ref.Type,
				"ref_id", ref.ID,
				"document_id", existing,
			)
			return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrAlreadyInFlight, existing)
		case !errors.Is(err, pgx.ErrNoRows):
			r.logger.Error("reference check failed", "ref_id", ref.ID, "error", err)
			return domain.Document{}, err
		}
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('approval_document_seq')`).Scan(&seq); err != nil {
		r.logger.Error("allocate document id failed", "error", err)
		return domain.Document{}, err
	}
	year := doc.DraftedAt.UTC().Year()
	var yearNo int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO approval_number_counters (year, last_no)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_no = approval_number_counters.last_no + 1
		RETURNING last_no
	`, year).Scan(&yearNo); err != nil {
		r.logger.Error("allocate approval number failed", "year", year, "error", err)
		return domain.Document{}, err
	}

	doc.ID = fmt.Sprintf("APR%08d", seq)
	doc.ApprovalNo = approvalNumber(year, yearNo)
	doc.Version = 1

	var refType, refID *string
	if doc.Reference != nil {
		refType, refID = &doc.Reference.Type, &doc.Reference.ID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO approval_documents (
			id, approval_no, work_type_cd, title, content,
			line_id, line_name,
			drafter_id, drafter_name, drafter_dept_cd, drafter_dept_name, drafted_at,
			ref_type, ref_id, urgent,
			status, current_step, total_steps,
			current_approver_id, current_approver_name,
			version, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`,
		doc.ID, doc.ApprovalNo, doc.WorkTypeCode, doc.Title, doc.Content,
		doc.LineID, doc.LineName,
		doc.Drafter.ID, doc.Drafter.Name, doc.Drafter.DeptCode, doc.Drafter.DeptName, doc.DraftedAt,
		refType, refID, doc.Urgent,
		doc.Status, doc.CurrentStep, doc.TotalSteps,
		nullIfEmpty(doc.CurrentApproverID), nullIfEmpty(doc.CurrentApproverName),
		doc.Version, doc.UpdatedAt,
	)
	if err != nil {
		if isReferenceConflict(err) && doc.Reference != nil {
			return domain.Document{}, fmt.Errorf("%w: %s/%s", domain.ErrAlreadyInFlight, doc.Reference.Type, doc.Reference.ID)
		}
		r.logger.Error("insert document failed", "document_id", doc.ID, "error", err)
		return domain.Document{}, err
	}

	for i := range l.Steps {
		st := &l.Steps[i]
		st.DocumentID = doc.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO approval_steps (
				id, document_id, step_order, step_name,
				approver_id, approver_name, action
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			st.ID, doc.ID, st.StepOrder, st.StepName,
			st.Approver.ID, st.Approver.Name, st.Action,
		); err != nil {
			r.logger.Error("insert step failed",
				"document_id", doc.ID,
				"step_order", st.StepOrder,
				"error", err,
			)
			return domain.Document{}, err
		}
	}

	if err := insertEvent(ctx, tx, doc.ID, doc.Drafter.ID, out); err != nil {
		r.logger.Error("insert submit event failed", "document_id", doc.ID, "error", err)
		return domain.Document{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit submit failed", "document_id", doc.ID, "error", err)
		return domain.Document{}, err
	}

	l.Document = doc
	r.logger.Info("document submitted",
		"document_id", doc.ID,
		"line_id", doc.LineID,
		"drafter_id", doc.Drafter.ID,
		"steps", doc.TotalSteps,
	)
	return doc, nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (domain.DocumentDetail, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM approval_documents d WHERE d.id=$1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DocumentDetail{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		r.logger.Error("get document failed", "document_id", id, "error", err)
		return domain.DocumentDetail{}, err
	}

	steps, err := listSteps(ctx, r.pool, id)
	if err != nil {
		r.logger.Error("list steps failed", "document_id", id, "error", err)
		return domain.DocumentDetail{}, err
	}

	return domain.DocumentDetail{Document: doc, Steps: steps}, nil
}

// FindByReference returns the most recent document raised for a business
// reference, whatever its status, with its step ledger.
func (r *DocumentRepository) FindByReference(ctx context.Context, ref domain.Reference) (domain.DocumentDetail, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM approval_documents d
		WHERE d.ref_type=$1 AND d.ref_id=$2
		ORDER BY d.drafted_at DESC, d.id DESC
		LIMIT 1`,
		ref.Type, ref.ID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DocumentDetail{}, fmt.Errorf("%w: no document for %s/%s", domain.ErrNotFound, ref.Type, ref.ID)
		}
		r.logger.Error("find document by reference failed", "ref_type", ref.Type, "ref_id", ref.ID, "error", err)
		return domain.DocumentDetail{}, err
	}

	steps, err := listSteps(ctx, r.pool, doc.ID)
	if err != nil {
		r.logger.Error("list steps failed", "document_id", doc.ID, "error", err)
		return domain.DocumentDetail{}, err
	}

	return domain.DocumentDetail{Document: doc, Steps: steps}, nil
}

// Mutate loads the document under a row lock, applies fn and writes back the
// document with a version check, the changed steps and one audit event.
func (r *DocumentRepository) Mutate(ctx context.Context, id, actorID string, fn workflow.Transition) (domain.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return domain.Document{}, err
	}
	defer tx.Rollback(ctx)

	doc, err := scanDocument(tx.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM approval_documents d WHERE d.id=$1 FOR UPDATE`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		r.logger.Error("lock document failed", "document_id", id, "error", err)
		return domain.Document{}, err
	}

	steps, err := listSteps(ctx, tx, id)
	if err != nil {
		r.logger.Error("list steps failed", "document_id", id, "error", err)
		return domain.Document{}, err
	}

	before := make([]domain.StepRecord, len(steps))
	copy(before, steps)

	ledger := &workflow.Ledger{Document: doc, Steps: steps}
	out, err := fn(ledger)
	if err != nil {
		return domain.Document{}, err
	}

	next := ledger.Document
	cmd, err := tx.Exec(ctx, `
		UPDATE approval_documents
		SET status=$3,
		    current_step=$4,
		    current_approver_id=$5,
		    current_approver_name=$6,
		    completed_at=$7,
		    version=version+1,
		    updated_at=$8
		WHERE id=$1 AND version=$2
	`,
		id, doc.Version,
		next.Status, next.CurrentStep,
		nullIfEmpty(next.CurrentApproverID), nullIfEmpty(next.CurrentApproverName),
		next.CompletedAt, next.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("update document failed", "document_id", id, "error", err)
		return domain.Document{}, err
	}
	if cmd.RowsAffected() == 0 {
		r.logger.Warn("document version conflict", "document_id", id, "version", doc.Version)
		return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrConcurrentUpdate, id)
	}
	next.Version = doc.Version + 1

	// Steps are written in ledger order so the outgoing ACTIVE step is closed
	// before the next one opens.
	for i, st := range ledger.Steps {
		if stepUnchanged(before[i], st) {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE approval_steps
			SET action=$2,
			    comment=$3,
			    acted_at=$4,
			    approver_name=$5,
			    approver_dept_cd=$6,
			    approver_dept_name=$7
			WHERE id=$1
		`,
			st.ID, st.Action, st.Comment, st.ActedAt,
			st.Approver.Name, st.Approver.DeptCode, st.Approver.DeptName,
		); err != nil {
			r.logger.Error("update step failed",
				"document_id", id,
				"step_order", st.StepOrder,
				"error", err,
			)
			return domain.Document{}, err
		}
	}

	if err := insertEvent(ctx, tx, id, actorID, out); err != nil {
		r.logger.Error("insert event failed", "document_id", id, "type", out.AuditType, "error", err)
		return domain.Document{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit transition failed", "document_id", id, "error", err)
		return domain.Document{}, err
	}

	r.logger.Info("document transitioned",
		"document_id", id,
		"actor_id", actorID,
		"event", out.Event,
		"from", doc.Status,
		"to", next.Status,
	)
	return next, nil
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listSteps(ctx context.Context, q rowQuerier, documentID string) ([]domain.StepRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT id, document_id, step_order, step_name,
		       approver_id, approver_name, approver_dept_cd, approver_dept_name,
		       action, comment, acted_at
		FROM approval_steps
		WHERE document_id=$1
		ORDER BY step_order ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StepRecord, 0, 4)
	for rows.Next() {
		var st domain.StepRecord
		if err := rows.Scan(
			&st.ID,
			&st.DocumentID,
			&st.StepOrder,
			&st.StepName,
			&st.Approver.ID,
			&st.Approver.Name,
			&st.Approver.DeptCode,
			&st.Approver.DeptName,
			&st.Action,
			&st.Comment,
			&st.ActedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	return out, rows.Err()
}

func scanDocument(row pgx.Row) (domain.Document, error) {
	var (
		doc                    domain.Document
		refType, refID         *string
		approverID, approverNm *string
	)

	if err := row.Scan(
		&doc.ID, &doc.ApprovalNo, &doc.WorkTypeCode, &doc.Title, &doc.Content,
		&doc.LineID, &doc.LineName,
		&doc.Drafter.ID, &doc.Drafter.Name, &doc.Drafter.DeptCode, &doc.Drafter.DeptName, &doc.DraftedAt,
		&refType, &refID, &doc.Urgent,
		&doc.Status, &doc.CurrentStep, &doc.TotalSteps,
		&approverID, &approverNm,
		&doc.CompletedAt, &doc.Version, &doc.UpdatedAt,
	); err != nil {
		return domain.Document{}, err
	}

	if refType != nil && refID != nil {
		doc.Reference = &domain.Reference{Type: *refType, ID: *refID}
	}
	if approverID != nil {
		doc.CurrentApproverID = *approverID
	}
	if approverNm != nil {
		doc.CurrentApproverName = *approverNm
	}

	return doc, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, documentID, actorID string, out workflow.Outcome) error {
	payload, err := json.Marshal(map[string]any{
		"event":      out.Event,
		"step_order": out.StepOrder,
		"comment":    out.Comment,
	})
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO approval_events (id, document_id, type, actor_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), documentID, out.AuditType, actorID, payload)
	return err
}

// approvalNumber formats the human-facing number. The counter restarts each
// year and widens past five digits rather than wrapping.
func approvalNumber(year int, n int64) string {
	return fmt.Sprintf("APR-%04d-%05d", year, n)
}

// isReferenceConflict reports whether err is the in-flight reference index
// rejecting an insert. Other unique violations are not.
func isReferenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == referenceInFlightIndex
}

func stepUnchanged(a, b domain.StepRecord) bool {
	return a.Action == b.Action &&
		a.Comment == b.Comment &&
		a.Approver == b.Approver &&
		((a.ActedAt == nil && b.ActedAt == nil) ||
			(a.ActedAt != nil && b.ActedAt != nil && a.ActedAt.Equal(*b.ActedAt)))
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
