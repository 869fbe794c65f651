// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

// ListEvents returns the audit trail of a document in write order.
func (r *EventRepository) ListEvents(ctx context.Context, documentID string) ([]domain.EventRecord, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM approval_documents WHERE id=$1)`,
		documentID,
	).Scan(&exists); err != nil {
		r.logger.Error("document existence check failed", "document_id", documentID, "error", err)
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT seq, document_id, type, actor_id, payload, created_at
		FROM approval_events
		WHERE document_id=$1
		ORDER BY seq ASC
	`, documentID)
	if err != nil {
		r.logger.Error("list events query failed",
			"document_id", documentID,
			"error", err,
		)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.EventRecord, 0, 8)
	for rows.Next() {
		var ev domain.EventRecord
		if err := rows.Scan(
			&ev.Seq,
			&ev.DocumentID,
			&ev.Type,
			&ev.ActorID,
			&ev.Payload,
			&ev.CreatedAt,
		); err != nil {
			r.logger.Error("scan event row failed",
				"document_id", documentID,
				"error", err,
			)
			return nil, err
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("events rows iteration failed",
			"document_id", documentID,
			"error", err,
		)
		return nil, err
	}

	return out, nil
}
