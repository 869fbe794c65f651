// SPDX-License-Identifier: Apache-2.0

// Package approval runs submissions, step decisions, withdrawals and box
// queries against the document store.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/adiadia/approval-engine/internal/metrics"
	"github.com/adiadia/approval-engine/internal/workflow"
	"golang.org/x/sync/errgroup"
)

const (
	opSubmit   = "SUBMIT"
	opApprove  = "APPROVE"
	opReject   = "REJECT"
	opWithdraw = "WITHDRAW"
)

type DocumentStore interface {
	Create(ctx context.Context, l *workflow.Ledger, out workflow.Outcome) (domain.Document, error)
	Get(ctx context.Context, id string) (domain.DocumentDetail, error)
	FindByReference(ctx context.Context, ref domain.Reference) (domain.DocumentDetail, error)
	Mutate(ctx context.Context, id, actorID string, fn workflow.Transition) (domain.Document, error)
}

type BoxStore interface {
	ListBox(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) ([]domain.Document, error)
	CountBox(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) (int64, error)
}

type LineReader interface {
	GetLine(ctx context.Context, id string) (domain.Line, error)
	ActiveLines(ctx context.Context, workTypeCode string) ([]domain.Line, error)
}

type EventStore interface {
	ListEvents(ctx context.Context, documentID string) ([]domain.EventRecord, error)
}

// Directory resolves display names and departments for user ids.
type Directory interface {
	Lookup(ctx context.Context, userID string) (domain.Person, error)
}

type Service struct {
	docs      DocumentStore
	boxes     BoxStore
	lines     LineReader
	events    EventStore
	directory Directory
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(docs DocumentStore, boxes BoxStore, lines LineReader, events EventStore, directory Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		docs:      docs,
		boxes:     boxes,
		lines:     lines,
		events:    events,
		directory: directory,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit copies the chosen line into a new document. Without a line id the
// first in-use line of the work type is used.
func (s *Service) Submit(ctx context.Context, drafter domain.Person, params domain.SubmitParams) (domain.Document, error) {
	params.WorkTypeCode = strings.TrimSpace(params.WorkTypeCode)
	params.LineID = strings.TrimSpace(params.LineID)

	if params.WorkTypeCode == "" && params.LineID == "" {
		return domain.Document{}, s.record(opSubmit, fmt.Errorf("%w: work type or line is required", domain.ErrValidation))
	}
	if ref := params.Reference; ref != nil && (strings.TrimSpace(ref.Type) == "" || strings.TrimSpace(ref.ID) == "") {
		return domain.Document{}, s.record(opSubmit, fmt.Errorf("%w: reference needs type and id", domain.ErrValidation))
	}

	line, err := s.resolveLine(ctx, params)
	if err != nil {
		return domain.Document{}, s.record(opSubmit, err)
	}

	ledger, out, err := workflow.Submit(s.enrich(ctx, drafter), params, line, s.now())
	if err != nil {
		return domain.Document{}, s.record(opSubmit, err)
	}

	doc, err := s.docs.Create(ctx, ledger, out)
	if err != nil {
		return domain.Document{}, s.record(opSubmit, err)
	}

	metrics.IncSubmitted(doc.WorkTypeCode)
	s.record(opSubmit, nil)
	return doc, nil
}

func (s *Service) Approve(ctx context.Context, id string, actor domain.Person, comment string) (domain.Document, error) {
	actor = s.enrich(ctx, actor)
	doc, err := s.docs.Mutate(ctx, id, actor.ID, func(l *workflow.Ledger) (workflow.Outcome, error) {
		return l.Approve(actor, comment, s.now())
	})
	return doc, s.record(opApprove, err)
}

func (s *Service) Reject(ctx context.Context, id string, actor domain.Person, comment string) (domain.Document, error) {
	actor = s.enrich(ctx, actor)
	doc, err := s.docs.Mutate(ctx, id, actor.ID, func(l *workflow.Ledger) (workflow.Outcome, error) {
		return l.Reject(actor, comment, s.now())
	})
	return doc, s.record(opReject, err)
}

func (s *Service) Withdraw(ctx context.Context, id string, actor domain.Person) (domain.Document, error) {
	doc, err := s.docs.Mutate(ctx, id, actor.ID, func(l *workflow.Ledger) (workflow.Outcome, error) {
		return l.Withdraw(actor.ID, s.now())
	})
	return doc, s.record(opWithdraw, err)
}

// Process dispatches a verdict to Approve or Reject.
func (s *Service) Process(ctx context.Context, id string, actor domain.Person, result domain.ResultCode, comment string) (domain.Document, error) {
	switch result {
	case domain.ResultApprove:
		return s.Approve(ctx, id, actor, comment)
	case domain.ResultReject:
		return s.Reject(ctx, id, actor, comment)
	default:
		return domain.Document{}, fmt.Errorf("%w: unknown result code %q", domain.ErrValidation, result)
	}
}

func (s *Service) Get(ctx context.Context, id string) (domain.DocumentDetail, error) {
	return s.docs.Get(ctx, id)
}

// ByReference returns the latest document raised for a business record.
func (s *Service) ByReference(ctx context.Context, ref domain.Reference) (domain.DocumentDetail, error) {
	ref.Type = strings.TrimSpace(ref.Type)
	ref.ID = strings.TrimSpace(ref.ID)
	if ref.Type == "" || ref.ID == "" {
		return domain.DocumentDetail{}, fmt.Errorf("%w: reference needs type and id", domain.ErrValidation)
	}
	return s.docs.FindByReference(ctx, ref)
}

// Authority reports whether userID may approve or reject the document now.
func (s *Service) Authority(ctx context.Context, id, userID string) (domain.Authority, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Authority{}, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}

	detail, err := s.docs.Get(ctx, id)
	if err != nil {
		return domain.Authority{}, err
	}

	l := workflow.Ledger{Document: detail.Document, Steps: detail.Steps}
	return domain.Authority{
		DocumentID:  detail.ID,
		UserID:      userID,
		CanAct:      l.CanAct(userID),
		Status:      detail.Status,
		CurrentStep: detail.CurrentStep,
	}, nil
}

func (s *Service) Events(ctx context.Context, id string) ([]domain.EventRecord, error) {
	return s.events.ListEvents(ctx, id)
}

// Box lists one box for the user. An empty box is an empty slice.
func (s *Service) Box(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) ([]domain.Document, error) {
	started := time.Now()
	docs, err := s.boxes.ListBox(ctx, box, userID, f)
	metrics.ObserveBoxQuery(string(box), time.Since(started))
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// Counts sizes the three boxes concurrently under the same filter.
func (s *Service) Counts(ctx context.Context, userID string, f domain.BoxFilter) (domain.BoxCounts, error) {
	var counts domain.BoxCounts

	g, gctx := errgroup.WithContext(ctx)
	for box, dst := range map[domain.Box]*int64{
		domain.BoxDraft:     &counts.Draft,
		domain.BoxPending:   &counts.Pending,
		domain.BoxCompleted: &counts.Completed,
	} {
		g.Go(func() error {
			started := time.Now()
			n, err := s.boxes.CountBox(gctx, box, userID, f)
			metrics.ObserveBoxQuery(string(box)+"_count", time.Since(started))
			if err != nil {
				return fmt.Errorf("count %s box: %w", box, err)
			}
			*dst = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("box counts failed", "user_id", userID, "error", err)
		return domain.BoxCounts{}, err
	}
	return counts, nil
}

func (s *Service) resolveLine(ctx context.Context, params domain.SubmitParams) (domain.Line, error) {
	if params.LineID != "" {
		return s.lines.GetLine(ctx, params.LineID)
	}

	lines, err := s.lines.ActiveLines(ctx, params.WorkTypeCode)
	if err != nil {
		return domain.Line{}, err
	}
	if len(lines) == 0 {
		return domain.Line{}, fmt.Errorf("%w: no line in use for work type %s", domain.ErrInvalidLine, params.WorkTypeCode)
	}
	return lines[0], nil
}

// enrich fills name and department from the directory. Lookup failures
// leave the identity as given.
func (s *Service) enrich(ctx context.Context, p domain.Person) domain.Person {
	if s.directory == nil || (p.Name != "" && p.Name != p.ID && p.DeptCode != "") {
		return p
	}

	found, err := s.directory.Lookup(ctx, p.ID)
	if err != nil {
		s.logger.Warn("directory lookup failed", "user_id", p.ID, "error", err)
		if p.Name == "" {
			p.Name = p.ID
		}
		return p
	}

	if p.Name == "" || p.Name == p.ID {
		p.Name = found.Name
	}
	if p.DeptCode == "" {
		p.DeptCode = found.DeptCode
	}
	if p.DeptName == "" {
		p.DeptName = found.DeptName
	}
	return p
}

func (s *Service) record(op string, err error) error {
	if err == nil {
		metrics.IncTransition(op, metrics.ResultOK)
		return nil
	}

	metrics.IncTransition(op, metrics.ResultError)
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		metrics.IncTransitionConflict()
	}
	return err
}
