// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/adiadia/approval-engine/internal/workflow"
	"github.com/stretchr/testify/mock"
)

// memoryStore keeps documents, lines and events in memory and applies
// transitions under one mutex, mirroring the row lock of the real store.
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	docs     map[string]*workflow.Ledger
	lines    map[string]domain.Line
	events   map[string][]domain.EventRecord
	eventSeq int64
	failIDs  map[string]error
}

func newMemoryStore(lines ...domain.Line) *memoryStore {
	s := &memoryStore{
		docs:    map[string]*workflow.Ledger{},
		lines:   map[string]domain.Line{},
		events:  map[string][]domain.EventRecord{},
		failIDs: map[string]error{},
	}
	for _, l := range lines {
		s.lines[l.ID] = l
	}
	return s
}

func (s *memoryStore) Create(_ context.Context, l *workflow.Ledger, out workflow.Outcome) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref := l.Document.Reference; ref != nil {
		for _, existing := range s.docs {
			r := existing.Document.Reference
			if r != nil && *r == *ref && existing.Document.Status.IsActionable() {
				return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrAlreadyInFlight, existing.Document.ID)
			}
		}
	}

	s.seq++
	l.Document.ID = fmt.Sprintf("APR%08d", s.seq)
	l.Document.ApprovalNo = fmt.Sprintf("APR-%04d-%05d", l.Document.DraftedAt.Year(), s.seq)
	l.Document.Version = 1
	for i := range l.Steps {
		l.Steps[i].DocumentID = l.Document.ID
	}

	s.docs[l.Document.ID] = cloneLedger(l)
	s.appendEvent(l.Document.ID, l.Document.Drafter.ID, out)
	return l.Document, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (domain.DocumentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.docs[id]
	if !ok {
		return domain.DocumentDetail{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	c := cloneLedger(l)
	return domain.DocumentDetail{Document: c.Document, Steps: c.Steps}, nil
}

func (s *memoryStore) FindByReference(_ context.Context, ref domain.Reference) (domain.DocumentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *workflow.Ledger
	for _, l := range s.docs {
		r := l.Document.Reference
		if r == nil || *r != ref {
			continue
		}
		if latest == nil ||
			l.Document.DraftedAt.After(latest.Document.DraftedAt) ||
			(l.Document.DraftedAt.Equal(latest.Document.DraftedAt) && l.Document.ID > latest.Document.ID) {
			latest = l
		}
	}
	if latest == nil {
		return domain.DocumentDetail{}, fmt.Errorf("%w: no document for %s/%s", domain.ErrNotFound, ref.Type, ref.ID)
	}
	c := cloneLedger(latest)
	return domain.DocumentDetail{Document: c.Document, Steps: c.Steps}, nil
}

func (s *memoryStore) Mutate(_ context.Context, id, actorID string, fn workflow.Transition) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failIDs[id]; ok {
		return domain.Document{}, err
	}

	stored, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}

	work := cloneLedger(stored)
	out, err := fn(work)
	if err != nil {
		return domain.Document{}, err
	}

	work.Document.Version++
	s.docs[id] = work
	s.appendEvent(id, actorID, out)
	return work.Document, nil
}

func (s *memoryStore) ListBox(_ context.Context, box domain.Box, userID string, f domain.BoxFilter) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Document, 0)
	for _, l := range s.docs {
		if inBox(l, box, userID) && matches(l.Document, f) {
			out = append(out, l.Document)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if box == domain.BoxCompleted {
			a, b := out[i].CompletedAt, out[j].CompletedAt
			switch {
			case a != nil && b == nil:
				return true
			case a == nil && b != nil:
				return false
			case a != nil && b != nil && !a.Equal(*b):
				return a.After(*b)
			}
		}
		if !out[i].DraftedAt.Equal(out[j].DraftedAt) {
			return out[i].DraftedAt.After(out[j].DraftedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memoryStore) CountBox(ctx context.Context, box domain.Box, userID string, f domain.BoxFilter) (int64, error) {
	docs, err := s.ListBox(ctx, box, userID, f)
	return int64(len(docs)), err
}

func (s *memoryStore) GetLine(_ context.Context, id string) (domain.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[id]
	if !ok {
		return domain.Line{}, fmt.Errorf("%w: line %s", domain.ErrNotFound, id)
	}
	return l, nil
}

func (s *memoryStore) ActiveLines(_ context.Context, workTypeCode string) ([]domain.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Line, 0)
	for _, l := range s.lines {
		if l.InUse && l.WorkTypeCode == workTypeCode {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *memoryStore) ListEvents(_ context.Context, documentID string) ([]domain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	return append([]domain.EventRecord(nil), s.events[documentID]...), nil
}

func (s *memoryStore) ledger(id string) *workflow.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLedger(s.docs[id])
}

func (s *memoryStore) appendEvent(documentID, actorID string, out workflow.Outcome) {
	s.eventSeq++
	s.events[documentID] = append(s.events[documentID], domain.EventRecord{
		Seq:        s.eventSeq,
		DocumentID: documentID,
		Type:       out.AuditType,
		ActorID:    actorID,
	})
}

func inBox(l *workflow.Ledger, box domain.Box, userID string) bool {
	switch box {
	case domain.BoxDraft:
		return l.Document.Drafter.ID == userID
	case domain.BoxPending:
		return l.Document.CurrentApproverID == userID && l.Document.Status.IsActionable()
	case domain.BoxCompleted:
		return l.HasApproval(userID)
	}
	return false
}

func matches(d domain.Document, f domain.BoxFilter) bool {
	if f.WorkTypeCode != "" && d.WorkTypeCode != f.WorkTypeCode {
		return false
	}
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if f.Keyword != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(f.Keyword)) {
		return false
	}
	if f.From != nil && d.DraftedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !d.DraftedAt.Before(*f.To) {
		return false
	}
	return true
}

func cloneLedger(l *workflow.Ledger) *workflow.Ledger {
	if l == nil {
		return nil
	}
	c := &workflow.Ledger{Document: l.Document, Steps: make([]domain.StepRecord, len(l.Steps))}
	copy(c.Steps, l.Steps)
	return c
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) Lookup(ctx context.Context, userID string) (domain.Person, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.Person), args.Error(1)
}
