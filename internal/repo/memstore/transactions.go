package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
)

// Transactions is an in-memory TransactionStore.
type Transactions struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*model.Transaction
	order []uuid.UUID
	now   func() time.Time
}

var _ repo.TransactionStore = (*Transactions)(nil)

func NewTransactions() *Transactions {
	return &Transactions{byID: make(map[uuid.UUID]*model.Transaction), now: time.Now}
}

func (s *Transactions) Create(_ context.Context, t *model.Transaction) (*model.Transaction, error) {
	rec, err := repo.PrepareNew(t, s.now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.ID]; ok {
		return nil, fmt.Errorf("%w: transaction %s already exists", model.ErrConflict, rec.ID)
	}
	s.order = append(s.order, rec.ID)
	rec.Seq = uint64(len(s.order))
	s.byID[rec.ID] = rec
	return rec.Clone(), nil
}

func (s *Transactions) Get(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (s *Transactions) List(_ context.Context, f model.TransactionFilter) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Transaction, 0)
	for _, id := range s.order {
		t := s.byID[id]
		if f.Match(t) {
			out = append(out, *t.Clone())
		}
	}
	return out, nil
}

// CompareAndSwap copies next's status onto the stored record when the version matches.
func (s *Transactions) CompareAndSwap(_ context.Context, id uuid.UUID, expectedVersion uint64, next *model.Transaction) (*model.Transaction, error) {
	if _, err := model.ParseStatus(string(next.Status)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, id)
	}
	if cur.Version != expectedVersion {
		return nil, fmt.Errorf("%w: transaction %s is at version %d, expected %d", model.ErrConflict, id, cur.Version, expectedVersion)
	}
	updated := cur.Clone()
	updated.Status = next.Status
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = next.UpdatedAt
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = s.now()
	}
	s.byID[id] = updated
	return updated.Clone(), nil
}
