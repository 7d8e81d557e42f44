// Package memstore keeps the ledger in process memory behind per-key locks.
// It backs tests and the "memory" storage driver.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/money"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
)

// Wallets is an in-memory WalletStore. Operations on one user are
// serialised by that user's mutex; unrelated users never contend.
type Wallets struct {
	mu      sync.Mutex // guards the maps, never held across a user lock wait
	locks   map[uuid.UUID]*sync.Mutex
	wallets map[uuid.UUID]*model.Wallet
	order   []uuid.UUID

	markersMu sync.Mutex
	markers   map[string]time.Time

	entriesMu sync.Mutex
	entries   []model.LedgerEntry

	now func() time.Time
}

var _ repo.WalletStore = (*Wallets)(nil)

func NewWallets() *Wallets {
	return &Wallets{
		locks:   make(map[uuid.UUID]*sync.Mutex),
		wallets: make(map[uuid.UUID]*model.Wallet),
		markers: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *Wallets) lockFor(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// lookup returns the stored wallet; the caller must hold the user's lock.
func (s *Wallets) lookup(userID uuid.UUID) (*model.Wallet, error) {
	s.mu.Lock()
	w, ok := s.wallets[userID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: wallet of user %s", model.ErrNotFound, userID)
	}
	return w, nil
}

func (s *Wallets) GetOrCreate(_ context.Context, userID uuid.UUID) (*model.Wallet, error) {
	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	if w, err := s.lookup(userID); err == nil {
		cp := *w
		return &cp, nil
	}
	w := model.NewWallet(userID, s.now())
	s.mu.Lock()
	s.wallets[userID] = w
	s.order = append(s.order, userID)
	s.mu.Unlock()
	cp := *w
	return &cp, nil
}

func (s *Wallets) Get(_ context.Context, userID uuid.UUID) (*model.Wallet, error) {
	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	w, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}
	cp := *w
	return &cp, nil
}

// GetMany takes every user lock in LockOrder, so it never observes half of an ApplyPair.
func (s *Wallets) GetMany(_ context.Context, userIDs ...uuid.UUID) ([]model.Wallet, error) {
	unlock := s.lockAll(userIDs)
	defer unlock()
	out := make([]model.Wallet, 0, len(userIDs))
	for _, id := range userIDs {
		w, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

func (s *Wallets) lockAll(userIDs []uuid.UUID) func() {
	seen := make(map[uuid.UUID]bool, len(userIDs))
	ids := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	// insertion sort by LockOrder; the lists are tiny
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			if lo, _ := repo.LockOrder(ids[j-1], ids[j]); lo == ids[j] {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			}
		}
	}
	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l := s.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// List copies every wallet in creation order.
func (s *Wallets) List(_ context.Context) ([]model.Wallet, error) {
	s.mu.Lock()
	ids := append([]uuid.UUID(nil), s.order...)
	s.mu.Unlock()
	out := make([]model.Wallet, 0, len(ids))
	for _, id := range ids {
		l := s.lockFor(id)
		l.Lock()
		w, err := s.lookup(id)
		if err == nil {
			out = append(out, *w)
		}
		l.Unlock()
	}
	return out, nil
}

func (s *Wallets) Debit(_ context.Context, userID uuid.UUID, amount money.Money, opKey string) (*model.Wallet, error) {
	return s.single(userID, model.Debit, amount, opKey)
}

func (s *Wallets) Credit(_ context.Context, userID uuid.UUID, amount money.Money, opKey string) (*model.Wallet, error) {
	return s.single(userID, model.Credit, amount, opKey)
}

func (s *Wallets) single(userID uuid.UUID, dir model.Direction, amount money.Money, opKey string) (*model.Wallet, error) {
	if err := repo.CheckAmount(amount); err != nil {
		return nil, err
	}
	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	w, err := s.lookup(userID)
	if err != nil {
		return nil, err
	}
	if opKey != "" && s.hasMarker(opKey) {
		cp := *w
		return &cp, nil
	}
	next, entry, err := s.plan(w, dir, amount, opKey)
	if err != nil {
		return nil, err
	}
	s.commit(entry)
	s.mark(opKey)
	*w = *next
	cp := *w
	return &cp, nil
}

// Delete drops an empty wallet. Its ledger entries are kept.
func (s *Wallets) Delete(_ context.Context, userID uuid.UUID) error {
	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()
	w, err := s.lookup(userID)
	if err != nil {
		return err
	}
	if err := repo.CheckEmpty(w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ApplyPair holds both user locks for the whole check-and-write, so the two
// balance changes and the marker become visible together.
func (s *Wallets) ApplyPair(_ context.Context, debitUser, creditUser uuid.UUID, amount money.Money, opKey string) (bool, error) {
	if err := repo.CheckAmount(amount); err != nil {
		return false, err
	}
	if debitUser == creditUser {
		return false, fmt.Errorf("%w: cannot move funds within one wallet", model.ErrValidation)
	}
	unlock := s.lockAll([]uuid.UUID{debitUser, creditUser})
	defer unlock()

	if opKey != "" && s.hasMarker(opKey) {
		return false, nil
	}
	from, err := s.lookup(debitUser)
	if err != nil {
		return false, err
	}
	to, err := s.lookup(creditUser)
	if err != nil {
		return false, err
	}
	nextFrom, debit, err := s.plan(from, model.Debit, amount, opKey)
	if err != nil {
		return false, err
	}
	nextTo, credit, err := s.plan(to, model.Credit, amount, opKey)
	if err != nil {
		return false, err
	}
	*from, *to = *nextFrom, *nextTo
	s.commit(debit, credit)
	s.mark(opKey)
	return true, nil
}

func (s *Wallets) Applied(_ context.Context, opKey string) (bool, error) {
	return s.hasMarker(opKey), nil
}

func (s *Wallets) mark(opKey string) {
	if opKey == "" {
		return
	}
	s.markersMu.Lock()
	s.markers[opKey] = s.now()
	s.markersMu.Unlock()
}

func (s *Wallets) hasMarker(opKey string) bool {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	_, ok := s.markers[opKey]
	return ok
}

func (s *Wallets) History(_ context.Context, userID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	var out []model.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// plan computes the wallet after the change without touching the stored one.
func (s *Wallets) plan(w *model.Wallet, dir model.Direction, amount money.Money, opKey string) (*model.Wallet, model.LedgerEntry, error) {
	var before, after money.Money
	var err error
	if dir == model.Debit {
		before, after, err = repo.Debited(w, amount)
	} else {
		before, after, err = repo.Credited(w, amount)
	}
	if err != nil {
		return nil, model.LedgerEntry{}, err
	}
	now := s.now()
	next := *w
	next.SetBalance(after)
	next.Version++
	next.UpdatedAt = now
	return &next, model.LedgerEntry{
		WalletID:      w.ID,
		UserID:        w.UserID,
		Direction:     dir,
		Amount:        amount.Amount(),
		Currency:      amount.Currency(),
		BalanceBefore: before.Amount(),
		BalanceAfter:  after.Amount(),
		OperationKey:  opKey,
		CreatedAt:     now,
	}, nil
}

func (s *Wallets) commit(entries ...model.LedgerEntry) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()
	for _, e := range entries {
		e.ID = uint64(len(s.entries) + 1)
		s.entries = append(s.entries, e)
	}
}
