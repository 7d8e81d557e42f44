package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
	"go.uber.org/zap"
)

// flow says which way money moves when a transition is committed.
type flow int

const (
	flowNone flow = iota
	flowBuyerToSeller
	flowSellerToBuyer
)

type edge struct{ from, to model.Status }

var flows = map[edge]flow{
	{model.StatusPending, model.StatusPaid}:      flowBuyerToSeller,
	{model.StatusPaid, model.StatusRefunded}:     flowSellerToBuyer,
	{model.StatusPending, model.StatusCancelled}: flowNone,
	{model.StatusPaid, model.StatusFulfilled}:    flowNone,
}

// OperationKey identifies the wallet effect of one transition of one order.
func OperationKey(id uuid.UUID, from, to model.Status) string {
	return fmt.Sprintf("%s:%s->%s", id, from, to)
}

// ReversalKey identifies the undoing of the wallet effect recorded under opKey.
func ReversalKey(opKey string) string { return opKey + ":reversed" }

// SettlementEngine is the only writer of transaction status. It applies the
// wallet effect of a transition first and commits the record afterwards; the
// operation key makes a retry after a failed commit skip the wallet effect.
type SettlementEngine struct {
	wallets repo.WalletStore
	txs     repo.TransactionStore
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewSettlementEngine(w repo.WalletStore, t repo.TransactionStore, logger *zap.SugaredLogger) *SettlementEngine {
	return &SettlementEngine{wallets: w, txs: t, log: logger, now: time.Now}
}

// Transition moves transaction id to target. It never retries: ErrConflict
// and ErrStorage are returned to the caller, who re-reads the record before
// issuing the same call again.
//
// A move without a wallet effect is refused with ErrConflict while a sibling
// move has its effect applied but not yet committed, so a retry of that move
// can still finish. When the effect was applied and another move won the
// record, the effect is reversed.
func (e *SettlementEngine) Transition(ctx context.Context, id uuid.UUID, target model.Status) (*model.Transaction, error) {
	cur, err := e.txs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := cur.Status
	if !from.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, target)
	}

	f := flows[edge{from, target}]
	opKey := OperationKey(id, from, target)
	if f == flowNone {
		if err := e.checkNoOpenEffect(ctx, cur, target); err != nil {
			return nil, err
		}
	} else if err := e.settle(ctx, cur, f, opKey); err != nil {
		return nil, err
	}

	next := cur.Clone()
	next.Status = target
	next.UpdatedAt = e.now()
	updated, err := e.txs.CompareAndSwap(ctx, id, cur.Version, next)
	if err != nil {
		e.log.Warnw("transition commit failed", "transaction_id", id, "from", from, "to", target, "error", err)
		if f != flowNone && errors.Is(err, model.ErrConflict) {
			e.compensate(ctx, cur, f, opKey, target)
		}
		return nil, err
	}
	e.log.Infow("transaction transitioned", "transaction_id", id, "from", from, "to", target, "version", updated.Version)
	return updated, nil
}

// checkNoOpenEffect fails when another move out of the current status has
// moved money that is neither committed nor reversed.
func (e *SettlementEngine) checkNoOpenEffect(ctx context.Context, t *model.Transaction, target model.Status) error {
	for ed, f := range flows {
		if ed.from != t.Status || ed.to == target || f == flowNone {
			continue
		}
		key := OperationKey(t.ID, ed.from, ed.to)
		done, err := e.wallets.Applied(ctx, key)
		if err != nil {
			return err
		}
		if !done {
			continue
		}
		undone, err := e.wallets.Applied(ctx, ReversalKey(key))
		if err != nil {
			return err
		}
		if !undone {
			return fmt.Errorf("%w: funds for %s -> %s already moved, retry that transition", model.ErrConflict, ed.from, ed.to)
		}
	}
	return nil
}

// parties returns who pays and who is paid for flow f.
func parties(t *model.Transaction, f flow) (payer, payee uuid.UUID) {
	if f == flowSellerToBuyer {
		return t.SellerID, t.BuyerID
	}
	return t.BuyerID, t.SellerID
}

func (e *SettlementEngine) settle(ctx context.Context, t *model.Transaction, f flow, opKey string) error {
	done, err := e.wallets.Applied(ctx, opKey)
	if err != nil {
		return err
	}
	if done {
		e.log.Infow("wallet effect already applied", "op_key", opKey)
		return nil
	}
	amount, err := t.TotalMoney()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	payer, payee := parties(t, f)
	// the payer must exist before the payee wallet is opened on its behalf
	if _, err := e.wallets.Get(ctx, payer); err != nil {
		return err
	}
	if _, err := e.wallets.GetOrCreate(ctx, payee); err != nil {
		return err
	}
	applied, err := e.wallets.ApplyPair(ctx, payer, payee, amount, opKey)
	if err != nil {
		return err
	}
	if !applied {
		e.log.Infow("wallet effect applied concurrently", "op_key", opKey)
	}
	return nil
}

// compensate runs after the record was lost to a concurrent writer. If the
// record has moved somewhere target does not lead to, the applied effect
// belongs to a move that never happened and is returned.
func (e *SettlementEngine) compensate(ctx context.Context, t *model.Transaction, f flow, opKey string, target model.Status) {
	latest, err := e.txs.Get(ctx, t.ID)
	if err != nil {
		e.log.Errorw("re-read after lost commit failed", "transaction_id", t.ID, "op_key", opKey, "error", err)
		return
	}
	if latest.Status == t.Status || target.Reaches(latest.Status) {
		return
	}
	amount, err := t.TotalMoney()
	if err != nil {
		e.log.Errorw("reversal amount invalid", "transaction_id", t.ID, "error", err)
		return
	}
	payer, payee := parties(t, f)
	applied, err := e.wallets.ApplyPair(ctx, payee, payer, amount, ReversalKey(opKey))
	if err != nil {
		e.log.Errorw("wallet effect reversal failed", "transaction_id", t.ID, "op_key", opKey, "status", latest.Status, "error", err)
		return
	}
	e.log.Warnw("wallet effect reversed", "transaction_id", t.ID, "op_key", opKey, "status", latest.Status, "applied", applied)
}
