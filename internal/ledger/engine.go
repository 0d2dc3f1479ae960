// Package ledger implements the balance-consistency engine: every
// create, update and delete of a ledger entry, and every transfer,
// adjusts the affected wallet balances inside one store transaction so
// a wallet's stored balance always equals the sum of its entries.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/storage"
)

// EventSink receives notifications of committed mutations. Publishing
// happens after commit and never affects the outcome of the operation.
type EventSink interface {
	EntryCreated(ctx context.Context, e core.Entry) error
	EntryUpdated(ctx context.Context, before, after core.Entry) error
	EntryDeleted(ctx context.Context, e core.Entry) error
	TransferCompleted(ctx context.Context, res TransferResult) error
}

// Engine is the balance mutator plus the transfer orchestrator. All
// methods are safe for concurrent use; isolation comes from the store's
// transactions, not from in-process locking.
type Engine struct {
	store  storage.Store
	refs   TransferRefs
	events EventSink // optional
}

// New builds an engine. refs must come from ResolveTransferRefs;
// events may be nil.
func New(store storage.Store, refs TransferRefs, events EventSink) *Engine {
	return &Engine{store: store, refs: refs, events: events}
}

// EntryUpdate carries the replacement fields for an existing entry.
// Amount and wallet may both change; the engine computes whatever
// balance corrections make the net effect equal "remove old, add new".
type EntryUpdate struct {
	WalletID    int64
	CategoryID  int64
	Amount      decimal.Decimal
	OccurredAt  time.Time
	Description string
}

// timeField names the timestamp field the way the outside surface
// spells it for each kind, so validation messages match the records.
func timeField(kind core.EntryKind) string {
	if kind == core.KindIncome {
		return "time_received"
	}
	return "time_made"
}

func categoryField(kind core.EntryKind) string {
	if kind == core.KindIncome {
		return "income_source_id"
	}
	return "spending_category_id"
}

// CreateEntry persists a new income or expense and applies its signed
// effect to the wallet balance, atomically. The wallet and category
// are re-checked inside the transaction: a concurrent deletion
// surfaces as core.ErrNotFound, never as a balance write against a
// missing wallet.
func (g *Engine) CreateEntry(ctx context.Context, e core.Entry) (*core.Entry, error) {
	v := core.NewValidationError()
	if err := core.ValidateAmount(e.Amount); err != nil {
		v.Add("amount", "must be a positive amount")
	}
	if e.WalletID == 0 {
		v.Add("wallet_id", "is required")
	}
	if e.CategoryID == 0 {
		v.Add(categoryField(e.Kind), "is required")
	}
	if e.OccurredAt.IsZero() {
		v.Add(timeField(e.Kind), "is required")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	tx, err := g.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Kind, err)
	}
	defer tx.Rollback()

	wallet, err := tx.GetWallet(ctx, e.WalletID, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Kind, err)
	}
	if _, err := tx.GetCategory(ctx, e.Kind, e.CategoryID, e.UserID); err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Kind, err)
	}

	if err := tx.CreateEntry(ctx, &e); err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Kind, err)
	}
	if err := tx.WriteWalletBalance(ctx, wallet.ID, wallet.Balance.Add(e.Effect())); err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Kind, err)
	}

	slog.InfoContext(ctx, "Ledger entry created",
		"kind", e.Kind.String(),
		"id", e.ID,
		"wallet_id", e.WalletID,
		"amount", e.Amount.String())

	g.notify(ctx, func(s EventSink) error { return s.EntryCreated(ctx, e) })

	return &e, nil
}

// UpdateEntry replaces an entry's fields and corrects every affected
// wallet so the net effect equals removing the old record and adding
// the new one. Same-wallet updates apply the single algebraic delta
// sign*(new-old); a zero delta skips the balance write but still
// updates the record. Cross-wallet updates reverse the old effect on
// the old wallet and apply the new effect on the new wallet, all in
// one atomic unit.
func (g *Engine) UpdateEntry(ctx context.Context, kind core.EntryKind, id, userID int64, upd EntryUpdate) (*core.Entry, error) {
	v := core.NewValidationError()
	if err := core.ValidateAmount(upd.Amount); err != nil {
		v.Add("amount", "must be a positive amount")
	}
	if upd.WalletID == 0 {
		v.Add("wallet_id", "is required")
	}
	if upd.CategoryID == 0 {
		v.Add(categoryField(kind), "is required")
	}
	if upd.OccurredAt.IsZero() {
		v.Add(timeField(kind), "is required")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	tx, err := g.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}
	defer tx.Rollback()

	old, err := tx.GetEntry(ctx, kind, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}

	newWallet, err := tx.GetWallet(ctx, upd.WalletID, userID)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}
	if _, err := tx.GetCategory(ctx, kind, upd.CategoryID, userID); err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}

	updated := core.Entry{
		ID:          old.ID,
		Kind:        kind,
		UserID:      userID,
		WalletID:    upd.WalletID,
		CategoryID:  upd.CategoryID,
		Amount:      upd.Amount,
		OccurredAt:  upd.OccurredAt,
		Description: upd.Description,
	}

	if old.WalletID == updated.WalletID {
		// delta = sign*(new-old); whether the amount grew, shrank or
		// stayed equal falls out of the same formula
		delta := kind.Sign().Mul(updated.Amount.Sub(old.Amount))
		if !delta.IsZero() {
			if err := tx.WriteWalletBalance(ctx, newWallet.ID, newWallet.Balance.Add(delta)); err != nil {
				return nil, fmt.Errorf("update %s: %w", kind, err)
			}
		}
	} else {
		oldWallet, err := tx.GetWallet(ctx, old.WalletID, userID)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", kind, err)
		}
		if err := tx.WriteWalletBalance(ctx, oldWallet.ID, oldWallet.Balance.Sub(old.Effect())); err != nil {
			return nil, fmt.Errorf("update %s: %w", kind, err)
		}
		if err := tx.WriteWalletBalance(ctx, newWallet.ID, newWallet.Balance.Add(updated.Effect())); err != nil {
			return nil, fmt.Errorf("update %s: %w", kind, err)
		}
	}

	if err := tx.UpdateEntry(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update %s: %w", kind, err)
	}

	slog.InfoContext(ctx, "Ledger entry updated",
		"kind", kind.String(),
		"id", id,
		"old_wallet_id", old.WalletID,
		"new_wallet_id", updated.WalletID,
		"old_amount", old.Amount.String(),
		"new_amount", updated.Amount.String())

	g.notify(ctx, func(s EventSink) error { return s.EntryUpdated(ctx, *old, updated) })

	return &updated, nil
}

// DeleteEntry removes an entry and reverses its effect on its wallet,
// atomically. Deleting twice reports core.ErrNotFound.
func (g *Engine) DeleteEntry(ctx context.Context, kind core.EntryKind, id, userID int64) error {
	tx, err := g.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	defer tx.Rollback()

	e, err := tx.GetEntry(ctx, kind, id, userID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	wallet, err := tx.GetWallet(ctx, e.WalletID, userID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	if err := tx.DeleteEntry(ctx, kind, id); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if err := tx.WriteWalletBalance(ctx, wallet.ID, wallet.Balance.Sub(e.Effect())); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}

	slog.InfoContext(ctx, "Ledger entry deleted",
		"kind", kind.String(),
		"id", id,
		"wallet_id", e.WalletID,
		"amount", e.Amount.String())

	g.notify(ctx, func(s EventSink) error { return s.EntryDeleted(ctx, *e) })

	return nil
}

// notify delivers a post-commit event. Failures are logged and
// swallowed: the mutation is already durable.
func (g *Engine) notify(ctx context.Context, publish func(EventSink) error) {
	if g.events == nil {
		return
	}
	if err := publish(g.events); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event", "error", err)
	}
}
