package ledger

import (
	"context"
	"fmt"

	"conti/internal/core"
	"conti/internal/storage"
)

// ListEntries is the read side of the ledger: the user's incomes or
// expenses filtered, ordered and paginated by the store. UserID on the
// filter is mandatory; every listing is scoped to its owner.
func (g *Engine) ListEntries(ctx context.Context, kind core.EntryKind, f storage.Filter, o storage.Order, p storage.Page) ([]core.Entry, int64, error) {
	if f.UserID == 0 {
		v := core.NewValidationError()
		v.Add("user_id", "is required")
		return nil, 0, v
	}
	entries, total, err := g.store.ListEntries(ctx, kind, f, o, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list %ss: %w", kind, err)
	}
	return entries, total, nil
}

// ListWallets lists the user's wallets with their current balances.
func (g *Engine) ListWallets(ctx context.Context, userID int64, o storage.Order, p storage.Page) ([]core.Wallet, int64, error) {
	if userID == 0 {
		v := core.NewValidationError()
		v.Add("user_id", "is required")
		return nil, 0, v
	}
	wallets, total, err := g.store.ListWallets(ctx, userID, o, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, total, nil
}

// GetEntry returns one entry scoped to its owner.
func (g *Engine) GetEntry(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Entry, error) {
	e, err := g.store.GetEntry(ctx, kind, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return e, nil
}

// GetWallet returns one wallet scoped to its owner.
func (g *Engine) GetWallet(ctx context.Context, id, userID int64) (*core.Wallet, error) {
	w, err := g.store.GetWallet(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}
