package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"conti/internal/core"
	"conti/internal/storage"
)

// Drift reports a wallet whose stored balance disagrees with the sum
// of its entries. An empty result means the invariant holds.
type Drift struct {
	Wallet   core.Wallet
	Computed decimal.Decimal
}

// Diff is stored minus computed.
func (d Drift) Diff() decimal.Decimal {
	return d.Wallet.Balance.Sub(d.Computed)
}

// VerifyUser recomputes every wallet balance of one user from its
// incomes and expenses and returns the wallets that drifted. Up to
// concurrency wallets are checked in parallel; reads are
// point-in-time, so run this against a quiet ledger (it is a
// maintenance check, not part of the mutation path).
func VerifyUser(ctx context.Context, store storage.Store, userID int64, concurrency int) ([]Drift, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	wallets, _, err := store.ListWallets(ctx, userID, storage.Order{Field: "id"}, storage.Page{})
	if err != nil {
		return nil, fmt.Errorf("verify user %d: %w", userID, err)
	}

	var (
		mu     sync.Mutex
		drifts []Drift
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(concurrency)

	for _, w := range wallets {
		wallet := w
		grp.Go(func() error {
			computed, err := computeBalance(gctx, store, wallet)
			if err != nil {
				return err
			}
			if !computed.Equal(wallet.Balance) {
				mu.Lock()
				drifts = append(drifts, Drift{Wallet: wallet, Computed: computed})
				mu.Unlock()
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("verify user %d: %w", userID, err)
	}

	return drifts, nil
}

func computeBalance(ctx context.Context, store storage.Store, w core.Wallet) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, kind := range []core.EntryKind{core.KindIncome, core.KindExpense} {
		entries, _, err := store.ListEntries(ctx, kind,
			storage.Filter{UserID: w.UserID, WalletID: w.ID}, storage.Order{Field: "id"}, storage.Page{})
		if err != nil {
			return decimal.Zero, fmt.Errorf("wallet %d: list %ss: %w", w.ID, kind, err)
		}
		for _, e := range entries {
			sum = sum.Add(e.Effect())
		}
	}
	return sum, nil
}
