package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

func TestVerifyUserDetectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	src := f.category(t, core.KindIncome, "Salary")

	if _, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindIncome, UserID: f.user.ID, WalletID: w.ID, CategoryID: src.ID,
		Amount: decimal.NewFromInt(100), OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	drifts, err := VerifyUser(ctx, f.store, f.user.ID, 4)
	if err != nil {
		t.Fatalf("verify clean ledger: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("clean ledger reported drift: %+v", drifts)
	}

	// Corrupt the stored balance behind the engine's back
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.WriteWalletBalance(ctx, w.ID, decimal.NewFromInt(999)); err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	drifts, err = VerifyUser(ctx, f.store, f.user.ID, 4)
	if err != nil {
		t.Fatalf("verify corrupted ledger: %v", err)
	}
	if len(drifts) != 1 {
		t.Fatalf("expected 1 drift, got %d", len(drifts))
	}
	d := drifts[0]
	if d.Wallet.ID != w.ID || !d.Computed.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected drift: %+v", d)
	}
	if !d.Diff().Equal(decimal.NewFromInt(899)) {
		t.Fatalf("diff = %s, want 899", d.Diff())
	}
}

func TestVerifyUserAcceptsSeededBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wallet(t, "Savings", "1000")
	f.wallet(t, "Cash", "37.5")

	drifts, err := VerifyUser(ctx, f.store, f.user.ID, 4)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("seeded balances reported as drift: %+v", drifts)
	}
}
