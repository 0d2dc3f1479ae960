package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/storage"
)

type fixture struct {
	engine *Engine
	store  *storage.SQLiteStore
	user   core.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	refs, err := ResolveTransferRefs(context.Background(), store)
	if err != nil {
		t.Fatalf("resolve transfer refs: %v", err)
	}

	u := core.User{Email: "test@example.com", Name: "test"}
	if err := store.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	return &fixture{engine: New(store, refs, nil), store: store, user: u}
}

func (f *fixture) wallet(t *testing.T, name, balance string) core.Wallet {
	t.Helper()
	w := core.Wallet{UserID: f.user.ID, Name: name, Balance: decimal.RequireFromString(balance)}
	if err := f.store.CreateWallet(context.Background(), &w); err != nil {
		t.Fatalf("create wallet %s: %v", name, err)
	}
	return w
}

func (f *fixture) category(t *testing.T, kind core.EntryKind, name string) core.Category {
	t.Helper()
	c := core.Category{UserID: f.user.ID, Name: name, Kind: kind}
	if err := f.store.CreateCategory(context.Background(), &c); err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return c
}

func (f *fixture) balance(t *testing.T, walletID int64) decimal.Decimal {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), walletID, f.user.ID)
	if err != nil {
		t.Fatalf("get wallet %d: %v", walletID, err)
	}
	return w.Balance
}

func wantBalance(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}

func TestCreateThenDeleteRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	src := f.category(t, core.KindIncome, "Salary")

	e, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind:       core.KindIncome,
		UserID:     f.user.ID,
		WalletID:   w.ID,
		CategoryID: src.ID,
		Amount:     decimal.NewFromInt(100),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "100")

	if err := f.engine.DeleteEntry(ctx, core.KindIncome, e.ID, f.user.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "0")

	if err := f.engine.DeleteEntry(ctx, core.KindIncome, e.ID, f.user.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestExpenseMayOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "10")
	cat := f.category(t, core.KindExpense, "Groceries")

	_, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind:       core.KindExpense,
		UserID:     f.user.ID,
		WalletID:   w.ID,
		CategoryID: cat.ID,
		Amount:     decimal.NewFromInt(50),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "-40")
}

func TestUpdateSameWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	src := f.category(t, core.KindIncome, "Salary")
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	e, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindIncome, UserID: f.user.ID, WalletID: w.ID, CategoryID: src.ID,
		Amount: decimal.NewFromInt(100), OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "100")

	// Shrink 100 -> 40: net delta is -60
	upd := EntryUpdate{WalletID: w.ID, CategoryID: src.ID, Amount: decimal.NewFromInt(40), OccurredAt: at}
	if _, err := f.engine.UpdateEntry(ctx, core.KindIncome, e.ID, f.user.ID, upd); err != nil {
		t.Fatalf("update shrink: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "40")

	// Equal amount: balance untouched, other fields still written
	upd.Description = "adjusted"
	got, err := f.engine.UpdateEntry(ctx, core.KindIncome, e.ID, f.user.ID, upd)
	if err != nil {
		t.Fatalf("update equal: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "40")
	if got.Description != "adjusted" {
		t.Fatalf("description not updated on equal-amount write")
	}

	// Grow 40 -> 75: net delta is +35
	upd.Amount = decimal.NewFromInt(75)
	if _, err := f.engine.UpdateEntry(ctx, core.KindIncome, e.ID, f.user.ID, upd); err != nil {
		t.Fatalf("update grow: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "75")
}

func TestUpdateSameWalletExpenseSign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	cat := f.category(t, core.KindExpense, "Groceries")
	at := time.Now().UTC()

	e, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindExpense, UserID: f.user.ID, WalletID: w.ID, CategoryID: cat.ID,
		Amount: decimal.NewFromInt(30), OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "-30")

	// Expense shrinks: wallet gains the difference back
	if _, err := f.engine.UpdateEntry(ctx, core.KindExpense, e.ID, f.user.ID,
		EntryUpdate{WalletID: w.ID, CategoryID: cat.ID, Amount: decimal.NewFromInt(10), OccurredAt: at}); err != nil {
		t.Fatalf("update: %v", err)
	}
	wantBalance(t, f.balance(t, w.ID), "-10")
}

func TestUpdateCrossWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "A", "0")
	b := f.wallet(t, "B", "0")
	src := f.category(t, core.KindIncome, "Salary")
	at := time.Now().UTC()

	e, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindIncome, UserID: f.user.ID, WalletID: a.ID, CategoryID: src.ID,
		Amount: decimal.NewFromInt(50), OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	wantBalance(t, f.balance(t, a.ID), "50")
	wantBalance(t, f.balance(t, b.ID), "0")

	// Move the income to wallet B: A loses the old effect, B gains the new
	if _, err := f.engine.UpdateEntry(ctx, core.KindIncome, e.ID, f.user.ID,
		EntryUpdate{WalletID: b.ID, CategoryID: src.ID, Amount: decimal.NewFromInt(50), OccurredAt: at}); err != nil {
		t.Fatalf("cross-wallet update: %v", err)
	}
	wantBalance(t, f.balance(t, a.ID), "0")
	wantBalance(t, f.balance(t, b.ID), "50")
}

func TestUpdateCrossWalletWithAmountChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.wallet(t, "A", "100")
	b := f.wallet(t, "B", "100")
	cat := f.category(t, core.KindExpense, "Groceries")
	at := time.Now().UTC()

	e, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindExpense, UserID: f.user.ID, WalletID: a.ID, CategoryID: cat.ID,
		Amount: decimal.NewFromInt(20), OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	wantBalance(t, f.balance(t, a.ID), "80")

	// Move to B and grow to 35: A is refunded 20, B is debited 35
	if _, err := f.engine.UpdateEntry(ctx, core.KindExpense, e.ID, f.user.ID,
		EntryUpdate{WalletID: b.ID, CategoryID: cat.ID, Amount: decimal.NewFromInt(35), OccurredAt: at}); err != nil {
		t.Fatalf("update: %v", err)
	}
	wantBalance(t, f.balance(t, a.ID), "100")
	wantBalance(t, f.balance(t, b.ID), "65")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind:   core.KindIncome,
		UserID: f.user.ID,
		Amount: decimal.NewFromInt(-5),
	})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// Every failure is reported at once
	for _, field := range []string{"amount", "wallet_id", "income_source_id", "time_received"} {
		if len(ve.Fields[field]) == 0 {
			t.Fatalf("expected a %s error in %v", field, ve.Fields)
		}
	}
}

func TestCreateMissingWalletOrCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	cat := f.category(t, core.KindExpense, "Groceries")

	_, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindExpense, UserID: f.user.ID, WalletID: 9999, CategoryID: cat.ID,
		Amount: decimal.NewFromInt(5), OccurredAt: time.Now().UTC(),
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing wallet: got %v, want ErrNotFound", err)
	}

	_, err = f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindExpense, UserID: f.user.ID, WalletID: w.ID, CategoryID: 9999,
		Amount: decimal.NewFromInt(5), OccurredAt: time.Now().UTC(),
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing category: got %v, want ErrNotFound", err)
	}
	wantBalance(t, f.balance(t, w.ID), "0")
}

func TestOwnershipCausesNoMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	cat := f.category(t, core.KindExpense, "Groceries")

	stranger := core.User{Email: "stranger@example.com"}
	if err := f.store.CreateUser(ctx, &stranger); err != nil {
		t.Fatalf("create stranger: %v", err)
	}

	// Stranger referencing another user's wallet and category
	_, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindExpense, UserID: stranger.ID, WalletID: w.ID, CategoryID: cat.ID,
		Amount: decimal.NewFromInt(5), OccurredAt: time.Now().UTC(),
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign wallet: got %v, want ErrNotFound", err)
	}
	wantBalance(t, f.balance(t, w.ID), "0")

	entries, total, err := f.engine.ListEntries(ctx, core.KindExpense,
		storage.Filter{UserID: f.user.ID}, storage.Order{}, storage.Page{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 || len(entries) != 0 {
		t.Fatalf("no entry should exist after rejected create, got %d", total)
	}
}

func TestUpdateForeignWalletRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	src := f.category(t, core.KindIncome, "Salary")
	at := time.Now().UTC()

	e, err := f.engine.CreateEntry(ctx, core.Entry{
		Kind: core.KindIncome, UserID: f.user.ID, WalletID: w.ID, CategoryID: src.ID,
		Amount: decimal.NewFromInt(10), OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stranger := core.User{Email: "stranger@example.com"}
	if err := f.store.CreateUser(ctx, &stranger); err != nil {
		t.Fatalf("create stranger: %v", err)
	}
	sw := core.Wallet{UserID: stranger.ID, Name: "Theirs", Balance: decimal.Zero}
	if err := f.store.CreateWallet(ctx, &sw); err != nil {
		t.Fatalf("create stranger wallet: %v", err)
	}

	// Retargeting an entry at another user's wallet must fail and
	// leave every balance alone
	_, err = f.engine.UpdateEntry(ctx, core.KindIncome, e.ID, f.user.ID,
		EntryUpdate{WalletID: sw.ID, CategoryID: src.ID, Amount: decimal.NewFromInt(10), OccurredAt: at})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign target wallet: got %v, want ErrNotFound", err)
	}
	wantBalance(t, f.balance(t, w.ID), "10")

	got, err := f.store.GetWallet(ctx, sw.ID, stranger.ID)
	if err != nil {
		t.Fatalf("get stranger wallet: %v", err)
	}
	wantBalance(t, got.Balance, "0")
}

func TestDecimalExactness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.wallet(t, "Cash", "0")
	src := f.category(t, core.KindIncome, "Salary")

	// 0.1 added ten times is exactly 1 in decimal arithmetic
	for i := 0; i < 10; i++ {
		if _, err := f.engine.CreateEntry(ctx, core.Entry{
			Kind: core.KindIncome, UserID: f.user.ID, WalletID: w.ID, CategoryID: src.ID,
			Amount: decimal.RequireFromString("0.1"), OccurredAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	wantBalance(t, f.balance(t, w.ID), "1")
}
