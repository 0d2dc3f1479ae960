package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// TransferRequest moves money between two wallets of the same user.
type TransferRequest struct {
	SourceWalletID      int64
	DestinationWalletID int64
	Amount              decimal.Decimal
	UserID              int64
}

// TransferResult reports the committed transfer: both wallets with
// their new balances and the synthetic entry pair recorded under the
// reserved Transfers category and source.
type TransferResult struct {
	Source      core.Wallet
	Destination core.Wallet
	Expense     core.Entry
	Income      core.Entry
}

// Transfer atomically debits the source wallet, credits the
// destination wallet and records the matching expense/income pair. All
// four writes commit together; any failure rolls back all of them.
//
// Validation collects every failure into one list before returning, so
// a caller with a bad amount and a missing destination sees both at
// once.
func (g *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	v := core.NewValidationError()
	if err := core.ValidateAmount(req.Amount); err != nil {
		v.Add("amount", "must be a positive amount")
	}
	if req.SourceWalletID == 0 {
		v.Add("source_id", "is required")
	}
	if req.DestinationWalletID == 0 {
		v.Add("destination_id", "is required")
	}
	if req.SourceWalletID != 0 && req.SourceWalletID == req.DestinationWalletID {
		v.Add("destination_id", "must differ from the source wallet")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	tx, err := g.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	defer tx.Rollback()

	// Both lookups run before reporting so a caller with two bad
	// wallet ids hears about both
	source, err := tx.GetWallet(ctx, req.SourceWalletID, req.UserID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	destination, err := tx.GetWallet(ctx, req.DestinationWalletID, req.UserID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	if source == nil {
		v.Add("source_id", "the source wallet was not found for the user")
	}
	if destination == nil {
		v.Add("destination_id", "the destination wallet was not found for the user")
	}
	if err := v.ErrOrNil(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if err := tx.WriteWalletBalance(ctx, source.ID, source.Balance.Sub(req.Amount)); err != nil {
		return nil, fmt.Errorf("transfer: debit source: %w", err)
	}
	if err := tx.WriteWalletBalance(ctx, destination.ID, destination.Balance.Add(req.Amount)); err != nil {
		return nil, fmt.Errorf("transfer: credit destination: %w", err)
	}

	expense := core.Entry{
		Kind:        core.KindExpense,
		UserID:      req.UserID,
		WalletID:    source.ID,
		CategoryID:  g.refs.SpendingCategoryID,
		Amount:      req.Amount,
		OccurredAt:  now,
		Description: fmt.Sprintf("Transfer to %s", destination.Name),
	}
	if err := tx.CreateEntry(ctx, &expense); err != nil {
		return nil, fmt.Errorf("transfer: record expense: %w", err)
	}

	income := core.Entry{
		Kind:        core.KindIncome,
		UserID:      req.UserID,
		WalletID:    destination.ID,
		CategoryID:  g.refs.IncomeSourceID,
		Amount:      req.Amount,
		OccurredAt:  now,
		Description: fmt.Sprintf("Transfer from %s", source.Name),
	}
	if err := tx.CreateEntry(ctx, &income); err != nil {
		return nil, fmt.Errorf("transfer: record income: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	res := TransferResult{
		Source:      *source,
		Destination: *destination,
		Expense:     expense,
		Income:      income,
	}
	res.Source.Balance = source.Balance.Sub(req.Amount)
	res.Destination.Balance = destination.Balance.Add(req.Amount)

	slog.InfoContext(ctx, "Transfer completed",
		"source_wallet_id", source.ID,
		"destination_wallet_id", destination.ID,
		"amount", req.Amount.String())

	g.notify(ctx, func(s EventSink) error { return s.TransferCompleted(ctx, res) })

	return &res, nil
}
