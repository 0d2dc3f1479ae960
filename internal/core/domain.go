// Package core defines the ledger domain: wallets, signed ledger
// entries and the error taxonomy the engine reports.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind tags a ledger entry as an income or an expense. Every
// balance rule in the engine is derived from Sign() so the two kinds
// never grow separate arithmetic.
type EntryKind int

const (
	KindIncome EntryKind = iota
	KindExpense
)

var (
	plusOne  = decimal.NewFromInt(1)
	minusOne = decimal.NewFromInt(-1)
)

func (k EntryKind) String() string {
	switch k {
	case KindIncome:
		return "income"
	case KindExpense:
		return "expense"
	default:
		return "unknown"
	}
}

// Sign returns the direction of the entry's effect on its wallet
// balance: +1 for incomes, -1 for expenses.
func (k EntryKind) Sign() decimal.Decimal {
	if k == KindIncome {
		return plusOne
	}
	return minusOne
}

type (
	// Wallet is a named pool of money. Balance is the authoritative
	// running total and is only ever written by the ledger engine,
	// never by name/color updates.
	Wallet struct {
		ID      int64
		UserID  int64
		Name    string
		Color   string
		Balance decimal.Decimal
	}

	// Entry is a single ledger record. Incomes and expenses share the
	// shape; Kind selects the backing table and the balance sign.
	// For incomes CategoryID references an income source and
	// OccurredAt is the time the money was received; for expenses it
	// references a spending category and the time the expense was made.
	Entry struct {
		ID          int64
		Kind        EntryKind
		UserID      int64
		WalletID    int64
		CategoryID  int64
		Amount      decimal.Decimal
		OccurredAt  time.Time
		Description string
	}

	// Category is an income source or a spending category, depending
	// on Kind. UserID zero marks a system-seeded row visible to every
	// user (the reserved Transfers pair).
	Category struct {
		ID     int64
		UserID int64
		Name   string
		Color  string
		Kind   EntryKind
	}

	// User carries the minimum identity the ledger needs for ownership
	// scoping. Authentication lives outside this module.
	User struct {
		ID    int64
		Email string
		Name  string
	}
)

// Effect is the signed amount the entry contributes to its wallet's
// balance.
func (e Entry) Effect() decimal.Decimal {
	return e.Kind.Sign().Mul(e.Amount)
}

// System reports whether the category is a system-seeded row shared by
// all users.
func (c Category) System() bool {
	return c.UserID == 0
}

// TransferCategoryName is the reserved name of the system category and
// income source the transfer orchestrator records against.
const TransferCategoryName = "Transfers"

// OpeningBalanceSourceName is the reserved income source a wallet's
// starting balance is recorded under, so seeded balances are backed by
// an entry like any other money.
const OpeningBalanceSourceName = "Opening balance"
