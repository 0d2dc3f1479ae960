// Package storage provides the ledger's durable store: the
// transactional contract the balance engine runs against and its
// SQLite implementation.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// Filter narrows an entry listing. UserID is mandatory; every query is
// scoped to the owning user. WalletID and CategoryID are optional
// (zero matches any).
type Filter struct {
	UserID     int64
	WalletID   int64
	CategoryID int64
}

// Order selects the sort column and direction of a listing. Field is
// validated against the per-table whitelist; empty means the table's
// default ordering.
type Order struct {
	Field      string
	Descending bool
}

// Page selects a page of a listing. Number is 1-based; Size zero
// disables pagination and returns everything.
type Page struct {
	Number int
	Size   int
}

// Offset derives the zero-based row offset.
func (p Page) Offset() int {
	if p.Size <= 0 || p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Store is the ledger store contract. Reads outside a transaction see
// the latest committed state; every mutation goes through Begin so the
// read-compute-write sequence of one logical operation commits or
// rolls back as a unit.
type Store interface {
	// Begin opens a write transaction. The returned Tx serializes
	// against other writers of the same database; if the store cannot
	// acquire its locks within the configured budget the operation
	// fails with core.ErrContention.
	Begin(ctx context.Context) (Tx, error)

	GetWallet(ctx context.Context, id, userID int64) (*core.Wallet, error)
	GetEntry(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Entry, error)

	ListEntries(ctx context.Context, kind core.EntryKind, f Filter, o Order, p Page) ([]core.Entry, int64, error)
	ListWallets(ctx context.Context, userID int64, o Order, p Page) ([]core.Wallet, int64, error)

	// FindSystemCategory looks up a system-seeded category or income
	// source by name. Used once at startup to resolve the reserved
	// Transfers pair.
	FindSystemCategory(ctx context.Context, kind core.EntryKind, name string) (*core.Category, error)

	Close() error
}

// Tx is one atomic unit over the ledger. All lookups observe the
// transaction's snapshot; a wallet deleted by a concurrent writer
// surfaces as core.ErrNotFound here, never as a balance write against
// a missing row.
type Tx interface {
	GetWallet(ctx context.Context, id, userID int64) (*core.Wallet, error)
	WriteWalletBalance(ctx context.Context, id int64, balance decimal.Decimal) error

	// GetCategory resolves an income source or spending category,
	// matching rows owned by the user or system-seeded rows.
	GetCategory(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Category, error)

	GetEntry(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Entry, error)

	// CreateEntry inserts the entry and assigns its ID.
	CreateEntry(ctx context.Context, e *core.Entry) error
	UpdateEntry(ctx context.Context, e *core.Entry) error
	DeleteEntry(ctx context.Context, kind core.EntryKind, id int64) error

	Commit() error
	Rollback() error
}
