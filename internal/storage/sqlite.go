package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"conti/internal/core"
)

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a single SQLite database using the
// pure Go driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs
// migrations. busyTimeout is the per-connection lock budget after
// which a writer gives up and the caller sees core.ErrContention.
func NewSQLiteStore(dbPath string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so two
	// transactions on the same wallet serialize instead of deadlocking
	// at the first write.
	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		dbPath, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite ledger store ready", "path", dbPath, "busy_timeout", busyTimeout)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Begin opens a write transaction. Lock acquisition failures surface
// as core.ErrContention so callers know the whole operation is safe to
// retry.
func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapSQLiteErr("begin transaction", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) GetWallet(ctx context.Context, id, userID int64) (*core.Wallet, error) {
	return getWallet(ctx, s.db, id, userID)
}

func (s *SQLiteStore) GetEntry(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Entry, error) {
	return getEntry(ctx, s.db, kind, id, userID)
}

func (s *SQLiteStore) FindSystemCategory(ctx context.Context, kind core.EntryKind, name string) (*core.Category, error) {
	t := tableFor(kind)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, COALESCE(user_id, 0), name, color FROM %s WHERE user_id IS NULL AND name = ?", t.categoryTable),
		name,
	)
	c := core.Category{Kind: kind}
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Color); err != nil {
		return nil, mapSQLiteErr("find system category", err)
	}
	return &c, nil
}

// ListEntries returns one page of the user's entries plus the filtered
// total. Empty order means newest first.
func (s *SQLiteStore) ListEntries(ctx context.Context, kind core.EntryKind, f Filter, o Order, p Page) ([]core.Entry, int64, error) {
	t := tableFor(kind)

	if o.Field == "" {
		o = Order{Field: t.timeCol, Descending: true}
	}
	if !t.orderable(o.Field) {
		v := core.NewValidationError()
		v.Add("order_field", fmt.Sprintf("cannot order %s by %q", t.name, o.Field))
		return nil, 0, v
	}

	where := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.WalletID != 0 {
		where = append(where, "wallet_id = ?")
		args = append(args, f.WalletID)
	}
	if f.CategoryID != 0 {
		where = append(where, t.categoryCol+" = ?")
		args = append(args, f.CategoryID)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", t.name, cond), args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, mapSQLiteErr("count entries", err)
	}

	query := fmt.Sprintf("SELECT id, user_id, wallet_id, %s, amount, %s, description FROM %s WHERE %s ORDER BY %s %s",
		t.categoryCol, t.timeCol, t.name, cond, o.Field, direction(o))
	if p.Size > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, p.Size, p.Offset())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapSQLiteErr("list entries", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows, kind)
		if err != nil {
			return nil, 0, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapSQLiteErr("iterate entries", err)
	}

	return entries, total, nil
}

// ListWallets returns one page of the user's wallets plus the total.
// Empty order means name ascending.
func (s *SQLiteStore) ListWallets(ctx context.Context, userID int64, o Order, p Page) ([]core.Wallet, int64, error) {
	if o.Field == "" {
		o = Order{Field: "name"}
	}
	switch o.Field {
	case "id", "name", "balance":
	default:
		v := core.NewValidationError()
		v.Add("order_field", fmt.Sprintf("cannot order wallets by %q", o.Field))
		return nil, 0, v
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM wallets WHERE user_id = ?", userID).Scan(&total); err != nil {
		return nil, 0, mapSQLiteErr("count wallets", err)
	}

	query := fmt.Sprintf("SELECT id, user_id, name, color, balance FROM wallets WHERE user_id = ? ORDER BY %s %s", o.Field, direction(o))
	args := []any{userID}
	if p.Size > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, p.Size, p.Offset())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapSQLiteErr("list wallets", err)
	}
	defer rows.Close()

	var wallets []core.Wallet
	for rows.Next() {
		var (
			w   core.Wallet
			bal string
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Color, &bal); err != nil {
			return nil, 0, fmt.Errorf("scan wallet: %w", err)
		}
		w.Balance, err = decimal.NewFromString(bal)
		if err != nil {
			return nil, 0, fmt.Errorf("parse wallet balance %q: %w", bal, err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapSQLiteErr("iterate wallets", err)
	}

	return wallets, total, nil
}

// sqliteTx is one atomic unit over the SQLite store.
type sqliteTx struct {
	tx *sql.Tx
}

var _ Tx = (*sqliteTx)(nil)

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return mapSQLiteErr("commit", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetWallet(ctx context.Context, id, userID int64) (*core.Wallet, error) {
	return getWallet(ctx, t.tx, id, userID)
}

func (t *sqliteTx) WriteWalletBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, "UPDATE wallets SET balance = ? WHERE id = ?", balance.String(), id)
	if err != nil {
		return mapSQLiteErr("write wallet balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write wallet balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("write wallet balance %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) GetCategory(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Category, error) {
	tbl := tableFor(kind)
	row := t.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, COALESCE(user_id, 0), name, color FROM %s WHERE id = ? AND (user_id IS NULL OR user_id = ?)", tbl.categoryTable),
		id, userID,
	)
	c := core.Category{Kind: kind}
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Color); err != nil {
		return nil, mapSQLiteErr("get category", err)
	}
	return &c, nil
}

func (t *sqliteTx) GetEntry(ctx context.Context, kind core.EntryKind, id, userID int64) (*core.Entry, error) {
	return getEntry(ctx, t.tx, kind, id, userID)
}

func (t *sqliteTx) CreateEntry(ctx context.Context, e *core.Entry) error {
	tbl := tableFor(e.Kind)
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (user_id, wallet_id, %s, amount, %s, description) VALUES (?, ?, ?, ?, ?, ?)",
			tbl.name, tbl.categoryCol, tbl.timeCol),
		e.UserID, e.WalletID, e.CategoryID, e.Amount.String(), e.OccurredAt.Unix(), e.Description,
	)
	if err != nil {
		return mapSQLiteErr("create entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	e.ID = id
	return nil
}

func (t *sqliteTx) UpdateEntry(ctx context.Context, e *core.Entry) error {
	tbl := tableFor(e.Kind)
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET wallet_id = ?, %s = ?, amount = ?, %s = ?, description = ? WHERE id = ?",
			tbl.name, tbl.categoryCol, tbl.timeCol),
		e.WalletID, e.CategoryID, e.Amount.String(), e.OccurredAt.Unix(), e.Description, e.ID,
	)
	if err != nil {
		return mapSQLiteErr("update entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %d: %w", e.Kind, e.ID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteEntry(ctx context.Context, kind core.EntryKind, id int64) error {
	tbl := tableFor(kind)
	res, err := t.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", tbl.name), id)
	if err != nil {
		return mapSQLiteErr("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %d: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

// entryTable maps an EntryKind onto its backing tables and columns.
type entryTable struct {
	name          string
	categoryCol   string
	timeCol       string
	categoryTable string
}

func tableFor(kind core.EntryKind) entryTable {
	if kind == core.KindIncome {
		return entryTable{
			name:          "incomes",
			categoryCol:   "income_source_id",
			timeCol:       "time_received",
			categoryTable: "income_sources",
		}
	}
	return entryTable{
		name:          "expenses",
		categoryCol:   "spending_category_id",
		timeCol:       "time_made",
		categoryTable: "spending_categories",
	}
}

// orderable whitelists ORDER BY columns; the field name is
// interpolated into SQL and must never come from input unchecked.
func (t entryTable) orderable(field string) bool {
	switch field {
	case "id", "amount", "description", "wallet_id", t.categoryCol, t.timeCol:
		return true
	}
	return false
}

func direction(o Order) string {
	if o.Descending {
		return "DESC"
	}
	return "ASC"
}

// querier is satisfied by both *sql.DB and *sql.Tx so point lookups
// share one implementation inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getWallet(ctx context.Context, q querier, id, userID int64) (*core.Wallet, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, user_id, name, color, balance FROM wallets WHERE id = ? AND user_id = ?",
		id, userID,
	)
	var (
		w   core.Wallet
		bal string
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Color, &bal); err != nil {
		return nil, mapSQLiteErr("get wallet", err)
	}
	var err error
	w.Balance, err = decimal.NewFromString(bal)
	if err != nil {
		return nil, fmt.Errorf("parse wallet balance %q: %w", bal, err)
	}
	return &w, nil
}

func getEntry(ctx context.Context, q querier, kind core.EntryKind, id, userID int64) (*core.Entry, error) {
	t := tableFor(kind)
	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, user_id, wallet_id, %s, amount, %s, description FROM %s WHERE id = ? AND user_id = ?",
			t.categoryCol, t.timeCol, t.name),
		id, userID,
	)
	e, err := scanEntry(row, kind)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, kind core.EntryKind) (core.Entry, error) {
	var (
		e      core.Entry
		amount string
		at     int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.WalletID, &e.CategoryID, &amount, &at, &e.Description); err != nil {
		return core.Entry{}, mapSQLiteErr("get entry", err)
	}
	e.Kind = kind
	e.OccurredAt = time.Unix(at, 0).UTC()
	var err error
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Entry{}, fmt.Errorf("parse entry amount %q: %w", amount, err)
	}
	return e, nil
}

// mapSQLiteErr translates driver errors into the ledger taxonomy:
// missing rows become core.ErrNotFound, lock timeouts become
// core.ErrContention.
func mapSQLiteErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w", what, core.ErrContention)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
