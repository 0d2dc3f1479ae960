package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"conti/internal/core"
)

// ErrAlreadyExists marks a uniqueness violation on user-facing CRUD
// (duplicate wallet or category name for the same user).
var ErrAlreadyExists = errors.New("already exists")

// The methods below are the ordinary uniqueness-checked CRUD around the
// ledger: wallets and categories have a life of their own outside the
// balance engine. Only the engine ever touches balances.

func (s *SQLiteStore) CreateUser(ctx context.Context, u *core.User) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, name) VALUES (?, ?)", u.Email, u.Name)
	if err != nil {
		return mapConstraint("create user", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateWallet inserts a wallet. A positive starting balance is backed
// by an income entry under the reserved "Opening balance" source, so
// the stored balance always equals the sum of the wallet's entries.
// Negative starting balances are rejected.
func (s *SQLiteStore) CreateWallet(ctx context.Context, w *core.Wallet) error {
	if w.Balance.Sign() < 0 {
		return fmt.Errorf("create wallet: negative starting balance: %w", core.ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLiteErr("create wallet: begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO wallets (user_id, name, color, balance) VALUES (?, ?, ?, ?)",
		w.UserID, w.Name, w.Color, w.Balance.String())
	if err != nil {
		return mapConstraint("create wallet", err)
	}
	w.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	if w.Balance.Sign() > 0 {
		var sourceID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM income_sources WHERE user_id IS NULL AND name = ?",
			core.OpeningBalanceSourceName).Scan(&sourceID)
		if err != nil {
			return mapSQLiteErr("create wallet: resolve opening source", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO incomes (user_id, wallet_id, income_source_id, amount, time_received, description) VALUES (?, ?, ?, ?, ?, ?)",
			w.UserID, w.ID, sourceID, w.Balance.String(), time.Now().UTC().Unix(), "Opening balance")
		if err != nil {
			return mapSQLiteErr("create wallet: opening entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapSQLiteErr("create wallet: commit", err)
	}
	return nil
}

// UpdateWallet writes name and color only. Balance is owned by the
// ledger engine and deliberately absent here.
func (s *SQLiteStore) UpdateWallet(ctx context.Context, w *core.Wallet) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE wallets SET name = ?, color = ? WHERE id = ? AND user_id = ?",
		w.Name, w.Color, w.ID, w.UserID)
	if err != nil {
		return mapConstraint("update wallet", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update wallet %d: %w", w.ID, core.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteWallet(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM wallets WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return mapSQLiteErr("delete wallet", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete wallet %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// CreateCategory inserts an income source or spending category for a
// user, by Kind.
func (s *SQLiteStore) CreateCategory(ctx context.Context, c *core.Category) error {
	t := tableFor(c.Kind)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (user_id, name, color) VALUES (?, ?, ?)", t.categoryTable),
		c.UserID, c.Name, c.Color)
	if err != nil {
		return mapConstraint("create category", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// ListUsers returns every user, ordered by id. Used by maintenance
// tooling that walks the whole ledger.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, email, name FROM users ORDER BY id")
	if err != nil {
		return nil, mapSQLiteErr("list users", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteErr("iterate users", err)
	}
	return users, nil
}

func mapConstraint(what string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT {
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	}
	return mapSQLiteErr(what, err)
}
