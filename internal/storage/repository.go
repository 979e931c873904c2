// Package storage implements the identity and ledger stores on SQLite.
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

	"finassist/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DefaultDSN selects a private in-memory database. Every repository opened
// with it (or with an empty DSN) gets its own uniquely named database.
const DefaultDSN = "file:finassist?mode=memory&cache=shared"

func memoryDSN() string {
	return "file:finassist-" + uuid.NewString() + "?mode=memory&cache=shared"
}

type SQLiteRepository struct {
	db    *sql.DB
	newID func() string
}

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	if dsn == "" || dsn == DefaultDSN {
		dsn = memoryDSN()
	}
	if path := filePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, newID: uuid.NewString}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Register implements store.UserStore. The ledger needs no provisioning
// row: a user without transactions simply lists empty.
func (r *SQLiteRepository) Register(ctx context.Context, username, password string) (core.User, error) {
	user := core.User{ID: r.newID(), Username: username, Password: password}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password) VALUES (?, ?, ?)`,
		user.ID, user.Username, user.Password)
	if isDuplicateUsername(err) {
		return core.User{}, core.ErrDuplicateUsername
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	slog.DebugContext(ctx, "User saved to SQLite", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (r *SQLiteRepository) FindByUsername(ctx context.Context, username string) (core.User, bool, error) {
	return r.findUser(ctx, `SELECT id, username, password FROM users WHERE username = ?`, username)
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (core.User, bool, error) {
	return r.findUser(ctx, `SELECT id, username, password FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) findUser(ctx context.Context, query, arg string) (core.User, bool, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, false, nil
	}
	if err != nil {
		return core.User{}, false, fmt.Errorf("find user: %w", err)
	}
	return u, true, nil
}

// List implements store.TransactionStore.
func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, amount, description, date
		   FROM transactions WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	tx, err := core.NewTransaction(r.newID(), userID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, description, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, string(tx.Kind), tx.Amount.String(), tx.Description, tx.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"kind", tx.Kind,
		"amount", tx.Amount.String())
	return tx, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, txID string) (core.Transaction, error) {
	return r.get(ctx, r.db, userID, txID)
}

func (r *SQLiteRepository) Update(ctx context.Context, userID, txID string, p core.TransactionPatch) (core.Transaction, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin update: %w", err)
	}
	defer sqlTx.Rollback()

	current, err := r.get(ctx, sqlTx, userID, txID)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := current.Apply(p)
	if err != nil {
		return core.Transaction{}, err
	}
	_, err = sqlTx.ExecContext(ctx,
		`UPDATE transactions SET kind = ?, amount = ?, description = ?, date = ?
		  WHERE id = ? AND user_id = ?`,
		string(updated.Kind), updated.Amount.String(), updated.Description, updated.Date,
		txID, userID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, txID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, txID, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, txID)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) get(ctx context.Context, q queryer, userID, txID string) (core.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, user_id, kind, amount, description, date
		   FROM transactions WHERE id = ? AND user_id = ?`, txID, userID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrNotFound, txID)
	}
	return tx, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx     core.Transaction
		kind   string
		amount string
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &kind, &amount, &tx.Description, &tx.Date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	tx.Kind = core.Kind(kind)
	tx.Amount = d
	return tx, nil
}

// isDuplicateUsername matches only the unique index on users.username;
// other constraint failures are not conflicts the caller can resolve.
func isDuplicateUsername(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(se.Error(), "users.username")
}

// filePath returns the on-disk path of a file-backed DSN, or "" for
// in-memory databases.
func filePath(dsn string) string {
	if strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:") {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}
