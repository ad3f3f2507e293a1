package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/services"

	_ "modernc.org/sqlite"
)

const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

var ErrForeignExpense = errors.New("expense belongs to another owner")

type SQLiteRepository struct {
	db *sql.DB
}

var _ services.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + dsnPragmas

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a services.StoredAccount) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, provider, subject, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, subject) DO NOTHING`,
		a.ID, a.Provider, a.Subject, a.Email, a.DisplayName, a.PasswordHash, toMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if n == 0 {
		return core.ErrAccountExists
	}

	slog.InfoContext(ctx, "Account saved to SQLite", "account_id", a.ID, "provider", a.Provider)
	return nil
}

func (r *SQLiteRepository) FindAccount(ctx context.Context, provider, subject string) (services.StoredAccount, error) {
	var (
		a       services.StoredAccount
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, provider, subject, email, display_name, password_hash, created_at
		FROM accounts WHERE provider = ? AND subject = ?`, provider, subject).
		Scan(&a.ID, &a.Provider, &a.Subject, &a.Email, &a.DisplayName, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return services.StoredAccount{}, core.ErrAccountNotFound
	}
	if err != nil {
		return services.StoredAccount{}, fmt.Errorf("select account: %w", err)
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}

// UpsertProfile merges p into the stored profile; empty strings and zero
// times keep the stored column.
func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (account_id, display_name, email, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE profiles.display_name END,
			email        = CASE WHEN excluded.email <> '' THEN excluded.email ELSE profiles.email END,
			provider     = CASE WHEN excluded.provider <> '' THEN excluded.provider ELSE profiles.provider END,
			created_at   = CASE WHEN excluded.created_at <> 0 THEN excluded.created_at ELSE profiles.created_at END,
			updated_at   = CASE WHEN excluded.updated_at <> 0 THEN excluded.updated_at ELSE profiles.updated_at END`,
		p.AccountID, p.DisplayName, p.Email, p.Provider, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Profile(ctx context.Context, accountID string) (core.Profile, error) {
	var (
		p                core.Profile
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, display_name, email, provider, created_at, updated_at
		FROM profiles WHERE account_id = ?`, accountID).
		Scan(&p.AccountID, &p.DisplayName, &p.Email, &p.Provider, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// PutExpense inserts e or overwrites the row with the same id.
func (r *SQLiteRepository) PutExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, owner_id, name, amount, category, date_ms, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			category = excluded.category,
			date_ms = excluded.date_ms,
			note = excluded.note
		WHERE expenses.owner_id = excluded.owner_id`,
		e.ID, e.OwnerID, e.Name, core.FormatAmount(e.Amount), string(e.Category), e.Date.UnixMilli(), e.Note)
	if err != nil {
		return fmt.Errorf("put expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put expense: %w", err)
	}
	if n == 0 {
		return ErrForeignExpense
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"amount", core.FormatAmount(e.Amount),
		"date_ms", e.Date.UnixMilli())
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE owner_id = ? AND id = ?`, ownerID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) QueryExpenses(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, amount, category, date_ms, note
		FROM expenses
		WHERE owner_id = ? AND date_ms >= ? AND date_ms < ?
		ORDER BY date_ms DESC, id`,
		q.OwnerID, q.From.UnixMilli(), q.To.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	items := []core.Expense{}
	for rows.Next() {
		var (
			e        core.Expense
			amount   string
			category string
			dateMs   int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Name, &amount, &category, &dateMs, &e.Note); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("expense %s: parse amount %q: %w", e.ID, amount, err)
		}
		e.Category = core.Category(category)
		e.Date = time.UnixMilli(dateMs)
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return items, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
