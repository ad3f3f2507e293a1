package services

import (
	"context"
	"time"

	"gastos/internal/core"
)

// StoredAccount is an account row as kept by a repository. Subject is the
// provider-specific key: the normalized email for password accounts and the
// token subject for Google accounts.
type StoredAccount struct {
	core.Account
	Subject      string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository is the persistence contract shared by the sqlite and memory backends.
type Repository interface {
	// CreateAccount fails with core.ErrAccountExists when (provider, subject) is taken.
	CreateAccount(ctx context.Context, a StoredAccount) error
	// FindAccount fails with core.ErrAccountNotFound.
	FindAccount(ctx context.Context, provider, subject string) (StoredAccount, error)

	UpsertProfile(ctx context.Context, p core.Profile) error
	Profile(ctx context.Context, accountID string) (core.Profile, error)

	PutExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, ownerID, id string) error
	QueryExpenses(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error)

	Close() error
}

// ChangePublisher announces expense writes to other instances.
type ChangePublisher interface {
	PublishExpenseChanged(ctx context.Context, ownerID, expenseID, op string) error
	Close() error
}
