// Package remote declares the ports of the hosted data service: identity,
// profile documents and per-account expense collections with live queries.
package remote

import (
	"context"

	"gastos/internal/core"
)

type (
	IdentityProvider interface {
		SignInWithPassword(ctx context.Context, email, password string) (core.Account, error)
		SignUpWithPassword(ctx context.Context, email, password, displayName string) (core.Account, error)
		// SignInWithGoogle exchanges a Google ID token for an account.
		SignInWithGoogle(ctx context.Context, idToken string) (core.Account, error)
	}

	// ProfileWriter stores users/{accountId} with upsert-merge semantics.
	ProfileWriter interface {
		UpsertProfile(ctx context.Context, p core.Profile) error
	}

	ProfileReader interface {
		Profile(ctx context.Context, accountID string) (core.Profile, error)
	}

	ExpenseWriter interface {
		// PutExpense creates the expense, assigning an id when e.ID is blank,
		// or overwrites the document with that id.
		PutExpense(ctx context.Context, e core.Expense) (id string, err error)
		DeleteExpense(ctx context.Context, ownerID, id string) error
	}

	ExpenseLister interface {
		QueryExpenses(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error)
	}

	// ExpenseSubscriber opens live queries. fn receives the full result set on
	// open and after every change; a snapshot carrying Err is the last one.
	ExpenseSubscriber interface {
		Subscribe(ctx context.Context, q core.ExpenseQuery, fn func(Snapshot)) (Subscription, error)
	}

	ExpenseStore interface {
		ExpenseWriter
		ExpenseLister
		ExpenseSubscriber
	}

	// Service is the full surface of the data service.
	Service interface {
		IdentityProvider
		ProfileWriter
		ProfileReader
		ExpenseStore
	}

	Subscription interface {
		// Unsubscribe stops delivery. It is idempotent and never blocks on an
		// in-flight delivery.
		Unsubscribe()
	}

	Snapshot struct {
		Items []core.Expense
		Err   error
	}
)

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }
