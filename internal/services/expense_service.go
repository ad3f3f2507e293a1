package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gastos/internal/core"
	"gastos/internal/identity"
	"gastos/internal/remote"
	"gastos/internal/remote/live"
)

const (
	OpPut    = "put"
	OpDelete = "delete"
)

// DataService orchestrates the data service across the repository, the live
// query hub and the optional change bus.
type DataService struct {
	repo      Repository
	google    identity.GoogleVerifier
	hub       *live.Hub
	publisher ChangePublisher
	now       func() time.Time
}

var _ remote.Service = (*DataService)(nil)

func NewDataService(repo Repository, google identity.GoogleVerifier, publisher ChangePublisher) *DataService {
	if google == nil {
		google = identity.DisabledVerifier{}
	}
	s := &DataService{
		repo:      repo,
		google:    google,
		publisher: publisher,
		now:       time.Now,
	}
	s.hub = live.NewHub(repo.QueryExpenses)
	return s
}

// PutExpense saves an expense and notifies live queries of its owner.
func (s *DataService) PutExpense(ctx context.Context, e core.Expense) (string, error) {
	if strings.TrimSpace(e.OwnerID) == "" {
		return "", fmt.Errorf("%w: missing owner", core.ErrWrite)
	}
	e = e.Normalize()
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrWrite, err)
	}
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}

	if err := s.repo.PutExpense(ctx, e); err != nil {
		return "", fmt.Errorf("%w: save expense: %w", core.ErrWrite, err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"component", "expense",
		"operation", "create",
		"expense_id", e.ID,
		"owner_id", e.OwnerID,
		"amount", e.Amount.StringFixed(2),
		"category", e.Category)

	s.changed(ctx, e.OwnerID, e.ID, OpPut)
	return e.ID, nil
}

// DeleteExpense removes an expense; deleting a missing id succeeds.
func (s *DataService) DeleteExpense(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: missing owner or id", core.ErrWrite)
	}
	if err := s.repo.DeleteExpense(ctx, ownerID, id); err != nil {
		return fmt.Errorf("%w: delete expense: %w", core.ErrWrite, err)
	}

	slog.InfoContext(ctx, "Expense deleted",
		"component", "expense",
		"operation", "delete",
		"expense_id", id,
		"owner_id", ownerID)

	s.changed(ctx, ownerID, id, OpDelete)
	return nil
}

func (s *DataService) QueryExpenses(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error) {
	return s.repo.QueryExpenses(ctx, q)
}

func (s *DataService) Subscribe(ctx context.Context, q core.ExpenseQuery, fn func(remote.Snapshot)) (remote.Subscription, error) {
	return s.hub.Subscribe(ctx, q, fn)
}

// Ping reports whether the repository is reachable. Repositories without a
// connection to check are always ready.
func (s *DataService) Ping(ctx context.Context) error {
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// LiveQueries returns the number of open live queries.
func (s *DataService) LiveQueries() int {
	return s.hub.Len()
}

// Refresh re-evaluates the live queries of an owner after a change made elsewhere.
func (s *DataService) Refresh(ownerID string) {
	s.hub.Refresh(ownerID)
}

// RefreshAll re-evaluates every live query.
func (s *DataService) RefreshAll() {
	s.hub.RefreshAll()
}

// changed refreshes local subscriptions first so a failing bus never hides a write.
func (s *DataService) changed(ctx context.Context, ownerID, expenseID, op string) {
	s.hub.Refresh(ownerID)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseChanged(ctx, ownerID, expenseID, op); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense change",
			"component", "amqp",
			"expense_id", expenseID,
			"operation", op,
			"error", err)
	}
}

// Close stops live queries and closes the repository and change bus.
func (s *DataService) Close() error {
	s.hub.Close()

	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close data service: %w", errors.Join(errs...))
	}
	return nil
}
