// Package worker keeps live queries in step with writes made by other
// instances.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	applog "gastos/internal/log"
)

var errMissingOwner = errors.New("change message without owner")

// ChangeConsumer delivers expense-changed messages until ctx ends.
type ChangeConsumer interface {
	ConsumeExpenseChanged(ctx context.Context, handler func(*amqp.ExpenseChangedMessage) error) error
}

// Refresher re-evaluates live queries.
type Refresher interface {
	Refresh(ownerID string)
	RefreshAll()
}

// ChangeWorker refreshes the live queries of an owner whenever another
// instance reports a change, and periodically refreshes everything in case a
// message was lost.
type ChangeWorker struct {
	consumer       ChangeConsumer
	refresher      Refresher
	resyncInterval time.Duration

	handled  atomic.Int64
	rejected atomic.Int64
}

func NewChangeWorker(consumer ChangeConsumer, refresher Refresher, resyncInterval time.Duration) *ChangeWorker {
	return &ChangeWorker{
		consumer:       consumer,
		refresher:      refresher,
		resyncInterval: resyncInterval,
	}
}

// HandleChange processes a single expense-changed message.
func (w *ChangeWorker) HandleChange(msg *amqp.ExpenseChangedMessage) error {
	if msg == nil || strings.TrimSpace(msg.OwnerID) == "" {
		w.rejected.Add(1)
		return errMissingOwner
	}

	slog.Debug("Processing change message",
		applog.FieldComponent, applog.ComponentAMQP,
		applog.FieldAccountID, msg.OwnerID,
		applog.FieldExpenseID, msg.ExpenseID,
		applog.FieldOperation, msg.Op,
		"origin", msg.Origin)

	w.refresher.Refresh(msg.OwnerID)
	w.handled.Add(1)
	return nil
}

// Run consumes changes and resyncs until ctx is cancelled.
func (w *ChangeWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := w.consumer.ConsumeExpenseChanged(ctx, w.HandleChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume expense changes: %w", err)
		}
		return nil
	})

	if w.resyncInterval > 0 {
		g.Go(func() error {
			w.resyncLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (w *ChangeWorker) resyncLoop(ctx context.Context) {
	ticker := time.NewTicker(w.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Debug("Resyncing live queries", applog.FieldComponent, applog.ComponentAMQP)
			w.refresher.RefreshAll()
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns the number of handled and rejected messages.
func (w *ChangeWorker) Stats() (handled, rejected int64) {
	return w.handled.Load(), w.rejected.Load()
}
