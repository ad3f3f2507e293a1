package viewstate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/gateway"
	applog "gastos/internal/log"
)

var ErrClosed = errors.New("expense view closed")

// ExpenseGateway is the subset of gateway.Expenses the expense state drives.
type ExpenseGateway interface {
	Create(ctx context.Context, e core.Expense) (string, error)
	Delete(ctx context.Context, id string) error
	SubscribeMonth(ctx context.Context, year, month0 int, fn func(gateway.Event)) (gateway.Subscription, error)
}

type ExpensesState struct {
	Items   []core.Expense  `json:"items"`
	Total   decimal.Decimal `json:"total"`
	Year    int             `json:"year"`
	Month0  int             `json:"month0"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
}

// NewExpense is the input of AddExpense.
type NewExpense struct {
	Name     string
	Amount   decimal.Decimal
	Category core.Category
	Date     time.Time
	Note     string
}

// Expenses keeps a live, totalled view of one month of the active account's
// expenses. Items only ever change through subscription pushes; commands
// never touch them.
type Expenses struct {
	gw ExpenseGateway

	mu     sync.Mutex
	state  ExpensesState
	gen    uint64
	sub    gateway.Subscription
	closed bool
	obs    observable[ExpensesState]
}

// NewExpenses creates the state positioned on the month of now. No
// subscription is opened until SelectMonth.
func NewExpenses(gw ExpenseGateway, now time.Time) *Expenses {
	return &Expenses{
		gw: gw,
		state: ExpensesState{
			Items:  []core.Expense{},
			Total:  decimal.Zero,
			Year:   now.Year(),
			Month0: int(now.Month()) - 1,
		},
	}
}

// SelectMonth replaces the current month subscription. Pushes from any
// earlier subscription are discarded from here on.
func (x *Expenses) SelectMonth(ctx context.Context, year, month0 int) error {
	year, month0 = core.NormalizeMonth(year, month0)

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return ErrClosed
	}
	x.gen++
	gen := x.gen
	old := x.sub
	x.sub = nil
	x.state.Items = []core.Expense{}
	x.state.Total = decimal.Zero
	x.state.Year = year
	x.state.Month0 = month0
	x.state.Loading = true
	x.state.Error = ""
	x.publishLocked()
	x.mu.Unlock()

	// Never close or open subscriptions under x.mu: deliveries take it too.
	if old != nil {
		old.Close()
	}

	sub, err := x.gw.SubscribeMonth(ctx, year, month0, func(ev gateway.Event) {
		x.apply(gen, ev)
	})

	x.mu.Lock()
	if gen != x.gen {
		x.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return nil
	}
	if err != nil {
		x.state.Loading = false
		x.state.Error = core.Message(err)
		x.publishLocked()
		x.mu.Unlock()
		slog.WarnContext(ctx, "Month subscription failed",
			applog.NewFields().
				WithComponent(applog.ComponentViewState).
				WithMonth(year, month0).
				WithError(err).
				WithErrorType(applog.ErrorTypeSubscription).
				ToSlice()...)
		return err
	}
	x.sub = sub
	x.mu.Unlock()
	return nil
}

func (x *Expenses) PreviousMonth(ctx context.Context) error {
	return x.shift(ctx, -1)
}

func (x *Expenses) NextMonth(ctx context.Context) error {
	return x.shift(ctx, 1)
}

func (x *Expenses) shift(ctx context.Context, delta int) error {
	x.mu.Lock()
	year, month0 := core.ShiftMonth(x.state.Year, x.state.Month0, delta)
	x.mu.Unlock()
	return x.SelectMonth(ctx, year, month0)
}

func (x *Expenses) apply(gen uint64, ev gateway.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if gen != x.gen {
		return
	}
	switch ev.Kind {
	case gateway.EventData:
		items := make([]core.Expense, len(ev.Items))
		copy(items, ev.Items)
		x.state.Items = items
		x.state.Total = core.Total(items)
		x.state.Loading = false
	case gateway.EventClosed:
		x.state.Items = []core.Expense{}
		x.state.Total = decimal.Zero
		x.state.Loading = false
	case gateway.EventFailed:
		x.state.Loading = false
		x.state.Error = core.Message(ev.Err)
		slog.Warn("Month subscription terminated",
			applog.NewFields().
				WithComponent(applog.ComponentViewState).
				WithMonth(x.state.Year, x.state.Month0).
				WithError(ev.Err).
				WithErrorType(applog.ErrorTypeSubscription).
				ToSlice()...)
	}
	x.publishLocked()
}

// AddExpense validates in and submits it. The list is left to the next push.
func (x *Expenses) AddExpense(ctx context.Context, in NewExpense) (string, error) {
	e := core.Expense{
		Name:     in.Name,
		Amount:   in.Amount,
		Category: in.Category,
		Date:     in.Date,
		Note:     in.Note,
	}.Normalize()
	if err := e.Validate(); err != nil {
		x.setError(err)
		return "", err
	}

	x.setError(nil)
	id, err := x.gw.Create(ctx, e)
	if err != nil {
		x.setError(err)
		return "", err
	}
	return id, nil
}

// DeleteExpense submits a delete. The list is left to the next push.
func (x *Expenses) DeleteExpense(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		err := core.ErrWrite
		x.setError(err)
		return err
	}
	x.setError(nil)
	if err := x.gw.Delete(ctx, id); err != nil {
		x.setError(err)
		return err
	}
	return nil
}

func (x *Expenses) setError(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	msg := core.Message(err)
	if x.state.Error == msg {
		return
	}
	x.state.Error = msg
	x.publishLocked()
}

func (x *Expenses) Snapshot() ExpensesState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.snapshotLocked()
}

// Watch streams the state, starting with the current value, until ctx ends or
// the view is closed.
func (x *Expenses) Watch(ctx context.Context) <-chan ExpensesState {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		ch := make(chan ExpensesState, 1)
		ch <- x.snapshotLocked()
		close(ch)
		return ch
	}
	return x.obs.watch(ctx, x.snapshotLocked())
}

// Close tears down the month subscription and ends every watch.
func (x *Expenses) Close() {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	x.closed = true
	x.gen++
	sub := x.sub
	x.sub = nil
	x.state.Loading = false
	x.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	x.obs.closeAll()
}

func (x *Expenses) publishLocked() {
	x.obs.publish(x.snapshotLocked())
}

func (x *Expenses) snapshotLocked() ExpensesState {
	s := x.state
	s.Items = make([]core.Expense, len(x.state.Items))
	copy(s.Items, x.state.Items)
	return s
}
