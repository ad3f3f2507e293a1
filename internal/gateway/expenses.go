package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/remote"
)

type EventKind int

const (
	// EventData carries the full result set of the month.
	EventData EventKind = iota
	// EventClosed ends the subscription quietly: no session, or signed out.
	EventClosed
	// EventFailed ends the subscription with Err.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind  EventKind
	Items []core.Expense
	Err   error
}

// Subscription is a month subscription handle. Close stops delivery without
// emitting an event and is safe to call more than once.
type Subscription interface {
	Close()
}

// Expenses scopes expense commands and live queries to the active account.
type Expenses struct {
	sessions *Sessions
	store    remote.ExpenseStore
	loc      *time.Location
}

func NewExpenses(sessions *Sessions, store remote.ExpenseStore, loc *time.Location) *Expenses {
	if loc == nil {
		loc = time.Local
	}
	return &Expenses{sessions: sessions, store: store, loc: loc}
}

// Create stores e under the active account and returns its id.
func (g *Expenses) Create(ctx context.Context, e core.Expense) (string, error) {
	acc, ok := g.sessions.Account()
	if !ok {
		return "", core.ErrNoActiveSession
	}
	e.OwnerID = acc.ID
	id, err := g.store.PutExpense(ctx, e)
	if err != nil {
		return "", classify(err, core.ErrWrite)
	}
	return id, nil
}

func (g *Expenses) Delete(ctx context.Context, id string) error {
	acc, ok := g.sessions.Account()
	if !ok {
		return core.ErrNoActiveSession
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty expense id", core.ErrWrite)
	}
	if err := g.store.DeleteExpense(ctx, acc.ID, id); err != nil {
		return classify(err, core.ErrWrite)
	}
	return nil
}

// SubscribeMonth opens a live query over [first of month, first of next month)
// for the active account. Without a session fn receives Data([]) then Closed
// before SubscribeMonth returns.
func (g *Expenses) SubscribeMonth(ctx context.Context, year, month0 int, fn func(Event)) (Subscription, error) {
	acc, ok := g.sessions.Account()
	if !ok {
		fn(Event{Kind: EventData, Items: []core.Expense{}})
		fn(Event{Kind: EventClosed})
		return noopSubscription{}, nil
	}

	sub := &monthSubscription{sessions: g.sessions, fn: fn}
	if !g.sessions.track(sub, acc.ID) {
		// Signed out between the account read and registration
		fn(Event{Kind: EventData, Items: []core.Expense{}})
		fn(Event{Kind: EventClosed})
		return noopSubscription{}, nil
	}

	q := core.QueryForMonth(acc.ID, year, month0, g.loc)
	remoteSub, err := g.store.Subscribe(ctx, q, sub.push)
	if err != nil {
		g.sessions.untrack(sub)
		return nil, classify(err, core.ErrSubscription)
	}
	if !sub.attach(remoteSub) {
		remoteSub.Unsubscribe()
	}

	slog.DebugContext(ctx, "Month subscription opened",
		applog.NewFields().
			WithComponent(applog.ComponentGateway).
			WithAccount(acc.ID).
			WithMonth(core.NormalizeMonth(year, month0)).
			ToSlice()...)
	return sub, nil
}

type noopSubscription struct{}

func (noopSubscription) Close() {}

// monthSubscription serializes deliveries to fn and guarantees that nothing
// reaches fn once it has been closed or revoked.
type monthSubscription struct {
	sessions *Sessions
	fn       func(Event)

	mu     sync.Mutex
	closed bool
	remote remote.Subscription
}

func (m *monthSubscription) attach(r remote.Subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.remote = r
	return true
}

func (m *monthSubscription) push(snap remote.Snapshot) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if snap.Err != nil {
		m.closed = true
		m.fn(Event{Kind: EventFailed, Err: classify(snap.Err, core.ErrSubscription)})
		m.mu.Unlock()
		m.sessions.untrack(m)
		return
	}
	m.fn(Event{Kind: EventData, Items: snap.Items})
	m.mu.Unlock()
}

// Close must not be called from inside fn.
func (m *monthSubscription) Close() {
	if r := m.shut(false); r != nil {
		r.Unsubscribe()
	}
	m.sessions.untrack(m)
}

// revoke closes the subscription on behalf of the session, notifying fn.
func (m *monthSubscription) revoke() {
	if r := m.shut(true); r != nil {
		r.Unsubscribe()
	}
}

func (m *monthSubscription) shut(notify bool) remote.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if notify {
		m.fn(Event{Kind: EventClosed})
	}
	r := m.remote
	m.remote = nil
	return r
}
