// Package live evaluates live queries: every subscription is re-run after a
// change touching its owner and the fresh result set is pushed to it.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/remote"
)

// ErrClosed is returned by Subscribe once the hub has been closed.
var ErrClosed = errors.New("live hub closed")

// FetchFunc evaluates a query against the backing store.
type FetchFunc func(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error)

// Hub fans change notifications out to the subscriptions of an owner.
// Each subscription has its own goroutine, so pushes for one subscription are
// delivered in order and never concurrently; notifications that arrive while
// a fetch is running are coalesced into one more fetch.
type Hub struct {
	fetch        FetchFunc
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	byOwner map[string]map[*listener]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type listener struct {
	hub   *Hub
	query core.ExpenseQuery
	fn    func(remote.Snapshot)
	dirty chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewHub(fetch FetchFunc) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		fetch:        fetch,
		fetchTimeout: 10 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		byOwner:      make(map[string]map[*listener]struct{}),
	}
}

// Subscribe registers fn for q and schedules the initial push.
func (h *Hub) Subscribe(_ context.Context, q core.ExpenseQuery, fn func(remote.Snapshot)) (remote.Subscription, error) {
	if fn == nil {
		return nil, errors.New("nil snapshot callback")
	}
	l := &listener{
		hub:   h,
		query: q,
		fn:    fn,
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := h.byOwner[q.OwnerID]
	if !ok {
		set = make(map[*listener]struct{})
		h.byOwner[q.OwnerID] = set
	}
	set[l] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	l.dirty <- struct{}{}
	go l.run()

	return remote.SubscriptionFunc(l.stop), nil
}

// Refresh marks every subscription of ownerID as stale.
func (h *Hub) Refresh(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.byOwner[ownerID] {
		select {
		case l.dirty <- struct{}{}:
		default:
		}
	}
}

// RefreshAll marks every subscription as stale.
func (h *Hub) RefreshAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.byOwner {
		for l := range set {
			select {
			case l.dirty <- struct{}{}:
			default:
			}
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.byOwner {
		n += len(set)
	}
	return n
}

// Close stops every subscription and waits for their goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*listener
	for _, set := range h.byOwner {
		for l := range set {
			all = append(all, l)
		}
	}
	h.mu.Unlock()

	h.cancel()
	for _, l := range all {
		l.stop()
	}
	h.wg.Wait()
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.byOwner[l.query.OwnerID]
	delete(set, l)
	if len(set) == 0 {
		delete(h.byOwner, l.query.OwnerID)
	}
}

func (l *listener) stop() {
	l.once.Do(func() {
		close(l.done)
		l.hub.remove(l)
	})
}

func (l *listener) stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *listener) run() {
	defer l.hub.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case <-l.dirty:
		}

		ctx, cancel := context.WithTimeout(l.hub.ctx, l.hub.fetchTimeout)
		items, err := l.hub.fetch(ctx, l.query)
		cancel()

		if l.stopped() {
			return
		}
		if err != nil {
			slog.Warn("Live query failed",
				"component", "live",
				"owner_id", l.query.OwnerID,
				"error", err)
			l.fn(remote.Snapshot{Err: fmt.Errorf("%w: %v", core.ErrSubscription, err)})
			l.stop()
			return
		}
		l.fn(remote.Snapshot{Items: items})
	}
}
