package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/remote"
)

type fakeSub struct {
	fn           func(remote.Snapshot)
	query        core.ExpenseQuery
	unsubscribed bool
}

type fakeService struct {
	mu         sync.Mutex
	signInErr  error
	profileErr error
	putErr     error
	subErr     error
	profiles   []core.Profile
	puts       []core.Expense
	deletes    []string
	subs       []*fakeSub
}

func (f *fakeService) SignInWithPassword(_ context.Context, email, _ string) (core.Account, error) {
	if f.signInErr != nil {
		return core.Account{}, f.signInErr
	}
	return core.Account{ID: "acc-" + email, Email: email, Provider: core.ProviderPassword}, nil
}

func (f *fakeService) SignUpWithPassword(_ context.Context, email, _, name string) (core.Account, error) {
	if f.signInErr != nil {
		return core.Account{}, f.signInErr
	}
	return core.Account{ID: "acc-" + email, Email: email, DisplayName: name, Provider: core.ProviderPassword}, nil
}

func (f *fakeService) SignInWithGoogle(_ context.Context, token string) (core.Account, error) {
	if f.signInErr != nil {
		return core.Account{}, f.signInErr
	}
	return core.Account{ID: "g-" + token, Email: "g@example.com"}, nil
}

func (f *fakeService) UpsertProfile(_ context.Context, p core.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, p)
	return f.profileErr
}

func (f *fakeService) PutExpense(_ context.Context, e core.Expense) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.puts = append(f.puts, e)
	return "new-id", nil
}

func (f *fakeService) DeleteExpense(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ownerID+"/"+id)
	return nil
}

func (f *fakeService) QueryExpenses(context.Context, core.ExpenseQuery) ([]core.Expense, error) {
	return nil, nil
}

func (f *fakeService) Subscribe(_ context.Context, q core.ExpenseQuery, fn func(remote.Snapshot)) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := &fakeSub{fn: fn, query: q}
	f.subs = append(f.subs, s)
	return remote.SubscriptionFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		s.unsubscribed = true
	}), nil
}

func (f *fakeService) lastSub(t *testing.T) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.subs)
	return f.subs[len(f.subs)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) on(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func setup(t *testing.T) (*fakeService, *Sessions, *Expenses) {
	t.Helper()
	svc := &fakeService{}
	sessions := NewSessions(svc, svc)
	sessions.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return svc, sessions, NewExpenses(sessions, svc, time.UTC)
}

func TestSignInActivatesAndWritesProfile(t *testing.T) {
	svc, sessions, _ := setup(t)
	require.False(t, sessions.IsActive())

	require.NoError(t, sessions.SignInWithPassword(context.Background(), "  a@example.com ", "pw"))
	acc, ok := sessions.Account()
	require.True(t, ok)
	assert.Equal(t, "acc-a@example.com", acc.ID)

	require.Len(t, svc.profiles, 1)
	assert.True(t, svc.profiles[0].CreatedAt.IsZero(), "sign-in must not overwrite createdAt")
	assert.False(t, svc.profiles[0].UpdatedAt.IsZero())
}

func TestSignUpSetsCreatedAt(t *testing.T) {
	svc, sessions, _ := setup(t)
	require.NoError(t, sessions.SignUpWithPassword(context.Background(), "b@example.com", "pw", " Bea "))
	require.Len(t, svc.profiles, 1)
	p := svc.profiles[0]
	assert.Equal(t, "Bea", p.DisplayName)
	assert.Equal(t, core.ProviderPassword, p.Provider)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestGoogleSignInUsesGoogleProvider(t *testing.T) {
	svc, sessions, _ := setup(t)
	require.NoError(t, sessions.SignInWithGoogleIDToken(context.Background(), "tok"))
	require.Len(t, svc.profiles, 1)
	assert.Equal(t, core.ProviderGoogle, svc.profiles[0].Provider)
}

func TestSignInFailureIsAuthentication(t *testing.T) {
	svc, sessions, _ := setup(t)
	svc.signInErr = errors.New("bad password")

	err := sessions.SignInWithPassword(context.Background(), "a@example.com", "pw")
	assert.ErrorIs(t, err, core.ErrAuthentication)
	assert.False(t, sessions.IsActive())
}

func TestProfileFailureDoesNotFailSignIn(t *testing.T) {
	svc, sessions, _ := setup(t)
	svc.profileErr = errors.New("permission denied")

	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	assert.True(t, sessions.IsActive())
}

func TestCommandsWithoutSession(t *testing.T) {
	svc, _, expenses := setup(t)

	_, err := expenses.Create(context.Background(), core.Expense{Name: "x"})
	assert.ErrorIs(t, err, core.ErrNoActiveSession)
	assert.ErrorIs(t, expenses.Delete(context.Background(), "id"), core.ErrNoActiveSession)
	assert.Empty(t, svc.puts)
}

func TestCreateTagsActiveAccount(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))

	id, err := expenses.Create(context.Background(), core.Expense{
		OwnerID:  "someone-else",
		Name:     "Groceries",
		Amount:   decimal.RequireFromString("42.50"),
		Category: core.Food,
		Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
	require.Len(t, svc.puts, 1)
	assert.Equal(t, "acc-a@example.com", svc.puts[0].OwnerID)

	svc.putErr = errors.New("permission denied")
	_, err = expenses.Create(context.Background(), core.Expense{Name: "x"})
	assert.ErrorIs(t, err, core.ErrWrite)

	require.NoError(t, expenses.Delete(context.Background(), "e1"))
	assert.Equal(t, []string{"acc-a@example.com/e1"}, svc.deletes)
}

func TestSubscribeMonthWithoutSessionIsQuiet(t *testing.T) {
	_, _, expenses := setup(t)
	rec := &recorder{}

	sub, err := expenses.SubscribeMonth(context.Background(), 2024, 2, rec.on)
	require.NoError(t, err)
	sub.Close()

	assert.Equal(t, []EventKind{EventData, EventClosed}, rec.kinds())
	assert.Empty(t, rec.events[0].Items)
	assert.NotNil(t, rec.events[0].Items)
}

func TestSubscribeMonthScopesQuery(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	rec := &recorder{}

	_, err := expenses.SubscribeMonth(context.Background(), 2024, 11, rec.on)
	require.NoError(t, err)

	fs := svc.lastSub(t)
	assert.Equal(t, "acc-a@example.com", fs.query.OwnerID)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), fs.query.From)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), fs.query.To)

	fs.fn(remote.Snapshot{Items: []core.Expense{{ID: "1"}}})
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventData, rec.events[0].Kind)
}

func TestSignOutRevokesSubscriptions(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	rec := &recorder{}

	_, err := expenses.SubscribeMonth(context.Background(), 2024, 2, rec.on)
	require.NoError(t, err)
	fs := svc.lastSub(t)

	sessions.SignOut()
	assert.False(t, sessions.IsActive())
	assert.True(t, fs.unsubscribed)
	assert.Equal(t, []EventKind{EventClosed}, rec.kinds())

	fs.fn(remote.Snapshot{Items: []core.Expense{{ID: "late"}}})
	assert.Equal(t, []EventKind{EventClosed}, rec.kinds(), "pushes after sign-out must be dropped")
}

func TestCloseStopsDeliveryWithoutEvent(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	rec := &recorder{}

	sub, err := expenses.SubscribeMonth(context.Background(), 2024, 2, rec.on)
	require.NoError(t, err)
	fs := svc.lastSub(t)

	sub.Close()
	sub.Close()
	assert.True(t, fs.unsubscribed)

	fs.fn(remote.Snapshot{Items: []core.Expense{{ID: "late"}}})
	assert.Empty(t, rec.kinds())

	sessions.SignOut()
	assert.Empty(t, rec.kinds(), "closed subscriptions are not revoked again")
}

func TestSubscriptionFailureIsTerminal(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	rec := &recorder{}

	_, err := expenses.SubscribeMonth(context.Background(), 2024, 2, rec.on)
	require.NoError(t, err)
	fs := svc.lastSub(t)

	fs.fn(remote.Snapshot{Err: errors.New("permission denied")})
	fs.fn(remote.Snapshot{Items: []core.Expense{}})

	require.Equal(t, []EventKind{EventFailed}, rec.kinds())
	assert.ErrorIs(t, rec.events[0].Err, core.ErrSubscription)
}

func TestSubscribeErrorIsClassified(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	svc.subErr = errors.New("hub closed")

	_, err := expenses.SubscribeMonth(context.Background(), 2024, 2, func(Event) {})
	assert.ErrorIs(t, err, core.ErrSubscription)
}

func TestSwitchingAccountRevokesOldSubscriptions(t *testing.T) {
	svc, sessions, expenses := setup(t)
	require.NoError(t, sessions.SignInWithPassword(context.Background(), "a@example.com", "pw"))
	rec := &recorder{}
	_, err := expenses.SubscribeMonth(context.Background(), 2024, 2, rec.on)
	require.NoError(t, err)

	require.NoError(t, sessions.SignInWithPassword(context.Background(), "b@example.com", "pw"))
	assert.True(t, svc.lastSub(t).unsubscribed)
	assert.Equal(t, []EventKind{EventClosed}, rec.kinds())
}
