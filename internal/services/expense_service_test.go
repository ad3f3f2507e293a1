package services_test

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
	"gastos/internal/identity"
	"gastos/internal/remote"
	"gastos/internal/services"
	"gastos/internal/storage/memory"
)

type fakeGoogle struct {
	claims identity.GoogleClaims
	err    error
}

func (f fakeGoogle) Verify(context.Context, string) (identity.GoogleClaims, error) {
	return f.claims, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
	closed bool
}

func (p *recordingPublisher) PublishExpenseChanged(_ context.Context, ownerID, expenseID, op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ownerID+"/"+expenseID+"/"+op)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func newService(t *testing.T, pub services.ChangePublisher) *services.DataService {
	t.Helper()
	svc := services.NewDataService(memory.New(), fakeGoogle{claims: identity.GoogleClaims{Subject: "g-1", Email: "g@example.com", Name: "Gee"}}, pub)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func march(day int) time.Time {
	return time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
}

func TestPutExpenseAssignsIDAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	id, err := svc.PutExpense(ctx, core.Expense{
		OwnerID:  "u1",
		Name:     "  Lunch ",
		Amount:   decimal.RequireFromString("12.345"),
		Category: core.Food,
		Date:     march(2),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	items, err := svc.QueryExpenses(ctx, core.QueryForMonth("u1", 2024, 2, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Lunch", items[0].Name)
	assert.Equal(t, "12.35", core.FormatAmount(items[0].Amount))
	assert.Equal(t, []string{"u1/" + id + "/put"}, pub.events)
}

func TestPutExpenseRejectsInvalidInput(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.PutExpense(context.Background(), core.Expense{
		OwnerID: "u1",
		Name:    "x",
		Amount:  decimal.Zero,
		Date:    march(1),
	})
	assert.ErrorIs(t, err, core.ErrWrite)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = svc.PutExpense(context.Background(), core.Expense{Name: "x"})
	assert.ErrorIs(t, err, core.ErrWrite)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, pub)

	id, err := svc.PutExpense(context.Background(), core.Expense{
		OwnerID: "u1", Name: "Bus", Amount: decimal.NewFromInt(2), Category: core.Transport, Date: march(3),
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteExpense(context.Background(), "u1", id))
	assert.Len(t, pub.events, 2)
}

func TestSubscribePushesAfterWrites(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	snaps := make(chan remote.Snapshot, 16)
	sub, err := svc.Subscribe(ctx, core.QueryForMonth("u1", 2024, 2, time.UTC), func(s remote.Snapshot) { snaps <- s })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := <-snaps
	require.NoError(t, first.Err)
	assert.Empty(t, first.Items)

	id, err := svc.PutExpense(ctx, core.Expense{
		OwnerID: "u1", Name: "Rent", Amount: decimal.NewFromInt(900), Category: core.Home, Date: march(1),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case s := <-snaps:
				if len(s.Items) == 1 && s.Items[0].ID == id {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)
}

func TestPasswordSignUpAndSignIn(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	acc, err := svc.SignUpWithPassword(ctx, " Ana@Example.com ", "secret1", " Ana ")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acc.Email)
	assert.Equal(t, "Ana", acc.DisplayName)
	assert.Equal(t, core.ProviderPassword, acc.Provider)

	_, err = svc.SignUpWithPassword(ctx, "ana@example.com", "another1", "Ana")
	assert.ErrorIs(t, err, core.ErrAuthentication)
	assert.ErrorIs(t, err, core.ErrAccountExists)

	got, err := svc.SignInWithPassword(ctx, "ANA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = svc.SignInWithPassword(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, core.ErrInvalidLogin)

	_, err = svc.SignInWithPassword(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, core.ErrInvalidLogin)

	_, err = svc.SignUpWithPassword(ctx, "bob@example.com", "123", "Bob")
	assert.ErrorIs(t, err, core.ErrWeakPassword)
}

func TestGoogleSignInCreatesOnce(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	first, err := svc.SignInWithGoogle(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, core.ProviderGoogle, first.Provider)
	assert.Equal(t, "Gee", first.DisplayName)

	second, err := svc.SignInWithGoogle(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.SignInWithGoogle(ctx, "  ")
	assert.ErrorIs(t, err, core.ErrAuthentication)
}

func TestGoogleSignInVerifierFailure(t *testing.T) {
	svc := services.NewDataService(memory.New(), fakeGoogle{err: errors.New("bad audience")}, nil)
	defer svc.Close()

	_, err := svc.SignInWithGoogle(context.Background(), "token")
	assert.ErrorIs(t, err, core.ErrAuthentication)
}

func TestDisabledGoogleByDefault(t *testing.T) {
	svc := services.NewDataService(memory.New(), nil, nil)
	defer svc.Close()

	_, err := svc.SignInWithGoogle(context.Background(), "token")
	assert.ErrorIs(t, err, core.ErrAuthentication)
	assert.ErrorIs(t, err, identity.ErrGoogleDisabled)
}

func TestUpsertProfileRequiresAccount(t *testing.T) {
	svc := newService(t, nil)
	assert.ErrorIs(t, svc.UpsertProfile(context.Background(), core.Profile{}), core.ErrWrite)
	require.NoError(t, svc.UpsertProfile(context.Background(), core.Profile{AccountID: "a", DisplayName: "A"}))

	p, err := svc.Profile(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "A", p.DisplayName)
}

func TestCloseClosesPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	svc := services.NewDataService(memory.New(), nil, pub)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}
