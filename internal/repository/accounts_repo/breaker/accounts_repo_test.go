package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/accounts_repo/memory"
)

type failingStore struct {
	calls int
	err   error
}

func (s *failingStore) Get(context.Context, string) (accounts_repo.Attributes, error) {
	s.calls++
	return nil, s.err
}

func (s *failingStore) Put(context.Context, string, accounts_repo.Attributes, accounts_repo.PutMode) error {
	s.calls++
	return s.err
}

func (s *failingStore) Add(context.Context, string, accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	s.calls++
	return nil, s.err
}

func TestAccountRepository_TripsOnStoreFailures(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	r := NewAccountRepository(store, Config{Name: "test", ConsecutiveFailures: 3, Timeout: time.Minute}, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Get(ctx, "A1")
		require.ErrorIs(t, err, store.err)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := r.Add(ctx, "A1", accounts_repo.AddInput{Attribute: accounts_repo.AttrBalance, Delta: domain.MustParseAmount("1")})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, store.calls, "open breaker must not reach the store")
}

func TestAccountRepository_BusinessOutcomesDoNotTrip(t *testing.T) {
	store := &failingStore{err: accounts_repo.ErrItemNotFound}
	r := NewAccountRepository(store, Config{Name: "test", ConsecutiveFailures: 2, Timeout: time.Minute}, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.Get(ctx, "A1")
		assert.ErrorIs(t, err, accounts_repo.ErrItemNotFound)
	}

	store.err = accounts_repo.ErrConditionFailed
	for i := 0; i < 5; i++ {
		err := r.Put(ctx, "A1", accounts_repo.Attributes{}, accounts_repo.PutIfAbsent)
		assert.ErrorIs(t, err, accounts_repo.ErrConditionFailed)
	}

	store.err = accounts_repo.ErrDuplicateRequest
	for i := 0; i < 5; i++ {
		_, err := r.Add(ctx, "A1", accounts_repo.AddInput{Attribute: accounts_repo.AttrBalance, RequestID: "cmd-1"})
		assert.ErrorIs(t, err, accounts_repo.ErrDuplicateRequest)
	}

	assert.Equal(t, gobreaker.StateClosed, r.State())
	assert.Equal(t, 15, store.calls)
}

func TestAccountRepository_PassesThrough(t *testing.T) {
	r := NewAccountRepository(memory.NewAccountRepository(), Config{Name: "test"}, zaptest.NewLogger(t))
	ctx := context.Background()

	attrs := accounts_repo.AccountAttributes(domain.Account{ID: "A1", Balance: domain.MustParseAmount("2")})
	require.NoError(t, r.Put(ctx, "A1", attrs, accounts_repo.PutIfAbsent))

	updated, err := r.Add(ctx, "A1", accounts_repo.AddInput{Attribute: accounts_repo.AttrBalance, Delta: domain.MustParseAmount("3")})
	require.NoError(t, err)
	assert.Equal(t, accounts_repo.Number("5"), updated[accounts_repo.AttrBalance])

	got, err := r.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", got[accounts_repo.AttrAccountID])
}
