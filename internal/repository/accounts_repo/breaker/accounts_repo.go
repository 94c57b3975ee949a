package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ledger/internal/repository/accounts_repo"
)

type Config struct {
	Name                string
	ConsecutiveFailures uint32
	Timeout             time.Duration
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
}

// AccountRepository wraps a store with a circuit breaker. Missing items and
// failed conditions are normal answers from a healthy store and never count
// as failures.
type AccountRepository struct {
	next    accounts_repo.AccountStore
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewAccountRepository(next accounts_repo.AccountStore, cfg Config, logger *zap.Logger) *AccountRepository {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, accounts_repo.ErrItemNotFound) ||
				errors.Is(err, accounts_repo.ErrConditionFailed) ||
				errors.Is(err, accounts_repo.ErrDuplicateRequest) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Store circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &AccountRepository{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (r *AccountRepository) State() gobreaker.State {
	return r.breaker.State()
}

func (r *AccountRepository) Get(ctx context.Context, key string) (accounts_repo.Attributes, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.Get(ctx, key)
	})
	if err != nil {
		return nil, r.wrap(err)
	}
	attrs, _ := res.(accounts_repo.Attributes)
	return attrs, nil
}

func (r *AccountRepository) Put(ctx context.Context, key string, attrs accounts_repo.Attributes, mode accounts_repo.PutMode) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.next.Put(ctx, key, attrs, mode)
	})
	return r.wrap(err)
}

func (r *AccountRepository) Add(ctx context.Context, key string, in accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.Add(ctx, key, in)
	})
	if err != nil {
		return nil, r.wrap(err)
	}
	attrs, _ := res.(accounts_repo.Attributes)
	return attrs, nil
}

func (r *AccountRepository) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.logger.Warn("Store call rejected by circuit breaker", zap.Error(err))
		return fmt.Errorf("store unavailable: %w", err)
	}
	return err
}

var _ accounts_repo.AccountStore = (*AccountRepository)(nil)
