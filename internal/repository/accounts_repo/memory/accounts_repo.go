package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

// AccountRepository keeps records in a map guarded by a single RWMutex.
// It is meant for local runs and tests.
type AccountRepository struct {
	mu    sync.RWMutex
	items map[string]accounts_repo.Attributes
	// applied holds the request ids recorded per key by Add.
	applied map[string]map[string]struct{}
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		items:   make(map[string]accounts_repo.Attributes),
		applied: make(map[string]map[string]struct{}),
	}
}

func (r *AccountRepository) Get(ctx context.Context, key string) (accounts_repo.Attributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[key]
	if !ok {
		return nil, accounts_repo.ErrItemNotFound
	}
	return clone(item), nil
}

func (r *AccountRepository) Put(ctx context.Context, key string, attrs accounts_repo.Attributes, mode accounts_repo.PutMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists && mode == accounts_repo.PutIfAbsent {
		return accounts_repo.ErrConditionFailed
	}
	r.items[key] = clone(attrs)
	return nil
}

func (r *AccountRepository) Add(ctx context.Context, key string, in accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[key]
	if !ok {
		return nil, accounts_repo.ErrItemNotFound
	}
	if in.RequestID != "" {
		if _, done := r.applied[key][in.RequestID]; done {
			return nil, accounts_repo.ErrDuplicateRequest
		}
	}

	current := domain.Amount{}
	if _, present := item[in.Attribute]; present {
		var err error
		current, err = item.Amount(in.Attribute)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s of %s: %w", in.Attribute, key, err)
		}
	}
	if in.Min != nil && current.Cmp(*in.Min) < 0 {
		return nil, accounts_repo.ErrConditionFailed
	}

	item[in.Attribute] = accounts_repo.Number(current.Add(in.Delta).String())
	if in.RequestID != "" {
		if r.applied[key] == nil {
			r.applied[key] = make(map[string]struct{})
		}
		r.applied[key][in.RequestID] = struct{}{}
	}
	return accounts_repo.Attributes{in.Attribute: item[in.Attribute]}, nil
}

func clone(attrs accounts_repo.Attributes) accounts_repo.Attributes {
	out := make(accounts_repo.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
