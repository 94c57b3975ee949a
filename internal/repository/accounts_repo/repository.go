package accounts_repo

import (
	"context"
	"errors"

	"ledger/internal/domain"
)

const (
	AttrAccountID = "accountId"
	AttrBalance   = "balance"
)

var (
	// ErrItemNotFound is returned when no record exists for the key.
	ErrItemNotFound = errors.New("item not found")
	// ErrConditionFailed is returned when a write precondition evaluated false
	// and nothing was written.
	ErrConditionFailed = errors.New("condition failed")
	// ErrDuplicateRequest is returned by Add when its RequestID was already
	// applied to the record. Nothing is written.
	ErrDuplicateRequest = errors.New("duplicate request")
)

type PutMode int

const (
	// PutOverwrite replaces any existing record.
	PutOverwrite PutMode = iota
	// PutIfAbsent fails with ErrConditionFailed when the key already exists.
	PutIfAbsent
)

// AddInput describes an atomic additive update of a numeric attribute.
type AddInput struct {
	Attribute string
	Delta     domain.Amount
	// Min, when set, guards the update: it is applied only if the current
	// value of Attribute is >= *Min at the moment of application.
	Min *domain.Amount
	// RequestID, when set, is recorded against the key in the same atomic
	// step as the update. An Add carrying a recorded RequestID fails with
	// ErrDuplicateRequest.
	RequestID string
}

// AccountStore is the key-value contract the ledger needs. Add must evaluate
// the guard and apply the delta as one indivisible operation per key.
type AccountStore interface {
	Get(ctx context.Context, key string) (Attributes, error)
	Put(ctx context.Context, key string, attrs Attributes, mode PutMode) error
	// Add applies in.Delta to the record at key and returns the post-update
	// attributes. It never creates a record: a missing key is ErrItemNotFound.
	Add(ctx context.Context, key string, in AddInput) (Attributes, error)
}
