package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ledger/internal/repository/accounts_repo"
)

const uniqueViolation = "23505"

// AccountRepository stores one row per account in the accounts table.
// Only the balance attribute is numeric and updatable through Add.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, key string) (accounts_repo.Attributes, error) {
	query := `
		SELECT account_id, balance::text
		FROM accounts
		WHERE account_id = $1
	`
	var id, balance string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&id, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts_repo.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	return accounts_repo.Attributes{
		accounts_repo.AttrAccountID: id,
		accounts_repo.AttrBalance:   accounts_repo.Number(balance),
	}, nil
}

func (r *AccountRepository) Put(ctx context.Context, key string, attrs accounts_repo.Attributes, mode accounts_repo.PutMode) error {
	balance, err := attrs.Amount(accounts_repo.AttrBalance)
	if err != nil {
		return fmt.Errorf("failed to put account %s: %w", key, err)
	}

	query := `
		INSERT INTO accounts (account_id, balance)
		VALUES ($1, $2::numeric)
	`
	if mode == accounts_repo.PutOverwrite {
		query += `
		ON CONFLICT (account_id) DO UPDATE
		SET balance = EXCLUDED.balance, updated_at = NOW()
		`
	}

	if _, err := r.db.ExecContext(ctx, query, key, balance.String()); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return accounts_repo.ErrConditionFailed
		}
		return fmt.Errorf("failed to put account %s: %w", key, err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Add applies the delta in a single UPDATE whose WHERE clause carries the
// guard, so the check and the write happen under the same row lock. With a
// RequestID the UPDATE runs in one transaction with the insert into
// applied_requests.
func (r *AccountRepository) Add(ctx context.Context, key string, in accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	if in.Attribute != accounts_repo.AttrBalance {
		return nil, fmt.Errorf("attribute %q is not numeric", in.Attribute)
	}
	if in.RequestID == "" {
		attrs, err := r.update(ctx, r.db, key, in)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.classifyMiss(ctx, key)
		}
		return attrs, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO applied_requests (account_id, request_id)
		VALUES ($1, $2)
		ON CONFLICT (account_id, request_id) DO NOTHING
	`, key, in.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to record request %s for %s: %w", in.RequestID, key, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to record request %s for %s: %w", in.RequestID, key, err)
	}
	if inserted == 0 {
		return nil, accounts_repo.ErrDuplicateRequest
	}

	attrs, err := r.update(ctx, tx, key, in)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, r.classifyMiss(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit balance update of %s: %w", key, err)
	}
	return attrs, nil
}

// update returns sql.ErrNoRows unwrapped when no row matched.
func (r *AccountRepository) update(ctx context.Context, q querier, key string, in accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2::numeric, updated_at = NOW()
		WHERE account_id = $1
	`
	args := []any{key, in.Delta.String()}
	if in.Min != nil {
		query += ` AND balance >= $3::numeric`
		args = append(args, in.Min.String())
	}
	query += ` RETURNING account_id, balance::text`

	var id, balance string
	err := q.QueryRowContext(ctx, query, args...).Scan(&id, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update balance of %s: %w", key, err)
	}
	return accounts_repo.Attributes{
		accounts_repo.AttrAccountID: id,
		accounts_repo.AttrBalance:   accounts_repo.Number(balance),
	}, nil
}

// classifyMiss tells a missing row from a failed guard after an UPDATE
// matched nothing.
func (r *AccountRepository) classifyMiss(ctx context.Context, key string) error {
	exists, err := r.exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return accounts_repo.ErrItemNotFound
	}
	return accounts_repo.ErrConditionFailed
}

func (r *AccountRepository) exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account %s: %w", key, err)
	}
	return exists, nil
}

var _ accounts_repo.AccountStore = (*AccountRepository)(nil)

