package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

type LedgerService interface {
	CreateAccount(ctx context.Context, account domain.Account) error
	ReadAccount(ctx context.Context, accountID string) (*domain.Account, error)
	AdjustBalance(ctx context.Context, accountID string, amount domain.Amount) (domain.Amount, error)
	// ApplyAdjustment is AdjustBalance applied at most once per commandID and
	// account. A repeated commandID fails with domain.ErrCommandAlreadyApplied
	// and leaves the balance untouched.
	ApplyAdjustment(ctx context.Context, commandID, accountID string, amount domain.Amount) (domain.Amount, error)
}

// ledgerService holds no state besides its collaborators; every call is a
// fresh round trip to the store.
type ledgerService struct {
	store  accounts_repo.AccountStore
	logger *zap.Logger
}

func NewLedgerService(store accounts_repo.AccountStore, logger *zap.Logger) LedgerService {
	return &ledgerService{
		store:  store,
		logger: logger,
	}
}

// CreateAccount writes a new account. An existing id is rejected rather than
// overwritten, and accounts may not start below zero.
func (s *ledgerService) CreateAccount(ctx context.Context, account domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	err := s.store.Put(ctx, account.ID, accounts_repo.AccountAttributes(account), accounts_repo.PutIfAbsent)
	if err != nil {
		if errors.Is(err, accounts_repo.ErrConditionFailed) {
			return domain.ErrAccountAlreadyExists
		}
		return domain.Internal(fmt.Errorf("create account %s: %w", account.ID, err))
	}

	s.logger.Info("Account created",
		zap.String("account_id", account.ID),
		zap.String("balance", account.Balance.String()))
	return nil
}

// ReadAccount is a single eventually consistent lookup. It may not reflect an
// adjustment that completed in another request moments earlier.
func (s *ledgerService) ReadAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return nil, err
	}

	attrs, err := s.store.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts_repo.ErrItemNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.Internal(fmt.Errorf("read account %s: %w", accountID, err))
	}

	account, err := attrs.Account()
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("decode account %s: %w", accountID, err))
	}
	return account, nil
}

// AdjustBalance applies amount to the balance in one atomic store operation
// and returns the resulting balance. A debit carries the precondition
// balance >= -amount, evaluated by the store together with the write.
func (s *ledgerService) AdjustBalance(ctx context.Context, accountID string, amount domain.Amount) (domain.Amount, error) {
	return s.adjust(ctx, "", accountID, amount)
}

func (s *ledgerService) ApplyAdjustment(ctx context.Context, commandID, accountID string, amount domain.Amount) (domain.Amount, error) {
	if commandID == "" {
		return domain.Amount{}, domain.Validation("missing command id")
	}
	return s.adjust(ctx, commandID, accountID, amount)
}

func (s *ledgerService) adjust(ctx context.Context, commandID, accountID string, amount domain.Amount) (domain.Amount, error) {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return domain.Amount{}, err
	}

	in := accounts_repo.AddInput{
		Attribute: accounts_repo.AttrBalance,
		Delta:     amount,
		RequestID: commandID,
	}
	if amount.IsNegative() {
		minBalance := amount.Neg()
		in.Min = &minBalance
	}

	attrs, err := s.store.Add(ctx, accountID, in)
	if err != nil {
		switch {
		case errors.Is(err, accounts_repo.ErrConditionFailed):
			return domain.Amount{}, domain.ErrInsufficientFunds
		case errors.Is(err, accounts_repo.ErrItemNotFound):
			return domain.Amount{}, domain.ErrAccountNotFound
		case errors.Is(err, accounts_repo.ErrDuplicateRequest):
			return domain.Amount{}, domain.ErrCommandAlreadyApplied
		default:
			return domain.Amount{}, domain.Internal(fmt.Errorf("adjust balance of %s: %w", accountID, err))
		}
	}
	if attrs == nil {
		return domain.Amount{}, domain.ErrAccountNotFound
	}

	balance, err := attrs.Amount(accounts_repo.AttrBalance)
	if err != nil {
		return domain.Amount{}, domain.Internal(fmt.Errorf("adjust balance of %s: %w", accountID, err))
	}
	balance = balance.Normalize()

	s.logger.Debug("Balance adjusted",
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()))
	return balance, nil
}
