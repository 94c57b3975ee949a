package accounts_repo

import (
	"fmt"

	"ledger/internal/domain"
)

// Number is a numeric attribute in canonical decimal text form.
type Number string

// Attributes is the raw attribute set of a stored record. String attributes
// are held as string and numeric ones as Number; anything else is treated as
// malformed by the readers below.
type Attributes map[string]any

// AccountAttributes builds the stored representation of an account.
func AccountAttributes(account domain.Account) Attributes {
	return Attributes{
		AttrAccountID: account.ID,
		AttrBalance:   Number(account.Balance.String()),
	}
}

// String returns the string attribute name.
func (a Attributes) String(name string) (string, error) {
	v, ok := a[name]
	if !ok {
		return "", fmt.Errorf("%s not returned by store", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, not a string", name, v)
	}
	return s, nil
}

// Amount returns the numeric attribute name as an exact decimal.
func (a Attributes) Amount(name string) (domain.Amount, error) {
	v, ok := a[name]
	if !ok {
		return domain.Amount{}, fmt.Errorf("%s not returned by store", name)
	}
	n, ok := v.(Number)
	if !ok {
		return domain.Amount{}, fmt.Errorf("%s is %T, not a number", name, v)
	}
	amount, err := domain.ParseStoredAmount(string(n))
	if err != nil {
		return domain.Amount{}, fmt.Errorf("%s holds malformed number %q", name, string(n))
	}
	return amount, nil
}

// Account decodes a full account record.
func (a Attributes) Account() (*domain.Account, error) {
	id, err := a.String(AttrAccountID)
	if err != nil {
		return nil, err
	}
	balance, err := a.Amount(AttrBalance)
	if err != nil {
		return nil, err
	}
	return &domain.Account{ID: id, Balance: balance.Normalize()}, nil
}
