package domain

import (
	"fmt"
	"strings"
)

// MaxAccountIDLength is the longest account id accepted, in bytes.
const MaxAccountIDLength = 255

type Account struct {
	ID      string
	Balance Amount
}

// Validate checks the fields of an account about to be created.
func (a Account) Validate() error {
	if err := ValidateAccountID(a.ID); err != nil {
		return err
	}
	if a.Balance.IsNegative() {
		return Validation("initial balance cannot be negative")
	}
	return nil
}

// ValidateAccountID rejects blank and overlong ids.
func ValidateAccountID(id string) error {
	if strings.TrimSpace(id) == "" {
		return Validation("missing account id")
	}
	if len(id) > MaxAccountIDLength {
		return Validation(fmt.Sprintf("account id exceeds %d characters", MaxAccountIDLength))
	}
	return nil
}
