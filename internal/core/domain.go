package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

type (
	// Kind classifies a transaction. Values other than income and expense
	// are stored as given; they simply do not count towards the summary.
	Kind string

	User struct {
		ID       string `json:"userId"`
		Username string `json:"username"`
		Password string `json:"-"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Kind        Kind            `json:"kind"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Date        string          `json:"date"`
	}

	// TransactionInput carries the raw fields of a create request. A nil
	// field was not supplied by the caller.
	TransactionInput struct {
		Kind        *string
		Amount      *string
		Description *string
		Date        *string
	}

	// TransactionPatch is a partial update; only non-nil fields are applied.
	TransactionPatch struct {
		Kind        *string
		Amount      *string
		Description *string
		Date        *string
	}
)

var (
	ErrMissingIdentifier  = errors.New("authentication required: user_id missing")
	ErrUnknownIdentifier  = errors.New("authentication failed: user not found")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingField       = errors.New("missing required transaction field")
	ErrNotFound           = errors.New("transaction not found")
	ErrInvalidAmount      = errors.New("invalid amount")
)

func init() {
	// Amounts travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

func (k Kind) String() string {
	return string(k)
}

// IsIncome reports whether the kind counts towards total income.
func (k Kind) IsIncome() bool {
	return k == KindIncome
}

// IsExpense reports whether the kind counts towards total expenses.
func (k Kind) IsExpense() bool {
	return k == KindExpense
}

// Validate checks that every field is present and coerces the amount.
// Kind values are not restricted and the amount sign is not checked.
func (in TransactionInput) Validate() (Kind, decimal.Decimal, error) {
	switch {
	case isAbsent(in.Kind):
		return "", decimal.Zero, fmt.Errorf("%w: kind", ErrMissingField)
	case isAbsent(in.Amount):
		return "", decimal.Zero, fmt.Errorf("%w: amount", ErrMissingField)
	case isAbsent(in.Description):
		return "", decimal.Zero, fmt.Errorf("%w: description", ErrMissingField)
	case isAbsent(in.Date):
		return "", decimal.Zero, fmt.Errorf("%w: date", ErrMissingField)
	}
	amount, err := ParseAmount(*in.Amount)
	if err != nil {
		return "", decimal.Zero, err
	}
	return Kind(*in.Kind), amount, nil
}

// NewTransaction builds a record from a validated input.
func NewTransaction(id, userID string, in TransactionInput) (Transaction, error) {
	kind, amount, err := in.Validate()
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:          id,
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Description: *in.Description,
		Date:        *in.Date,
	}, nil
}

// IsEmpty reports whether the patch carries no recognized field.
func (p TransactionPatch) IsEmpty() bool {
	return p.Kind == nil && p.Amount == nil && p.Description == nil && p.Date == nil
}

// Apply returns a copy of t with the patch fields replaced. ID and UserID
// are never touched.
func (t Transaction) Apply(p TransactionPatch) (Transaction, error) {
	out := t
	if p.Amount != nil {
		amount, err := ParseAmount(*p.Amount)
		if err != nil {
			return t, err
		}
		out.Amount = amount
	}
	if p.Kind != nil {
		out.Kind = Kind(*p.Kind)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	return out, nil
}

func isAbsent(s *string) bool {
	return s == nil || *s == ""
}
