/*
Package generic provides the domain-agnostic kernel of the membership engine.

PURPOSE:
  This package holds the types and algorithms that do not care what kind of
  record they operate on: money, billing periods, clocks, error kinds and the
  approval workflow that resolves change-requests against arbitrary entities.
  The membership package builds the domain on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: An exact decimal money value with a currency
  - Identifiers: Type-safe IDs for entities, approvals and actors

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for money
  2. Type Safety: Strong typing for IDs prevents mixing member/approval IDs
  3. Two fraction digits: Amounts entering the system are validated to cents

USAGE:
  due := generic.MustParseAmount("10000.00", "IDR")
  debt := due.Mul(12)
  fmt.Println(debt) // 120000.00 IDR

SEE ALSO:
  - period.go: (year, month) billing periods
  - approval.go: Generic approval workflow
  - errors.go: Error kinds
*/
package generic

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Exact money value
// =============================================================================

// Currency is an ISO 4217 code such as "IDR".
type Currency string

// MoneyScale is the number of fraction digits every amount carries.
const MoneyScale = 2

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewAmount(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

// ParseAmount parses a decimal string. The result is not range checked;
// call Validate for payment input.
func ParseAmount(s string, currency Currency) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, &ValidationError{Field: "amount", Message: fmt.Sprintf("%q is not a decimal number", s)}
	}
	return Amount{Value: d, Currency: currency}, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string, currency Currency) Amount {
	a, err := ParseAmount(s, currency)
	if err != nil {
		panic(err)
	}
	return a
}

// Validate checks that the amount is strictly positive and has at most
// two fraction digits.
func (a Amount) Validate() error {
	if !a.Value.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if !a.Value.Equal(a.Value.Round(MoneyScale)) {
		return &ValidationError{Field: "amount", Message: "must have at most two fraction digits"}
	}
	return nil
}

func (a Amount) Zero() Amount               { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Mul(n int64) Amount         { return Amount{Value: a.Value.Mul(decimal.NewFromInt(n)), Currency: a.Currency} }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) IsPositive() bool           { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool        { return a.Currency == b.Currency && a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool  { return a.Value.GreaterThan(b.Value) }

// Fixed renders the value with exactly two fraction digits.
func (a Amount) Fixed() string { return a.Value.StringFixed(MoneyScale) }

func (a Amount) String() string {
	if a.Currency == "" {
		return a.Fixed()
	}
	return a.Fixed() + " " + string(a.Currency)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies the target of an approval (a member, an institution).
type EntityID string

// ApprovalID identifies an approval record.
type ApprovalID string

// ActorID is the already-authenticated identity performing an operation.
type ActorID string

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}
