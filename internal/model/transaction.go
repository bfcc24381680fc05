package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the authoritative direction of a leg.
type TransactionType string

const (
	// TypeExpense marks the debit leg of a pair. Its amount is negative.
	TypeExpense TransactionType = "expense"
	// TypeIncome marks the credit leg of a pair. Its amount is positive.
	TypeIncome TransactionType = "income"
)

// Valid reports whether t is expense or income.
func (t TransactionType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// Waybill is an optional document reference attached to both legs of a transfer.
// Data is opaque to the ledger.
type Waybill struct {
	Number string
	Data   json.RawMessage
}

// Transaction is one leg of a transfer pair. Both legs of a pair carry the same
// PairID, which is the ID of the expense leg.
type Transaction struct {
	Date        time.Time
	IsSalary    *bool
	IsCashless  *bool
	Waybill     *Waybill
	ID          string
	PairID      string
	CategoryID  string
	Type        TransactionType
	FromUser    string
	ToUser      string
	Description string
	Amount      decimal.Decimal
}

// IsExpense reports whether t is the debit leg.
func (t *Transaction) IsExpense() bool {
	return t.Type == TypeExpense
}

// Magnitude returns the unsigned amount of the leg.
func (t *Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// BalanceReversal returns the balance of the owning category after this leg is
// removed. Expense legs give their magnitude back; income legs take it away.
func (t *Transaction) BalanceReversal(current decimal.Decimal) decimal.Decimal {
	if t.IsExpense() {
		return current.Add(t.Magnitude())
	}
	return current.Sub(t.Amount)
}

// TransferFlags are optional classification flags. A nil field is not stored.
type TransferFlags struct {
	IsSalary   *bool
	IsCashless *bool
}

// Pair is the result of a committed transfer.
type Pair struct {
	Expense Transaction
	Income  Transaction
}

// ID returns the identifier shared by both legs.
func (p Pair) ID() string {
	return p.Expense.PairID
}
