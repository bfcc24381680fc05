// Package model defines the ledger's domain types.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryKind tags categories that need special handling. Display titles are
// user editable and must never be used to identify a category's role.
type CategoryKind string

const (
	// KindGeneral is the default for categories without a special role.
	KindGeneral CategoryKind = "general"
	// KindCashbox represents a physical cash box or bank account.
	KindCashbox CategoryKind = "cashbox"
	// KindStaff represents an employee account.
	KindStaff CategoryKind = "staff"
	// KindClient represents a customer account.
	KindClient CategoryKind = "client"
	// KindWarehouse represents the warehouse wallet.
	KindWarehouse CategoryKind = "warehouse"
	// KindSalary represents the payroll wallet.
	KindSalary CategoryKind = "salary"
)

// CategoryKinds lists every known kind in display order.
var CategoryKinds = []CategoryKind{KindGeneral, KindCashbox, KindStaff, KindClient, KindWarehouse, KindSalary}

// Valid reports whether k is one of the known kinds.
func (k CategoryKind) Valid() bool {
	switch k {
	case KindGeneral, KindCashbox, KindStaff, KindClient, KindWarehouse, KindSalary:
		return true
	}
	return false
}

// Category is a balance holding wallet.
type Category struct {
	UpdatedAt time.Time
	CreatedAt time.Time
	ID        string
	Title     string
	Kind      CategoryKind
	Color     string
	Icon      string
	Balance   decimal.Decimal
	Row       int
	IsVisible bool
}
