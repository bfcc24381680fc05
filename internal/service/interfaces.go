// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/feed"
	"github.com/Veraticus/kassa/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
// Results are ordered by date, newest first.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID string
	PairID     string
	Type       model.TransactionType
	Limit      int
	Offset     int
}

// Reader is the read side of the ledger store.
type Reader interface {
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
}

// Store defines the contract for our persistence layer.
type Store interface {
	Reader

	// CreateCategory seeds a category. Balances are otherwise only changed
	// through RunInTx by the ledger engines.
	CreateCategory(ctx context.Context, category *model.Category) error

	// RunInTx runs fn inside one serializable read-modify-write transaction.
	// Write conflicts are retried transparently by re-running fn, so fn must
	// not have side effects outside tx. Either every write of fn commits or none.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// CommitBatch applies a write-only batch atomically.
	CommitBatch(ctx context.Context, batch *Batch) error

	// Subscribe streams the matching documents followed by every committed
	// change to them.
	Subscribe(ctx context.Context, filter feed.Filter) (*feed.Subscription, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside RunInTx.
type Tx interface {
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	// FindPairLegs returns the legs sharing pairID other than excludeID, oldest first.
	FindPairLegs(ctx context.Context, pairID, excludeID string) ([]model.Transaction, error)

	// NewTransactionID generates a fresh leg identifier.
	NewTransactionID() string
	// Now returns the server timestamp for this transaction. It is strictly
	// greater than every timestamp previously handed out by the store.
	Now() time.Time

	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	UpdateCategoryBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error
	Apply(ctx context.Context, batch *Batch) error
}

// OpKind identifies a staged batch operation.
type OpKind int

const (
	// OpPutCategory inserts or replaces a category.
	OpPutCategory OpKind = iota + 1
	// OpUpdateBalance sets a category balance.
	OpUpdateBalance
	// OpDeleteTransaction removes a transaction leg.
	OpDeleteTransaction
	// OpCreateCategory inserts a category unless its ID is already taken.
	OpCreateCategory
)

// BatchOp is one staged write.
type BatchOp struct {
	Category *model.Category
	ID       string
	Balance  decimal.Decimal
	Kind     OpKind
}

// Batch stages writes that are committed together or not at all.
type Batch struct {
	ops []BatchOp
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// PutCategory stages an insert or replace of category.
func (b *Batch) PutCategory(category model.Category) *Batch {
	b.ops = append(b.ops, BatchOp{Kind: OpPutCategory, ID: category.ID, Category: &category})
	return b
}

// CreateCategory stages an insert of category that leaves an existing
// category with the same ID untouched.
func (b *Batch) CreateCategory(category model.Category) *Batch {
	b.ops = append(b.ops, BatchOp{Kind: OpCreateCategory, ID: category.ID, Category: &category})
	return b
}

// UpdateBalance stages a balance update stamped with the commit time.
func (b *Batch) UpdateBalance(categoryID string, balance decimal.Decimal) *Batch {
	b.ops = append(b.ops, BatchOp{Kind: OpUpdateBalance, ID: categoryID, Balance: balance})
	return b
}

// DeleteTransaction stages removal of a leg.
func (b *Batch) DeleteTransaction(id string) *Batch {
	b.ops = append(b.ops, BatchOp{Kind: OpDeleteTransaction, ID: id})
	return b
}

// Ops returns the staged operations in order.
func (b *Batch) Ops() []BatchOp {
	return b.ops
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
