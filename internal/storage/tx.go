package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/feed"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
)

// sqliteTx implements service.Tx. Changes are collected and published by
// RunInTx once the transaction commits.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
	now     time.Time
	changes []feed.Change
}

func (t *sqliteTx) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getCategory(ctx, t.tx, id)
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getTransaction(ctx, t.tx, id)
}

func (t *sqliteTx) FindPairLegs(ctx context.Context, pairID, excludeID string) ([]model.Transaction, error) {
	if pairID == "" {
		return nil, nil
	}
	return queryTransactions(ctx, t.tx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE pair_id = ? AND id != ?
		ORDER BY date, id`, pairID, excludeID)
}

func (t *sqliteTx) NewTransactionID() string {
	return newID()
}

// Now is fixed for the lifetime of the transaction so both legs of a pair
// share one timestamp.
func (t *sqliteTx) Now() time.Time {
	if t.now.IsZero() {
		t.now = t.storage.now()
	}
	return t.now
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if err := insertTransaction(ctx, t.tx, txn); err != nil {
		return err
	}
	t.changes = append(t.changes, transactionChange(feed.Added, txn))
	return nil
}

func (t *sqliteTx) UpdateCategoryBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := t.storage.updateBalance(ctx, t.tx, id, t.storage.codec.Format(balance), at); err != nil {
		return err
	}

	cat, err := t.storage.getCategory(ctx, t.tx, id)
	if err != nil {
		return err
	}
	t.changes = append(t.changes, categoryChange(feed.Modified, cat))
	return nil
}

// Apply executes the staged operations in order. Deleting a leg that no
// longer exists and creating a category that already exists are not errors.
func (t *sqliteTx) Apply(ctx context.Context, batch *service.Batch) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}

	for _, op := range batch.Ops() {
		switch op.Kind {
		case service.OpPutCategory:
			cat := *op.Category
			if err := validateCategory(&cat); err != nil {
				return err
			}
			existed, err := t.storage.putCategory(ctx, t.tx, &cat, t.Now())
			if err != nil {
				return err
			}
			kind := feed.Added
			if existed {
				kind = feed.Modified
			}
			stored, err := t.storage.getCategory(ctx, t.tx, cat.ID)
			if err != nil {
				return err
			}
			t.changes = append(t.changes, categoryChange(kind, stored))

		case service.OpCreateCategory:
			cat := *op.Category
			if err := validateCategory(&cat); err != nil {
				return err
			}
			inserted, err := t.storage.insertCategory(ctx, t.tx, &cat, t.Now())
			if err != nil {
				return err
			}
			if inserted {
				t.changes = append(t.changes, categoryChange(feed.Added, &cat))
			}

		case service.OpUpdateBalance:
			if err := t.UpdateCategoryBalance(ctx, op.ID, op.Balance, t.Now()); err != nil {
				return err
			}

		case service.OpDeleteTransaction:
			txn, err := getTransaction(ctx, t.tx, op.ID)
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			deleted, err := deleteTransaction(ctx, t.tx, op.ID)
			if err != nil {
				return err
			}
			if deleted {
				t.changes = append(t.changes, transactionChange(feed.Removed, txn))
			}

		default:
			return fmt.Errorf("unknown batch operation %d", op.Kind)
		}
	}
	return nil
}
