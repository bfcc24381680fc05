// Package testutil provides shared helpers for tests that need a real ledger
// database.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
	"github.com/Veraticus/kassa/internal/storage"
)

// TestDB is a migrated database living in the test's temp dir.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	path    string
}

// SetupTestDB creates a migrated database seeded with cats. The database is
// closed when the test finishes.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.Category("a", "Касса", 1000),
//		testutil.Category("b", "Склад", 500),
//	)
func SetupTestDB(t *testing.T, cats ...model.Category) *TestDB {
	t.Helper()

	// A file database so that concurrent tests exercise real locking.
	path := filepath.Join(t.TempDir(), "kassa.db")
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for i := range cats {
		if err := store.CreateCategory(ctx, &cats[i]); err != nil {
			t.Fatalf("failed to seed category %q: %v", cats[i].Title, err)
		}
	}

	return &TestDB{Storage: store, t: t, path: path}
}

// OpenSession opens a second storage on the same database file, as another
// process would. It has its own connection and competes for the write lock.
func (db *TestDB) OpenSession() *storage.SQLiteStorage {
	db.t.Helper()
	store, err := storage.NewSQLiteStorage(db.path, storage.WithRetry(service.RetryOptions{
		MaxAttempts:  20,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2.0,
	}))
	if err != nil {
		db.t.Fatalf("failed to open second session: %v", err)
	}
	db.t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Category builds a visible general category with a whole balance.
func Category(id, title string, balance int64) model.Category {
	return model.Category{
		ID:        id,
		Title:     title,
		Kind:      model.KindGeneral,
		Balance:   decimal.NewFromInt(balance),
		IsVisible: true,
	}
}

// Balance returns the stored balance of a category or fails the test.
func (db *TestDB) Balance(id string) decimal.Decimal {
	db.t.Helper()
	cat, err := db.Storage.GetCategory(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get category %q: %v", id, err)
	}
	return cat.Balance
}

// Legs returns every leg of a pair.
func (db *TestDB) Legs(pairID string) []model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.ListTransactions(context.Background(), service.TransactionFilter{PairID: pairID})
	if err != nil {
		db.t.Fatalf("failed to list legs of %q: %v", pairID, err)
	}
	return txns
}

// InsertLegs writes legs directly, bypassing the engines. It is meant for
// setting up damaged data.
func (db *TestDB) InsertLegs(legs ...model.Transaction) {
	db.t.Helper()
	ctx := context.Background()
	err := db.Storage.RunInTx(ctx, func(tx service.Tx) error {
		for i := range legs {
			if legs[i].Date.IsZero() {
				legs[i].Date = tx.Now()
			}
			if err := tx.InsertTransaction(ctx, &legs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.t.Fatalf("failed to insert legs: %v", err)
	}
}
