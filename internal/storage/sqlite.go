// Package storage provides the SQLite backed ledger store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/feed"
	"github.com/Veraticus/kassa/internal/money"
	"github.com/Veraticus/kassa/internal/service"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStorage implements service.Store using SQLite.
type SQLiteStorage struct {
	lastStamp time.Time
	db        *sql.DB
	hub       *feed.Hub
	codec     *money.Codec
	clock     func() time.Time
	dbPath    string
	retry     service.RetryOptions
	seq       uint64
	clockMu   sync.Mutex
	seqMu     sync.Mutex
}

// Option customizes a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithCodec sets the codec used to persist balances.
func WithCodec(codec *money.Codec) Option {
	return func(s *SQLiteStorage) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithRetry sets how write conflicts are retried.
func WithRetry(opts service.RetryOptions) Option {
	return func(s *SQLiteStorage) {
		s.retry = opts
	}
}

// WithClock replaces the wall clock used for server timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *SQLiteStorage) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// DefaultRetryOptions retries busy and locked errors a handful of times.
func DefaultRetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN, which makes every
	// read-modify-write serializable across connections and processes.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't benefit from multiple connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		hub:    feed.NewHub(),
		codec:  money.Default,
		clock:  time.Now,
		retry:  DefaultRetryOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Codec returns the codec balances are persisted with.
func (s *SQLiteStorage) Codec() *money.Codec {
	return s.codec
}

// RunInTx runs fn in one immediate transaction, retrying on busy or locked
// errors. Changes are published to subscribers only after a successful commit.
func (s *SQLiteStorage) RunInTx(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: fn", ErrNilParameter)
	}

	var changes []feed.Change
	err := common.WithRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(fmt.Errorf("failed to begin transaction: %w", err))
		}

		stx := &sqliteTx{tx: tx, storage: s}
		if err := fn(stx); err != nil {
			_ = tx.Rollback()
			return classify(err)
		}

		seq, err := s.commit(tx)
		if err != nil {
			_ = tx.Rollback()
			return classify(fmt.Errorf("failed to commit transaction: %w", err))
		}

		changes = stx.changes
		for i := range changes {
			changes[i].Seq = seq
		}
		return nil
	}, s.retry)
	if err != nil {
		return err
	}

	s.hub.Publish(changes...)
	return nil
}

// commit numbers every successful commit. The number is taken under seqMu
// so a snapshot that holds the connection sees exactly the commits counted.
func (s *SQLiteStorage) commit(tx *sql.Tx) (uint64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.seq++
	return s.seq, nil
}

// CommitBatch applies a write-only batch atomically.
func (s *SQLiteStorage) CommitBatch(ctx context.Context, batch *service.Batch) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	return s.RunInTx(ctx, func(tx service.Tx) error {
		return tx.Apply(ctx, batch)
	})
}

// Subscribe streams the documents matching filter and every later committed
// change to them. Only writes made through this storage instance are observed.
func (s *SQLiteStorage) Subscribe(ctx context.Context, filter feed.Filter) (*feed.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var snapshot feed.SnapshotFunc
	switch filter.Collection {
	case feed.Categories:
		snapshot = s.categorySnapshot(filter)
	case feed.Transactions:
		snapshot = s.transactionSnapshot(filter)
	default:
		return nil, fmt.Errorf("%w: unknown collection %q", ErrInvalidFilter, filter.Collection)
	}

	return s.hub.Subscribe(ctx, filter, snapshot)
}

// readSnapshot runs load in its own transaction and returns the commit
// sequence the result reflects. While the transaction holds the only
// connection no other commit of this storage can complete.
func (s *SQLiteStorage) readSnapshot(ctx context.Context, load func(q querier) ([]feed.Change, error)) ([]feed.Change, uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	s.seqMu.Lock()
	seq := s.seq
	s.seqMu.Unlock()

	changes, err := load(tx)
	if err != nil {
		return nil, 0, err
	}
	return changes, seq, nil
}

func (s *SQLiteStorage) categorySnapshot(filter feed.Filter) feed.SnapshotFunc {
	return func(ctx context.Context) ([]feed.Change, uint64, error) {
		return s.readSnapshot(ctx, func(q querier) ([]feed.Change, error) {
			categories, err := s.listCategories(ctx, q)
			if err != nil {
				return nil, err
			}
			var changes []feed.Change
			for i := range categories {
				c := categoryChange(feed.Added, &categories[i])
				if filter.Matches(c) {
					changes = append(changes, c)
				}
			}
			return changes, nil
		})
	}
}

func (s *SQLiteStorage) transactionSnapshot(filter feed.Filter) feed.SnapshotFunc {
	return func(ctx context.Context) ([]feed.Change, uint64, error) {
		return s.readSnapshot(ctx, func(q querier) ([]feed.Change, error) {
			txns, err := listTransactions(ctx, q, service.TransactionFilter{CategoryID: filter.CategoryID})
			if err != nil {
				return nil, err
			}
			changes := make([]feed.Change, 0, len(txns))
			for i := range txns {
				changes = append(changes, transactionChange(feed.Added, &txns[i]))
			}
			return changes, nil
		})
	}
}

// now hands out strictly increasing server timestamps.
func (s *SQLiteStorage) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.clock().Round(0).UTC()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = t
	return t
}

func newID() string {
	return uuid.NewString()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// classify marks SQLite busy and locked errors as retryable.
func classify(err error) error {
	if isBusy(err) {
		return common.Transient(err)
	}
	return common.Permanent(err)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
