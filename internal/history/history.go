// Package history serves paged, cached views of a category's legs.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/cache"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/feed"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
)

// Defaults.
const (
	DefaultPageSize  = 30
	DefaultCacheSize = 100
	DefaultCacheTTL  = 5 * time.Minute
)

// Query selects a page of a category's history.
type Query struct {
	Start      *time.Time
	End        *time.Time
	CategoryID string
	// Type restricts legs to income or expense. Empty means both.
	Type model.TransactionType
	// Page is zero based.
	Page int
}

func (q Query) key() string {
	key := q.CategoryID + "|" + string(q.Type) + "|" + strconv.Itoa(q.Page)
	if q.Start != nil {
		key += "|s" + strconv.FormatInt(q.Start.UnixNano(), 10)
	}
	if q.End != nil {
		key += "|e" + strconv.FormatInt(q.End.UnixNano(), 10)
	}
	return key
}

// Totals sums leg magnitudes over every leg matching a query.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	// Salary covers legs flagged as salary.
	Salary decimal.Decimal
	// Warehouse covers legs carrying a waybill.
	Warehouse decimal.Decimal
}

// Add accounts for one leg.
func (t *Totals) Add(txn *model.Transaction) {
	amount := txn.Magnitude()
	if txn.IsSalary != nil && *txn.IsSalary {
		t.Salary = t.Salary.Add(amount)
	}
	if txn.Waybill != nil && txn.Waybill.Number != "" {
		t.Warehouse = t.Warehouse.Add(amount)
	}
	if txn.Type == model.TypeIncome {
		t.Income = t.Income.Add(amount)
	} else {
		t.Expense = t.Expense.Add(amount)
	}
}

// Page is one page of history plus totals over the whole selection.
type Page struct {
	Transactions []model.Transaction
	Totals       Totals
	Page         int
	HasMore      bool
}

// Service reads history through a TTL cache. The cache is never consulted by
// the ledger engines.
type Service struct {
	reader service.Reader
	pages  *cache.LRUCache[*Page]
	// generations counts invalidations per category. A page read before an
	// invalidation must not be cached after it.
	generations map[string]uint64
	pageSize    int
	mu          sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets the number of legs per page.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithCache replaces the page cache.
func WithCache(c *cache.LRUCache[*Page]) Option {
	return func(s *Service) {
		if c != nil {
			s.pages = c
		}
	}
}

// New creates a history service.
func New(reader service.Reader, opts ...Option) *Service {
	s := &Service{
		reader:      reader,
		generations: make(map[string]uint64),
		pageSize:    DefaultPageSize,
		pages:    cache.NewLRUCache[*Page](DefaultCacheSize, DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the page cache so it can be registered with a cache.Manager.
func (s *Service) Cache() *cache.LRUCache[*Page] {
	return s.pages
}

// Get returns one page of history.
func (s *Service) Get(ctx context.Context, q Query) (*Page, error) {
	if q.CategoryID == "" {
		return nil, common.NewValidationError("category", "category is required")
	}
	if q.Type != "" && !q.Type.Valid() {
		return nil, common.NewValidationError("type", fmt.Sprintf("unknown type %q", q.Type))
	}
	if q.Page < 0 {
		return nil, common.NewValidationError("page", "must not be negative")
	}

	key := q.key()
	if page, ok := s.pages.Get(key); ok {
		return page, nil
	}
	gen := s.generation(q.CategoryID)

	txns, err := s.reader.ListTransactions(ctx, service.TransactionFilter{
		CategoryID: q.CategoryID,
		Type:       q.Type,
		StartDate:  q.Start,
		EndDate:    q.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %q: %w", q.CategoryID, err)
	}

	page := &Page{Page: q.Page}
	for i := range txns {
		page.Totals.Add(&txns[i])
	}

	from := min(q.Page*s.pageSize, len(txns))
	to := min(from+s.pageSize, len(txns))
	page.Transactions = txns[from:to]
	page.HasMore = to < len(txns)

	s.mu.Lock()
	if s.generations[q.CategoryID] == gen {
		s.pages.Set(key, page)
	}
	s.mu.Unlock()
	return page, nil
}

func (s *Service) generation(categoryID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[categoryID]
}

// Invalidate drops every cached page of a category.
func (s *Service) Invalidate(categoryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generations[categoryID]++
	if n := s.pages.DeletePrefix(categoryID + "|"); n > 0 {
		slog.Debug("invalidated history pages", "category_id", categoryID, "count", n)
	}
}

// Subscriber is the part of the store Watch needs.
type Subscriber interface {
	Subscribe(ctx context.Context, filter feed.Filter) (*feed.Subscription, error)
}

// Watch invalidates cached pages whenever a leg of their category changes.
// The subscription is registered before Watch returns; the returned stop
// function ends it and waits for the watcher to exit.
func (s *Service) Watch(ctx context.Context, store Subscriber) (stop func(), err error) {
	sub, err := store.Subscribe(ctx, feed.Filter{Collection: feed.Transactions})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to transactions: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for change := range sub.Changes() {
			if change.Transaction != nil {
				s.Invalidate(change.Transaction.CategoryID)
			}
		}
	}()

	return func() {
		sub.Close()
		<-done
	}, nil
}
