package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/feed"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const categoryColumns = `id, title, kind, amount, row_index, color, icon, is_visible, created_at, updated_at`

// GetCategory returns a category by ID or a NotFoundError.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getCategory(ctx, s.db, id)
}

// ListCategories returns every category ordered by row, then title.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	categories, err := s.listCategories(ctx, s.db)
	if err != nil {
		return nil, err
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// CreateCategory inserts a new category. A missing ID is generated and a
// missing kind defaults to general.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if category.ID == "" {
		category.ID = newID()
	}
	if category.Kind == "" {
		category.Kind = model.KindGeneral
	}
	if err := validateCategory(category); err != nil {
		return err
	}

	return s.RunInTx(ctx, func(tx service.Tx) error {
		_, err := tx.GetCategory(ctx, category.ID)
		if err == nil {
			return common.NewValidationError("id", fmt.Sprintf("category %q already exists", category.ID))
		}
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return tx.Apply(ctx, service.NewBatch().PutCategory(*category))
	})
}

func (s *SQLiteStorage) listCategories(ctx context.Context, q querier) ([]model.Category, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		ORDER BY row_index, title`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		cat, err := s.scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

func (s *SQLiteStorage) getCategory(ctx context.Context, q querier, id string) (*model.Category, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE id = ?`, id)

	cat, err := s.scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("category", id)
	}
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// putCategory inserts or replaces a category and reports whether it existed.
func (s *SQLiteStorage) putCategory(ctx context.Context, q querier, category *model.Category, at time.Time) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, category.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing category: %w", err)
	}

	if category.CreatedAt.IsZero() {
		category.CreatedAt = at
	}
	category.UpdatedAt = at

	_, err = q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			amount = excluded.amount,
			row_index = excluded.row_index,
			color = excluded.color,
			icon = excluded.icon,
			is_visible = excluded.is_visible,
			updated_at = excluded.updated_at`,
		category.ID,
		category.Title,
		string(category.Kind),
		s.codec.Format(category.Balance),
		category.Row,
		category.Color,
		category.Icon,
		category.IsVisible,
		formatTime(category.CreatedAt),
		formatTime(category.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save category %q: %w", category.ID, err)
	}

	return exists > 0, nil
}

// insertCategory adds category only if its ID is free and reports whether a
// row was written. An existing category, balance included, is left as is.
func (s *SQLiteStorage) insertCategory(ctx context.Context, q querier, category *model.Category, at time.Time) (bool, error) {
	if category.CreatedAt.IsZero() {
		category.CreatedAt = at
	}
	category.UpdatedAt = at

	result, err := q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		category.ID,
		category.Title,
		string(category.Kind),
		s.codec.Format(category.Balance),
		category.Row,
		category.Color,
		category.Icon,
		category.IsVisible,
		formatTime(category.CreatedAt),
		formatTime(category.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert category %q: %w", category.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLiteStorage) updateBalance(ctx context.Context, q querier, id string, balance string, at time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE categories
		SET amount = ?, updated_at = ?
		WHERE id = ?`, balance, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update balance of category %q: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return common.NewNotFoundError("category", id)
	}
	return nil
}

func (s *SQLiteStorage) scanCategory(row rowScanner) (*model.Category, error) {
	var (
		cat                  model.Category
		kind, amount         string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&cat.ID, &cat.Title, &kind, &amount, &cat.Row,
		&cat.Color, &cat.Icon, &cat.IsVisible, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}

	cat.Kind = model.CategoryKind(kind)
	if cat.Balance, err = s.codec.Parse(amount); err != nil {
		return nil, fmt.Errorf("category %q has unreadable balance: %w", cat.ID, err)
	}
	if cat.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if cat.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &cat, nil
}

func categoryChange(kind feed.ChangeKind, cat *model.Category) feed.Change {
	c := *cat
	return feed.Change{
		Kind:       kind,
		Collection: feed.Categories,
		ID:         c.ID,
		Category:   &c,
	}
}
