package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/feed"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
)

const transactionColumns = `id, pair_id, category_id, amount, type, from_user, to_user, description,
	date, is_salary, is_cashless, waybill_number, waybill_data`

// GetTransaction retrieves a single leg by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getTransaction(ctx, s.db, id)
}

// ListTransactions returns legs matching filter, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	txns, err := listTransactions(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	slog.Debug("retrieved transactions", "count", len(txns), "category", filter.CategoryID)
	return txns, nil
}

func listTransactions(ctx context.Context, q querier, filter service.TransactionFilter) ([]model.Transaction, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, ErrInvalidDateRange
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, filter.Type)
	}

	var (
		where []string
		args  []any
	)
	if filter.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.PairID != "" {
		where = append(where, "pair_id = ?")
		args = append(args, filter.PairID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, formatTime(*filter.EndDate))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return queryTransactions(ctx, q, query, args...)
}

func getTransaction(ctx context.Context, q querier, id string) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

func insertTransaction(ctx context.Context, q querier, txn *model.Transaction) error {
	var (
		waybillNumber sql.NullString
		waybillData   sql.NullString
	)
	if txn.Waybill != nil {
		waybillNumber = sql.NullString{String: txn.Waybill.Number, Valid: true}
		if len(txn.Waybill.Data) > 0 {
			waybillData = sql.NullString{String: string(txn.Waybill.Data), Valid: true}
		}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.PairID,
		txn.CategoryID,
		txn.Amount.String(),
		string(txn.Type),
		txn.FromUser,
		txn.ToUser,
		txn.Description,
		formatTime(txn.Date),
		nullBool(txn.IsSalary),
		nullBool(txn.IsCashless),
		waybillNumber,
		waybillData,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %q: %w", txn.ID, err)
	}
	return nil
}

func deleteTransaction(ctx context.Context, q querier, id string) (bool, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction %q: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                    model.Transaction
		amount, txType, date   string
		isSalary, isCashless   sql.NullBool
		waybillNum, waybillRaw sql.NullString
	)
	err := row.Scan(
		&txn.ID, &txn.PairID, &txn.CategoryID, &amount, &txType,
		&txn.FromUser, &txn.ToUser, &txn.Description, &date,
		&isSalary, &isCashless, &waybillNum, &waybillRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Type = model.TransactionType(txType)
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %q has unreadable amount: %w", txn.ID, err)
	}
	if txn.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if isSalary.Valid {
		v := isSalary.Bool
		txn.IsSalary = &v
	}
	if isCashless.Valid {
		v := isCashless.Bool
		txn.IsCashless = &v
	}
	if waybillNum.Valid {
		txn.Waybill = &model.Waybill{Number: waybillNum.String}
		if waybillRaw.Valid {
			txn.Waybill.Data = []byte(waybillRaw.String)
		}
	}

	return &txn, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func transactionChange(kind feed.ChangeKind, txn *model.Transaction) feed.Change {
	t := *txn
	return feed.Change{
		Kind:        kind,
		Collection:  feed.Transactions,
		ID:          t.ID,
		Transaction: &t,
	}
}
