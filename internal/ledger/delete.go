package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
)

// DeleteResult reports what a deletion removed.
type DeleteResult struct {
	PairID string
	// Deleted lists removed leg IDs, counterpart first.
	Deleted []string
	// Reversed lists the categories whose balance was reversed.
	Reversed         []string
	CounterpartFound bool
}

// DeleteTransaction removes a leg and its counterpart and reverses both
// category balances in one store transaction. Either leg of a pair may be
// passed. A leg whose counterpart is gone is still removed and only its own
// category is reversed.
func (l *Ledger) DeleteTransaction(ctx context.Context, id string) (*DeleteResult, error) {
	if strings.TrimSpace(id) == "" {
		err := common.NewValidationError("id", "transaction id is required")
		l.logger.Warn("Rejected deletion", "error", err)
		return nil, err
	}

	var result *DeleteResult
	err := l.store.RunInTx(ctx, func(tx service.Tx) error {
		target, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}

		res := &DeleteResult{PairID: target.PairID}
		legs := []*model.Transaction{target}

		matches, err := tx.FindPairLegs(ctx, target.PairID, target.ID)
		if err != nil {
			return err
		}
		if len(matches) > 1 {
			ids := make([]string, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			l.logger.Warn("Multiple counterparts found, using the oldest",
				"error", common.ErrIntegrity,
				"transaction_id", target.ID,
				"pair_id", target.PairID,
				"matches", ids)
		}
		if len(matches) > 0 {
			res.CounterpartFound = true
			legs = append(legs, &matches[0])
		}

		reversal := newReversal()
		for _, leg := range legs {
			if err := reversal.add(ctx, tx, leg); err != nil {
				return err
			}
		}
		for _, skipped := range reversal.missing {
			l.logger.Warn("Owning category missing, balance not reversed",
				"transaction_id", id,
				"category_id", skipped)
		}

		batch := service.NewBatch()
		for _, categoryID := range reversal.order {
			batch.UpdateBalance(categoryID, reversal.balances[categoryID])
		}
		for i := len(legs) - 1; i >= 0; i-- {
			batch.DeleteTransaction(legs[i].ID)
			res.Deleted = append(res.Deleted, legs[i].ID)
		}
		res.Reversed = reversal.order

		if err := tx.Apply(ctx, batch); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		err = classify("delete transaction", err)
		l.logger.Error("Deletion failed", "transaction_id", id, "error", err)
		return nil, err
	}

	if !result.CounterpartFound {
		l.logger.Warn("Deleted transaction without counterpart",
			"transaction_id", id,
			"pair_id", result.PairID)
	}
	l.logger.Info("Transaction deleted",
		"transaction_id", id,
		"pair_id", result.PairID,
		"deleted", result.Deleted)

	return result, nil
}

// reversal accumulates balance reversals so that legs sharing a category
// compose instead of overwriting each other.
type reversal struct {
	balances map[string]decimal.Decimal
	order    []string
	missing  []string
}

func newReversal() *reversal {
	return &reversal{balances: make(map[string]decimal.Decimal)}
}

func (r *reversal) add(ctx context.Context, tx service.Tx, leg *model.Transaction) error {
	current, ok := r.balances[leg.CategoryID]
	if !ok {
		cat, err := tx.GetCategory(ctx, leg.CategoryID)
		if errors.Is(err, common.ErrNotFound) {
			r.missing = append(r.missing, leg.CategoryID)
			return nil
		}
		if err != nil {
			return err
		}
		current = cat.Balance
		r.order = append(r.order, leg.CategoryID)
	}
	r.balances[leg.CategoryID] = leg.BalanceReversal(current)
	return nil
}
