package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/notify"
	"github.com/Veraticus/kassa/internal/service"
)

// TransferRequest moves Amount from the source category to the target.
type TransferRequest struct {
	Waybill     *model.Waybill
	Flags       model.TransferFlags
	SourceID    string
	TargetID    string
	Description string
	Amount      decimal.Decimal
}

// Validate checks the request without touching the store.
func (r TransferRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.SourceID) == "":
		return common.NewValidationError("source", "category is required")
	case strings.TrimSpace(r.TargetID) == "":
		return common.NewValidationError("target", "category is required")
	case r.SourceID == r.TargetID:
		return common.NewValidationError("target", "must differ from source")
	case !r.Amount.IsPositive():
		return common.NewValidationError("amount", "must be greater than zero")
	case strings.TrimSpace(r.Description) == "":
		return common.NewValidationError("description", "must not be empty")
	}
	return nil
}

// Transfer debits the source, credits the target and writes both legs in one
// store transaction. Balances are always read from the store, never from the
// caller. A notification is sent after commit; its failure is only logged.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*model.Pair, error) {
	if err := req.Validate(); err != nil {
		l.logger.Warn("Rejected transfer", "error", err)
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	var pair *model.Pair

	err := l.store.RunInTx(ctx, func(tx service.Tx) error {
		source, err := tx.GetCategory(ctx, req.SourceID)
		if err != nil {
			return err
		}
		target, err := tx.GetCategory(ctx, req.TargetID)
		if err != nil {
			return err
		}

		now := tx.Now()
		pairID := tx.NewTransactionID()

		expense := model.Transaction{
			ID:          pairID,
			PairID:      pairID,
			CategoryID:  source.ID,
			Amount:      req.Amount.Neg(),
			Type:        model.TypeExpense,
			FromUser:    source.Title,
			ToUser:      target.Title,
			Description: description,
			Date:        now,
			IsSalary:    req.Flags.IsSalary,
			IsCashless:  req.Flags.IsCashless,
			Waybill:     req.Waybill,
		}
		income := expense
		income.ID = tx.NewTransactionID()
		income.CategoryID = target.ID
		income.Amount = req.Amount
		income.Type = model.TypeIncome

		if err := tx.InsertTransaction(ctx, &expense); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &income); err != nil {
			return err
		}
		if err := tx.UpdateCategoryBalance(ctx, source.ID, source.Balance.Sub(req.Amount), now); err != nil {
			return err
		}
		if err := tx.UpdateCategoryBalance(ctx, target.ID, target.Balance.Add(req.Amount), now); err != nil {
			return err
		}

		pair = &model.Pair{Expense: expense, Income: income}
		return nil
	})
	if err != nil {
		err = classify("transfer", err)
		l.logger.Error("Transfer failed",
			"source", req.SourceID,
			"target", req.TargetID,
			"amount", req.Amount.String(),
			"error", err)
		return nil, err
	}

	l.logger.Info("Transfer committed",
		"pair_id", pair.ID(),
		"source", req.SourceID,
		"target", req.TargetID,
		"amount", req.Amount.String())

	l.dispatch(ctx, notify.NewTransferMessage(pair))
	return pair, nil
}

// classify leaves validation and not found errors alone and marks everything
// else as a store failure.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &common.StoreError{Op: op, Err: err}
	}
	return common.WrapStoreError(op, err)
}
