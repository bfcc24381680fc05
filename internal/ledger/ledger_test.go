package ledger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/money"
	"github.com/Veraticus/kassa/internal/notify"
	"github.com/Veraticus/kassa/internal/service"
	"github.com/Veraticus/kassa/internal/testutil"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func setup(t *testing.T, opts ...Option) (*Ledger, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t,
		testutil.Category("a", "Касса", 1000),
		testutil.Category("b", "Склад", 500),
		testutil.Category("c", "Банк", 300),
		testutil.Category("d", "ЗП Сот.", 0),
	)
	l := New(db.Storage, opts...)
	t.Cleanup(l.Wait)
	return l, db
}

func rent(amount int64) TransferRequest {
	return TransferRequest{SourceID: "a", TargetID: "b", Amount: dec(amount), Description: "rent"}
}

func TestTransfer_RentScenario(t *testing.T) {
	l, db := setup(t)
	ctx := context.Background()

	pair, err := l.Transfer(ctx, rent(200))
	require.NoError(t, err)

	assert.Equal(t, "800 ₸", money.Format(db.Balance("a")))
	assert.Equal(t, "700 ₸", money.Format(db.Balance("b")))

	legs := db.Legs(pair.ID())
	require.Len(t, legs, 2)

	byType := map[model.TransactionType]model.Transaction{}
	for _, leg := range legs {
		byType[leg.Type] = leg
	}
	expense, income := byType[model.TypeExpense], byType[model.TypeIncome]

	assert.Equal(t, "a", expense.CategoryID)
	assert.True(t, expense.Amount.Equal(dec(-200)))
	assert.Equal(t, "b", income.CategoryID)
	assert.True(t, income.Amount.Equal(dec(200)))

	assert.Equal(t, expense.ID, expense.PairID)
	assert.Equal(t, expense.ID, income.PairID)
	assert.NotEqual(t, expense.ID, income.ID)
	assert.True(t, expense.Date.Equal(income.Date))

	for _, leg := range legs {
		assert.Equal(t, "Касса", leg.FromUser)
		assert.Equal(t, "Склад", leg.ToUser)
		assert.Equal(t, "rent", leg.Description)
		assert.Nil(t, leg.IsSalary)
		assert.Nil(t, leg.IsCashless)
	}
}

func TestTransfer_ThenDeleteIsNoOp(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		deleteBy model.TransactionType
	}{
		{name: "delete expense leg", amount: 200, deleteBy: model.TypeExpense},
		{name: "delete income leg", amount: 200, deleteBy: model.TypeIncome},
		{name: "overdraw source", amount: 5000, deleteBy: model.TypeExpense},
		{name: "one unit", amount: 1, deleteBy: model.TypeIncome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, db := setup(t)
			ctx := context.Background()

			pair, err := l.Transfer(ctx, rent(tt.amount))
			require.NoError(t, err)
			assert.True(t, db.Balance("a").Equal(dec(1000-tt.amount)))
			assert.True(t, db.Balance("b").Equal(dec(500+tt.amount)))

			id := pair.Expense.ID
			if tt.deleteBy == model.TypeIncome {
				id = pair.Income.ID
			}
			res, err := l.DeleteTransaction(ctx, id)
			require.NoError(t, err)

			assert.True(t, res.CounterpartFound)
			assert.Len(t, res.Deleted, 2)
			assert.Equal(t, "1 000 ₸", money.Format(db.Balance("a")))
			assert.Equal(t, "500 ₸", money.Format(db.Balance("b")))
			assert.Empty(t, db.Legs(pair.ID()))
		})
	}
}

func TestTransfer_ValidationPerformsNoWrites(t *testing.T) {
	tests := []struct {
		req   TransferRequest
		name  string
		field string
	}{
		{name: "zero amount", req: rent(0), field: "amount"},
		{name: "negative amount", req: rent(-50), field: "amount"},
		{
			name:  "blank description",
			req:   TransferRequest{SourceID: "a", TargetID: "b", Amount: dec(10), Description: "   "},
			field: "description",
		},
		{
			name:  "same category",
			req:   TransferRequest{SourceID: "a", TargetID: "a", Amount: dec(10), Description: "x"},
			field: "target",
		},
		{
			name:  "missing source",
			req:   TransferRequest{TargetID: "b", Amount: dec(10), Description: "x"},
			field: "source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, db := setup(t)

			_, err := l.Transfer(context.Background(), tt.req)
			require.ErrorIs(t, err, common.ErrValidation)

			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			assertUntouched(t, db)
		})
	}
}

func TestTransfer_MissingCategory(t *testing.T) {
	for _, req := range []TransferRequest{
		{SourceID: "ghost", TargetID: "b", Amount: dec(10), Description: "x"},
		{SourceID: "a", TargetID: "ghost", Amount: dec(10), Description: "x"},
	} {
		l, db := setup(t)

		_, err := l.Transfer(context.Background(), req)
		require.ErrorIs(t, err, common.ErrNotFound)
		assert.NotErrorIs(t, err, common.ErrStore)

		assertUntouched(t, db)
	}
}

func TestTransfer_FlagsAndWaybillOnBothLegs(t *testing.T) {
	l, db := setup(t)
	salary := true

	req := rent(100)
	req.Flags = model.TransferFlags{IsSalary: &salary}
	req.Waybill = &model.Waybill{Number: "WB-12", Data: []byte(`{"lines":1}`)}

	pair, err := l.Transfer(context.Background(), req)
	require.NoError(t, err)

	for _, leg := range db.Legs(pair.ID()) {
		require.NotNil(t, leg.IsSalary)
		assert.True(t, *leg.IsSalary)
		assert.Nil(t, leg.IsCashless)
		require.NotNil(t, leg.Waybill)
		assert.Equal(t, "WB-12", leg.Waybill.Number)
	}
}

func TestTransfer_FractionalAmount(t *testing.T) {
	l, db := setup(t)

	pair, err := l.Transfer(context.Background(), rent(0).withAmount("199.6"))
	require.NoError(t, err)

	assert.True(t, pair.Income.Amount.Equal(decimal.RequireFromString("199.6")))
	assert.Equal(t, "800 ₸", money.Format(db.Balance("a")))
	assert.Equal(t, "700 ₸", money.Format(db.Balance("b")))
}

func (r TransferRequest) withAmount(s string) TransferRequest {
	r.Amount = decimal.RequireFromString(s)
	return r
}

func TestTransfer_NotificationSent(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []notify.Message
	)
	n := notify.NotifierFunc(func(_ context.Context, msg notify.Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, msg)
		return nil
	})
	l, _ := setup(t, WithNotifier(n))

	pair, err := l.Transfer(context.Background(), rent(200))
	require.NoError(t, err)
	l.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Equal(t, pair.ID(), sent[0].PairID)
	assert.Equal(t, "Касса", sent[0].From)
	assert.Equal(t, "Склад", sent[0].To)
	assert.True(t, sent[0].Amount.Equal(dec(200)))
}

func TestTransfer_NotificationFailureDoesNotFail(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	failing := notify.NotifierFunc(func(ctx context.Context, _ notify.Message) error {
		<-ctx.Done()
		return errors.New("telegram down")
	})
	l, db := setup(t,
		WithNotifier(failing),
		WithNotifyTimeout(10*time.Millisecond),
		WithLogger(logger))

	_, err := l.Transfer(context.Background(), rent(200))
	require.NoError(t, err)
	l.Wait()

	assert.True(t, db.Balance("a").Equal(dec(800)))
	assert.Contains(t, logs.String(), "Failed to send transfer notification")
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	l, _ := setup(t)

	_, err := l.DeleteTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = l.DeleteTransaction(context.Background(), " ")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDeleteTransaction_OrphanLeg(t *testing.T) {
	l, db := setup(t)
	db.InsertLegs(model.Transaction{
		ID: "orphan", PairID: "gone", CategoryID: "a", Type: model.TypeExpense,
		Amount: dec(-50), FromUser: "Касса", ToUser: "Склад", Description: "old",
	})

	res, err := l.DeleteTransaction(context.Background(), "orphan")
	require.NoError(t, err)

	assert.False(t, res.CounterpartFound)
	assert.Equal(t, []string{"orphan"}, res.Deleted)
	assert.True(t, db.Balance("a").Equal(dec(1050)))
	assert.True(t, db.Balance("b").Equal(dec(500)))
}

func TestDeleteTransaction_MultipleCounterparts(t *testing.T) {
	var logs bytes.Buffer
	l, db := setup(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.InsertLegs(
		model.Transaction{
			ID: "e", PairID: "e", CategoryID: "a", Type: model.TypeExpense,
			Amount: dec(-100), FromUser: "Касса", ToUser: "Склад", Description: "dup", Date: base,
		},
		model.Transaction{
			ID: "i1", PairID: "e", CategoryID: "b", Type: model.TypeIncome,
			Amount: dec(100), FromUser: "Касса", ToUser: "Склад", Description: "dup", Date: base,
		},
		model.Transaction{
			ID: "i2", PairID: "e", CategoryID: "c", Type: model.TypeIncome,
			Amount: dec(100), FromUser: "Касса", ToUser: "Банк", Description: "dup", Date: base.Add(time.Minute),
		},
	)

	res, err := l.DeleteTransaction(context.Background(), "e")
	require.NoError(t, err)

	assert.Equal(t, []string{"i1", "e"}, res.Deleted)
	assert.Contains(t, logs.String(), "Multiple counterparts found")
	assert.Contains(t, logs.String(), common.ErrIntegrity.Error())

	assert.True(t, db.Balance("a").Equal(dec(1100)))
	assert.True(t, db.Balance("b").Equal(dec(400)))
	assert.True(t, db.Balance("c").Equal(dec(300)))

	remaining := db.Legs("e")
	require.Len(t, remaining, 1)
	assert.Equal(t, "i2", remaining[0].ID)
}

func TestDeleteTransaction_LegsInSameCategoryCompose(t *testing.T) {
	l, db := setup(t)
	db.InsertLegs(
		model.Transaction{
			ID: "e", PairID: "e", CategoryID: "a", Type: model.TypeExpense,
			Amount: dec(-30), FromUser: "Касса", ToUser: "Касса", Description: "legacy",
		},
		model.Transaction{
			ID: "i", PairID: "e", CategoryID: "a", Type: model.TypeIncome,
			Amount: dec(30), FromUser: "Касса", ToUser: "Касса", Description: "legacy",
		},
	)

	res, err := l.DeleteTransaction(context.Background(), "i")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Reversed)
	assert.True(t, db.Balance("a").Equal(dec(1000)))
}

func TestConcurrentTransfers_Disjoint(t *testing.T) {
	l, db := setup(t)
	ctx := context.Background()

	g, ctx := errgroup.WithContext(ctx)
	for range 10 {
		g.Go(func() error {
			_, err := l.Transfer(ctx, rent(10))
			return err
		})
		g.Go(func() error {
			_, err := l.Transfer(ctx, TransferRequest{SourceID: "c", TargetID: "d", Amount: dec(5), Description: "pay"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, db.Balance("a").Equal(dec(900)))
	assert.True(t, db.Balance("b").Equal(dec(600)))
	assert.True(t, db.Balance("c").Equal(dec(250)))
	assert.True(t, db.Balance("d").Equal(dec(50)))
}

func TestConcurrentTransfers_Overlapping(t *testing.T) {
	l, db := setup(t)
	ctx := context.Background()

	g, ctx := errgroup.WithContext(ctx)
	for range 10 {
		g.Go(func() error {
			_, err := l.Transfer(ctx, rent(10))
			return err
		})
		g.Go(func() error {
			_, err := l.Transfer(ctx, TransferRequest{SourceID: "b", TargetID: "c", Amount: dec(3), Description: "x"})
			return err
		})
		g.Go(func() error {
			_, err := l.Transfer(ctx, TransferRequest{SourceID: "c", TargetID: "a", Amount: dec(1), Description: "y"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, db.Balance("a").Equal(dec(1000-100+10)))
	assert.True(t, db.Balance("b").Equal(dec(500+100-30)))
	assert.True(t, db.Balance("c").Equal(dec(300+30-10)))
	assertBalancesMatchLegs(t, db, map[string]int64{"a": 1000, "b": 500, "c": 300, "d": 0})
}

func TestConcurrentTransferAndDelete(t *testing.T) {
	l, db := setup(t)
	ctx := context.Background()

	first, err := l.Transfer(ctx, rent(100))
	require.NoError(t, err)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := l.DeleteTransaction(gctx, first.Income.ID)
		return err
	})
	for range 5 {
		g.Go(func() error {
			_, err := l.Transfer(gctx, rent(20))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, db.Balance("a").Equal(dec(900)))
	assert.True(t, db.Balance("b").Equal(dec(600)))
	assert.Empty(t, db.Legs(first.ID()))
	assertBalancesMatchLegs(t, db, map[string]int64{"a": 1000, "b": 500, "c": 300, "d": 0})
}

func TestConcurrentTransfers_SeparateSessions(t *testing.T) {
	first, db := setup(t)
	second := New(db.OpenSession())
	t.Cleanup(second.Wait)

	g, ctx := errgroup.WithContext(context.Background())
	for range 25 {
		g.Go(func() error {
			_, err := first.Transfer(ctx, rent(10))
			return err
		})
		g.Go(func() error {
			_, err := second.Transfer(ctx, TransferRequest{SourceID: "b", TargetID: "a", Amount: dec(15), Description: "refund"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, db.Balance("a").Equal(dec(1000-250+375)), "a = %s", db.Balance("a"))
	assert.True(t, db.Balance("b").Equal(dec(500+250-375)), "b = %s", db.Balance("b"))
	assertBalancesMatchLegs(t, db, map[string]int64{"a": 1000, "b": 500, "c": 300, "d": 0})
}

func TestConcurrentTransferAndDelete_SeparateSessions(t *testing.T) {
	first, db := setup(t)
	second := New(db.OpenSession())
	t.Cleanup(second.Wait)

	var pairs []*model.Pair
	for range 5 {
		pair, err := first.Transfer(context.Background(), rent(100))
		require.NoError(t, err)
		pairs = append(pairs, pair)
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, pair := range pairs {
		g.Go(func() error {
			_, err := second.DeleteTransaction(ctx, pair.Income.ID)
			return err
		})
		g.Go(func() error {
			_, err := first.Transfer(ctx, TransferRequest{SourceID: "b", TargetID: "c", Amount: dec(20), Description: "x"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.True(t, db.Balance("a").Equal(dec(1000)))
	assert.True(t, db.Balance("b").Equal(dec(500-100)))
	assert.True(t, db.Balance("c").Equal(dec(300+100)))
	assertBalancesMatchLegs(t, db, map[string]int64{"a": 1000, "b": 500, "c": 300, "d": 0})
}

func assertUntouched(t *testing.T, db *testutil.TestDB) {
	t.Helper()
	assert.True(t, db.Balance("a").Equal(dec(1000)))
	assert.True(t, db.Balance("b").Equal(dec(500)))

	txns, err := db.Storage.ListTransactions(context.Background(), service.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

// assertBalancesMatchLegs checks that each balance equals its opening value
// plus the sum of the legs still referencing it.
func assertBalancesMatchLegs(t *testing.T, db *testutil.TestDB, opening map[string]int64) {
	t.Helper()
	for id, open := range opening {
		txns, err := db.Storage.ListTransactions(context.Background(), service.TransactionFilter{CategoryID: id})
		require.NoError(t, err)

		sum := dec(open)
		for _, txn := range txns {
			sum = sum.Add(txn.Amount)
		}
		assert.True(t, db.Balance(id).Equal(sum), "category %s: balance %s, legs %s", id, db.Balance(id), sum)
	}
}
