package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/kassa/internal/amqp"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/money"
)

func transferFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	cmd := transferCmd()
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd.Flags()
}

func TestBuildTransferRequest(t *testing.T) {
	args := []string{"cash", "rent", "1 000 ₸", "March", "rent"}

	t.Run("plain", func(t *testing.T) {
		req, err := buildTransferRequest(money.Default, args, transferFlags(t))
		require.NoError(t, err)
		assert.Equal(t, "cash", req.SourceID)
		assert.Equal(t, "rent", req.TargetID)
		assert.True(t, decimal.NewFromInt(1000).Equal(req.Amount))
		assert.Equal(t, "March rent", req.Description)
		assert.Nil(t, req.Flags.IsSalary)
		assert.Nil(t, req.Flags.IsCashless)
		assert.Nil(t, req.Waybill)
	})

	t.Run("explicit flags", func(t *testing.T) {
		req, err := buildTransferRequest(money.Default, args, transferFlags(t, "--salary", "--cashless=false"))
		require.NoError(t, err)
		require.NotNil(t, req.Flags.IsSalary)
		require.NotNil(t, req.Flags.IsCashless)
		assert.True(t, *req.Flags.IsSalary)
		assert.False(t, *req.Flags.IsCashless)
	})

	t.Run("waybill", func(t *testing.T) {
		req, err := buildTransferRequest(money.Default, args,
			transferFlags(t, "--waybill-number", "WB-17", "--waybill-data", `{"items":3}`))
		require.NoError(t, err)
		require.NotNil(t, req.Waybill)
		assert.Equal(t, "WB-17", req.Waybill.Number)
		assert.JSONEq(t, `{"items":3}`, string(req.Waybill.Data))
	})

	t.Run("invalid waybill data", func(t *testing.T) {
		_, err := buildTransferRequest(money.Default, args, transferFlags(t, "--waybill-data", "{"))
		require.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := buildTransferRequest(money.Default, []string{"cash", "rent", "abc", "x"}, transferFlags(t))
		require.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestParseCategoryFile(t *testing.T) {
	tests := []struct {
		check   func(t *testing.T, cats []model.Category)
		name    string
		input   string
		wantErr string
	}{
		{
			name: "defaults",
			input: `categories:
  - id: cash
    title: Cash
    balance: "1 500 ₸"
  - id: ivan
    title: Ivan
    kind: staff
    hidden: true
`,
			check: func(t *testing.T, cats []model.Category) {
				t.Helper()
				require.Len(t, cats, 2)
				assert.Equal(t, model.KindGeneral, cats[0].Kind)
				assert.True(t, cats[0].IsVisible)
				assert.True(t, decimal.NewFromInt(1500).Equal(cats[0].Balance))
				assert.Equal(t, model.KindStaff, cats[1].Kind)
				assert.False(t, cats[1].IsVisible)
				assert.True(t, cats[1].Balance.IsZero())
			},
		},
		{
			name:  "empty file",
			input: "",
			check: func(t *testing.T, cats []model.Category) {
				t.Helper()
				assert.Empty(t, cats)
			},
		},
		{
			name:    "missing id",
			input:   "categories:\n  - title: Cash\n",
			wantErr: "categories[0].id",
		},
		{
			name:    "duplicate id",
			input:   "categories:\n  - id: a\n    title: A\n  - id: a\n    title: B\n",
			wantErr: "duplicate id",
		},
		{
			name:    "unknown kind",
			input:   "categories:\n  - id: a\n    title: A\n    kind: bank\n",
			wantErr: "unknown kind",
		},
		{
			name:    "bad balance",
			input:   "categories:\n  - id: a\n    title: A\n    balance: lots\n",
			wantErr: "is not a number",
		},
		{
			name:    "malformed yaml",
			input:   "categories: [",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cats, err := parseCategoryFile(strings.NewReader(tt.input), money.Default)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cats)
		})
	}
}

func TestParseDateRange(t *testing.T) {
	loc := time.UTC
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, loc) }

	tests := []struct {
		wantStart *time.Time
		wantEnd   *time.Time
		name      string
		from      string
		to        string
		month     string
		wantErr   bool
	}{
		{name: "none"},
		{
			name:      "month",
			month:     "2024-02",
			wantStart: ptr(day(2024, 2, 1)),
			wantEnd:   ptr(day(2024, 3, 1).Add(-time.Nanosecond)),
		},
		{
			name:      "from and to",
			from:      "2024-01-10",
			to:        "2024-01-12",
			wantStart: ptr(day(2024, 1, 10)),
			wantEnd:   ptr(day(2024, 1, 13).Add(-time.Nanosecond)),
		},
		{
			name:      "open ended",
			from:      "2024-01-10",
			wantStart: ptr(day(2024, 1, 10)),
		},
		{name: "reversed", from: "2024-02-01", to: "2024-01-01", wantErr: true},
		{name: "bad day", from: "10.01.2024", wantErr: true},
		{name: "bad month", month: "2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseDateRange(tt.from, tt.to, tt.month, loc)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestPrintTransfer(t *testing.T) {
	tests := []struct {
		msg  amqp.TransferMessage
		name string
		want string
	}{
		{
			name: "publisher text",
			msg:  amqp.TransferMessage{Text: "💸 Перевод\nОт: Cash", From: "Cash", To: "Rent"},
			want: "Перевод",
		},
		{
			name: "fallback",
			msg:  amqp.TransferMessage{From: "Cash", To: "Rent", Amount: "200 ₸", Description: "March"},
			want: "Cash → Rent  200 ₸  March",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			require.NoError(t, printTransfer(&b)(&tt.msg))
			assert.Contains(t, b.String(), tt.want)
		})
	}
}
