package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/kassa/internal/ledger"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/service"
	"github.com/Veraticus/kassa/internal/storage"
)

func TestRootCmd_Subcommands(t *testing.T) {
	want := []string{"migrate", "categories", "transfer", "delete", "history", "watch", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	for _, flag := range []string{"config", "log-level", "log-format", "db"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

// run executes the root command against dbPath and returns its output.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", dbPath, "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("AMQP_URL", "")
	t.Setenv("KASSA_AMQP_URL", "")
	return filepath.Join(dir, "kassa.db")
}

func legsOf(t *testing.T, dbPath, categoryID string) []model.Transaction {
	t.Helper()
	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	legs, err := store.ListTransactions(context.Background(), service.TransactionFilter{CategoryID: categoryID})
	require.NoError(t, err)
	return legs
}

func TestCommands_EndToEnd(t *testing.T) {
	dbPath := isolate(t)

	seed := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`categories:
  - id: cash
    title: Cash
    kind: cashbox
    row: 1
    balance: "500"
  - id: rent
    title: Rent
    row: 2
`), 0o600))

	out, err := run(t, dbPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is at version")

	out, err = run(t, dbPath, "categories", "import", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 categories (0 already existed)")

	out, err = run(t, dbPath, "categories", "import", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 categories (2 already existed)")

	out, err = run(t, dbPath, "transfer", "cash", "rent", "200", "March", "rent")
	require.NoError(t, err)
	assert.Contains(t, out, "March rent")

	out, err = run(t, dbPath, "categories", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "300 ₸")
	assert.Contains(t, out, "200 ₸")

	out, err = run(t, dbPath, "history", "rent")
	require.NoError(t, err)
	assert.Contains(t, out, "Cash → Rent")

	legs := legsOf(t, dbPath, "rent")
	require.Len(t, legs, 1)

	out, err = run(t, dbPath, "delete", "--yes", legs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")
	assert.Empty(t, legsOf(t, dbPath, "cash"))
	assert.Empty(t, legsOf(t, dbPath, "rent"))

	out, err = run(t, dbPath, "categories", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "500 ₸")
	assert.NotContains(t, out, "300 ₸")
}

func TestTransferCmd_Errors(t *testing.T) {
	dbPath := isolate(t)

	_, err := run(t, dbPath, "categories", "add", "Cash", "--id", "cash")
	require.NoError(t, err)

	tests := []struct {
		name    string
		wantErr string
		args    []string
	}{
		{
			name:    "unknown target",
			args:    []string{"transfer", "cash", "missing", "10", "x"},
			wantErr: "not found",
		},
		{
			name:    "same category",
			args:    []string{"transfer", "cash", "cash", "10", "x"},
			wantErr: "must differ from source",
		},
		{
			name:    "bad amount",
			args:    []string{"transfer", "cash", "rent", "abc", "x"},
			wantErr: "is not a number",
		},
		{
			name:    "too few arguments",
			args:    []string{"transfer", "cash", "rent", "10"},
			wantErr: "requires at least 4 arg(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, dbPath, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestImportCategories_LeavesExistingBalances(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kassa.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	for _, c := range []model.Category{
		{ID: "a", Title: "Cash", Balance: decimal.NewFromInt(1000), IsVisible: true},
		{ID: "x", Title: "Stock", IsVisible: true},
	} {
		require.NoError(t, store.CreateCategory(ctx, &c))
	}
	l := ledger.New(store)
	_, err = l.Transfer(ctx, ledger.TransferRequest{SourceID: "a", TargetID: "x", Amount: decimal.NewFromInt(300), Description: "stock"})
	require.NoError(t, err)
	l.Wait()

	var out bytes.Buffer
	created, skipped, err := importCategories(ctx, store, []model.Category{
		{ID: "x", Title: "Imported", Kind: model.KindGeneral, IsVisible: true},
		{ID: "y", Title: "New", Kind: model.KindGeneral, IsVisible: true},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, skipped)

	x, err := store.GetCategory(ctx, "x")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300).Equal(x.Balance))
	assert.Equal(t, "Stock", x.Title)

	y, err := store.GetCategory(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, "New", y.Title)
}
