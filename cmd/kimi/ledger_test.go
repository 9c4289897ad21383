package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthBounds(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	now := time.Date(2024, 12, 15, 10, 0, 0, 0, loc)

	from, to, err := monthBounds("", now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), to)

	from, to, err = monthBounds("2024-02", now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), to)

	_, _, err = monthBounds("2024/02", now, loc)
	assert.Error(t, err)
}

func TestLedgerReportCmd(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	t.Setenv("HOME", dir)
	t.Setenv("KIMI_LEDGER__PATH", dbPath)
	t.Setenv("KIMI_DAEMON__DATA_DIR", dir)

	ctx := context.Background()
	st, err := ledger.NewSQLiteStore(ctx, dbPath)
	require.NoError(t, err)
	_, err = st.Execute(ctx, command.AddTransaction{
		UserID:    "cli:me",
		Amount:    decimal.NewFromInt(120),
		Category:  "餐飲",
		IsExpense: true,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg = nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ledger", "report", "--user", "cli:me", "--format", "json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfg = nil
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "120")
	assert.Contains(t, out.String(), "餐飲")
}

func TestLedgerReportCmd_RequiresUser(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("KIMI_LEDGER__PATH", filepath.Join(dir, "ledger.db"))

	cfg = nil
	rootCmd.SetArgs([]string{"ledger", "report", "--user", "", "--format", "table"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfg = nil
	})
	assert.Error(t, rootCmd.Execute())
}
