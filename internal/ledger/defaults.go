package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Nell373/linebot-ai/internal/entity"
)

type seedCategory struct {
	Name string
	Icon string
}

var defaultExpenseCategories = []seedCategory{
	{"餐飲", "🍔"},
	{"交通", "🚗"},
	{"購物", "🛒"},
	{"娛樂", "🎮"},
	{"住房", "🏠"},
	{"醫療", "💊"},
	{"教育", "📚"},
	{"其他", "📝"},
}

var defaultIncomeCategories = []seedCategory{
	{"薪資", "💰"},
	{"獎金", "🎁"},
	{"投資", "📈"},
	{"其他收入", "💴"},
}

// Fallback categories used when a transaction names an unknown one.
var (
	fallbackExpense = seedCategory{"其他", "📝"}
	fallbackIncome  = seedCategory{"其他收入", "💴"}
)

const customCategoryIcon = "📌"

func fallbackCategory(isExpense bool) seedCategory {
	if isExpense {
		return fallbackExpense
	}
	return fallbackIncome
}

// ensureUser registers userID and seeds defaults the first time it is seen.
func (s *SQLiteStore) ensureUser(ctx context.Context, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`, userID, s.stamp())
		if err != nil {
			return fmt.Errorf("failed to register user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return seedDefaults(ctx, tx, userID)
	})
}

func seedDefaults(ctx context.Context, tx *sql.Tx, userID string) error {
	insert := func(c seedCategory, isExpense bool) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (user_id, name, icon, is_expense) VALUES (?, ?, ?, ?)`,
			userID, c.Name, c.Icon, isExpense)
		return err
	}
	for _, c := range defaultExpenseCategories {
		if err := insert(c, true); err != nil {
			return fmt.Errorf("failed to seed category %s: %w", c.Name, err)
		}
	}
	for _, c := range defaultIncomeCategories {
		if err := insert(c, false); err != nil {
			return fmt.Errorf("failed to seed category %s: %w", c.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (user_id, name, balance) VALUES (?, ?, '0')`,
		userID, entity.DefaultAccount); err != nil {
		return fmt.Errorf("failed to seed default account: %w", err)
	}
	return nil
}
