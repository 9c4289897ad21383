// Package entity holds the read models shared by the ledger and the
// dispatcher.
package entity

import (
	"time"

	"github.com/Nell373/linebot-ai/internal/tasktime"
	"github.com/shopspring/decimal"
)

const DefaultAccount = "默認"

type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	IsExpense bool   `json:"is_expense"`
}

// Label is the icon followed by the name, or just the name.
func (c Category) Label() string {
	if c.Icon == "" {
		return c.Name
	}
	return c.Icon + " " + c.Name
}

type Account struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Transaction struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	IsExpense    bool            `json:"is_expense"`
	CategoryID   int64           `json:"category_id"`
	Category     string          `json:"category"`
	CategoryIcon string          `json:"category_icon"`
	AccountID    int64           `json:"account_id"`
	Account      string          `json:"account"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Icon     string          `json:"icon"`
	Amount   decimal.Decimal `json:"amount"`
}

// Summary aggregates transactions over [From, To).
type Summary struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	ByCategory []CategoryTotal `json:"by_category,omitempty"` // expenses, largest first
}

func (s Summary) Balance() decimal.Decimal {
	return s.Income.Sub(s.Expense)
}

type Task struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Content   string          `json:"content"`
	DueAt     *time.Time      `json:"due_at,omitempty"`
	Repeat    tasktime.Repeat `json:"repeat,omitempty"`
	Done      bool            `json:"done"`
	CreatedAt time.Time       `json:"created_at"`
}

type Note struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
