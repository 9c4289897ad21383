// Package report renders ledger summaries for the command line.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Nell373/linebot-ai/internal/entity"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type Formatter interface {
	FormatSummary(entity.Summary) (string, error)
	FormatTransactions([]entity.Transaction) (string, error)
}

func New(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}

// Views keep amounts as decimal strings so every format prints them exactly.

type summaryView struct {
	From       string         `json:"from" yaml:"from"`
	To         string         `json:"to" yaml:"to"`
	Income     string         `json:"income" yaml:"income"`
	Expense    string         `json:"expense" yaml:"expense"`
	Balance    string         `json:"balance" yaml:"balance"`
	Categories []categoryView `json:"categories,omitempty" yaml:"categories,omitempty"`
}

type categoryView struct {
	Category string `json:"category" yaml:"category"`
	Icon     string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Amount   string `json:"amount" yaml:"amount"`
	Percent  string `json:"percent" yaml:"percent"`
}

type transactionView struct {
	ID       int64  `json:"id" yaml:"id"`
	Time     string `json:"time" yaml:"time"`
	Type     string `json:"type" yaml:"type"`
	Category string `json:"category" yaml:"category"`
	Account  string `json:"account" yaml:"account"`
	Amount   string `json:"amount" yaml:"amount"`
	Note     string `json:"note,omitempty" yaml:"note,omitempty"`
}

const dateLayout = "2006-01-02"

func viewSummary(s entity.Summary) summaryView {
	v := summaryView{
		From:    s.From.Format(dateLayout),
		To:      s.To.Add(-time.Second).Format(dateLayout),
		Income:  s.Income.String(),
		Expense: s.Expense.String(),
		Balance: s.Balance().String(),
	}
	for _, c := range s.ByCategory {
		v.Categories = append(v.Categories, categoryView{
			Category: c.Category,
			Icon:     c.Icon,
			Amount:   c.Amount.String(),
			Percent:  percent(c, s),
		})
	}
	return v
}

func percent(c entity.CategoryTotal, s entity.Summary) string {
	if s.Expense.IsZero() {
		return "0%"
	}
	return c.Amount.Div(s.Expense).Shift(2).Round(1).String() + "%"
}

func viewTransactions(txs []entity.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		kind := "income"
		if tx.IsExpense {
			kind = "expense"
		}
		out = append(out, transactionView{
			ID:       tx.ID,
			Time:     tx.CreatedAt.Format("2006-01-02 15:04"),
			Type:     kind,
			Category: tx.Category,
			Account:  tx.Account,
			Amount:   tx.Amount.String(),
			Note:     tx.Note,
		})
	}
	return out
}
