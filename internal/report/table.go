package report

import (
	"fmt"

	"github.com/Nell373/linebot-ai/internal/entity"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	titleStyle   lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) rows(row, col int) lipgloss.Style {
	switch {
	case row == table.HeaderRow:
		return f.headerStyle
	case row%2 == 0:
		return f.evenRowStyle
	default:
		return f.oddRowStyle
	}
}

func (f *TableFormatter) FormatSummary(s entity.Summary) (string, error) {
	v := viewSummary(s)

	totals := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(f.rows).
		Headers("收入", "支出", "結餘").
		Row(v.Income, v.Expense, v.Balance)

	title := f.titleStyle.Render(fmt.Sprintf("%s ~ %s", v.From, v.To))
	if len(v.Categories) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, totals.String()), nil
	}

	breakdown := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(f.rows).
		Headers("類別", "金額", "比例")
	for _, c := range v.Categories {
		label := c.Category
		if c.Icon != "" {
			label = c.Icon + " " + c.Category
		}
		breakdown.Row(label, c.Amount, c.Percent)
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, totals.String(), breakdown.String()), nil
}

func (f *TableFormatter) FormatTransactions(txs []entity.Transaction) (string, error) {
	if len(txs) == 0 {
		return "沒有交易記錄", nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(f.rows).
		Headers("ID", "時間", "類型", "類別", "帳戶", "金額", "備註")

	for _, tx := range viewTransactions(txs) {
		kind := "收入"
		if tx.Type == "expense" {
			kind = "支出"
		}
		t.Row(fmt.Sprint(tx.ID), tx.Time, kind, tx.Category, tx.Account, tx.Amount, truncate(tx.Note, 20))
	}
	return t.String(), nil
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes-1]) + "…"
}
