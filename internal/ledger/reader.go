package ledger

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
	"github.com/Nell373/linebot-ai/internal/tasktime"
	"github.com/shopspring/decimal"
)

const maxTasks = 50

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const transactionColumns = `
	SELECT t.id, t.user_id, t.amount, t.is_expense, t.category_id, c.name, c.icon,
	       t.account_id, a.name, COALESCE(t.note, ''), t.created_at
	FROM transactions t
	JOIN categories c ON c.id = t.category_id
	JOIN accounts a ON a.id = t.account_id`

func (s *SQLiteStore) scanTransaction(row rowScanner) (entity.Transaction, error) {
	var (
		tx      entity.Transaction
		created int64
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.IsExpense, &tx.CategoryID, &tx.Category,
		&tx.CategoryIcon, &tx.AccountID, &tx.Account, &tx.Note, &created)
	if err != nil {
		return tx, err
	}
	tx.CreatedAt = s.fromUnix(created)
	return tx, nil
}

func (s *SQLiteStore) loadTransaction(ctx context.Context, q queryer, userID string, id int64) (entity.Transaction, error) {
	row := q.QueryRowContext(ctx, transactionColumns+` WHERE t.id = ? AND t.user_id = ?`, id, userID)
	tx, err := s.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tx, command.Reject(msgTransactionGone)
	}
	if err != nil {
		return tx, fmt.Errorf("failed to load transaction: %w", err)
	}
	return tx, nil
}

func (s *SQLiteStore) Transaction(ctx context.Context, userID string, id int64) (entity.Transaction, error) {
	return s.loadTransaction(ctx, s.db, userID, id)
}

// Transactions lists the user's transactions created in [from, to), newest first.
func (s *SQLiteStore) Transactions(ctx context.Context, userID string, from, to time.Time) ([]entity.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		transactionColumns+` WHERE t.user_id = ? AND t.created_at >= ? AND t.created_at < ?
		ORDER BY t.created_at DESC, t.id DESC`,
		userID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Transaction
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}

// Summary totals income and expense over [from, to). ByCategory holds the
// expense breakdown, largest first.
func (s *SQLiteStore) Summary(ctx context.Context, userID string, from, to time.Time) (entity.Summary, error) {
	txs, err := s.Transactions(ctx, userID, from, to)
	if err != nil {
		return entity.Summary{}, err
	}

	sum := entity.Summary{From: from, To: to, Income: decimal.Zero, Expense: decimal.Zero}
	byCat := map[string]*entity.CategoryTotal{}
	for _, tx := range txs {
		if !tx.IsExpense {
			sum.Income = sum.Income.Add(tx.Amount)
			continue
		}
		sum.Expense = sum.Expense.Add(tx.Amount)
		total, ok := byCat[tx.Category]
		if !ok {
			total = &entity.CategoryTotal{Category: tx.Category, Icon: tx.CategoryIcon, Amount: decimal.Zero}
			byCat[tx.Category] = total
		}
		total.Amount = total.Amount.Add(tx.Amount)
	}

	for _, total := range byCat {
		sum.ByCategory = append(sum.ByCategory, *total)
	}
	slices.SortFunc(sum.ByCategory, func(a, b entity.CategoryTotal) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return sum, nil
}

// Categories seeds the defaults for a first-time user.
func (s *SQLiteStore) Categories(ctx context.Context, userID string, isExpense bool) ([]entity.Category, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, icon, is_expense FROM categories WHERE user_id = ? AND is_expense = ? ORDER BY id`,
		userID, isExpense)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Category
	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.IsExpense); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Accounts(ctx context.Context, userID string) ([]entity.Account, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Account
	for rows.Next() {
		var a entity.Account
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Balance returns the running balance of the named account.
func (s *SQLiteStore) Balance(ctx context.Context, userID, account string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE user_id = ? AND name = ?`, userID, account).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return balance, command.Reject(msgAccountGone)
	}
	if err != nil {
		return balance, fmt.Errorf("failed to load balance: %w", err)
	}
	return balance, nil
}

const taskColumns = `SELECT id, user_id, content, due_at, repeat, done, created_at FROM tasks`

func (s *SQLiteStore) scanTask(row rowScanner) (entity.Task, error) {
	var (
		t       entity.Task
		due     sql.NullInt64
		repeat  string
		created int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Content, &due, &repeat, &t.Done, &created); err != nil {
		return t, err
	}
	if due.Valid {
		at := s.fromUnix(due.Int64)
		t.DueAt = &at
	}
	t.Repeat = tasktime.Repeat(repeat)
	t.CreatedAt = s.fromUnix(created)
	return t, nil
}

func (s *SQLiteStore) loadTask(ctx context.Context, userID string, id int64) (entity.Task, error) {
	t, err := s.scanTask(s.db.QueryRowContext(ctx, taskColumns+` WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return t, command.Reject(msgTaskGone)
	}
	if err != nil {
		return t, fmt.Errorf("failed to load task: %w", err)
	}
	return t, nil
}

// Tasks lists open tasks by due time (undated last), then finished ones.
func (s *SQLiteStore) Tasks(ctx context.Context, userID string) ([]entity.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		taskColumns+` WHERE user_id = ? ORDER BY done, due_at IS NULL, due_at, id LIMIT ?`,
		userID, maxTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
