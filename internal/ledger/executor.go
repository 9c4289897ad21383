package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/entity"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/tasktime"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	msgInitialized       = "初始化成功！已創建默認賬戶和分類。"
	msgTransactionGone   = "找不到該筆交易"
	msgCategoryGone      = "找不到該類別"
	msgAccountGone       = "找不到該帳戶"
	msgTaskGone          = "❌ 找不到指定的任務"
	msgNonPositive       = "金額必須大於零"
	msgNothingToUpdate   = "沒有需要更新的內容"
	msgEmptyName         = "名稱不可為空"
	msgEmptyTask         = "任務內容不可為空"
	msgTransactionEdited = "✅ 交易已更新"
	msgTransactionErased = "🗑️ 交易已刪除"
	msgTaskCompleted     = "✅ 任務已標記為完成"
	msgTaskDeleted       = "🗑️ 任務已刪除"
	msgSameAccount       = "轉出與轉入帳戶不可相同"
)

// DefaultSnooze applies when a SnoozeTask carries no duration.
const DefaultSnooze = 30 * time.Minute

// Execute applies cmd. User-facing failures are *command.Rejection.
func (s *SQLiteStore) Execute(ctx context.Context, cmd command.Command) (command.Receipt, error) {
	if cmd == nil {
		return command.Receipt{}, kerrors.InvalidInput("nil command")
	}
	if strings.TrimSpace(cmd.Owner()) == "" {
		return command.Receipt{}, kerrors.InvalidInput("command without user")
	}

	switch c := cmd.(type) {
	case command.AddTransaction:
		return s.addTransaction(ctx, c)
	case command.UpdateTransaction:
		return s.updateTransaction(ctx, c)
	case command.DeleteTransaction:
		return s.deleteTransaction(ctx, c)
	case command.CreateCategory:
		return s.createCategory(ctx, c)
	case command.CreateAccount:
		return s.createAccount(ctx, c)
	case command.CreateTask:
		return s.createTask(ctx, c)
	case command.InitializeUser:
		return s.initializeUser(ctx, c)
	case command.CompleteTask:
		return s.completeTask(ctx, c)
	case command.SnoozeTask:
		return s.snoozeTask(ctx, c)
	case command.DeleteTask:
		return s.deleteTask(ctx, c)
	case command.Transfer:
		return s.transfer(ctx, c)
	case command.CreateNote:
		return s.createNote(ctx, c)
	case command.UpdateNote:
		return s.updateNote(ctx, c)
	case command.DeleteNote:
		return s.deleteNote(ctx, c)
	default:
		return command.Receipt{}, kerrors.InvalidInput(fmt.Sprintf("unsupported command %T", cmd))
	}
}

func (s *SQLiteStore) initializeUser(ctx context.Context, c command.InitializeUser) (command.Receipt, error) {
	if err := s.ensureUser(ctx, c.UserID); err != nil {
		return command.Receipt{}, err
	}
	// Restores any default that was lost since the first visit.
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return seedDefaults(ctx, tx, c.UserID)
	})
	if err != nil {
		return command.Receipt{}, err
	}
	return command.Receipt{Message: msgInitialized}, nil
}

func (s *SQLiteStore) addTransaction(ctx context.Context, c command.AddTransaction) (command.Receipt, error) {
	if !c.Amount.IsPositive() {
		return command.Receipt{}, command.Reject(msgNonPositive)
	}
	if err := s.ensureUser(ctx, c.UserID); err != nil {
		return command.Receipt{}, err
	}

	var receipt command.Receipt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cat, err := resolveCategory(ctx, tx, c.UserID, c.Category, c.IsExpense)
		if err != nil {
			return err
		}
		acc, err := resolveAccount(ctx, tx, c.UserID, c.Account)
		if err != nil {
			return err
		}

		note := ""
		if c.Note != nil {
			note = strings.TrimSpace(*c.Note)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (user_id, amount, is_expense, category_id, account_id, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.UserID, c.Amount.String(), c.IsExpense, cat.ID, acc.ID, nullable(note), s.stamp())
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read transaction id: %w", err)
		}
		if err := adjustBalance(ctx, tx, acc.ID, signed(c.Amount, c.IsExpense)); err != nil {
			return err
		}

		receipt = command.Receipt{ID: id, Message: recordedMessage(cat, c.Amount, c.IsExpense, note)}
		return nil
	})
	return receipt, err
}

func recordedMessage(cat entity.Category, amount decimal.Decimal, isExpense bool, note string) string {
	kind := "收入"
	if isExpense {
		kind = "支出"
	}
	msg := fmt.Sprintf("已記錄%s：%s $%s", kind, cat.Label(), amount.String())
	if note != "" {
		msg += "，備註：" + note
	}
	return msg
}

func (s *SQLiteStore) updateTransaction(ctx context.Context, c command.UpdateTransaction) (command.Receipt, error) {
	if c.Fields.Empty() {
		return command.Receipt{}, command.Reject(msgNothingToUpdate)
	}
	if c.Fields.Amount != nil && !c.Fields.Amount.IsPositive() {
		return command.Receipt{}, command.Reject(msgNonPositive)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.loadTransaction(ctx, tx, c.UserID, c.ID)
		if err != nil {
			return err
		}

		amount, isExpense, categoryID, accountID := cur.Amount, cur.IsExpense, cur.CategoryID, cur.AccountID
		if f := c.Fields.Amount; f != nil {
			amount = *f
		}
		if f := c.Fields.CategoryID; f != nil {
			err := tx.QueryRowContext(ctx,
				`SELECT is_expense FROM categories WHERE id = ? AND user_id = ?`, *f, c.UserID).Scan(&isExpense)
			if errors.Is(err, sql.ErrNoRows) {
				return command.Reject(msgCategoryGone)
			}
			if err != nil {
				return fmt.Errorf("failed to load category: %w", err)
			}
			categoryID = *f
		}
		if f := c.Fields.AccountID; f != nil {
			var found int64
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM accounts WHERE id = ? AND user_id = ?`, *f, c.UserID).Scan(&found)
			if errors.Is(err, sql.ErrNoRows) {
				return command.Reject(msgAccountGone)
			}
			if err != nil {
				return fmt.Errorf("failed to load account: %w", err)
			}
			accountID = *f
		}
		note := cur.Note
		if f := c.Fields.Note; f != nil {
			note = strings.TrimSpace(*f)
		}

		if err := adjustBalance(ctx, tx, cur.AccountID, signed(cur.Amount, cur.IsExpense).Neg()); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, accountID, signed(amount, isExpense)); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE transactions SET amount = ?, is_expense = ?, category_id = ?, account_id = ?, note = ?
			 WHERE id = ? AND user_id = ?`,
			amount.String(), isExpense, categoryID, accountID, nullable(note), c.ID, c.UserID)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return command.Receipt{}, err
	}
	return command.Receipt{ID: c.ID, Message: msgTransactionEdited}, nil
}

func (s *SQLiteStore) deleteTransaction(ctx context.Context, c command.DeleteTransaction) (command.Receipt, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.loadTransaction(ctx, tx, c.UserID, c.ID)
		if err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, cur.AccountID, signed(cur.Amount, cur.IsExpense).Neg()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transactions WHERE id = ? AND user_id = ?`, c.ID, c.UserID); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return command.Receipt{}, err
	}
	return command.Receipt{ID: c.ID, Message: msgTransactionErased}, nil
}

func (s *SQLiteStore) createCategory(ctx context.Context, c command.CreateCategory) (command.Receipt, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return command.Receipt{}, command.Reject(msgEmptyName)
	}
	if err := s.ensureUser(ctx, c.UserID); err != nil {
		return command.Receipt{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, icon, is_expense) VALUES (?, ?, ?, ?)`,
		c.UserID, name, customCategoryIcon, c.IsExpense)
	if err != nil {
		if s.isConflict(err) {
			return command.Receipt{}, command.Reject(fmt.Sprintf("類別「%s」已存在", name))
		}
		return command.Receipt{}, fmt.Errorf("failed to create category: %w", s.mapper.MapError(err))
	}
	id, _ := res.LastInsertId()
	return command.Receipt{ID: id, Message: fmt.Sprintf("已新增類別：%s %s", customCategoryIcon, name)}, nil
}

func (s *SQLiteStore) createAccount(ctx context.Context, c command.CreateAccount) (command.Receipt, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return command.Receipt{}, command.Reject(msgEmptyName)
	}
	if err := s.ensureUser(ctx, c.UserID); err != nil {
		return command.Receipt{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, balance) VALUES (?, ?, '0')`, c.UserID, name)
	if err != nil {
		if s.isConflict(err) {
			return command.Receipt{}, command.Reject(fmt.Sprintf("帳戶「%s」已存在", name))
		}
		return command.Receipt{}, fmt.Errorf("failed to create account: %w", s.mapper.MapError(err))
	}
	id, _ := res.LastInsertId()
	return command.Receipt{ID: id, Message: "已新增帳戶：" + name}, nil
}

func (s *SQLiteStore) createTask(ctx context.Context, c command.CreateTask) (command.Receipt, error) {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return command.Receipt{}, command.Reject(msgEmptyTask)
	}
	if err := s.ensureUser(ctx, c.UserID); err != nil {
		return command.Receipt{}, err
	}

	var due sql.NullInt64
	if c.DueAt != nil {
		due = sql.NullInt64{Int64: c.DueAt.Unix(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, content, due_at, repeat, done, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		c.UserID, content, due, string(c.Repeat), s.stamp())
	if err != nil {
		return command.Receipt{}, fmt.Errorf("failed to create task: %w", s.mapper.MapError(err))
	}
	id, _ := res.LastInsertId()

	msg := "✅ 已新增任務：" + content
	if c.DueAt != nil {
		msg += "\n⏰ 提醒時間：" + c.DueAt.In(s.loc).Format("2006-01-02 15:04")
		if label := repeatLabel(c.Repeat); label != "" {
			msg += "（" + label + "）"
		}
	}
	return command.Receipt{ID: id, Message: msg}, nil
}

func repeatLabel(r tasktime.Repeat) string {
	switch r {
	case tasktime.RepeatDaily:
		return "每天"
	case tasktime.RepeatWeekly:
		return "每週"
	case tasktime.RepeatMonthly:
		return "每月"
	default:
		return ""
	}
}

// completeTask marks a one-off task done. A repeating task with a due time
// rolls forward to its next occurrence after now instead.
func (s *SQLiteStore) completeTask(ctx context.Context, c command.CompleteTask) (command.Receipt, error) {
	task, err := s.loadTask(ctx, c.UserID, c.TaskID)
	if err != nil {
		return command.Receipt{}, err
	}

	if task.DueAt != nil && task.Repeat != tasktime.RepeatNone {
		now := s.now()
		next := *task.DueAt
		for !next.After(now) {
			next = advance(next, task.Repeat)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET due_at = ? WHERE id = ? AND user_id = ?`, next.Unix(), c.TaskID, c.UserID); err != nil {
			return command.Receipt{}, fmt.Errorf("failed to reschedule task: %w", err)
		}
		return command.Receipt{
			ID:      c.TaskID,
			Message: "✅ 已完成，下次提醒：" + next.In(s.loc).Format("2006-01-02 15:04"),
		}, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET done = 1 WHERE id = ? AND user_id = ?`, c.TaskID, c.UserID); err != nil {
		return command.Receipt{}, fmt.Errorf("failed to complete task: %w", err)
	}
	return command.Receipt{ID: c.TaskID, Message: msgTaskCompleted}, nil
}

func advance(t time.Time, r tasktime.Repeat) time.Time {
	switch r {
	case tasktime.RepeatDaily:
		return t.AddDate(0, 0, 1)
	case tasktime.RepeatWeekly:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 1, 0)
	}
}

func (s *SQLiteStore) snoozeTask(ctx context.Context, c command.SnoozeTask) (command.Receipt, error) {
	if _, err := s.loadTask(ctx, c.UserID, c.TaskID); err != nil {
		return command.Receipt{}, err
	}
	by := c.By
	if by <= 0 {
		by = DefaultSnooze
	}
	due := s.now().Add(by)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_at = ?, done = 0 WHERE id = ? AND user_id = ?`, due.Unix(), c.TaskID, c.UserID); err != nil {
		return command.Receipt{}, fmt.Errorf("failed to snooze task: %w", err)
	}
	return command.Receipt{
		ID:      c.TaskID,
		Message: fmt.Sprintf("⏰ 已設置在 %s 再次提醒", due.In(s.loc).Format("15:04")),
	}, nil
}

func (s *SQLiteStore) deleteTask(ctx context.Context, c command.DeleteTask) (command.Receipt, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, c.TaskID, c.UserID)
	if err != nil {
		return command.Receipt{}, fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return command.Receipt{}, command.Reject(msgTaskGone)
	}
	return command.Receipt{ID: c.TaskID, Message: msgTaskDeleted}, nil
}

// transfer moves money between two existing accounts. Unlike resolveAccount
// it never falls back to the default account.
func (s *SQLiteStore) transfer(ctx context.Context, c command.Transfer) (command.Receipt, error) {
	if !c.Amount.IsPositive() {
		return command.Receipt{}, command.Reject(msgNonPositive)
	}
	from, to := strings.TrimSpace(c.From), strings.TrimSpace(c.To)
	if from == to {
		return command.Receipt{}, command.Reject(msgSameAccount)
	}

	var receipt command.Receipt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		src, err := lookupAccount(ctx, tx, c.UserID, from)
		if err != nil {
			return err
		}
		dst, err := lookupAccount(ctx, tx, c.UserID, to)
		if err != nil {
			return err
		}

		note := strings.TrimSpace(c.Note)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transfers (user_id, from_account_id, to_account_id, amount, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.UserID, src.ID, dst.ID, c.Amount.String(), nullable(note), s.stamp())
		if err != nil {
			return fmt.Errorf("failed to insert transfer: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read transfer id: %w", err)
		}
		if err := adjustBalance(ctx, tx, src.ID, c.Amount.Neg()); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, dst.ID, c.Amount); err != nil {
			return err
		}

		msg := fmt.Sprintf("已轉帳：%s → %s $%s", src.Name, dst.Name, c.Amount.String())
		if note != "" {
			msg += "，備註：" + note
		}
		receipt = command.Receipt{ID: id, Message: msg}
		return nil
	})
	return receipt, err
}

func lookupAccount(ctx context.Context, tx *sql.Tx, userID, name string) (entity.Account, error) {
	var acc entity.Account
	err := tx.QueryRowContext(ctx,
		`SELECT id, name FROM accounts WHERE user_id = ? AND name = ?`, userID, name).Scan(&acc.ID, &acc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, command.Reject(msgAccountGone)
	}
	if err != nil {
		return acc, fmt.Errorf("failed to load account: %w", err)
	}
	return acc, nil
}

// resolveCategory finds name for the user, falling back to 其他 or 其他收入
// and creating the fallback when it was removed.
func resolveCategory(ctx context.Context, tx *sql.Tx, userID, name string, isExpense bool) (entity.Category, error) {
	cat := entity.Category{IsExpense: isExpense}
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, icon FROM categories WHERE user_id = ? AND name = ? AND is_expense = ?`,
		userID, strings.TrimSpace(name), isExpense).Scan(&cat.ID, &cat.Name, &cat.Icon)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return cat, fmt.Errorf("failed to load category: %w", err)
	}

	fb := fallbackCategory(isExpense)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (user_id, name, icon, is_expense) VALUES (?, ?, ?, ?)`,
		userID, fb.Name, fb.Icon, isExpense); err != nil {
		return cat, fmt.Errorf("failed to create fallback category: %w", err)
	}
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, icon FROM categories WHERE user_id = ? AND name = ? AND is_expense = ?`,
		userID, fb.Name, isExpense).Scan(&cat.ID, &cat.Name, &cat.Icon)
	if err != nil {
		return cat, fmt.Errorf("failed to load fallback category: %w", err)
	}
	return cat, nil
}

// resolveAccount finds name for the user, falling back to the default account.
func resolveAccount(ctx context.Context, tx *sql.Tx, userID, name string) (entity.Account, error) {
	var acc entity.Account
	name = strings.TrimSpace(name)
	if name != "" {
		err := tx.QueryRowContext(ctx,
			`SELECT id, name FROM accounts WHERE user_id = ? AND name = ?`, userID, name).Scan(&acc.ID, &acc.Name)
		if err == nil {
			return acc, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return acc, fmt.Errorf("failed to load account: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (user_id, name, balance) VALUES (?, ?, '0')`,
		userID, entity.DefaultAccount); err != nil {
		return acc, fmt.Errorf("failed to create default account: %w", err)
	}
	err := tx.QueryRowContext(ctx,
		`SELECT id, name FROM accounts WHERE user_id = ? AND name = ?`,
		userID, entity.DefaultAccount).Scan(&acc.ID, &acc.Name)
	if err != nil {
		return acc, fmt.Errorf("failed to load default account: %w", err)
	}
	return acc, nil
}

func adjustBalance(ctx context.Context, tx *sql.Tx, accountID int64, delta decimal.Decimal) error {
	var balance decimal.Decimal
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance); err != nil {
		return fmt.Errorf("failed to load balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, balance.Add(delta).String(), accountID); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

// signed is the effect of a transaction on its account balance.
func signed(amount decimal.Decimal, isExpense bool) decimal.Decimal {
	if isExpense {
		return amount.Neg()
	}
	return amount
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *SQLiteStore) isConflict(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return true
	}
	return errors.Is(s.mapper.MapError(err), kerrors.ErrConflict)
}
