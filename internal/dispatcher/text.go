package dispatcher

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/conversation"
	"github.com/Nell373/linebot-ai/internal/entity"
	"github.com/Nell373/linebot-ai/internal/grammar"
	"github.com/Nell373/linebot-ai/internal/reply"
	"github.com/Nell373/linebot-ai/internal/tasktime"
	"github.com/shopspring/decimal"
)

const (
	msgBadAmount      = "請輸入有效的金額，例如：150 或 早餐150"
	msgBadEditAmount  = "金額格式錯誤，已取消編輯。"
	msgNamePrompt     = "名稱不可為空，且最多 20 個字，請重新輸入。"
	msgTaskPrompt     = "請輸入任務內容，可加上時間，例如：明天下午3點 開會"
	msgReminderFormat = "請提供提醒內容，例如：提醒 開會 2023-5-20 14:30"
	maxNameRunes      = 20
)

type keywordKind int

const (
	kwMenu keywordKind = iota + 1
	kwHelp
	kwInit
	kwRecords
	kwRecordStart
	kwNewTask
	kwTaskList
	kwTransfer
	kwNotes
)

var keywords = map[string]keywordKind{
	"kimi": kwMenu, "選單": kwMenu, "主選單": kwMenu, "menu": kwMenu,
	"help": kwHelp, "幫助": kwHelp, "說明": kwHelp,
	"初始化": kwInit, "init": kwInit,
	"記錄": kwRecords, "查看記錄": kwRecords, "我的記錄": kwRecords, "查看財務": kwRecords, "財務摘要": kwRecords,
	"記帳": kwRecordStart, "記錄支出": kwRecordStart, "新增支出": kwRecordStart,
	"新增任務": kwNewTask, "新任務": kwNewTask,
	"我的任務": kwTaskList, "查看任務": kwTaskList, "今日任務": kwTaskList, "提醒列表": kwTaskList, "所有提醒": kwTaskList,
	"轉帳": kwTransfer, "transfer": kwTransfer,
	"我的筆記": kwNotes,
}

func normalizeKeyword(text string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(text), "/"))
}

func isCancel(text string) bool {
	k := normalizeKeyword(text)
	return k == "取消" || k == "cancel"
}

// answer treats text as the reply to the open question of st.
func (d *Dispatcher) answer(ctx context.Context, userID string, st conversation.State, text string) Result {
	switch s := st.(type) {
	case conversation.AwaitingAmount:
		note, amount, err := grammar.SplitNoteAmount(text)
		if err != nil || !amount.IsPositive() {
			return Result{Reply: reply.Text(msgBadAmount)}
		}
		if note == "" {
			note = s.Note
		}
		return d.pickAccount(ctx, userID, draft{Type: s.Type, Category: s.Category, Amount: amount, Note: note})

	case conversation.AwaitingKeypadInput:
		amount, err := grammar.ParseAmount(text)
		if err != nil || !amount.IsPositive() {
			return Result{Reply: &reply.Reply{Text: msgBadAmount, Card: keypadCard(s)}}
		}
		return d.pickAccount(ctx, userID, draft{Type: s.Type, Category: s.Category, Amount: amount, Note: s.Note})

	case conversation.AwaitingNote:
		account := s.Account
		if account == "" {
			account = entity.DefaultAccount
		}
		return d.finish(ctx, userID, command.AddTransaction{
			UserID:    userID,
			Amount:    s.Amount,
			Category:  s.Category,
			Account:   account,
			Note:      d.noteOf(text),
			IsExpense: s.Type.IsExpense(),
		})

	case conversation.AwaitingCustomCategory:
		name, ok := validName(text)
		if !ok {
			return Result{Reply: reply.Text(msgNamePrompt)}
		}
		var amount *decimal.Decimal
		if s.Amount.Valid {
			amount = &s.Amount.Decimal
		}
		return d.createCategory(ctx, userID, s.Type, name, amount, s.Note)

	case conversation.AwaitingNewAccount:
		name, ok := validName(text)
		if !ok {
			return Result{Reply: reply.Text(msgNamePrompt)}
		}
		cmd := command.CreateAccount{UserID: userID, Name: name}
		receipt, msg, ok := d.execute(ctx, cmd)
		if !ok {
			d.clear(ctx, userID)
			return Result{Reply: reply.Text(msg), Command: cmd}
		}
		dr := draft{Type: s.Type, Category: s.Category, Amount: s.Amount, Account: name, Note: s.Note}
		res := d.continueWithAccount(ctx, userID, dr)
		res.Command = cmd
		if res.Reply != nil && res.Reply.Card != nil {
			res.Reply.Text = receipt.Message
		}
		return res

	case conversation.AwaitingEditAmount:
		amount, err := grammar.ParseAmount(text)
		if err != nil || !amount.IsPositive() {
			d.clear(ctx, userID)
			return Result{Reply: reply.Text(msgBadEditAmount)}
		}
		return d.finish(ctx, userID, command.UpdateTransaction{
			ID:     s.TransactionID,
			UserID: userID,
			Fields: command.TransactionFields{Amount: &amount},
		})

	case conversation.AwaitingEditNote:
		note := strings.TrimSpace(text)
		if d.isNone(note) {
			note = ""
		}
		return d.finish(ctx, userID, command.UpdateTransaction{
			ID:     s.TransactionID,
			UserID: userID,
			Fields: command.TransactionFields{Note: &note},
		})

	case conversation.AwaitingTaskDetails:
		parsed := tasktime.Parse(text, d.clock())
		if parsed.Content == "" {
			return Result{Reply: reply.Text(msgTaskPrompt)}
		}
		return d.finish(ctx, userID, createTask(userID, parsed))

	case conversation.AwaitingTransferAccount:
		return d.answerTransferAccount(ctx, userID, text)

	case conversation.AwaitingTransferAmount:
		return d.answerTransferAmount(ctx, userID, s, text)
	}

	// A state type this dispatcher does not know cannot be answered.
	d.clear(ctx, userID)
	return Result{Reply: reply.Text(helpText)}
}

func validName(text string) (string, bool) {
	name := strings.TrimSpace(text)
	if name == "" || utf8.RuneCountInString(name) > maxNameRunes || strings.ContainsAny(name, "&=") {
		return "", false
	}
	return name, true
}

func createTask(userID string, parsed tasktime.Result) command.CreateTask {
	cmd := command.CreateTask{UserID: userID, Content: parsed.Content, Repeat: parsed.Repeat}
	if parsed.HasDue() {
		due := parsed.Due
		cmd.DueAt = &due
	}
	return cmd
}

// createCategory runs CreateCategory and continues the transaction the
// category was created for.
func (d *Dispatcher) createCategory(ctx context.Context, userID string, t conversation.TxType, name string, amount *decimal.Decimal, note string) Result {
	cmd := command.CreateCategory{UserID: userID, Name: name, IsExpense: t.IsExpense()}
	receipt, msg, ok := d.execute(ctx, cmd)
	if !ok {
		d.clear(ctx, userID)
		return Result{Reply: reply.Text(msg), Command: cmd}
	}

	var res Result
	if amount != nil {
		res = d.pickAccount(ctx, userID, draft{Type: t, Category: name, Amount: *amount, Note: note})
	} else {
		res = d.advance(ctx, userID, conversation.AwaitingAmount{Type: t, Category: name, Note: note},
			reply.WithCard(amountCard(t, name)))
	}
	res.Command = cmd
	if res.Reply != nil && res.Reply.Card != nil {
		res.Reply.Text = receipt.Message
	}
	return res
}

// pickAccount clears the flow and shows the account picker. The picker's
// buttons carry the whole draft, so no state is needed until one is tapped.
func (d *Dispatcher) pickAccount(ctx context.Context, userID string, dr draft) Result {
	accounts, err := d.reader.Accounts(ctx, userID)
	if err != nil {
		return d.readFailed(ctx, "accounts", err)
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(accountCard(dr, accounts))}
}

// continueWithAccount is the step after an account is chosen: a known
// note goes straight to confirmation, otherwise the note is asked for.
func (d *Dispatcher) continueWithAccount(ctx context.Context, userID string, dr draft) Result {
	if dr.Note != "" {
		d.clear(ctx, userID)
		return Result{Reply: reply.WithCard(confirmationCard(dr))}
	}
	return d.advance(ctx, userID, conversation.AwaitingNote{
		Type:     dr.Type,
		Category: dr.Category,
		Amount:   dr.Amount,
		Account:  dr.Account,
	}, reply.WithCard(noteCard(dr)))
}

func (d *Dispatcher) keyword(ctx context.Context, userID, text string) (Result, bool) {
	kind, ok := keywords[normalizeKeyword(text)]
	if !ok {
		return Result{}, false
	}

	switch kind {
	case kwMenu:
		return Result{Reply: reply.WithCard(menuCard())}, true
	case kwHelp:
		return Result{Reply: reply.Text(helpText)}, true
	case kwInit:
		return d.finish(ctx, userID, command.InitializeUser{UserID: userID}), true
	case kwRecords:
		return Result{Reply: reply.WithCard(periodCard())}, true
	case kwRecordStart:
		return d.startRecord(ctx, userID, conversation.Expense), true
	case kwNewTask:
		return d.advance(ctx, userID, conversation.AwaitingTaskDetails{}, reply.Text(msgTaskPrompt)), true
	case kwTaskList:
		return d.showTasks(ctx, userID), true
	case kwTransfer:
		return d.transferMenu(ctx, userID), true
	case kwNotes:
		return d.showNotes(ctx, userID, ""), true
	}
	return Result{}, false
}

func (d *Dispatcher) intent(ctx context.Context, userID, text string) Result {
	switch in := grammar.Classify(text).(type) {
	case grammar.QuickExpense:
		return d.quickExpense(ctx, userID, in)

	case grammar.Expense:
		return d.finish(ctx, userID, command.AddTransaction{
			UserID:    userID,
			Amount:    in.Amount,
			Category:  in.Category,
			Account:   entity.DefaultAccount,
			Note:      d.noteOf(in.Note),
			IsExpense: true,
		})

	case grammar.Income:
		category := in.Category
		if category == "" {
			category = "其他收入"
		}
		return d.finish(ctx, userID, command.AddTransaction{
			UserID:   userID,
			Amount:   in.Amount,
			Category: category,
			Account:  entity.DefaultAccount,
			Note:     d.noteOf(in.Note),
		})

	case grammar.PeriodQuery:
		return d.showPeriod(ctx, userID, in.Period)

	case grammar.MonthlyReport:
		now := d.clock()
		year, month := now.Year(), now.Month()
		if in.Year > 0 && in.Month >= 1 && in.Month <= 12 {
			year, month = in.Year, time.Month(in.Month)
		}
		return d.showReport(ctx, userID, year, month)

	case grammar.Reminder:
		parsed := tasktime.Parse(in.Text, d.clock())
		if parsed.Content == "" {
			return Result{Reply: reply.Text(msgReminderFormat)}
		}
		return d.finish(ctx, userID, createTask(userID, parsed))

	case grammar.TaskComplete:
		return d.finish(ctx, userID, command.CompleteTask{UserID: userID, TaskID: in.ID})

	case grammar.TaskDelete:
		return d.finish(ctx, userID, command.DeleteTask{UserID: userID, TaskID: in.ID})

	case grammar.NoteAdd:
		return d.addNote(ctx, userID, in)

	case grammar.NoteList:
		return d.showNotes(ctx, userID, in.Tag)

	case grammar.NoteDetail:
		return d.showNote(ctx, userID, in.ID)

	case grammar.NoteUpdate:
		return d.updateNote(ctx, userID, in)

	case grammar.NoteDelete:
		return d.finish(ctx, userID, command.DeleteNote{UserID: userID, NoteID: in.ID})
	}

	return Result{Reply: reply.Text(helpText)}
}

func (d *Dispatcher) quickExpense(ctx context.Context, userID string, in grammar.QuickExpense) Result {
	if !in.Amount.IsPositive() {
		return Result{Reply: reply.Text(msgBadAmount)}
	}
	cats, err := d.reader.Categories(ctx, userID, true)
	if err != nil {
		return d.readFailed(ctx, "categories", err)
	}
	for _, c := range cats {
		if c.Name == in.CategoryKeyword {
			return d.pickAccount(ctx, userID, draft{Type: conversation.Expense, Category: c.Name, Amount: in.Amount, Note: in.Note})
		}
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(quickCategoryCard(in.CategoryKeyword, in.Amount, in.Note, cats))}
}

func (d *Dispatcher) startRecord(ctx context.Context, userID string, t conversation.TxType) Result {
	cats, err := d.reader.Categories(ctx, userID, t.IsExpense())
	if err != nil {
		return d.readFailed(ctx, "categories", err)
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(categoryCard(t, cats))}
}

func (d *Dispatcher) showPeriod(ctx context.Context, userID string, p grammar.Period) Result {
	from, to := periodRange(p, d.clock())
	summary, err := d.reader.Summary(ctx, userID, from, to)
	if err != nil {
		return d.readFailed(ctx, "summary", err)
	}
	txs, err := d.reader.Transactions(ctx, userID, from, to)
	if err != nil {
		return d.readFailed(ctx, "transactions", err)
	}
	return Result{Reply: reply.WithCard(transactionListCard(periodLabel(p)+"收支", summary, txs, d.loc))}
}

func (d *Dispatcher) showReport(ctx context.Context, userID string, year int, month time.Month) Result {
	from, to := monthRange(year, month, d.loc)
	summary, err := d.reader.Summary(ctx, userID, from, to)
	if err != nil {
		return d.readFailed(ctx, "summary", err)
	}
	return Result{Reply: reply.WithCard(reportCard(year, month, summary))}
}

func (d *Dispatcher) showTasks(ctx context.Context, userID string) Result {
	tasks, err := d.reader.Tasks(ctx, userID)
	if err != nil {
		return d.readFailed(ctx, "tasks", err)
	}
	return Result{Reply: reply.WithCard(taskListCard(tasks, d.loc))}
}
