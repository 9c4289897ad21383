package dispatcher

import (
	"context"
	"strings"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/Nell373/linebot-ai/internal/conversation"
	"github.com/Nell373/linebot-ai/internal/entity"
	"github.com/Nell373/linebot-ai/internal/grammar"
	"github.com/Nell373/linebot-ai/internal/postback"
	"github.com/Nell373/linebot-ai/internal/reply"
	"github.com/shopspring/decimal"
)

type postbackHandler func(ctx context.Context, userID string, p postback.Payload) Result

const maxKeypadDigits = 12

func (d *Dispatcher) postbackTable() map[postback.Action]postbackHandler {
	return map[postback.Action]postbackHandler{
		postback.ActionUnknown: d.unknownAction,

		postback.ActionRecord:          d.onRecord,
		postback.ActionCategory:        d.onCategory,
		postback.ActionCustomCategory:  d.onCustomCategory,
		postback.ActionAmount:          d.onAmount,
		postback.ActionKeypadStart:     d.onKeypadStart,
		postback.ActionKeypad:          d.onKeypad,
		postback.ActionAccount:         d.onAccount,
		postback.ActionNewAccount:      d.onNewAccount,
		postback.ActionQuickExpense:    d.onQuickExpense,
		postback.ActionEditTransaction: d.onEditTransaction,
		postback.ActionEditAmount:      d.onEditAmount,
		postback.ActionEditNote:        d.onEditNote,
		postback.ActionAddTask:         d.onAddTask,
		postback.ActionConfirmDelete:   d.onConfirmDelete,
		postback.ActionTransferMenu:    d.onTransferMenu,
		postback.ActionTransferFrom:    d.onTransferFrom,
		postback.ActionTransferTo:      d.onTransferTo,

		postback.ActionFinish:            d.onFinish,
		postback.ActionSkipNote:          d.onSkipNote,
		postback.ActionCreateCategory:    d.onCreateCategory,
		postback.ActionUpdateCategory:    d.onUpdateCategory,
		postback.ActionUpdateAccount:     d.onUpdateAccount,
		postback.ActionDeleteTransaction: d.onDeleteTransaction,
		postback.ActionTaskComplete:      d.onTaskComplete,
		postback.ActionTaskSnooze:        d.onTaskSnooze,
		postback.ActionTaskDelete:        d.onTaskDelete,

		postback.ActionBackToCategory:   d.onBackToCategory,
		postback.ActionBackToAmount:     d.onCategory,
		postback.ActionBackToAccount:    d.onBackToAccount,
		postback.ActionMainMenu:         d.onMainMenu,
		postback.ActionCancel:           d.onCancel,
		postback.ActionViewTransactions: d.onViewTransactions,
		postback.ActionViewTransaction:  d.onViewTransaction,
		postback.ActionTaskList:         d.onTaskList,
	}
}

// unknownAction leaves state exactly as it was.
func (d *Dispatcher) unknownAction(_ context.Context, _ string, _ postback.Payload) Result {
	return Result{Reply: reply.Text(msgUnknownAction)}
}

func invalidPayload() Result {
	return Result{Reply: reply.Text(msgInvalidPayload)}
}

func txType(p postback.Payload) conversation.TxType {
	return conversation.ParseTxType(p.Value("type"))
}

// draftFrom reads the transaction fields a flow button carries.
func draftFrom(p postback.Payload) (draft, error) {
	amount, err := grammar.ParseAmount(p.Value("amount"))
	if err != nil {
		return draft{}, err
	}
	return draft{
		Type:     txType(p),
		Category: strings.TrimSpace(p.Value("category")),
		Amount:   amount,
		Account:  strings.TrimSpace(p.Value("account")),
		Note:     p.Value("note"),
	}, nil
}

func (d *Dispatcher) onRecord(ctx context.Context, userID string, p postback.Payload) Result {
	return d.startRecord(ctx, userID, txType(p))
}

func (d *Dispatcher) onBackToCategory(ctx context.Context, userID string, p postback.Payload) Result {
	return d.startRecord(ctx, userID, txType(p))
}

func (d *Dispatcher) onCategory(ctx context.Context, userID string, p postback.Payload) Result {
	category := strings.TrimSpace(p.Value("category"))
	if category == "" {
		return invalidPayload()
	}
	t := txType(p)
	return d.advance(ctx, userID, conversation.AwaitingAmount{Type: t, Category: category, Note: p.Value("note")},
		reply.WithCard(amountCard(t, category)))
}

func (d *Dispatcher) onCustomCategory(ctx context.Context, userID string, p postback.Payload) Result {
	st := conversation.AwaitingCustomCategory{Type: txType(p), Note: p.Value("note")}
	if raw, ok := p.Get("amount"); ok {
		amount, err := grammar.ParseAmount(raw)
		if err != nil {
			return Result{Reply: reply.Text(msgBadAmount)}
		}
		st.Amount = decimal.NewNullDecimal(amount)
	}
	return d.advance(ctx, userID, st, reply.Text("請輸入新的"+typeLabel(st.Type)+"類別名稱"))
}

func (d *Dispatcher) onAmount(ctx context.Context, userID string, p postback.Payload) Result {
	dr, err := draftFrom(p)
	if err != nil || !dr.Amount.IsPositive() {
		return Result{Reply: reply.Text(msgBadAmount)}
	}
	if dr.Category == "" {
		return invalidPayload()
	}
	return d.pickAccount(ctx, userID, dr)
}

func (d *Dispatcher) onKeypadStart(ctx context.Context, userID string, p postback.Payload) Result {
	category := strings.TrimSpace(p.Value("category"))
	if category == "" {
		return invalidPayload()
	}
	st := conversation.AwaitingKeypadInput{Type: txType(p), Category: category, Note: p.Value("note")}
	return d.advance(ctx, userID, st, reply.WithCard(keypadCard(st)))
}

func (d *Dispatcher) onKeypad(ctx context.Context, userID string, p postback.Payload) Result {
	cur, ok, err := d.store.Get(ctx, userID)
	if err != nil {
		return d.readFailed(ctx, "conversation state", err)
	}
	st, isKeypad := cur.(conversation.AwaitingKeypadInput)
	if !ok || !isKeypad {
		return Result{Reply: reply.Text("鍵盤已失效，請重新開始記帳。")}
	}

	key := p.Value("key")
	switch {
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		if len(st.Digits) < maxKeypadDigits {
			st.Digits += key
		}
	case key == ".":
		if !strings.Contains(st.Digits, ".") {
			if st.Digits == "" {
				st.Digits = "0"
			}
			st.Digits += "."
		}
	case key == "del":
		if st.Digits != "" {
			st.Digits = st.Digits[:len(st.Digits)-1]
		}
	case key == "clear":
		st.Digits = ""
	case key == "ok":
		amount, err := grammar.ParseAmount(st.Digits)
		if err != nil || !amount.IsPositive() {
			return Result{Reply: &reply.Reply{Text: msgBadAmount, Card: keypadCard(st)}}
		}
		return d.pickAccount(ctx, userID, draft{Type: st.Type, Category: st.Category, Amount: amount, Note: st.Note})
	default:
		return Result{Reply: reply.WithCard(keypadCard(st))}
	}
	return d.advance(ctx, userID, st, reply.WithCard(keypadCard(st)))
}

func (d *Dispatcher) onAccount(ctx context.Context, userID string, p postback.Payload) Result {
	dr, err := draftFrom(p)
	if err != nil || !dr.Amount.IsPositive() {
		return Result{Reply: reply.Text(msgBadAmount)}
	}
	if dr.Category == "" {
		return invalidPayload()
	}
	if dr.Account == "" {
		dr.Account = entity.DefaultAccount
	}
	return d.continueWithAccount(ctx, userID, dr)
}

func (d *Dispatcher) onNewAccount(ctx context.Context, userID string, p postback.Payload) Result {
	if p.Value("type") == transferType {
		return d.advance(ctx, userID, conversation.AwaitingTransferAccount{}, reply.Text("請輸入新帳戶名稱"))
	}
	dr, err := draftFrom(p)
	if err != nil || dr.Category == "" {
		return invalidPayload()
	}
	return d.advance(ctx, userID, conversation.AwaitingNewAccount{
		Type:     dr.Type,
		Category: dr.Category,
		Amount:   dr.Amount,
		Note:     dr.Note,
	}, reply.Text("請輸入新帳戶名稱"))
}

func (d *Dispatcher) onQuickExpense(ctx context.Context, userID string, p postback.Payload) Result {
	dr, err := draftFrom(p)
	if err != nil || !dr.Amount.IsPositive() {
		return Result{Reply: reply.Text(msgBadAmount)}
	}
	if dr.Category == "" {
		return invalidPayload()
	}
	dr.Type = conversation.Expense
	return d.pickAccount(ctx, userID, dr)
}

func (d *Dispatcher) onBackToAccount(ctx context.Context, userID string, p postback.Payload) Result {
	dr, err := draftFrom(p)
	if err != nil || dr.Category == "" {
		return invalidPayload()
	}
	return d.pickAccount(ctx, userID, dr)
}

// completeDraft fills fields missing from a finish or skip_note payload
// from a pending AwaitingNote step.
func (d *Dispatcher) completeDraft(ctx context.Context, userID string, p postback.Payload) (draft, bool) {
	if dr, err := draftFrom(p); err == nil && dr.Category != "" {
		return dr, true
	}
	cur, ok, err := d.store.Get(ctx, userID)
	if err != nil || !ok {
		return draft{}, false
	}
	st, isNote := cur.(conversation.AwaitingNote)
	if !isNote {
		return draft{}, false
	}
	return draft{Type: st.Type, Category: st.Category, Amount: st.Amount, Account: st.Account}, true
}

func (d *Dispatcher) addTransaction(userID string, dr draft, note *string) command.AddTransaction {
	account := dr.Account
	if account == "" {
		account = entity.DefaultAccount
	}
	return command.AddTransaction{
		UserID:    userID,
		Amount:    dr.Amount,
		Category:  dr.Category,
		Account:   account,
		Note:      note,
		IsExpense: dr.Type.IsExpense(),
	}
}

func (d *Dispatcher) onFinish(ctx context.Context, userID string, p postback.Payload) Result {
	dr, ok := d.completeDraft(ctx, userID, p)
	if !ok || !dr.Amount.IsPositive() {
		return invalidPayload()
	}
	return d.finish(ctx, userID, d.addTransaction(userID, dr, d.noteOf(dr.Note)))
}

func (d *Dispatcher) onSkipNote(ctx context.Context, userID string, p postback.Payload) Result {
	dr, ok := d.completeDraft(ctx, userID, p)
	if !ok || !dr.Amount.IsPositive() {
		return invalidPayload()
	}
	return d.finish(ctx, userID, d.addTransaction(userID, dr, nil))
}

func (d *Dispatcher) onCreateCategory(ctx context.Context, userID string, p postback.Payload) Result {
	name, ok := validName(p.Value("name"))
	if !ok {
		return invalidPayload()
	}
	t := conversation.Expense
	if raw, present := p.Get("is_expense"); present && raw != "" && !p.Bool("is_expense") {
		t = conversation.Income
	}

	var amount *decimal.Decimal
	if raw, present := p.Get("amount"); present {
		a, err := grammar.ParseAmount(raw)
		if err != nil {
			return Result{Reply: reply.Text(msgBadAmount)}
		}
		amount = &a
	}
	if amount == nil {
		return d.finish(ctx, userID, command.CreateCategory{UserID: userID, Name: name, IsExpense: t.IsExpense()})
	}
	return d.createCategory(ctx, userID, t, name, amount, p.Value("note"))
}

func (d *Dispatcher) onUpdateCategory(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	categoryID, ok2 := p.Int64("category_id")
	if !ok || !ok2 {
		return invalidPayload()
	}
	return d.finish(ctx, userID, command.UpdateTransaction{
		ID:     id,
		UserID: userID,
		Fields: command.TransactionFields{CategoryID: &categoryID},
	})
}

func (d *Dispatcher) onUpdateAccount(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	accountID, ok2 := p.Int64("account_id")
	if !ok || !ok2 {
		return invalidPayload()
	}
	return d.finish(ctx, userID, command.UpdateTransaction{
		ID:     id,
		UserID: userID,
		Fields: command.TransactionFields{AccountID: &accountID},
	})
}

func (d *Dispatcher) onDeleteTransaction(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	if !ok {
		return invalidPayload()
	}
	return d.finish(ctx, userID, command.DeleteTransaction{ID: id, UserID: userID})
}

func taskID(p postback.Payload) (int64, bool) {
	if id, ok := p.Int64("task_id"); ok {
		return id, true
	}
	return p.Int64("id")
}

func (d *Dispatcher) onTaskComplete(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := taskID(p)
	if !ok {
		return invalidPayload()
	}
	return d.finish(ctx, userID, command.CompleteTask{UserID: userID, TaskID: id})
}

func (d *Dispatcher) onTaskSnooze(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := taskID(p)
	if !ok {
		return invalidPayload()
	}
	return d.finish(ctx, userID, command.SnoozeTask{UserID: userID, TaskID: id, By: SnoozeDuration})
}

func (d *Dispatcher) onTaskDelete(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := taskID(p)
	if !ok {
		return invalidPayload()
	}
	return d.finish(ctx, userID, command.DeleteTask{UserID: userID, TaskID: id})
}

func (d *Dispatcher) onEditTransaction(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	if !ok {
		return invalidPayload()
	}
	tx, err := d.reader.Transaction(ctx, userID, id)
	if err != nil {
		return d.notFoundOrFailed(ctx, "transaction", err)
	}
	cats, err := d.reader.Categories(ctx, userID, tx.IsExpense)
	if err != nil {
		return d.readFailed(ctx, "categories", err)
	}
	accounts, err := d.reader.Accounts(ctx, userID)
	if err != nil {
		return d.readFailed(ctx, "accounts", err)
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(editTransactionCard(tx, cats, accounts))}
}

func (d *Dispatcher) onEditAmount(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	if !ok {
		return invalidPayload()
	}
	return d.advance(ctx, userID, conversation.AwaitingEditAmount{TransactionID: id}, reply.Text("請輸入新的金額"))
}

func (d *Dispatcher) onEditNote(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	if !ok {
		return invalidPayload()
	}
	return d.advance(ctx, userID, conversation.AwaitingEditNote{TransactionID: id}, reply.Text("請輸入新的備註，或輸入「無」清除備註"))
}

func (d *Dispatcher) onAddTask(ctx context.Context, userID string, _ postback.Payload) Result {
	return d.advance(ctx, userID, conversation.AwaitingTaskDetails{}, reply.Text(msgTaskPrompt))
}

func (d *Dispatcher) onConfirmDelete(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	if !ok {
		return invalidPayload()
	}
	tx, err := d.reader.Transaction(ctx, userID, id)
	if err != nil {
		return d.notFoundOrFailed(ctx, "transaction", err)
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(confirmDeleteCard(tx, d.loc))}
}

func (d *Dispatcher) onMainMenu(ctx context.Context, userID string, _ postback.Payload) Result {
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(menuCard())}
}

func (d *Dispatcher) onCancel(ctx context.Context, userID string, _ postback.Payload) Result {
	return d.cancel(ctx, userID)
}

func (d *Dispatcher) onViewTransactions(ctx context.Context, userID string, p postback.Payload) Result {
	return d.showPeriod(ctx, userID, parsePeriod(p.Value("period")))
}

func (d *Dispatcher) onViewTransaction(ctx context.Context, userID string, p postback.Payload) Result {
	id, ok := p.Int64("id")
	if !ok {
		return invalidPayload()
	}
	tx, err := d.reader.Transaction(ctx, userID, id)
	if err != nil {
		return d.notFoundOrFailed(ctx, "transaction", err)
	}
	return Result{Reply: reply.WithCard(transactionDetailCard(tx, d.loc))}
}

func (d *Dispatcher) onTaskList(ctx context.Context, userID string, _ postback.Payload) Result {
	return d.showTasks(ctx, userID)
}

func (d *Dispatcher) notFoundOrFailed(ctx context.Context, what string, err error) Result {
	msg := command.UserMessage(err)
	if msg == command.GenericFailure {
		return d.readFailed(ctx, what, err)
	}
	return Result{Reply: reply.Text(msg)}
}
