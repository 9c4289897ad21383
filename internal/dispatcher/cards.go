package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/Nell373/linebot-ai/internal/conversation"
	"github.com/Nell373/linebot-ai/internal/entity"
	"github.com/Nell373/linebot-ai/internal/grammar"
	"github.com/Nell373/linebot-ai/internal/postback"
	"github.com/Nell373/linebot-ai/internal/reply"
	"github.com/shopspring/decimal"
)

const helpText = `📝 使用說明 📝
=== 記帳功能 ===
記錄支出：早餐50 或 午餐120 麥當勞
快速記帳：早餐-50 或 早餐-50 麥當勞
記錄收入：收入5000 或 薪資+5000
帳戶轉帳：轉帳
查詢記錄：今天 或 昨天 或 本週 或 本月
查看統計：月報 或 月報2023-5

=== 提醒功能 ===
添加提醒：提醒 內容 2023-5-20 14:30 每週
新增任務：新增任務
查看提醒：提醒列表 或 所有提醒
完成提醒：提醒完成 3
刪除提醒：提醒刪除 3

=== 筆記功能 ===
新增筆記：筆記 標題（換行輸入內容）#標籤
查看筆記：筆記列表 或 筆記列表 #標籤
筆記內容：筆記 3
更新筆記：筆記更新 3 新標題 #標籤
刪除筆記：筆記刪除 3

主選單：kimi 或 選單
初始化功能：初始化
取消目前操作：取消`

// maxListButtons caps per-item buttons; LINE quick replies allow 13.
const maxListButtons = 10

func typeLabel(t conversation.TxType) string {
	if t == conversation.Income {
		return "收入"
	}
	return "支出"
}

func money(d decimal.Decimal) string {
	return "$" + d.String()
}

func btn(label string, b *postback.Builder) reply.Button {
	return reply.Button{Label: label, Data: b.String()}
}

func menuCard() *reply.Card {
	return &reply.Card{
		Kind:  reply.CardMenu,
		Title: "Kimi 主選單",
		Lines: []string{"請選擇要進行的操作"},
		Buttons: []reply.Button{
			btn("記錄支出", postback.New(postback.ActionRecord).Set("type", string(conversation.Expense))),
			btn("記錄收入", postback.New(postback.ActionRecord).Set("type", string(conversation.Income))),
			btn("查看記錄", postback.New(postback.ActionViewTransactions).Set("period", string(grammar.PeriodToday))),
			btn("轉帳", postback.New(postback.ActionTransferMenu)),
			btn("新增任務", postback.New(postback.ActionAddTask)),
			btn("我的任務", postback.New(postback.ActionTaskList)),
		},
	}
}

func categoryCard(t conversation.TxType, cats []entity.Category) *reply.Card {
	c := &reply.Card{
		Kind:  reply.CardCategoryPicker,
		Title: "選擇" + typeLabel(t) + "類別",
	}
	for _, cat := range cats {
		c.Buttons = append(c.Buttons, btn(cat.Label(),
			postback.New(postback.ActionCategory).Set("type", string(t)).Set("category", cat.Name)))
	}
	c.Buttons = append(c.Buttons,
		btn("自定義類別", postback.New(postback.ActionCustomCategory).Set("type", string(t))),
		btn("取消", postback.New(postback.ActionCancel)),
	)
	return c
}

// quickCategoryCard is shown when a quick expense keyword matches no
// existing category.
func quickCategoryCard(keyword string, amount decimal.Decimal, note string, cats []entity.Category) *reply.Card {
	c := &reply.Card{
		Kind:  reply.CardCategoryPicker,
		Title: "選擇類別",
		Lines: []string{fmt.Sprintf("%s %s", keyword, money(amount))},
	}
	for _, cat := range cats {
		c.Buttons = append(c.Buttons, btn(cat.Label(),
			postback.New(postback.ActionQuickExpense).
				Set("amount", amount.String()).
				Set("category", cat.Name).
				Set("note", note)))
	}
	c.Buttons = append(c.Buttons,
		btn("新增「"+keyword+"」類別", postback.New(postback.ActionCreateCategory).
			Set("name", keyword).
			Set("is_expense", "true").
			Set("amount", amount.String()).
			Set("note", note)),
		btn("自定義類別", postback.New(postback.ActionCustomCategory).
			Set("type", string(conversation.Expense)).
			Set("quick_expense", "true").
			Set("amount", amount.String()).
			Set("note", note)),
		btn("取消", postback.New(postback.ActionCancel)),
	)
	return c
}

func amountCard(t conversation.TxType, category string) *reply.Card {
	return &reply.Card{
		Kind:  reply.CardAmountInput,
		Title: "輸入" + typeLabel(t) + "金額",
		Lines: []string{"類別：" + category, "請直接輸入金額，例如：150 或 早餐150"},
		Buttons: []reply.Button{
			btn("使用數字鍵盤", postback.New(postback.ActionKeypadStart).Set("type", string(t)).Set("category", category)),
			btn("返回", postback.New(postback.ActionBackToCategory).Set("type", string(t))),
		},
	}
}

var keypadKeys = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", ".", "0", "del", "clear", "ok"}

var keypadLabels = map[string]string{"del": "⌫", "clear": "清除", "ok": "確定"}

// keypadCard carries the current buffer in every key so that pressing the
// same key twice in a row yields two distinct payloads.
func keypadCard(st conversation.AwaitingKeypadInput) *reply.Card {
	display := st.Digits
	if display == "" {
		display = "0"
	}
	c := &reply.Card{
		Kind:  reply.CardKeypad,
		Title: typeLabel(st.Type) + " " + st.Category,
		Lines: []string{"金額：" + display},
	}
	for _, k := range keypadKeys {
		label := k
		if l, ok := keypadLabels[k]; ok {
			label = l
		}
		c.Buttons = append(c.Buttons, btn(label,
			postback.New(postback.ActionKeypad).Set("key", k).Set("buf", st.Digits)))
	}
	c.Buttons = append(c.Buttons, btn("取消", postback.New(postback.ActionCancel)))
	return c
}

type draft struct {
	Type     conversation.TxType
	Category string
	Amount   decimal.Decimal
	Account  string
	Note     string
}

func (dr draft) payload(a postback.Action) *postback.Builder {
	return postback.New(a).
		Set("type", string(dr.Type)).
		Set("category", dr.Category).
		Set("amount", dr.Amount.String()).
		Set("account", dr.Account).
		Set("note", dr.Note)
}

func (dr draft) summary() string {
	return fmt.Sprintf("%s %s %s", typeLabel(dr.Type), dr.Category, money(dr.Amount))
}

func accountCard(dr draft, accounts []entity.Account) *reply.Card {
	if len(accounts) == 0 {
		accounts = []entity.Account{{Name: entity.DefaultAccount}}
	}
	c := &reply.Card{
		Kind:  reply.CardAccountPicker,
		Title: "選擇帳戶",
		Lines: []string{dr.summary(), "請選擇要使用的帳戶"},
	}
	for _, acct := range accounts {
		pick := dr
		pick.Account = acct.Name
		c.Buttons = append(c.Buttons, btn(acct.Name, pick.payload(postback.ActionAccount)))
	}
	noAccount := dr
	noAccount.Account = ""
	c.Buttons = append(c.Buttons,
		btn("新增帳戶", noAccount.payload(postback.ActionNewAccount)),
		btn("返回", postback.New(postback.ActionBackToAmount).Set("type", string(dr.Type)).Set("category", dr.Category)),
	)
	return c
}

func noteCard(dr draft) *reply.Card {
	back := dr
	back.Account = ""
	return &reply.Card{
		Kind:  reply.CardNoteInput,
		Title: "輸入備註",
		Lines: []string{dr.summary(), "帳戶：" + dr.Account, "請輸入備註，或輸入「無」跳過"},
		Buttons: []reply.Button{
			btn("跳過", dr.payload(postback.ActionSkipNote)),
			btn("返回", back.payload(postback.ActionBackToAccount)),
		},
	}
}

func confirmationCard(dr draft) *reply.Card {
	back := dr
	back.Account = ""
	lines := []string{dr.summary(), "帳戶：" + dr.Account}
	if dr.Note != "" {
		lines = append(lines, "備註："+dr.Note)
	}
	return &reply.Card{
		Kind:  reply.CardConfirmation,
		Title: "確認記錄",
		Lines: lines,
		Buttons: []reply.Button{
			btn("確認", dr.payload(postback.ActionFinish)),
			btn("返回", back.payload(postback.ActionBackToAccount)),
		},
	}
}

func periodCard() *reply.Card {
	c := &reply.Card{Kind: reply.CardPeriodPicker, Title: "查看記錄"}
	for _, p := range []grammar.Period{grammar.PeriodToday, grammar.PeriodYesterday, grammar.PeriodWeek, grammar.PeriodMonth} {
		c.Buttons = append(c.Buttons, btn(periodLabel(p), postback.New(postback.ActionViewTransactions).Set("period", string(p))))
	}
	c.Buttons = append(c.Buttons, btn("主選單", postback.New(postback.ActionMainMenu)))
	return c
}

func transactionLine(tx entity.Transaction, loc *time.Location) string {
	sign := "-"
	if !tx.IsExpense {
		sign = "+"
	}
	line := fmt.Sprintf("%s %s %s%s", tx.CreatedAt.In(loc).Format("01/02"), strings.TrimSpace(tx.CategoryIcon+" "+tx.Category), sign, money(tx.Amount))
	if tx.Note != "" {
		line += " " + tx.Note
	}
	return line
}

func summaryLines(s entity.Summary) []string {
	return []string{
		"收入：" + money(s.Income),
		"支出：" + money(s.Expense),
		"結餘：" + money(s.Balance()),
	}
}

func transactionListCard(title string, s entity.Summary, txs []entity.Transaction, loc *time.Location) *reply.Card {
	c := &reply.Card{
		Kind:  reply.CardTransactionList,
		Title: title,
		Lines: summaryLines(s),
	}
	if len(txs) == 0 {
		c.Lines = append(c.Lines, "沒有記錄")
	}
	for i, tx := range txs {
		c.Lines = append(c.Lines, transactionLine(tx, loc))
		if i < maxListButtons {
			c.Buttons = append(c.Buttons, btn(fmt.Sprintf("#%d %s %s", tx.ID, tx.Category, money(tx.Amount)),
				postback.New(postback.ActionViewTransaction).SetInt("id", tx.ID)))
		}
	}
	c.Buttons = append(c.Buttons, btn("主選單", postback.New(postback.ActionMainMenu)))
	return c
}

func transactionDetailCard(tx entity.Transaction, loc *time.Location) *reply.Card {
	lines := []string{
		"類別：" + strings.TrimSpace(tx.CategoryIcon+" "+tx.Category),
		"金額：" + money(tx.Amount),
		"帳戶：" + tx.Account,
		"時間：" + tx.CreatedAt.In(loc).Format("2006-01-02 15:04"),
	}
	if tx.Note != "" {
		lines = append(lines, "備註："+tx.Note)
	}
	kind := "支出"
	if !tx.IsExpense {
		kind = "收入"
	}
	return &reply.Card{
		Kind:  reply.CardTransactionDetail,
		Title: fmt.Sprintf("%s明細 #%d", kind, tx.ID),
		Lines: lines,
		Buttons: []reply.Button{
			btn("編輯", postback.New(postback.ActionEditTransaction).SetInt("id", tx.ID)),
			btn("刪除", postback.New(postback.ActionConfirmDelete).SetInt("id", tx.ID)),
			btn("返回列表", postback.New(postback.ActionViewTransactions).Set("period", string(grammar.PeriodToday))),
		},
	}
}

func editTransactionCard(tx entity.Transaction, cats []entity.Category, accounts []entity.Account) *reply.Card {
	c := &reply.Card{
		Kind:  reply.CardEditTransaction,
		Title: fmt.Sprintf("編輯 #%d", tx.ID),
		Lines: []string{
			fmt.Sprintf("%s %s（%s）", tx.Category, money(tx.Amount), tx.Account),
		},
		Buttons: []reply.Button{
			btn("修改金額", postback.New(postback.ActionEditAmount).SetInt("id", tx.ID)),
			btn("修改備註", postback.New(postback.ActionEditNote).SetInt("id", tx.ID)),
		},
	}
	for _, cat := range cats {
		if cat.ID == tx.CategoryID {
			continue
		}
		c.Buttons = append(c.Buttons, btn("類別："+cat.Name,
			postback.New(postback.ActionUpdateCategory).SetInt("id", tx.ID).SetInt("category_id", cat.ID)))
	}
	for _, acct := range accounts {
		if acct.ID == tx.AccountID {
			continue
		}
		c.Buttons = append(c.Buttons, btn("帳戶："+acct.Name,
			postback.New(postback.ActionUpdateAccount).SetInt("id", tx.ID).SetInt("account_id", acct.ID)))
	}
	c.Buttons = append(c.Buttons, btn("返回", postback.New(postback.ActionViewTransaction).SetInt("id", tx.ID)))
	return c
}

func confirmDeleteCard(tx entity.Transaction, loc *time.Location) *reply.Card {
	return &reply.Card{
		Kind:  reply.CardConfirmDelete,
		Title: "確認刪除",
		Lines: []string{
			fmt.Sprintf("%s %s", tx.Category, money(tx.Amount)),
			tx.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			"刪除後無法復原",
		},
		Buttons: []reply.Button{
			btn("確認刪除", postback.New(postback.ActionDeleteTransaction).SetInt("id", tx.ID)),
			btn("取消", postback.New(postback.ActionViewTransaction).SetInt("id", tx.ID)),
		},
	}
}

var repeatLabels = map[string]string{"daily": "每天", "weekly": "每週", "monthly": "每月"}

func taskLine(t entity.Task, loc *time.Location) string {
	line := t.Content
	if t.DueAt != nil {
		line += " ⏰ " + t.DueAt.In(loc).Format("01/02 15:04")
	}
	if l, ok := repeatLabels[string(t.Repeat)]; ok {
		line += " 🔁 " + l
	}
	if t.Done {
		line = "✅ " + line
	}
	return line
}

func taskListCard(tasks []entity.Task, loc *time.Location) *reply.Card {
	c := &reply.Card{Kind: reply.CardTaskList, Title: "任務列表"}
	if len(tasks) == 0 {
		c.Lines = []string{"目前沒有任務"}
	}
	shown := 0
	for _, t := range tasks {
		c.Lines = append(c.Lines, fmt.Sprintf("#%d %s", t.ID, taskLine(t, loc)))
		if t.Done || shown >= maxListButtons/2 {
			continue
		}
		shown++
		c.Buttons = append(c.Buttons,
			btn(fmt.Sprintf("完成 #%d", t.ID), postback.New(postback.ActionTaskComplete).SetInt("task_id", t.ID)),
			btn(fmt.Sprintf("刪除 #%d", t.ID), postback.New(postback.ActionTaskDelete).SetInt("task_id", t.ID)),
		)
		if t.DueAt != nil {
			c.Buttons = append(c.Buttons,
				btn(fmt.Sprintf("稍後 #%d", t.ID), postback.New(postback.ActionTaskSnooze).SetInt("task_id", t.ID)))
		}
	}
	c.Buttons = append(c.Buttons, btn("新增任務", postback.New(postback.ActionAddTask)))
	return c
}

func reportCard(year int, month time.Month, s entity.Summary) *reply.Card {
	lines := summaryLines(s)
	if len(s.ByCategory) > 0 {
		lines = append(lines, "", "支出分類：")
		for _, ct := range s.ByCategory {
			pct := decimal.Zero
			if s.Expense.IsPositive() {
				pct = ct.Amount.Div(s.Expense).Mul(decimal.NewFromInt(100)).Round(1)
			}
			lines = append(lines, fmt.Sprintf("%s %s %s（%s%%）", ct.Icon, ct.Category, money(ct.Amount), pct.String()))
		}
	}
	return &reply.Card{
		Kind:  reply.CardReport,
		Title: fmt.Sprintf("%d年%d月 收支報告", year, int(month)),
		Lines: lines,
		Buttons: []reply.Button{
			btn("查看本月記錄", postback.New(postback.ActionViewTransactions).Set("period", string(grammar.PeriodMonth))),
			btn("主選單", postback.New(postback.ActionMainMenu)),
		},
	}
}
