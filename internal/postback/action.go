// Package postback encodes and decodes button callback payloads of the
// form "action=<name>&key=value&...".
package postback

// Action is the closed set of callback actions. Unknown names decode to
// ActionUnknown.
type Action int

const (
	ActionUnknown Action = iota

	// flow steps
	ActionRecord
	ActionCategory
	ActionCustomCategory
	ActionAmount
	ActionKeypadStart
	ActionKeypad
	ActionAccount
	ActionNewAccount
	ActionQuickExpense
	ActionEditTransaction
	ActionEditAmount
	ActionEditNote
	ActionAddTask
	ActionConfirmDelete
	ActionTransferMenu
	ActionTransferFrom
	ActionTransferTo

	// terminal steps
	ActionFinish
	ActionSkipNote
	ActionCreateCategory
	ActionUpdateCategory
	ActionUpdateAccount
	ActionDeleteTransaction
	ActionTaskComplete
	ActionTaskSnooze
	ActionTaskDelete

	// navigation
	ActionBackToCategory
	ActionBackToAmount
	ActionBackToAccount
	ActionMainMenu
	ActionCancel
	ActionViewTransactions
	ActionViewTransaction
	ActionTaskList

	actionCount
)

var actionNames = [actionCount]string{
	ActionUnknown:           "",
	ActionRecord:            "record",
	ActionCategory:          "category",
	ActionCustomCategory:    "custom_category",
	ActionAmount:            "amount",
	ActionKeypadStart:       "keypad_start",
	ActionKeypad:            "keypad",
	ActionAccount:           "account",
	ActionNewAccount:        "new_account",
	ActionQuickExpense:      "quick_expense",
	ActionEditTransaction:   "edit_transaction",
	ActionEditAmount:        "edit_amount",
	ActionEditNote:          "edit_note",
	ActionAddTask:           "add_task",
	ActionConfirmDelete:     "confirm_delete",
	ActionTransferMenu:      "create_transfer_menu",
	ActionTransferFrom:      "transfer_from",
	ActionTransferTo:        "transfer_to",
	ActionFinish:            "finish",
	ActionSkipNote:          "skip_note",
	ActionCreateCategory:    "create_category",
	ActionUpdateCategory:    "update_category",
	ActionUpdateAccount:     "update_account",
	ActionDeleteTransaction: "delete_transaction",
	ActionTaskComplete:      "task_complete",
	ActionTaskSnooze:        "task_snooze",
	ActionTaskDelete:        "task_delete",
	ActionBackToCategory:    "back_to_category",
	ActionBackToAmount:      "back_to_amount",
	ActionBackToAccount:     "back_to_account",
	ActionMainMenu:          "main_menu",
	ActionCancel:            "cancel",
	ActionViewTransactions:  "view_transactions",
	ActionViewTransaction:   "view_transaction",
	ActionTaskList:          "task_list",
}

var actionsByName = func() map[string]Action {
	m := make(map[string]Action, actionCount)
	for a := ActionUnknown + 1; a < actionCount; a++ {
		m[actionNames[a]] = a
	}
	return m
}()

// ParseAction maps a wire name onto an Action.
func ParseAction(name string) Action {
	if a, ok := actionsByName[name]; ok {
		return a
	}
	return ActionUnknown
}

func (a Action) String() string {
	if a <= ActionUnknown || a >= actionCount {
		return "unknown"
	}
	return actionNames[a]
}

// Actions lists every known action except ActionUnknown.
func Actions() []Action {
	out := make([]Action, 0, actionCount-1)
	for a := ActionUnknown + 1; a < actionCount; a++ {
		out = append(out, a)
	}
	return out
}

// IsTerminal reports whether the action hands a command to the executor
// and ends the flow.
func (a Action) IsTerminal() bool {
	return a >= ActionFinish && a <= ActionTaskDelete
}
