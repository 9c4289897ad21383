// Package conversation holds what each user is expected to answer next.
//
// A user with no entry is idle. Every other position in a multi-turn flow
// is its own State type carrying only the fields that step needs.
package conversation

import (
	"github.com/shopspring/decimal"
)

// Awaiting names the open question of a flow.
type Awaiting string

const (
	AwaitNone            Awaiting = ""
	AwaitAmount          Awaiting = "amount"
	AwaitNote            Awaiting = "note"
	AwaitCustomCategory  Awaiting = "custom_category"
	AwaitNewAccount      Awaiting = "new_account"
	AwaitEditAmount      Awaiting = "edit_amount"
	AwaitEditNote        Awaiting = "edit_note"
	AwaitTaskDetails     Awaiting = "task_details"
	AwaitKeypadInput     Awaiting = "keypad_input"
	AwaitTransferAccount Awaiting = "transfer_account"
	AwaitTransferAmount  Awaiting = "transfer_amount"
)

// TxType is the direction of a transaction being built.
type TxType string

const (
	Expense TxType = "expense"
	Income  TxType = "income"
)

// ParseTxType maps a postback value onto a TxType. Anything but "income"
// is treated as an expense.
func ParseTxType(s string) TxType {
	if s == string(Income) {
		return Income
	}
	return Expense
}

func (t TxType) IsExpense() bool { return t != Income }

// State is one of the Awaiting* types below.
type State interface {
	Awaiting() Awaiting
}

// AwaitingAmount waits for the amount of a transaction whose category is
// known. Note may be pre-filled by a quick expense.
type AwaitingAmount struct {
	Type     TxType
	Category string
	Note     string
}

// AwaitingNote waits for the note of a fully specified transaction.
type AwaitingNote struct {
	Type     TxType
	Category string
	Amount   decimal.Decimal
	Account  string
}

// AwaitingCustomCategory waits for the name of a category to create.
// Amount is set when the flow started from a quick expense.
type AwaitingCustomCategory struct {
	Type   TxType
	Amount decimal.NullDecimal
	Note   string
}

// AwaitingNewAccount waits for the name of an account to create before
// the pending transaction continues.
type AwaitingNewAccount struct {
	Type     TxType
	Category string
	Amount   decimal.Decimal
	Note     string
}

type AwaitingEditAmount struct {
	TransactionID int64
}

type AwaitingEditNote struct {
	TransactionID int64
}

type AwaitingTaskDetails struct{}

// AwaitingKeypadInput accumulates amount digits from keypad buttons.
type AwaitingKeypadInput struct {
	Type     TxType
	Category string
	Digits   string
	Note     string
}

// AwaitingTransferAccount waits for the name of an account created from
// the transfer menu, which is shown again afterwards.
type AwaitingTransferAccount struct{}

// AwaitingTransferAmount waits for the amount moved From -> To, with an
// optional leading note.
type AwaitingTransferAmount struct {
	From string
	To   string
}

func (AwaitingAmount) Awaiting() Awaiting          { return AwaitAmount }
func (AwaitingNote) Awaiting() Awaiting            { return AwaitNote }
func (AwaitingCustomCategory) Awaiting() Awaiting  { return AwaitCustomCategory }
func (AwaitingNewAccount) Awaiting() Awaiting      { return AwaitNewAccount }
func (AwaitingEditAmount) Awaiting() Awaiting      { return AwaitEditAmount }
func (AwaitingEditNote) Awaiting() Awaiting        { return AwaitEditNote }
func (AwaitingTaskDetails) Awaiting() Awaiting     { return AwaitTaskDetails }
func (AwaitingKeypadInput) Awaiting() Awaiting     { return AwaitKeypadInput }
func (AwaitingTransferAccount) Awaiting() Awaiting { return AwaitTransferAccount }
func (AwaitingTransferAmount) Awaiting() Awaiting  { return AwaitTransferAmount }

// IsIdle reports whether s means "no open question".
func IsIdle(s State) bool {
	return s == nil || s.Awaiting() == AwaitNone
}
