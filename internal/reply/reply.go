// Package reply describes outbound messages independent of any platform.
// Adapters render a Card with whatever native widgets they have.
package reply

import "strings"

type CardKind string

const (
	CardMenu              CardKind = "menu"
	CardCategoryPicker    CardKind = "category_picker"
	CardAmountInput       CardKind = "amount_input"
	CardKeypad            CardKind = "keypad"
	CardAccountPicker     CardKind = "account_picker"
	CardNoteInput         CardKind = "note_input"
	CardConfirmation      CardKind = "confirmation"
	CardPeriodPicker      CardKind = "period_picker"
	CardTransactionList   CardKind = "transaction_list"
	CardTransactionDetail CardKind = "transaction_detail"
	CardEditTransaction   CardKind = "edit_transaction"
	CardConfirmDelete     CardKind = "confirm_delete"
	CardTaskList          CardKind = "task_list"
	CardReport            CardKind = "report"
	CardTransfer          CardKind = "transfer"
)

// Button carries a postback payload in Data.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

type Card struct {
	Kind    CardKind `json:"kind"`
	Title   string   `json:"title"`
	Lines   []string `json:"lines,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Reply is at least one of Text or Card.
type Reply struct {
	Text string `json:"text,omitempty"`
	Card *Card  `json:"card,omitempty"`
}

func Text(s string) *Reply {
	return &Reply{Text: s}
}

func WithCard(c *Card) *Reply {
	return &Reply{Card: c}
}

// Body is the text and card title and lines, without buttons.
func (r *Reply) Body() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.Text)
	if r.Card != nil {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Card.Title)
		for _, l := range r.Card.Lines {
			b.WriteString("\n")
			b.WriteString(l)
		}
	}
	return b.String()
}

// Buttons returns the card buttons, if any.
func (r *Reply) Buttons() []Button {
	if r == nil || r.Card == nil {
		return nil
	}
	return r.Card.Buttons
}

// Plain flattens the reply to text, listing button labels, for channels
// without interactive widgets.
func (r *Reply) Plain() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.Body())
	for i, btn := range r.Buttons() {
		if i == 0 {
			b.WriteString("\n")
		}
		b.WriteString("\n[")
		b.WriteString(btn.Label)
		b.WriteString("]")
	}
	return b.String()
}
