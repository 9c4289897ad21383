package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Record is the flat form of a State used by external caches.
type Record struct {
	Awaiting      Awaiting         `json:"awaiting"`
	Type          TxType           `json:"transaction_type,omitempty"`
	Category      string           `json:"category,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Account       string           `json:"account,omitempty"`
	Note          string           `json:"note,omitempty"`
	TransactionID int64            `json:"transaction_id,omitempty"`
	Digits        string           `json:"digits,omitempty"`
	TargetAccount string           `json:"target_account,omitempty"`
}

// Encode flattens s. A nil state encodes as an AwaitNone record.
func Encode(s State) Record {
	switch v := s.(type) {
	case AwaitingAmount:
		return Record{Awaiting: AwaitAmount, Type: v.Type, Category: v.Category, Note: v.Note}
	case AwaitingNote:
		return Record{Awaiting: AwaitNote, Type: v.Type, Category: v.Category, Amount: amountPtr(v.Amount), Account: v.Account}
	case AwaitingCustomCategory:
		r := Record{Awaiting: AwaitCustomCategory, Type: v.Type, Note: v.Note}
		if v.Amount.Valid {
			r.Amount = amountPtr(v.Amount.Decimal)
		}
		return r
	case AwaitingNewAccount:
		return Record{Awaiting: AwaitNewAccount, Type: v.Type, Category: v.Category, Amount: amountPtr(v.Amount), Note: v.Note}
	case AwaitingEditAmount:
		return Record{Awaiting: AwaitEditAmount, TransactionID: v.TransactionID}
	case AwaitingEditNote:
		return Record{Awaiting: AwaitEditNote, TransactionID: v.TransactionID}
	case AwaitingTaskDetails:
		return Record{Awaiting: AwaitTaskDetails}
	case AwaitingKeypadInput:
		return Record{Awaiting: AwaitKeypadInput, Type: v.Type, Category: v.Category, Digits: v.Digits, Note: v.Note}
	case AwaitingTransferAccount:
		return Record{Awaiting: AwaitTransferAccount}
	case AwaitingTransferAmount:
		return Record{Awaiting: AwaitTransferAmount, Account: v.From, TargetAccount: v.To}
	}
	return Record{Awaiting: AwaitNone}
}

// Decode rebuilds the State held by r. ok is false for AwaitNone records
// and for records missing a field their step requires.
func Decode(r Record) (s State, ok bool) {
	typ := ParseTxType(string(r.Type))
	switch r.Awaiting {
	case AwaitAmount:
		if r.Category == "" {
			return nil, false
		}
		return AwaitingAmount{Type: typ, Category: r.Category, Note: r.Note}, true
	case AwaitNote:
		if r.Category == "" || r.Amount == nil {
			return nil, false
		}
		return AwaitingNote{Type: typ, Category: r.Category, Amount: *r.Amount, Account: r.Account}, true
	case AwaitCustomCategory:
		st := AwaitingCustomCategory{Type: typ, Note: r.Note}
		if r.Amount != nil {
			st.Amount = decimal.NewNullDecimal(*r.Amount)
		}
		return st, true
	case AwaitNewAccount:
		if r.Category == "" || r.Amount == nil {
			return nil, false
		}
		return AwaitingNewAccount{Type: typ, Category: r.Category, Amount: *r.Amount, Note: r.Note}, true
	case AwaitEditAmount:
		if r.TransactionID <= 0 {
			return nil, false
		}
		return AwaitingEditAmount{TransactionID: r.TransactionID}, true
	case AwaitEditNote:
		if r.TransactionID <= 0 {
			return nil, false
		}
		return AwaitingEditNote{TransactionID: r.TransactionID}, true
	case AwaitTaskDetails:
		return AwaitingTaskDetails{}, true
	case AwaitKeypadInput:
		if r.Category == "" {
			return nil, false
		}
		return AwaitingKeypadInput{Type: typ, Category: r.Category, Digits: r.Digits, Note: r.Note}, true
	case AwaitTransferAccount:
		return AwaitingTransferAccount{}, true
	case AwaitTransferAmount:
		if r.Account == "" || r.TargetAccount == "" {
			return nil, false
		}
		return AwaitingTransferAmount{From: r.Account, To: r.TargetAccount}, true
	}
	return nil, false
}

// Marshal encodes s as JSON.
func Marshal(s State) ([]byte, error) {
	return json.Marshal(Encode(s))
}

// Unmarshal decodes JSON produced by Marshal. Malformed or incomplete
// records come back as (nil, false, nil) unless the bytes are not JSON.
func Unmarshal(data []byte) (State, bool, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, fmt.Errorf("failed to parse conversation record: %w", err)
	}
	s, ok := Decode(r)
	return s, ok, nil
}

func amountPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
