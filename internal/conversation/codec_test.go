package conversation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTripsEveryVariant(t *testing.T) {
	states := []State{
		AwaitingAmount{Type: Expense, Category: "餐飲", Note: "早餐"},
		AwaitingNote{Type: Income, Category: "薪資", Amount: decimal.RequireFromString("5000.5"), Account: "銀行"},
		AwaitingCustomCategory{Type: Expense},
		AwaitingCustomCategory{Type: Expense, Amount: decimal.NewNullDecimal(decimal.NewFromInt(80)), Note: "咖啡"},
		AwaitingNewAccount{Type: Expense, Category: "交通", Amount: decimal.NewFromInt(30)},
		AwaitingEditAmount{TransactionID: 7},
		AwaitingEditNote{TransactionID: 9},
		AwaitingTaskDetails{},
		AwaitingKeypadInput{Type: Expense, Category: "購物", Digits: "12.5"},
		AwaitingTransferAccount{},
		AwaitingTransferAmount{From: "現金", To: "銀行"},
	}

	for _, st := range states {
		t.Run(string(st.Awaiting()), func(t *testing.T) {
			data, err := Marshal(st)
			require.NoError(t, err)

			got, ok, err := Unmarshal(data)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, st.Awaiting(), got.Awaiting())

			again, err := Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(again))
		})
	}
}

func TestDecode_RejectsIncompleteRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"none", Record{}},
		{"unknown step", Record{Awaiting: "bogus"}},
		{"amount without category", Record{Awaiting: AwaitAmount}},
		{"note without amount", Record{Awaiting: AwaitNote, Category: "餐飲"}},
		{"new account without amount", Record{Awaiting: AwaitNewAccount, Category: "餐飲"}},
		{"edit without id", Record{Awaiting: AwaitEditAmount}},
		{"edit note negative id", Record{Awaiting: AwaitEditNote, TransactionID: -1}},
		{"keypad without category", Record{Awaiting: AwaitKeypadInput, Digits: "1"}},
		{"transfer without target", Record{Awaiting: AwaitTransferAmount, Account: "現金"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := Decode(tt.rec)
			assert.False(t, ok)
			assert.Nil(t, s)
		})
	}
}

func TestDecode_TransferAmount(t *testing.T) {
	st, ok := Decode(Record{Awaiting: AwaitTransferAmount, Account: "現金", TargetAccount: "銀行"})
	require.True(t, ok)
	assert.Equal(t, AwaitingTransferAmount{From: "現金", To: "銀行"}, st)
}

func TestUnmarshal_MalformedJSON(t *testing.T) {
	_, ok, err := Unmarshal([]byte("{not json"))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestEncode_NilIsNone(t *testing.T) {
	assert.Equal(t, Record{Awaiting: AwaitNone}, Encode(nil))
	assert.True(t, IsIdle(nil))
}

func TestParseTxType(t *testing.T) {
	assert.Equal(t, Income, ParseTxType("income"))
	assert.Equal(t, Expense, ParseTxType("expense"))
	assert.Equal(t, Expense, ParseTxType(""))
	assert.True(t, Expense.IsExpense())
	assert.False(t, Income.IsExpense())
}
