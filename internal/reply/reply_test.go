package reply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlain(t *testing.T) {
	var nilReply *Reply
	assert.Equal(t, "", nilReply.Plain())
	assert.Equal(t, "hi", Text("hi").Plain())

	r := &Reply{
		Text: "已記錄",
		Card: &Card{
			Kind:    CardAccountPicker,
			Title:   "選擇帳戶",
			Lines:   []string{"支出 餐飲 $150"},
			Buttons: []Button{{Label: "默認", Data: "action=account"}, {Label: "返回", Data: "action=back_to_amount"}},
		},
	}
	assert.Equal(t, "已記錄\n\n選擇帳戶\n支出 餐飲 $150\n\n[默認]\n[返回]", r.Plain())
	assert.Equal(t, "選擇帳戶", WithCard(&Card{Title: "選擇帳戶"}).Plain())
}
