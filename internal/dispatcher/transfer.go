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
)

// transferType marks a new_account button pressed from the transfer menu.
const transferType = "transfer"

const msgTransferAmount = "請輸入轉帳金額，可在前面加上備註，例如：5000 或 房租15000"

// transferMenu lists the source accounts. A transfer needs two accounts,
// so users with fewer are offered to create one first.
func (d *Dispatcher) transferMenu(ctx context.Context, userID string) Result {
	accounts, err := d.reader.Accounts(ctx, userID)
	if err != nil {
		return d.readFailed(ctx, "accounts", err)
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(transferSourceCard(accounts))}
}

func (d *Dispatcher) onTransferMenu(ctx context.Context, userID string, _ postback.Payload) Result {
	return d.transferMenu(ctx, userID)
}

func (d *Dispatcher) onTransferFrom(ctx context.Context, userID string, p postback.Payload) Result {
	from := strings.TrimSpace(p.Value("account"))
	if from == "" {
		return invalidPayload()
	}
	accounts, err := d.reader.Accounts(ctx, userID)
	if err != nil {
		return d.readFailed(ctx, "accounts", err)
	}
	d.clear(ctx, userID)
	return Result{Reply: reply.WithCard(transferTargetCard(from, accounts))}
}

func (d *Dispatcher) onTransferTo(ctx context.Context, userID string, p postback.Payload) Result {
	from := strings.TrimSpace(p.Value("from"))
	to := strings.TrimSpace(p.Value("to"))
	if from == "" || to == "" || from == to {
		return invalidPayload()
	}
	return d.advance(ctx, userID, conversation.AwaitingTransferAmount{From: from, To: to},
		reply.Text(from+" → "+to+"\n"+msgTransferAmount))
}

func (d *Dispatcher) answerTransferAmount(ctx context.Context, userID string, st conversation.AwaitingTransferAmount, text string) Result {
	note, amount, err := grammar.SplitNoteAmount(text)
	if err != nil || !amount.IsPositive() {
		return Result{Reply: reply.Text(msgBadAmount)}
	}
	return d.finish(ctx, userID, command.Transfer{
		UserID: userID,
		From:   st.From,
		To:     st.To,
		Amount: amount,
		Note:   note,
	})
}

// answerTransferAccount creates the named account and shows the transfer
// menu again with it included.
func (d *Dispatcher) answerTransferAccount(ctx context.Context, userID, text string) Result {
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
	res := d.transferMenu(ctx, userID)
	res.Command = cmd
	if res.Reply != nil && res.Reply.Card != nil {
		res.Reply.Text = receipt.Message
	}
	return res
}

func transferSourceCard(accounts []entity.Account) *reply.Card {
	if len(accounts) < 2 {
		return &reply.Card{
			Kind:  reply.CardTransfer,
			Title: "需要至少兩個帳戶",
			Lines: []string{"轉帳需要至少兩個帳戶，請先新增帳戶"},
			Buttons: []reply.Button{
				btn("新增帳戶", postback.New(postback.ActionNewAccount).Set("type", transferType)),
				btn("主選單", postback.New(postback.ActionMainMenu)),
			},
		}
	}
	c := &reply.Card{
		Kind:  reply.CardTransfer,
		Title: "選擇轉出帳戶",
	}
	for i, acct := range accounts {
		if i >= maxListButtons {
			break
		}
		c.Buttons = append(c.Buttons, btn(acct.Name, postback.New(postback.ActionTransferFrom).Set("account", acct.Name)))
	}
	c.Buttons = append(c.Buttons,
		btn("新增帳戶", postback.New(postback.ActionNewAccount).Set("type", transferType)),
		btn("取消", postback.New(postback.ActionCancel)),
	)
	return c
}

func transferTargetCard(from string, accounts []entity.Account) *reply.Card {
	c := &reply.Card{
		Kind:  reply.CardTransfer,
		Title: "選擇轉入帳戶",
		Lines: []string{"轉出帳戶：" + from},
	}
	shown := 0
	for _, acct := range accounts {
		if acct.Name == from || shown >= maxListButtons {
			continue
		}
		shown++
		c.Buttons = append(c.Buttons, btn(acct.Name,
			postback.New(postback.ActionTransferTo).Set("from", from).Set("to", acct.Name)))
	}
	c.Buttons = append(c.Buttons, btn("返回", postback.New(postback.ActionTransferMenu)))
	return c
}
