package adapter

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/Nell373/linebot-ai/internal/config"
	"github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/reply"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
)

const (
	// Telegram rejects callback_data longer than this.
	telegramMaxCallbackBytes = 64
	telegramButtonsPerRow    = 2
	telegramTokenPrefix      = "~"
	telegramMaxTokens        = 4096

	msgButtonExpired = "按鈕已過期，請重新開始"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetMe() (tgbotapi.User, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// callbackTokens swaps payloads too long for callback_data with short
// tokens. The oldest tokens are forgotten first.
type callbackTokens struct {
	mu    sync.Mutex
	data  map[string]string
	order []string
	limit int
}

func newCallbackTokens(limit int) *callbackTokens {
	return &callbackTokens{data: make(map[string]string), limit: limit}
}

func (c *callbackTokens) shorten(payload string) string {
	if len(payload) <= telegramMaxCallbackBytes && !strings.HasPrefix(payload, telegramTokenPrefix) {
		return payload
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	token := telegramTokenPrefix + ulid.Make().String()
	c.data[token] = payload
	c.order = append(c.order, token)
	for len(c.order) > c.limit {
		delete(c.data, c.order[0])
		c.order = c.order[1:]
	}
	return token
}

func (c *callbackTokens) expand(data string) (string, bool) {
	if !strings.HasPrefix(data, telegramTokenPrefix) {
		return data, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.data[data]
	return payload, ok
}

type TelegramAdapter struct {
	token         string
	updateTimeout int
	eventHandler  EventHandler
	bot           telegramAPI
	tokens        *callbackTokens
}

func NewTelegramAdapter(token string, eventHandler EventHandler, updateTimeout int) *TelegramAdapter {
	if updateTimeout <= 0 {
		updateTimeout = config.DefaultTelegramUpdateTimeout
	}
	return &TelegramAdapter{
		token:         token,
		updateTimeout: updateTimeout,
		eventHandler:  eventHandler,
		tokens:        newCallbackTokens(telegramMaxTokens),
	}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

func (t *TelegramAdapter) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return errors.Wrap(err, "failed to init telegram bot")
	}
	t.bot = bot

	slog.Info("Telegram Adapter started", "user", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.updateTimeout
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()

	return nil
}

func (t *TelegramAdapter) Stop(ctx context.Context) error {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}

func (t *TelegramAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if t.eventHandler == nil {
		return
	}
	deliveryID := strconv.Itoa(update.UpdateID)

	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, deliveryID, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if msg.Text == "" {
			return
		}
		chatID := strconv.FormatInt(msg.Chat.ID, 10)
		metadata := map[string]string{
			"chat_id":      chatID,
			MetaUserName:   msg.From.UserName,
			MetaDeliveryID: deliveryID,
		}
		userID := strconv.FormatInt(msg.From.ID, 10)
		if err := t.eventHandler(ctx, "telegram", KindText, userID, chatID, msg.Text, metadata); err != nil {
			slog.Error("Failed to handle Telegram event", "error", err)
		}
	}
}

func (t *TelegramAdapter) handleCallback(ctx context.Context, deliveryID string, cb *tgbotapi.CallbackQuery) {
	payload, ok := t.tokens.expand(cb.Data)

	// Telegram keeps the button spinning until the query is answered.
	answer := tgbotapi.NewCallback(cb.ID, "")
	if !ok {
		answer.Text = msgButtonExpired
	}
	if _, err := t.bot.Request(answer); err != nil {
		slog.Warn("Failed to answer Telegram callback", "error", err)
	}
	if !ok || cb.From == nil || cb.Message == nil {
		return
	}

	chatID := strconv.FormatInt(cb.Message.Chat.ID, 10)
	metadata := map[string]string{
		"chat_id":      chatID,
		MetaUserName:   cb.From.UserName,
		MetaDeliveryID: deliveryID,
	}
	userID := strconv.FormatInt(cb.From.ID, 10)
	if err := t.eventHandler(ctx, "telegram", KindPostback, userID, chatID, payload, metadata); err != nil {
		slog.Error("Failed to handle Telegram callback", "error", err)
	}
}

// Send posts r to the chat in to.ReplyTo with an inline keyboard.
func (t *TelegramAdapter) Send(ctx context.Context, to Target, r *reply.Reply) error {
	if t.bot == nil {
		return errors.Transient("Telegram bot not initialized")
	}
	chatID, err := strconv.ParseInt(to.ReplyTo, 10, 64)
	if err != nil {
		return errors.InvalidInput("invalid telegram chat ID: " + err.Error())
	}

	msg := tgbotapi.NewMessage(chatID, r.Body())
	if kb, ok := t.keyboard(r.Buttons()); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}

	slog.Debug("Telegram message sent", "chat_id", to.ReplyTo)
	return nil
}

func (t *TelegramAdapter) keyboard(buttons []reply.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, t.tokens.shorten(b.Data)))
		if len(row) == telegramButtonsPerRow {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func (t *TelegramAdapter) Health(ctx context.Context) error {
	if t.bot == nil {
		return errors.Transient("Telegram bot not initialized")
	}

	if _, err := t.bot.GetMe(); err != nil {
		return errors.Transient("Telegram connection failed: " + err.Error())
	}

	return nil
}
