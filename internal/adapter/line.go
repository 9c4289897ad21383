package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/Nell373/linebot-ai/internal/reply"
	kerrors "github.com/Nell373/linebot-ai/internal/errors"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// LINE limits.
const (
	lineMaxQuickReplies = 13
	lineMaxLabelRunes   = 20
	lineMaxTextRunes    = 5000
	lineMaxDataBytes    = 300
)

// LineCallbackPath is where the LINE platform posts webhooks.
const LineCallbackPath = "/line/callback"

type lineSender interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(req *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
}

type LineAdapter struct {
	channelSecret string
	channelToken  string
	port          int
	eventHandler  EventHandler
	server        *http.Server
	bot           lineSender
}

func NewLineAdapter(port int, channelSecret, channelToken string, eventHandler EventHandler) (*LineAdapter, error) {
	if channelSecret == "" {
		channelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	}
	if channelToken == "" {
		channelToken = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	}
	bot, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init LINE client: %w", err)
	}
	return &LineAdapter{
		channelSecret: channelSecret,
		channelToken:  channelToken,
		port:          port,
		eventHandler:  eventHandler,
		bot:           bot,
	}, nil
}

func (l *LineAdapter) Name() string {
	return "line"
}

func (l *LineAdapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(LineCallbackPath, l.handleCallback)

	l.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", l.port),
		Handler: mux,
	}

	go func() {
		slog.Info("LINE Adapter listening", "port", l.port, "path", LineCallbackPath)
		if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("LINE server failed", "error", err)
		}
	}()

	<-ctx.Done()
	return l.server.Shutdown(context.Background())
}

func (l *LineAdapter) Stop(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown(ctx)
}

func (l *LineAdapter) Health(ctx context.Context) error {
	if l.server == nil {
		return kerrors.Transient("LINE server not started")
	}
	if l.bot == nil {
		return kerrors.Transient("LINE client not initialized")
	}
	return nil
}

func (l *LineAdapter) handleCallback(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(l.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			w.WriteHeader(http.StatusBadRequest)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	for _, event := range cb.Events {
		switch e := event.(type) {
		case webhook.MessageEvent:
			text, ok := e.Message.(webhook.TextMessageContent)
			if !ok {
				continue
			}
			l.dispatch(r.Context(), KindText, e.Source, e.ReplyToken, e.WebhookEventId, text.Text)
		case webhook.PostbackEvent:
			if e.Postback == nil {
				continue
			}
			l.dispatch(r.Context(), KindPostback, e.Source, e.ReplyToken, e.WebhookEventId, e.Postback.Data)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (l *LineAdapter) dispatch(ctx context.Context, kind string, source webhook.SourceInterface, replyToken, eventID, content string) {
	userID := lineUserID(source)
	if userID == "" || l.eventHandler == nil {
		return
	}
	metadata := map[string]string{
		"reply_token":  replyToken,
		MetaDeliveryID: eventID,
	}
	if err := l.eventHandler(ctx, "line", kind, userID, replyToken, content, metadata); err != nil {
		slog.Error("Failed to handle LINE event", "error", err, "kind", kind)
	}
}

func lineUserID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

// Send replies with the reply token and falls back to a push message when
// the token was already used or expired.
func (l *LineAdapter) Send(ctx context.Context, to Target, r *reply.Reply) error {
	msg := lineMessage(r)

	if to.ReplyTo != "" {
		_, err := l.bot.ReplyMessage(&messaging_api.ReplyMessageRequest{
			ReplyToken: to.ReplyTo,
			Messages:   []messaging_api.MessageInterface{msg},
		})
		if err == nil {
			slog.Debug("LINE reply sent", "user_id", to.UserID)
			return nil
		}
		if to.UserID == "" {
			return kerrors.Wrap(err, "failed to send LINE reply")
		}
		slog.Warn("LINE reply failed, pushing instead", "user_id", to.UserID, "error", err)
	}

	if _, err := l.bot.PushMessage(&messaging_api.PushMessageRequest{
		To:       to.UserID,
		Messages: []messaging_api.MessageInterface{msg},
	}, ""); err != nil {
		return kerrors.Wrap(err, "failed to push LINE message")
	}
	return nil
}

// lineMessage renders a card as a text message with quick reply buttons.
func lineMessage(r *reply.Reply) messaging_api.TextMessage {
	msg := messaging_api.TextMessage{Text: clipRunes(r.Body(), lineMaxTextRunes)}
	if msg.Text == "" {
		msg.Text = "…"
	}

	var items []messaging_api.QuickReplyItem
	for _, b := range r.Buttons() {
		if len(items) == lineMaxQuickReplies {
			break
		}
		if len(b.Data) > lineMaxDataBytes {
			slog.Warn("LINE postback data too long, button dropped", "label", b.Label)
			continue
		}
		label := clipRunes(b.Label, lineMaxLabelRunes)
		items = append(items, messaging_api.QuickReplyItem{
			Action: &messaging_api.PostbackAction{
				Label:       label,
				Data:        b.Data,
				DisplayText: label,
			},
		})
	}
	if len(items) > 0 {
		msg.QuickReply = &messaging_api.QuickReply{Items: items}
	}
	return msg
}

func clipRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max-1]) + "…"
}
