package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/reply"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const (
	SlackEventsPath       = "/slack/events"
	SlackInteractionsPath = "/slack/interactions"

	slackButtonsPerBlock = 5
)

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

type SlackAdapter struct {
	signingSecret string
	botToken      string
	eventHandler  EventHandler
	server        *http.Server
	port          int
	client        slackPoster
}

func NewSlackAdapter(port int, signingSecret, botToken string, eventHandler EventHandler) *SlackAdapter {
	if signingSecret == "" {
		signingSecret = os.Getenv("SLACK_SIGNING_SECRET")
	}
	if botToken == "" {
		botToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	return &SlackAdapter{
		signingSecret: signingSecret,
		botToken:      botToken,
		eventHandler:  eventHandler,
		port:          port,
		client:        slack.New(botToken),
	}
}

func (s *SlackAdapter) Name() string {
	return "slack"
}

func (s *SlackAdapter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SlackEventsPath, s.handleEvents)
	mux.HandleFunc(SlackInteractionsPath, s.handleInteractions)
	return mux
}

func (s *SlackAdapter) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		slog.Info("Slack Adapter listening", "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Slack server failed", "error", err)
		}
	}()

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

func (s *SlackAdapter) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Send posts r to the channel in to.ReplyTo. Buttons become action blocks.
func (s *SlackAdapter) Send(ctx context.Context, to Target, r *reply.Reply) error {
	channel := to.ReplyTo
	if channel == "" {
		channel = to.UserID
	}
	opts := []slack.MsgOption{slack.MsgOptionText(r.Plain(), false)}
	if blocks := slackBlocks(r); len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}

	if _, _, err := s.client.PostMessageContext(ctx, channel, opts...); err != nil {
		return errors.Wrap(err, "failed to send Slack message")
	}
	slog.Debug("Slack message sent", "channel", channel)
	return nil
}

func slackBlocks(r *reply.Reply) []slack.Block {
	buttons := r.Buttons()
	if len(buttons) == 0 {
		return nil
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, r.Body(), false, false), nil, nil),
	}
	var elements []slack.BlockElement
	for i, b := range buttons {
		text := slack.NewTextBlockObject(slack.PlainTextType, b.Label, false, false)
		elements = append(elements, slack.NewButtonBlockElement(fmt.Sprintf("kimi_%d", i), b.Data, text))
		if len(elements) == slackButtonsPerBlock {
			blocks = append(blocks, slack.NewActionBlock("", elements...))
			elements = nil
		}
	}
	if len(elements) > 0 {
		blocks = append(blocks, slack.NewActionBlock("", elements...))
	}
	return blocks
}

func (s *SlackAdapter) Health(ctx context.Context) error {
	if s.server == nil {
		return errors.Transient("Slack server not started")
	}

	if s.client == nil {
		return errors.Transient("Slack client not initialized")
	}

	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return errors.Transient("Slack connection failed")
	}

	return nil
}

// verify reads the body and checks the request signature.
func (s *SlackAdapter) verify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}

	sv, err := slack.NewSecretsVerifier(r.Header, s.signingSecret)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	if _, err := sv.Write(body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	if err := sv.Ensure(); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

func (s *SlackAdapter) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, ok := s.verify(w, r)
	if !ok {
		return
	}

	eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if eventsAPIEvent.Type == slackevents.URLVerification {
		var challenge *slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
		return
	}

	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		var deliveryID string
		if cb, ok := eventsAPIEvent.Data.(*slackevents.EventsAPICallbackEvent); ok {
			deliveryID = cb.EventID
		}

		switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			// Our own replies come back as bot messages.
			if ev.BotID != "" || ev.SubType != "" || s.eventHandler == nil {
				break
			}
			metadata := map[string]string{
				"channel_id":   ev.Channel,
				"ts":           ev.TimeStamp,
				MetaDeliveryID: deliveryID,
			}
			if err := s.eventHandler(r.Context(), "slack", KindText, ev.User, ev.Channel, ev.Text, metadata); err != nil {
				slog.Error("Failed to handle Slack event", "error", err)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *SlackAdapter) handleInteractions(w http.ResponseWriter, r *http.Request) {
	body, ok := s.verify(w, r)
	if !ok {
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var callback slack.InteractionCallback
	if err := json.NewDecoder(bytes.NewBufferString(form.Get("payload"))).Decode(&callback); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if callback.Type == slack.InteractionTypeBlockActions && s.eventHandler != nil {
		for _, action := range callback.ActionCallback.BlockActions {
			if action == nil || action.Value == "" {
				continue
			}
			metadata := map[string]string{
				"channel_id":   callback.Channel.ID,
				MetaUserName:   callback.User.Name,
				MetaDeliveryID: callback.TriggerID + ":" + action.ActionID,
			}
			if err := s.eventHandler(r.Context(), "slack", KindPostback, callback.User.ID, callback.Channel.ID, action.Value, metadata); err != nil {
				slog.Error("Failed to handle Slack interaction", "error", err)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}
