package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Nell373/linebot-ai/internal/command"
	"github.com/nats-io/nats.go"
)

// QueueGroup spreads requests across every `kimi ledger serve` instance.
const QueueGroup = "kimi-ledger"

// Service answers exec and query requests for a Ledger.
type Service struct {
	conn    *nats.Conn
	subject string
	ledger  Ledger
	timeout time.Duration
	subs    []*nats.Subscription
}

func NewService(conn *nats.Conn, subject string, ledger Ledger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{conn: conn, subject: subject, ledger: ledger, timeout: timeout}
}

func (s *Service) Start() error {
	handlers := map[string]func(context.Context, []byte) Response{
		ExecSubject(s.subject):  s.Exec,
		QuerySubject(s.subject): s.Query,
	}
	for subject, handle := range handlers {
		sub, err := s.conn.QueueSubscribe(subject, QueueGroup, s.responder(handle))
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		slog.Info("Subscribed", "component", "transport", "subject", subject, "queue", QueueGroup)
	}
	return nil
}

func (s *Service) responder(handle func(context.Context, []byte) Response) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		resp := handle(ctx, msg.Data)
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error("Failed to marshal response", "component", "transport", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error("Failed to send response", "component", "transport", "subject", msg.Subject, "error", err)
		}
	}
}

// Exec decodes a command envelope and applies it.
func (s *Service) Exec(ctx context.Context, data []byte) Response {
	cmd, err := command.Unmarshal(data)
	if err != nil {
		slog.Warn("Invalid command", "component", "transport", "error", err)
		return failure(ErrorParse, err)
	}

	receipt, err := s.ledger.Execute(ctx, cmd)
	if err != nil {
		var rej *command.Rejection
		if !errors.As(err, &rej) {
			slog.Error("Command failed", "component", "transport", "kind", cmd.Kind(), "user_id", cmd.Owner(), "error", err)
		}
		return failure(ErrorFailed, err)
	}
	return Response{Status: StatusOK, Receipt: &receipt}
}

// Query decodes a read request and answers it.
func (s *Service) Query(ctx context.Context, data []byte) Response {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return failure(ErrorParse, err)
	}

	result, err := Answer(ctx, s.ledger, q)
	if err != nil {
		return failure(ErrorFailed, err)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return failure(ErrorFailed, err)
	}
	return Response{Status: StatusOK, Result: raw}
}

// Close drains the subscriptions so in-flight requests are answered.
func (s *Service) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}
