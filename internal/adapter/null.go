package adapter

import (
	"context"
	"log/slog"

	"github.com/Nell373/linebot-ai/internal/reply"
)

// NullAdapter discards replies. It backs sources with no outbound channel,
// such as events posted to the HTTP API.
type NullAdapter struct {
	name string
}

func NewNullAdapter(name string) *NullAdapter {
	if name == "" {
		name = "null"
	}
	return &NullAdapter{name: name}
}

func (a *NullAdapter) Name() string {
	return a.name
}

func (a *NullAdapter) Send(ctx context.Context, to Target, r *reply.Reply) error {
	slog.Debug("Reply discarded", "adapter", a.name, "reply_to", to.ReplyTo, "length", len(r.Plain()))
	return nil
}

func (a *NullAdapter) Health(ctx context.Context) error {
	return nil
}
