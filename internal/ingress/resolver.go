package ingress

import (
	"context"
	"fmt"
	"strings"
)

// Resolver fills in who an event belongs to and where replies go.
type Resolver interface {
	ResolveUser(ctx context.Context, event *Event) (string, error)
	ResolveReplyTo(ctx context.Context, event *Event) (string, error)
}

// StandardResolver namespaces user ids by source so the same raw id on two
// platforms never shares conversation state.
type StandardResolver struct{}

func NewStandardResolver() *StandardResolver {
	return &StandardResolver{}
}

func (r *StandardResolver) ResolveUser(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is nil")
	}

	id := strings.TrimSpace(event.UserID)
	if id == "" {
		id = strings.TrimSpace(event.Metadata["user_id"])
	}
	if id == "" {
		return "", fmt.Errorf("event %s has no user", event.ID)
	}

	prefix := event.Source + ":"
	if event.Source == "" || strings.HasPrefix(id, prefix) {
		return id, nil
	}
	return prefix + id, nil
}

func (r *StandardResolver) ResolveReplyTo(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is nil")
	}
	if event.ReplyTo != "" {
		return event.ReplyTo, nil
	}

	var target string
	switch event.Source {
	case "slack":
		target = event.Metadata["channel_id"]
	case "telegram":
		target = event.Metadata["chat_id"]
	case "line":
		target = event.Metadata["reply_token"]
	}
	if target == "" {
		// Fall back to a direct message to the sender.
		target = strings.TrimPrefix(event.UserID, event.Source+":")
	}
	return target, nil
}
