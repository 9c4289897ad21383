package adapter

import (
	"context"

	"github.com/Nell373/linebot-ai/internal/reply"
)

// Event kinds passed to an EventHandler.
const (
	KindText     = "text"
	KindPostback = "postback"
)

// Metadata keys adapters fill in.
const (
	MetaDeliveryID = "delivery_id" // platform id of this delivery, for redelivery checks
	MetaUserName   = "user_name"
)

// EventHandler is a callback function for handling events from adapters.
// It keeps adapters free of an ingress import.
type EventHandler func(ctx context.Context, source, kind, userID, replyTo, content string, metadata map[string]string) error

// Target addresses an outbound reply. ReplyTo is what the adapter handed
// to the EventHandler; UserID is the raw platform user for push fallbacks.
type Target struct {
	UserID  string
	ReplyTo string
}

// InputAdapter defines the interface for adapters that receive events from external platforms
type InputAdapter interface {
	// Name returns the adapter name (e.g. "line", "telegram", "slack").
	Name() string

	// Start begins listening for events (e.g. starts a server or long-poll).
	// Must respect context cancellation.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter.
	Stop(ctx context.Context) error

	// Health checks if the adapter is healthy and connected.
	Health(ctx context.Context) error
}

// OutputAdapter defines the interface for adapters that send replies to external platforms
type OutputAdapter interface {
	Name() string

	// Send renders r with the platform's native widgets.
	Send(ctx context.Context, to Target, r *reply.Reply) error

	Health(ctx context.Context) error
}
