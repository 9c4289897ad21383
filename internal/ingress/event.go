package ingress

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	KindText     Kind = "text"
	KindPostback Kind = "postback"
)

func (k Kind) Valid() bool {
	return k == KindText || k == KindPostback
}

// Event is the normalized form of one inbound chat message or button tap.
type Event struct {
	// Identity
	ID         string `json:"id"`                    // ULID
	Source     string `json:"source"`                // "line", "telegram", "slack", "http", "cli"
	ExternalID string `json:"external_id,omitempty"` // platform delivery id, used to drop redeliveries

	// Routing
	UserID  string `json:"user_id"`  // namespaced by the resolver, e.g. "line:U123"
	ReplyTo string `json:"reply_to"` // reply token, chat id or channel id

	Kind    Kind   `json:"kind"`
	Content string `json:"content"` // message text or postback payload

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEvent creates a normalized event with a fresh ULID.
func NewEvent(source string, kind Kind, userID, replyTo, content string, metadata map[string]string) Event {
	return Event{
		ID:        ulid.Make().String(),
		Source:    source,
		Kind:      kind,
		UserID:    userID,
		ReplyTo:   replyTo,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// DeliveryKey scopes a platform delivery id to its source.
func DeliveryKey(source, externalID string) string {
	return fmt.Sprintf("%s:%s", source, externalID)
}
