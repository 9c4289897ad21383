package ingress

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kerrors "github.com/Nell373/linebot-ai/internal/errors"
	"github.com/Nell373/linebot-ai/internal/idempotency"
)

func newTestIngress(size int) *Ingress {
	guard := idempotency.NewGuard(idempotency.WithWindow(10 * time.Minute))
	return NewIngress(size, RuntimeConfig{SubmitTimeout: 20 * time.Millisecond, DrainTimeout: 50 * time.Millisecond}, guard)
}

func TestIngress_New(t *testing.T) {
	ingress := NewIngress(100, RuntimeConfig{}, nil)
	if ingress == nil {
		t.Fatal("NewIngress returned nil")
	}
	if cap(ingress.queue) != 100 {
		t.Errorf("Queue capacity: got %d, want 100", cap(ingress.queue))
	}

	ingress = NewIngress(0, RuntimeConfig{}, nil)
	if cap(ingress.queue) <= 0 {
		t.Error("Default queue size not applied")
	}
}

func TestIngress_SubmitResolvesUserAndReplyTo(t *testing.T) {
	ingress := newTestIngress(10)

	evt := NewEvent("telegram", KindText, "789", "", "午餐120", map[string]string{"chat_id": "456"})
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got := <-ingress.Queue()
	if got.UserID != "telegram:789" {
		t.Errorf("UserID: got %q, want %q", got.UserID, "telegram:789")
	}
	if got.ReplyTo != "456" {
		t.Errorf("ReplyTo: got %q, want %q", got.ReplyTo, "456")
	}
}

func TestIngress_DuplicateDelivery(t *testing.T) {
	ingress := newTestIngress(10)

	evt := NewEvent("line", KindPostback, "U1", "token", "action=main_menu", nil)
	evt.ExternalID = "webhook-1"
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}

	again := NewEvent("line", KindPostback, "U1", "token", "action=main_menu", nil)
	again.ExternalID = "webhook-1"
	if err := ingress.Submit(context.Background(), &again); !errors.Is(err, kerrors.ErrDuplicateEvent) {
		t.Errorf("Second submit: got %v, want ErrDuplicateEvent", err)
	}

	// Without a delivery id nothing is deduplicated here; button taps are
	// handled by the dispatcher's guard.
	plain := NewEvent("line", KindPostback, "U1", "token", "action=main_menu", nil)
	if err := ingress.Submit(context.Background(), &plain); err != nil {
		t.Errorf("Submit without external id failed: %v", err)
	}
}

func TestIngress_Backpressure(t *testing.T) {
	ingress := newTestIngress(2)

	for i := 0; i < 2; i++ {
		evt := NewEvent("cli", KindText, "u", "", "hello", nil)
		if err := ingress.Submit(context.Background(), &evt); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	evt := NewEvent("cli", KindText, "u", "", "hello", nil)
	if err := ingress.Submit(context.Background(), &evt); !errors.Is(err, kerrors.ErrTransient) {
		t.Errorf("Full queue: got %v, want ErrTransient", err)
	}
	if err := ingress.Health(context.Background()); err == nil {
		t.Error("Health should report a full queue")
	}
}

func TestIngress_RetryAfterBackpressureIsAccepted(t *testing.T) {
	ingress := newTestIngress(1)

	first := NewEvent("http", KindText, "U1", "", "午餐120", nil)
	first.ExternalID = "e0"
	if err := ingress.Submit(context.Background(), &first); err != nil {
		t.Fatalf("Submit e0 failed: %v", err)
	}

	evt := NewEvent("http", KindText, "U1", "", "晚餐200", nil)
	evt.ExternalID = "e1"
	if err := ingress.Submit(context.Background(), &evt); !errors.Is(err, kerrors.ErrTransient) {
		t.Fatalf("Full queue: got %v, want ErrTransient", err)
	}

	<-ingress.Queue()

	retry := NewEvent("http", KindText, "U1", "", "晚餐200", nil)
	retry.ExternalID = "e1"
	if err := ingress.Submit(context.Background(), &retry); err != nil {
		t.Fatalf("Retry after backpressure: got %v, want nil", err)
	}
	got := <-ingress.Queue()
	if got.Content != "晚餐200" {
		t.Errorf("queued content: got %q", got.Content)
	}

	// Once queued, the same delivery id is a duplicate again.
	again := NewEvent("http", KindText, "U1", "", "晚餐200", nil)
	again.ExternalID = "e1"
	if err := ingress.Submit(context.Background(), &again); !errors.Is(err, kerrors.ErrDuplicateEvent) {
		t.Errorf("Second delivery: got %v, want ErrDuplicateEvent", err)
	}
}

func TestIngress_RetryAfterCloseIsNotDuplicate(t *testing.T) {
	guard := idempotency.NewGuard(idempotency.WithWindow(10 * time.Minute))
	ingress := NewIngress(1, RuntimeConfig{SubmitTimeout: 20 * time.Millisecond, DrainTimeout: 10 * time.Millisecond}, guard)
	if err := ingress.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	evt := NewEvent("line", KindText, "U1", "tok", "早餐50", nil)
	evt.ExternalID = "webhook-9"
	if err := ingress.Submit(context.Background(), &evt); !errors.Is(err, kerrors.ErrTransient) {
		t.Fatalf("Closed ingress: got %v, want ErrTransient", err)
	}
	if !guard.ShouldProcess("line", "webhook-9") {
		t.Error("a delivery that was never queued must stay retryable")
	}
}

func TestIngress_Rejects(t *testing.T) {
	ingress := newTestIngress(10)

	if err := ingress.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil event")
	}

	evt := NewEvent("cli", "sticker", "u", "", "hi", nil)
	if err := ingress.Submit(context.Background(), &evt); !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("Unknown kind: got %v, want ErrInvalidInput", err)
	}

	evt = NewEvent("cli", KindText, "", "", "hi", nil)
	if err := ingress.Submit(context.Background(), &evt); !errors.Is(err, kerrors.ErrInvalidInput) {
		t.Errorf("Missing user: got %v, want ErrInvalidInput", err)
	}
}

func TestIngress_EmptyContentDropped(t *testing.T) {
	ingress := newTestIngress(10)

	evt := NewEvent("cli", KindText, "u", "", "   ", nil)
	if err := ingress.Submit(context.Background(), &evt); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(ingress.queue) != 0 {
		t.Errorf("Queue length: got %d, want 0", len(ingress.queue))
	}
}

func TestIngress_Close(t *testing.T) {
	ingress := newTestIngress(10)

	for i := 0; i < 3; i++ {
		evt := NewEvent("cli", KindText, "u", "", "hello", nil)
		if err := ingress.Submit(context.Background(), &evt); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	// Nobody consumes, so the drain stalls and the queue is closed anyway.
	if err := ingress.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	count := 0
	for range ingress.Queue() {
		count++
	}
	if count != 3 {
		t.Errorf("Buffered events after close: got %d, want 3", count)
	}
}

func TestRouter_RegisterCommand(t *testing.T) {
	router := NewStandardRouter()

	called := false
	router.RegisterCommand("/ping", func(ctx context.Context, evt *Event) error {
		called = true
		return nil
	})

	evt := NewEvent("cli", KindText, "u", "", "/PING", nil)
	dest := router.Route(context.Background(), &evt)

	if dest.Type != DestCommand {
		t.Fatalf("Route type: got %d, want DestCommand", dest.Type)
	}
	if err := dest.Handler(context.Background(), &evt); err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if !called {
		t.Error("Handler was not called")
	}
}

func TestRouter_Aliases(t *testing.T) {
	tests := []struct {
		in      string
		kind    Kind
		content string
	}{
		{"/expense 午餐 120", KindText, "午餐120"},
		{"/expense 午餐 120 麥當勞 大麥克", KindText, "午餐120 麥當勞 大麥克"},
		{`/expense 午餐 120 "two words"`, KindText, "午餐120 two words"},
		{"/income 薪資 5000", KindText, "薪資+5000"},
		{"/remind 開會 明天 15:00", KindText, "提醒 開會 明天 15:00"},
		{"/report", KindText, "月報"},
		{"/report 2024-5", KindText, "月報2024-5"},
		{"/postback action=main_menu", KindPostback, "action=main_menu"},
		// Incomplete aliases pass through untouched.
		{"/expense 午餐", KindText, "/expense 午餐"},
		{"/postback", KindText, "/postback"},
		{"/menu", KindText, "/menu"},
		{"hello world", KindText, "hello world"},
	}

	router := NewStandardRouter()
	for _, tt := range tests {
		evt := NewEvent("cli", KindText, "u", "", tt.in, nil)
		dest := router.Route(context.Background(), &evt)
		if dest.Type != DestPipeline {
			t.Errorf("%q: got type %d, want DestPipeline", tt.in, dest.Type)
		}
		if evt.Kind != tt.kind || evt.Content != tt.content {
			t.Errorf("%q: got (%s, %q), want (%s, %q)", tt.in, evt.Kind, evt.Content, tt.kind, tt.content)
		}
	}
}

func TestRouter_ChatPlatformTextNotRewritten(t *testing.T) {
	router := NewStandardRouter()

	for _, source := range []string{"line", "telegram", "slack"} {
		for _, in := range []string{"/report 2024", "/postback action=main_menu", "/expense 午餐 120"} {
			evt := NewEvent(source, KindText, "u", "", in, nil)
			dest := router.Route(context.Background(), &evt)
			if dest.Type != DestPipeline {
				t.Errorf("%s %q: got type %d, want DestPipeline", source, in, dest.Type)
			}
			if evt.Kind != KindText || evt.Content != in {
				t.Errorf("%s %q: rewritten to (%s, %q)", source, in, evt.Kind, evt.Content)
			}
		}
	}

	evt := NewEvent("http", KindText, "u", "", "/report 2024", nil)
	router.Route(context.Background(), &evt)
	if evt.Content != "月報2024" {
		t.Errorf("http alias: got %q, want %q", evt.Content, "月報2024")
	}
}

func TestRouter_PostbackNotRewritten(t *testing.T) {
	router := NewStandardRouter()

	evt := NewEvent("line", KindPostback, "u", "", "/expense a 1", nil)
	router.Route(context.Background(), &evt)
	if evt.Kind != KindPostback || evt.Content != "/expense a 1" {
		t.Errorf("postback was rewritten: %+v", evt)
	}
}

func TestResolver_Namespacing(t *testing.T) {
	r := NewStandardResolver()

	tests := []struct {
		evt     Event
		user    string
		replyTo string
	}{
		{Event{Source: "line", UserID: "U1", Metadata: map[string]string{"reply_token": "tok"}}, "line:U1", "tok"},
		{Event{Source: "slack", UserID: "slack:U9", Metadata: map[string]string{"channel_id": "C1"}}, "slack:U9", "C1"},
		{Event{Source: "telegram", Metadata: map[string]string{"user_id": "42"}}, "telegram:42", "42"},
		{Event{Source: "cli", UserID: "me", ReplyTo: "tty"}, "cli:me", "tty"},
		{Event{UserID: "raw"}, "raw", "raw"},
	}

	for _, tt := range tests {
		evt := tt.evt
		user, err := r.ResolveUser(context.Background(), &evt)
		if err != nil {
			t.Fatalf("ResolveUser(%+v) failed: %v", tt.evt, err)
		}
		if user != tt.user {
			t.Errorf("ResolveUser(%+v): got %q, want %q", tt.evt, user, tt.user)
		}
		evt.UserID = user
		replyTo, err := r.ResolveReplyTo(context.Background(), &evt)
		if err != nil {
			t.Fatalf("ResolveReplyTo failed: %v", err)
		}
		if replyTo != tt.replyTo {
			t.Errorf("ResolveReplyTo(%+v): got %q, want %q", tt.evt, replyTo, tt.replyTo)
		}
	}
}

func TestHTTPHandler(t *testing.T) {
	ingress := newTestIngress(1)
	h := NewHTTPHandler(ingress)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, EventsPath, bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := post(`{"user_id":"U1","content":"午餐120","external_id":"e1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	if !strings.Contains(rr.Body.String(), `"accepted"`) {
		t.Errorf("body = %s", rr.Body.String())
	}

	rr = post(`{"user_id":"U1","content":"午餐120","external_id":"e1"}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "duplicate") {
		t.Errorf("duplicate: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = post(`{"user_id":"U1","content":"again"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("full queue: status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}

	if rr = post(`{"content":"x"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing user: status = %d", rr.Code)
	}
	if rr = post(`{"user_id":"U1","content":"x","kind":"sticker"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status = %d", rr.Code)
	}
	if rr = post(`{`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, EventsPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d", rec.Code)
	}

	got := <-ingress.Queue()
	if got.Source != "http" || got.UserID != "http:U1" {
		t.Errorf("queued event: %+v", got)
	}
}
