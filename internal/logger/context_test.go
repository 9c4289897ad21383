package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextIDs(t *testing.T) {
	ctx := WithUserID(WithTraceID(context.Background(), "01HZX"), "U123")

	assert.Equal(t, "01HZX", GetTraceID(ctx))
	assert.Equal(t, "U123", GetUserID(ctx))
	assert.Equal(t, "", GetUserID(context.Background()))
}

func TestFromAnnotatesRecords(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	SetupWriter(&buf, "debug", true)
	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "U9")
	From(ctx).Info("turn handled")

	out := buf.String()
	assert.Contains(t, out, "turn handled")
	assert.Contains(t, out, "trace_id=trace-1")
	assert.Contains(t, out, "user_id=U9")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
