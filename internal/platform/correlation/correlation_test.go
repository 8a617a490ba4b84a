package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(NewHandler(slog.NewTextHandler(&buf, nil))), &buf
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		id := NewID()
		require.Len(t, id, 8)
		require.True(t, Valid(id))
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"a1b2c3d4", true},
		{"req_2026-10-17", true},
		{strings.Repeat("x", 64), true},
		{strings.Repeat("x", 65), false},
		{"", false},
		{"has space", false},
		{"newline\ninjected=1", false},
		{"quote\"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.id), "Valid(%q)", tt.id)
	}
}

func TestID(t *testing.T) {
	_, ok := ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok, "an empty id counts as absent")

	id, ok := ID(WithID(context.Background(), "lobby-42"))
	assert.True(t, ok)
	assert.Equal(t, "lobby-42", id)
}

func TestEnsure_KeepsExistingID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	require.True(t, Valid(id))

	same, again := Ensure(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}

func TestAdopt(t *testing.T) {
	ctx, id := Adopt(context.Background(), "upstream-7")
	assert.Equal(t, "upstream-7", id)
	got, _ := ID(ctx)
	assert.Equal(t, "upstream-7", got)

	ctx, id = Adopt(context.Background(), "bad value")
	assert.NotEqual(t, "bad value", id)
	assert.Len(t, id, 8)
	got, _ = ID(ctx)
	assert.Equal(t, id, got)
}

func TestHandler_StampsRecords(t *testing.T) {
	logger, buf := newBufferLogger()

	logger.InfoContext(WithID(context.Background(), "abc123"), "Content published", "channel_id", "lobby")
	logger.InfoContext(context.Background(), "Startup")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "correlation_id=abc123")
	assert.Contains(t, lines[0], "channel_id=lobby")
	assert.NotContains(t, lines[1], "correlation_id")
}

func TestHandler_SurvivesWithAttrsAndGroups(t *testing.T) {
	logger, buf := newBufferLogger()
	logger = logger.With("component", "relay").WithGroup("msg")

	logger.InfoContext(WithID(context.Background(), "abc123"), "Relayed", "removed", true)

	out := buf.String()
	assert.Contains(t, out, "component=relay")
	assert.Contains(t, out, "msg.removed=true")
	assert.Contains(t, out, "correlation_id=abc123")
}
