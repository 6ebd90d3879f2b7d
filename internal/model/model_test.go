package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short message", "Hello", "Hello"},
		{"exactly twenty chars", "12345678901234567890", "12345678901234567890"},
		{"long first line", "this is a rather long first message", "this is a rather lon..."},
		{"short first line but long content", "Hi\nthis continuation makes the message long", "Hi..."},
		{"multiline under limit", "Hi\nthere", "Hi"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}

func TestParsedTime(t *testing.T) {
	m := ServerMessage{Timestamp: "2026-08-01T10:00:00Z"}
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), m.ParsedTime())

	m = ServerMessage{Timestamp: "2026-08-01 10:00:00"}
	assert.False(t, m.ParsedTime().IsZero())

	m = ServerMessage{Timestamp: "not a time"}
	assert.True(t, m.ParsedTime().IsZero())
}

func TestToMessage(t *testing.T) {
	sm := ServerMessage{
		ChatID:     "c1",
		Role:       RoleAssistant,
		Content:    "hello",
		Timestamp:  "2026-08-01T10:00:00Z",
		Image:      "https://example.com/greened.png",
		ObjectName: "backyard",
	}

	m := sm.ToMessage()
	assert.Equal(t, RoleAssistant, m.Role)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, "https://example.com/greened.png", m.ResponseImage)
	assert.Equal(t, "backyard", m.ObjectName)
	assert.True(t, m.HasImage())
}

func TestHasImage(t *testing.T) {
	assert.False(t, (&Message{Content: "text"}).HasImage())
	assert.True(t, (&Message{Image: "data:image/png;base64,x"}).HasImage())
	assert.True(t, (&Message{ResponseImage: "https://example.com/x.png"}).HasImage())
}
