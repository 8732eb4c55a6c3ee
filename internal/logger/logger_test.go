package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, 0, false)

	l.Info("Auth service: login", "user_id", "42")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "msg=\"Auth service: login\"")
	assert.Contains(t, out, "user_id=42")
	assert.NotContains(t, out, "hidden")
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, -4, true)

	l.Debug("refresh", "outcome", "ok")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "refresh", rec["msg"])
	assert.Equal(t, "ok", rec["outcome"])
}
