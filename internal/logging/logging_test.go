package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

type testStringer string

func (s testStringer) String() string { return string(s) }

func TestInitAndLoggingToFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "nested", "coachrag.log")

	var console bytes.Buffer
	if err := InitWithWriter(&console, logPath); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
		SetDebug(false)
	})

	LogEvent("hello %s", "world")
	LogDebug("hidden %d", 1)
	SetDebug(true)
	LogDebug("shown %d", 2)
	_ = Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "hello world") {
		t.Fatalf("expected LogEvent content, got: %s", content)
	}
	if strings.Contains(content, "hidden 1") {
		t.Fatalf("debug line written while debug disabled: %s", content)
	}
	if !strings.Contains(content, "[DEBUG] shown 2") {
		t.Fatalf("expected debug content, got: %s", content)
	}
	if !strings.Contains(console.String(), "hello world") {
		t.Fatalf("expected console copy, got: %s", console.String())
	}
}

func TestBuildRequestMessageDefaults(t *testing.T) {
	msg := buildRequestMessage(" in ", " ", "", " chat ", map[string]any{"ok": true})
	if !strings.Contains(msg, "[IN]") {
		t.Fatalf("expected uppercased direction, got: %s", msg)
	}
	if !strings.Contains(msg, "host=unknown") {
		t.Fatalf("expected default host, got: %s", msg)
	}
	if !strings.Contains(msg, "model=unknown") {
		t.Fatalf("expected default model, got: %s", msg)
	}
	if !strings.Contains(msg, "op=chat") {
		t.Fatalf("expected op name, got: %s", msg)
	}
	if !strings.Contains(msg, "payload={\"ok\":true}") {
		t.Fatalf("expected payload json, got: %s", msg)
	}
}

func TestFormatPayloadVariants(t *testing.T) {
	if got := formatPayload(nil); got != "null" {
		t.Fatalf("nil payload: %s", got)
	}
	if got := formatPayload(" "); got != `""` {
		t.Fatalf("empty string payload: %s", got)
	}
	if got := formatPayload([]byte("hi")); got != "hi" {
		t.Fatalf("byte payload: %s", got)
	}
	if got := formatPayload(testStringer("ok")); got != "ok" {
		t.Fatalf("stringer payload: %s", got)
	}
}

func TestLongPayloadTruncated(t *testing.T) {
	msg := buildRequestMessage("out", "h", "m", "", strings.Repeat("x", maxPayloadLen+10))
	if !strings.HasSuffix(msg, "...(2058 bytes)") {
		t.Fatalf("expected truncated payload, got suffix %q", msg[len(msg)-20:])
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	payload := strings.Repeat("x", maxPayloadLen-1) + strings.Repeat("é", 10)
	msg := buildRequestMessage("out", "h", "m", "", payload)
	if !utf8.ValidString(msg) {
		t.Fatalf("truncated message is not valid UTF-8")
	}
	if !strings.HasSuffix(msg, strings.Repeat("x", 10)+"...(2067 bytes)") {
		t.Fatalf("expected cut before the first multi-byte rune, got suffix %q", msg[len(msg)-30:])
	}
}
