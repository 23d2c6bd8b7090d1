// Package logging routes the standard logger to stdout and an append-only log file.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// maxPayloadLen caps how much of a request payload is written per line.
const maxPayloadLen = 2048

var (
	mu      sync.Mutex
	logFile *os.File
	debug   atomic.Bool
)

// Init sends log output to stdout and, when logPath is set, to logPath.
// Calling Init again closes the previous file.
func Init(logPath string) error {
	return InitWithWriter(os.Stdout, logPath)
}

// InitWithWriter is Init with a console writer other than stdout.
func InitWithWriter(console io.Writer, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close flushes and closes the log file and restores stderr output.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// SetDebug toggles LogDebug output.
func SetDebug(enabled bool) { debug.Store(enabled) }

// DebugEnabled reports whether LogDebug writes anything.
func DebugEnabled() bool { return debug.Load() }

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogDebug is LogEvent gated on SetDebug.
func LogDebug(format string, args ...any) {
	if !debug.Load() {
		return
	}
	log.Println("[DEBUG] " + fmt.Sprintf(format, args...))
}

// LogRequest records provider traffic. op names the endpoint, e.g. "embeddings" or "chat".
func LogRequest(direction, host, model, op string, payload any) {
	msg := buildRequestMessage(direction, host, model, op, payload)
	log.Println(msg)
}

func buildRequestMessage(direction, host, model, op string, payload any) string {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	hostValue := strings.TrimSpace(host)
	if hostValue == "" {
		hostValue = "unknown"
	}
	modelValue := strings.TrimSpace(model)
	if modelValue == "" {
		modelValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("host=%s", hostValue))
	parts = append(parts, fmt.Sprintf("model=%s", modelValue))
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", op))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", truncate(formatPayload(payload))))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func truncate(s string) string {
	if len(s) <= maxPayloadLen {
		return s
	}
	cut := maxPayloadLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:cut], len(s))
}
