package sampling

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/gosuffix/go-csa-sampling/internal/common"
)

func newBufferLogger(buf *bytes.Buffer, level common.LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level:  level,
		logger: log.New(buf, "", 0),
		fields: make(map[string]interface{}),
	}
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v: %q", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestDefaultLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, common.LogLevelInfo)

	logger.Debug("suppressed at info level")
	logger.Info("building", "variant", "fuzzy", "density", 32)

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["level"] != "INFO" || e["message"] != "building" {
		t.Fatalf("unexpected entry: %v", e)
	}
	if e["variant"] != "fuzzy" || e["density"] != float64(32) {
		t.Fatalf("key-value fields not carried: %v", e)
	}
	if _, ok := e["timestamp"]; !ok {
		t.Fatalf("entry has no timestamp: %v", e)
	}
}

func TestDefaultLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf, common.LogLevelDebug)

	derived := base.WithFields(map[string]interface{}{"component": "cache", "density": 8})
	derived.Info("opened", "density", 16)
	base.Info("plain")

	entries := decodeEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["component"] != "cache" {
		t.Fatalf("persistent field missing: %v", entries[0])
	}
	// Call-site fields win over persistent ones.
	if entries[0]["density"] != float64(16) {
		t.Fatalf("call-site field not preferred: %v", entries[0])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Fatalf("base logger gained derived fields: %v", entries[1])
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, common.LogLevelInfo)

	LogError(logger, "construction failed", errors.New("artifact not found in cache"), "variant", "bwt-char")

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["level"] != "ERROR" {
		t.Fatalf("unexpected level: %v", e)
	}
	if e["error"] != "artifact not found in cache" || e["variant"] != "bwt-char" {
		t.Fatalf("error context not carried: %v", e)
	}
}
