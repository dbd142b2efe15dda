package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
	args   []any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{mu: &sync.Mutex{}, records: &[]capturedLog{}, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger { return l }

func (l *captureLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: cloneFields(l.defaults), args: args})
}

func (l *captureLogger) all() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]capturedLog(nil), *l.records...)
}

type captureMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
}

func (m *captureMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *captureMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.histograms == nil {
		m.histograms = map[string]int{}
	}
	m.histograms[name]++
}

func TestObserver_LogsThroughFieldsLoggerWithSortedArgs(t *testing.T) {
	logger := newCaptureLogger()
	observer := NewObserver("gateway", logger, nil)

	observer.Warn(context.Background(), "dispatch failed", map[string]any{"page_id": "p1", "attempt": 2})

	records := logger.all()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].level != "warn" {
		t.Fatalf("expected warn level, got %s", records[0].level)
	}
	if records[0].fields["page_id"] != "p1" {
		t.Fatalf("expected page_id field, got %v", records[0].fields)
	}
	if want := []any{"attempt", 2, "page_id", "p1"}; !reflect.DeepEqual(records[0].args, want) {
		t.Fatalf("expected sorted args %v, got %v", want, records[0].args)
	}
}

func TestObserver_RedactsCredentials(t *testing.T) {
	logger := newCaptureLogger()
	observer := NewObserver("sender", logger, nil)

	err := Unreachable(errors.New(`Post "https://graph.example/me/messages?access_token=EAAB123": timeout`), "send", nil)
	observer.Error(context.Background(), "send failed", ErrorFields(err, map[string]any{
		"access_token": "EAAB123",
		"page_id":      "p1",
	}))

	records := logger.all()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	fields := records[0].fields
	if fields["access_token"] != RedactedValue {
		t.Fatalf("expected redacted access token, got %v", fields["access_token"])
	}
	if fields["page_id"] != "p1" {
		t.Fatalf("expected page_id to survive, got %v", fields["page_id"])
	}
	if message, _ := fields["error"].(string); strings.Contains(message, "EAAB123") {
		t.Fatalf("expected token scrubbed from error, got %q", message)
	}
	if fields["error_code"] != ErrorUnreachable {
		t.Fatalf("expected unreachable error code, got %v", fields["error_code"])
	}
}

func TestObserver_MetricsArePrefixed(t *testing.T) {
	metrics := &captureMetrics{}
	observer := NewObserver("queue", nil, metrics)

	observer.Count(context.Background(), "published", nil)
	observer.Count(context.Background(), "published", nil)
	observer.Since(context.Background(), "handle_ms", time.Now(), nil)

	if got := metrics.counters["queue.published"]; got != 2 {
		t.Fatalf("expected two published counts, got %d", got)
	}
	if got := metrics.histograms["queue.handle_ms"]; got != 1 {
		t.Fatalf("expected one histogram observation, got %d", got)
	}
}

func TestObserver_ZeroValueIsSafe(t *testing.T) {
	var observer Observer
	observer.Info(context.Background(), "noop", nil)
	observer.Count(context.Background(), "noop", nil)
}

func TestResolveLogger_FallsBackToLogger(t *testing.T) {
	if ResolveLogger("x", nil, nil) == nil {
		t.Fatalf("expected a default logger")
	}
	logger := newCaptureLogger()
	ResolveLogger("x", nil, logger).Info("resolved")
	if records := logger.all(); len(records) != 1 {
		t.Fatalf("expected the given logger to receive the record, got %d", len(records))
	}
}
