package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoggerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path, discardLogger())
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	events := []Event{
		{Op: "vault_list", Outcome: OutcomeSuccess},
		{Op: "item_get", Outcome: OutcomeNotFound, Vault: "v1", Item: "Prod DB"},
		{Op: "item_unlock", Outcome: OutcomeInvalidLink},
	}
	for _, e := range events {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	for i, e := range lines {
		if e.ID == "" {
			t.Errorf("line %d missing id", i)
		}
		if e.Time.IsZero() {
			t.Errorf("line %d missing time", i)
		}
	}
	if lines[1].Op != "item_get" || lines[1].Outcome != OutcomeNotFound {
		t.Errorf("line 1 = %+v", lines[1])
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path, discardLogger())
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 0600", perm)
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	// Two open/record/close cycles must not truncate.
	for i := 0; i < 2; i++ {
		l, err := NewLogger(path, discardLogger())
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
		if err := l.Record(context.Background(), Event{Op: "vault_list", Outcome: OutcomeSuccess}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		l.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
}

type captureRecorder struct {
	events []Event
	err    error
}

func (c *captureRecorder) Record(ctx context.Context, event Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a := &captureRecorder{}
	b := &captureRecorder{}

	m := Multi{a, b}
	if err := m.Record(context.Background(), Event{Op: "item_get", Outcome: OutcomeSuccess}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("events = %d/%d, want 1/1", len(a.events), len(b.events))
	}
	// Both recorders must see the same filled ID.
	if a.events[0].ID == "" || a.events[0].ID != b.events[0].ID {
		t.Errorf("ids differ: %q vs %q", a.events[0].ID, b.events[0].ID)
	}
}

func TestMultiReportsFirstErrorButRecordsAll(t *testing.T) {
	bad := &captureRecorder{err: errors.New("disk full")}
	good := &captureRecorder{}

	m := Multi{bad, good}
	err := m.Record(context.Background(), Event{Op: "item_get", Outcome: OutcomeSuccess})
	if err == nil {
		t.Fatal("expected error from failing recorder")
	}
	if len(good.events) != 1 {
		t.Errorf("good recorder events = %d, want 1 despite sibling failure", len(good.events))
	}
}

func TestFillPreservesExistingValues(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Event{ID: "fixed", Time: when}
	fill(&e)
	if e.ID != "fixed" {
		t.Errorf("ID = %q, want fixed", e.ID)
	}
	if !e.Time.Equal(when) {
		t.Errorf("Time = %v, want %v", e.Time, when)
	}
}
