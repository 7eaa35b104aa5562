package vault

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jkaninda/mlinzi/internal/audit"
	"github.com/jkaninda/mlinzi/internal/opcli"
)

// fakeInvoker scripts op responses per invocation and records argv.
type fakeInvoker struct {
	fn    func(args []string) ([]byte, error)
	calls [][]string
}

func (f *fakeInvoker) Run(_ context.Context, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	return f.fn(args)
}

// memoryTrail collects audit events for assertions.
type memoryTrail struct {
	events []audit.Event
}

func (m *memoryTrail) Record(_ context.Context, event audit.Event) error {
	m.events = append(m.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(fn func(args []string) ([]byte, error)) (*Broker, *fakeInvoker, *memoryTrail) {
	inv := &fakeInvoker{fn: fn}
	trail := &memoryTrail{}
	b := NewBroker(inv, NewSession(), trail, testLogger())
	return b, inv, trail
}

const listJSON = `[
	{"id":"item-1","title":"Database","category":"LOGIN",
	 "vault":{"id":"v1","name":"Production"},"tags":["db"],
	 "additional_information":"postgres://internal",
	 "some_future_key":"surprise"},
	{"id":"item-2","title":"Deploy key","category":"SSH_KEY",
	 "vault":{"id":"v1","name":"Production"}}
]`

const detailsJSON = `{
	"id":"item-1","title":"Database","category":"LOGIN",
	"vault":{"id":"v1","name":"Production"},
	"fields":[
		{"id":"f1","type":"STRING","purpose":"USERNAME","label":"username","value":"admin"},
		{"id":"f2","type":"CONCEALED","purpose":"PASSWORD","label":"password","value":"hunter2"}
	]
}`

func TestBrokerVaults(t *testing.T) {
	b, inv, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(`[{"id":"v1","name":"Production"},{"id":"v2","name":"Private"}]`), nil
	})

	vaults, err := b.Vaults(context.Background())
	if err != nil {
		t.Fatalf("Vaults: %v", err)
	}
	if len(vaults) != 2 || vaults[0].ID != "v1" || vaults[1].Name != "Private" {
		t.Errorf("vaults = %+v", vaults)
	}
	if got := strings.Join(inv.calls[0], " "); got != "vault list" {
		t.Errorf("argv = %q", got)
	}
}

func TestBrokerItemsSanitized(t *testing.T) {
	b, inv, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(listJSON), nil
	})

	items, err := b.Items(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}

	data, err := json.Marshal(items)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "item-1") || strings.Contains(string(data), `"id"`) {
		t.Errorf("sanitized listing leaked an id: %s", data)
	}
	if strings.Contains(string(data), "additional_information") {
		t.Errorf("sanitized listing leaked additional_information: %s", data)
	}

	if got := strings.Join(inv.calls[0], " "); got != "item list --vault v1" {
		t.Errorf("argv = %q", got)
	}
}

func TestBrokerItemsByTag(t *testing.T) {
	b, inv, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(listJSON), nil
	})

	if _, err := b.ItemsByTag(context.Background(), "db", ""); err != nil {
		t.Fatalf("ItemsByTag: %v", err)
	}
	if got := strings.Join(inv.calls[0], " "); got != "item list --tags db" {
		t.Errorf("argv = %q", got)
	}
}

func TestBrokerItemRedactedWhenLocked(t *testing.T) {
	b, _, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(detailsJSON), nil
	})

	details, err := b.Item(context.Background(), "Database", "")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if details.Fields[1].Value != RedactedValue {
		t.Errorf("password = %q, want redacted", details.Fields[1].Value)
	}
	if details.Fields[0].Value != "admin" {
		t.Errorf("username = %q, want passthrough", details.Fields[0].Value)
	}
}

func TestBrokerItemErrorPassesThrough(t *testing.T) {
	b, _, trail := newTestBroker(func(args []string) ([]byte, error) {
		return nil, &opcli.NotFoundError{Message: "no item found"}
	})

	_, err := b.Item(context.Background(), "Nope", "")
	var nf *opcli.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
	if trail.events[0].Outcome != audit.OutcomeNotFound {
		t.Errorf("audit outcome = %q", trail.events[0].Outcome)
	}
}

func TestBrokerUnlockInvalidURL(t *testing.T) {
	b, inv, trail := newTestBroker(func(args []string) ([]byte, error) {
		t.Fatal("no op call expected for an invalid link")
		return nil, nil
	})

	_, err := b.Unlock(context.Background(), "not a url")
	var linkErr *DeepLinkError
	if !errors.As(err, &linkErr) {
		t.Fatalf("error = %v, want *DeepLinkError", err)
	}
	if b.Session().Count() != 0 {
		t.Error("invalid link must not touch session state")
	}
	if len(inv.calls) != 0 {
		t.Error("invalid link must not spawn op")
	}
	if trail.events[0].Outcome != audit.OutcomeInvalidLink {
		t.Errorf("audit outcome = %q", trail.events[0].Outcome)
	}
}

const unlockURL = "https://start.1password.com/open/i?a=A&v=v1&i=item-1&h=h"

func TestBrokerUnlock(t *testing.T) {
	b, inv, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(detailsJSON), nil
	})

	receipt, err := b.Unlock(context.Background(), unlockURL)
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if receipt.AlreadyUnlocked {
		t.Error("first unlock reported as already unlocked")
	}
	if receipt.Title != "Database" {
		t.Errorf("Title = %q", receipt.Title)
	}
	if receipt.SessionUnlocks != 1 {
		t.Errorf("SessionUnlocks = %d", receipt.SessionUnlocks)
	}
	if !b.Session().IsUnlocked("item-1") {
		t.Error("item-1 should be unlocked")
	}
	if got := strings.Join(inv.calls[0], " "); got != "item get item-1 --vault v1" {
		t.Errorf("argv = %q", got)
	}
}

func TestBrokerUnlockIdempotent(t *testing.T) {
	b, _, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(detailsJSON), nil
	})

	if _, err := b.Unlock(context.Background(), unlockURL); err != nil {
		t.Fatal(err)
	}
	receipt, err := b.Unlock(context.Background(), unlockURL)
	if err != nil {
		t.Fatalf("second Unlock: %v", err)
	}
	if !receipt.AlreadyUnlocked {
		t.Error("second unlock should report already unlocked")
	}
	if receipt.SessionUnlocks != 1 {
		t.Errorf("SessionUnlocks = %d, want 1", receipt.SessionUnlocks)
	}
}

func TestBrokerUnlockSucceedsWhenFetchFails(t *testing.T) {
	b, _, _ := newTestBroker(func(args []string) ([]byte, error) {
		return nil, &opcli.CommandError{Message: "op command timed out after 30s", ExitCode: opcli.TimeoutExitCode}
	})

	receipt, err := b.Unlock(context.Background(), unlockURL)
	if err != nil {
		t.Fatalf("Unlock should absorb the best-effort fetch failure, got %v", err)
	}
	if receipt.Title != "" {
		t.Errorf("Title = %q, want empty on failed fetch", receipt.Title)
	}
	if !b.Session().IsUnlocked("item-1") {
		t.Error("item should be unlocked despite the failed fetch")
	}
}

func TestBrokerCreateLogin(t *testing.T) {
	b, inv, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(detailsJSON), nil
	})

	created, err := b.CreateLogin(context.Background(), CreateLoginParams{
		Title:    "Database",
		Username: "admin",
		Password: "hunter2",
		URL:      "https://db.example.com",
		VaultID:  "v1",
		Tags:     []string{"db", "prod"},
	})
	if err != nil {
		t.Fatalf("CreateLogin: %v", err)
	}
	if created.Title != "Database" {
		t.Errorf("Title = %q", created.Title)
	}

	argv := strings.Join(inv.calls[0], " ")
	for _, want := range []string{
		"item create",
		"--category login",
		"--title Database",
		"--vault v1",
		"--url https://db.example.com",
		"--tags db,prod",
		"username=admin",
		"password=hunter2",
	} {
		if !strings.Contains(argv, want) {
			t.Errorf("argv %q missing %q", argv, want)
		}
	}
}

func TestBrokerCreateSecureNote(t *testing.T) {
	b, inv, _ := newTestBroker(func(args []string) ([]byte, error) {
		return []byte(`{"id":"n1","title":"Runbook","category":"SECURE_NOTE","vault":{"id":"v1","name":"Production"}}`), nil
	})

	created, err := b.CreateSecureNote(context.Background(), CreateSecureNoteParams{
		Title: "Runbook",
		Note:  "step one",
	})
	if err != nil {
		t.Fatalf("CreateSecureNote: %v", err)
	}
	if created.Title != "Runbook" {
		t.Errorf("Title = %q", created.Title)
	}

	argv := strings.Join(inv.calls[0], " ")
	if !strings.Contains(argv, "--category Secure Note") || !strings.Contains(argv, "notesPlain=step one") {
		t.Errorf("argv = %q", argv)
	}
}

// TestBrokerConsentFlow walks the end-to-end scenario: browse (no ids
// leak), consent via deep link, then read the item with full values.
func TestBrokerConsentFlow(t *testing.T) {
	b, _, _ := newTestBroker(func(args []string) ([]byte, error) {
		if args[0] == "item" && args[1] == "list" {
			return []byte(listJSON), nil
		}
		return []byte(detailsJSON), nil
	})
	ctx := context.Background()

	items, err := b.Items(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(items)
	if strings.Contains(string(data), "item-1") {
		t.Fatalf("listing leaked an item id: %s", data)
	}

	// Before consent: redacted.
	locked, err := b.Item(ctx, "Database", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if locked.Fields[1].Value != RedactedValue {
		t.Fatalf("pre-consent password = %q", locked.Fields[1].Value)
	}

	if _, err := b.Unlock(ctx, unlockURL); err != nil {
		t.Fatal(err)
	}

	// After consent: full fidelity, addressed by title.
	unlocked, err := b.Item(ctx, "Database", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if unlocked.Fields[1].Value != "hunter2" {
		t.Errorf("post-consent password = %q, want original", unlocked.Fields[1].Value)
	}
}
