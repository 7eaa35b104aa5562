package vault

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSanitizeItemAllowList(t *testing.T) {
	raw := Item{
		ID:                    "item-uuid-1",
		Title:                 "Database",
		Category:              "LOGIN",
		Vault:                 &ItemVault{ID: "vault-uuid-1", Name: "Production"},
		Tags:                  []string{"db", "prod"},
		AdditionalInformation: "postgres://internal",
	}

	safe := SanitizeItem(raw)

	// The wire form is what leaves the broker; check keys there.
	data, err := json.Marshal(safe)
	if err != nil {
		t.Fatal(err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatal(err)
	}

	allowed := map[string]bool{"title": true, "category": true, "vault": true, "tags": true}
	for key := range keys {
		if !allowed[key] {
			t.Errorf("SafeItem leaked key %q", key)
		}
	}
	if _, ok := keys["id"]; ok {
		t.Error("SafeItem must never contain an id")
	}
	if _, ok := keys["additional_information"]; ok {
		t.Error("SafeItem must never contain additional_information")
	}

	var vaultKeys map[string]json.RawMessage
	if err := json.Unmarshal(keys["vault"], &vaultKeys); err != nil {
		t.Fatal(err)
	}
	if len(vaultKeys) != 1 || string(vaultKeys["name"]) != `"Production"` {
		t.Errorf("vault stanza = %s, want name only", keys["vault"])
	}

	if safe.Title != "Database" || safe.Category != "LOGIN" {
		t.Errorf("safe = %+v", safe)
	}
	if len(safe.Tags) != 2 {
		t.Errorf("tags = %v", safe.Tags)
	}
}

func TestSanitizeItemWithoutVault(t *testing.T) {
	safe := SanitizeItem(Item{ID: "x", Title: "Note"})
	if safe.Vault != nil {
		t.Errorf("Vault = %+v, want nil", safe.Vault)
	}
}

func TestSanitizeItems(t *testing.T) {
	raw := []Item{
		{ID: "a", Title: "One"},
		{ID: "b", Title: "Two"},
	}
	safe := SanitizeItems(raw)
	if len(safe) != 2 {
		t.Fatalf("len = %d", len(safe))
	}
	if safe[0].Title != "One" || safe[1].Title != "Two" {
		t.Errorf("safe = %+v", safe)
	}
}

func detailsFixture() ItemDetails {
	created := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	return ItemDetails{
		ID:       "item-uuid-1",
		Title:    "Database",
		Category: "LOGIN",
		Vault:    ItemVault{ID: "vault-uuid-1", Name: "Production"},
		Tags:     []string{"db"},
		Sections: []Section{{ID: "sec-1", Label: "Connection"}},
		Fields: []Field{
			{
				ID:      "field-user",
				Type:    "STRING",
				Purpose: "USERNAME",
				Label:   "username",
				Value:   "admin",
			},
			{
				ID:      "field-pass",
				Type:    "CONCEALED",
				Purpose: "PASSWORD",
				Label:   "password",
				Value:   "hunter2",
				Section: &Section{ID: "sec-1", Label: "Connection"},
			},
			{
				ID:    "field-otp",
				Type:  "OTP",
				Label: "one-time password",
				Value: "otpauth://totp/x",
			},
		},
		URLs:      []ItemURL{{Primary: true, Href: "https://db.example.com"}},
		CreatedAt: &created,
	}
}

func TestSanitizeDetailsLocked(t *testing.T) {
	safe := SanitizeDetails(detailsFixture(), false)

	if safe.Vault.Name != "Production" {
		t.Errorf("vault = %+v", safe.Vault)
	}
	if len(safe.Fields) != 3 {
		t.Fatalf("fields = %d", len(safe.Fields))
	}

	// Non-sensitive values pass through.
	if safe.Fields[0].Value != "admin" {
		t.Errorf("username value = %q, want passthrough", safe.Fields[0].Value)
	}
	// Sensitive values are replaced with the marker, not omitted: the
	// caller still sees the field and its label.
	for _, i := range []int{1, 2} {
		if safe.Fields[i].Value != RedactedValue {
			t.Errorf("field %d value = %q, want redaction marker", i, safe.Fields[i].Value)
		}
		if safe.Fields[i].Label == "" {
			t.Errorf("field %d lost its label", i)
		}
	}

	// Section IDs never survive sanitization.
	if safe.Fields[1].Section == nil || safe.Fields[1].Section.Label != "Connection" {
		t.Errorf("field section = %+v", safe.Fields[1].Section)
	}

	data, err := json.Marshal(safe)
	if err != nil {
		t.Fatal(err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		t.Fatal(err)
	}
	if _, ok := asMap["id"]; ok {
		t.Error("SafeItemDetails must never contain the item id")
	}
	for _, f := range asMap["fields"].([]any) {
		if _, ok := f.(map[string]any)["id"]; ok {
			t.Error("sanitized field must never contain an id")
		}
	}
}

func TestSanitizeDetailsUnlocked(t *testing.T) {
	safe := SanitizeDetails(detailsFixture(), true)

	if safe.Fields[1].Value != "hunter2" {
		t.Errorf("password value = %q, want original", safe.Fields[1].Value)
	}
	if safe.Fields[2].Value != "otpauth://totp/x" {
		t.Errorf("otp value = %q, want original", safe.Fields[2].Value)
	}
}

func TestFieldSensitive(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		want  bool
	}{
		{"concealed", Field{Type: "CONCEALED"}, true},
		{"concealed lowercase", Field{Type: "concealed"}, true},
		{"otp", Field{Type: "OTP"}, true},
		{"ssh key", Field{Type: "SSHKEY"}, true},
		{"password purpose", Field{Type: "STRING", Purpose: "PASSWORD"}, true},
		{"username", Field{Type: "STRING", Purpose: "USERNAME"}, false},
		{"plain string", Field{Type: "STRING"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.field.Sensitive(); got != tc.want {
				t.Errorf("Sensitive() = %t, want %t", got, tc.want)
			}
		})
	}
}
