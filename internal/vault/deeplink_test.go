package vault

import "testing"

func TestParseDeepLink(t *testing.T) {
	ref := ParseDeepLink("https://start.1password.com/open/i?a=ACCT&v=VAULT123&i=ITEM456&h=my.1password.com")
	if ref == nil {
		t.Fatal("ParseDeepLink returned nil for a valid link")
	}
	if ref.ItemID != "ITEM456" {
		t.Errorf("ItemID = %q, want ITEM456", ref.ItemID)
	}
	if ref.VaultID != "VAULT123" {
		t.Errorf("VaultID = %q, want VAULT123", ref.VaultID)
	}
}

func TestParseDeepLinkRejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing v and i", "https://example.com/open/i?a=ACCT"},
		{"missing i", "https://start.1password.com/open/i?v=VAULT123"},
		{"empty i", "https://start.1password.com/open/i?v=VAULT123&i="},
		{"not a url", "not a url"},
		{"relative", "/open/i?v=VAULT123&i=ITEM456"},
		{"empty", ""},
		{"schemeless", "start.1password.com/open/i?v=V&i=I"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if ref := ParseDeepLink(tc.url); ref != nil {
				t.Errorf("ParseDeepLink(%q) = %+v, want nil", tc.url, ref)
			}
		})
	}
}
