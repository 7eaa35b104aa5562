// Package vault holds the broker's data model and the policy that governs
// what leaves it: list results are sanitized down to an allow-list, and
// sensitive field values are redacted until the owning item has been
// explicitly unlocked for the session.
package vault

import "time"

// Vault is a named collection of items, as reported by `op vault list`.
// Vault listings carry no secret-addressing material, so they cross the
// broker boundary as-is.
type Vault struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemVault is the vault stanza embedded in item output.
type ItemVault struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is a raw `op item list` row. It never crosses the broker boundary:
// list operations return SafeItem instead. Unknown keys in the CLI output
// are dropped at decode time; the allow-list in SanitizeItem decides what
// is re-emitted.
type Item struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Category              string     `json:"category"`
	Vault                 *ItemVault `json:"vault,omitempty"`
	Tags                  []string   `json:"tags,omitempty"`
	AdditionalInformation string     `json:"additional_information,omitempty"`
}

// Section groups fields inside an item.
type Section struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// Field is a typed value within an item. Some types hold secrets.
type Field struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Purpose   string   `json:"purpose,omitempty"`
	Label     string   `json:"label"`
	Value     string   `json:"value,omitempty"`
	Reference string   `json:"reference,omitempty"`
	Section   *Section `json:"section,omitempty"`
}

// ItemURL is a website association on an item.
type ItemURL struct {
	Label   string `json:"label,omitempty"`
	Primary bool   `json:"primary,omitempty"`
	Href    string `json:"href"`
}

// ItemDetails is the full-fidelity `op item get` output. Internal only:
// detail reads return SafeItemDetails.
type ItemDetails struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	Vault     ItemVault  `json:"vault"`
	Tags      []string   `json:"tags,omitempty"`
	Fields    []Field    `json:"fields,omitempty"`
	Sections  []Section  `json:"sections,omitempty"`
	URLs      []ItemURL  `json:"urls,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// SafeVault is the caller-visible vault stanza: name only, never the ID.
type SafeVault struct {
	Name string `json:"name"`
}

// SafeItem is the caller-visible list row. Item IDs are the only material
// needed to build an open-item deep link outside the consent flow, so they
// must never appear here.
type SafeItem struct {
	Title    string     `json:"title"`
	Category string     `json:"category"`
	Vault    *SafeVault `json:"vault,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
}

// SafeSection mirrors Section without the internal ID.
type SafeSection struct {
	Label string `json:"label,omitempty"`
}

// SafeField mirrors Field without the internal ID. When the owning item is
// locked, sensitive values are replaced with RedactedValue so the caller
// still sees that the field exists and what it is called.
type SafeField struct {
	Type      string       `json:"type"`
	Purpose   string       `json:"purpose,omitempty"`
	Label     string       `json:"label"`
	Value     string       `json:"value,omitempty"`
	Reference string       `json:"reference,omitempty"`
	Section   *SafeSection `json:"section,omitempty"`
}

// SafeItemDetails is the caller-visible detail view.
type SafeItemDetails struct {
	Title    string      `json:"title"`
	Category string      `json:"category"`
	Vault    SafeVault   `json:"vault"`
	Tags     []string    `json:"tags,omitempty"`
	Fields   []SafeField `json:"fields,omitempty"`
	Sections []SafeSection `json:"sections,omitempty"`
	URLs     []ItemURL   `json:"urls,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ItemRef is a parsed open-item deep link: the only way a caller can
// reference a specific item by ID. Never persisted.
type ItemRef struct {
	ItemID  string
	VaultID string
}

// UnlockReceipt confirms a consent request. Title is best-effort: the
// broker tries to fetch it for a friendlier message but the unlock does
// not depend on that fetch succeeding.
type UnlockReceipt struct {
	Title           string `json:"title,omitempty"`
	AlreadyUnlocked bool   `json:"already_unlocked"`
	SessionUnlocks  int    `json:"session_unlocks"`
}

// Created confirms an item creation.
type Created struct {
	Title string `json:"title"`
}

// CreateLoginParams are the inputs for a new login item. The caller
// supplies the plaintext it wants stored, so nothing here is sanitized.
type CreateLoginParams struct {
	Title    string
	Username string
	Password string
	URL      string
	VaultID  string
	Tags     []string
}

// CreateSecureNoteParams are the inputs for a new secure note.
type CreateSecureNoteParams struct {
	Title   string
	Note    string
	VaultID string
	Tags    []string
}
