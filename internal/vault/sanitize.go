package vault

import "strings"

// RedactedValue replaces sensitive field values on locked items. The field
// and its label stay visible so a caller can tell a secret exists without
// reading it.
const RedactedValue = "[redacted: unlock this item to reveal its secret values]"

// sensitiveTypes are op field types whose values are secret material.
var sensitiveTypes = map[string]struct{}{
	"CONCEALED": {},
	"OTP":       {},
	"SSHKEY":    {},
}

// Sensitive reports whether the field's value is secret material. The op
// CLI marks password-purpose fields separately from concealed types, so
// both are checked.
func (f Field) Sensitive() bool {
	if _, ok := sensitiveTypes[strings.ToUpper(f.Type)]; ok {
		return true
	}
	return strings.EqualFold(f.Purpose, "PASSWORD")
}

// SanitizeItem maps a raw list row to its caller-visible form. Pure and
// total. Allow-list construction, never a field-by-field copy of the
// source: anything the CLI adds in the future is dropped by default.
func SanitizeItem(raw Item) SafeItem {
	safe := SafeItem{
		Title:    raw.Title,
		Category: raw.Category,
	}
	if raw.Vault != nil {
		safe.Vault = &SafeVault{Name: raw.Vault.Name}
	}
	if len(raw.Tags) > 0 {
		safe.Tags = append([]string(nil), raw.Tags...)
	}
	return safe
}

// SanitizeItems maps a raw listing through SanitizeItem.
func SanitizeItems(raw []Item) []SafeItem {
	safe := make([]SafeItem, len(raw))
	for i, item := range raw {
		safe[i] = SanitizeItem(item)
	}
	return safe
}

// SanitizeDetails maps full item details to the caller-visible view:
// every internal ID is stripped, and unless the item is unlocked each
// sensitive field's value is replaced with RedactedValue.
func SanitizeDetails(d ItemDetails, unlocked bool) SafeItemDetails {
	safe := SafeItemDetails{
		Title:     d.Title,
		Category:  d.Category,
		Vault:     SafeVault{Name: d.Vault.Name},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if len(d.Tags) > 0 {
		safe.Tags = append([]string(nil), d.Tags...)
	}
	if len(d.URLs) > 0 {
		safe.URLs = append([]ItemURL(nil), d.URLs...)
	}
	for _, section := range d.Sections {
		safe.Sections = append(safe.Sections, SafeSection{Label: section.Label})
	}
	for _, field := range d.Fields {
		safe.Fields = append(safe.Fields, sanitizeField(field, unlocked))
	}
	return safe
}

func sanitizeField(f Field, unlocked bool) SafeField {
	safe := SafeField{
		Type:      f.Type,
		Purpose:   f.Purpose,
		Label:     f.Label,
		Value:     f.Value,
		Reference: f.Reference,
	}
	if f.Section != nil {
		safe.Section = &SafeSection{Label: f.Section.Label}
	}
	if !unlocked && f.Sensitive() && f.Value != "" {
		safe.Value = RedactedValue
	}
	return safe
}
