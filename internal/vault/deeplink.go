package vault

import "net/url"

// ParseDeepLink decodes a 1Password open-item deep link of the form
//
//	https://start.1password.com/open/i?a=<account>&v=<vaultID>&i=<itemID>&h=<host>
//
// into an ItemRef. Only the v and i parameters are required; a and h are
// accepted and ignored. Returns nil on any malformed input: the parser
// never fails, the broker decides how to report an unusable link.
//
// The returned reference is opaque. Whether the item actually exists is
// only confirmed later, by the op CLI.
func ParseDeepLink(raw string) *ItemRef {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	if !u.IsAbs() || u.Host == "" {
		return nil
	}

	query := u.Query()
	vaultID := query.Get("v")
	itemID := query.Get("i")
	if vaultID == "" || itemID == "" {
		return nil
	}

	return &ItemRef{ItemID: itemID, VaultID: vaultID}
}
