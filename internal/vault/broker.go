package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/mlinzi/internal/audit"
	"github.com/jkaninda/mlinzi/internal/opcli"
)

// DeepLinkError reports an unusable open-item URL on the consent path.
// It is a caller mistake, not a process failure, so it stays outside the
// op error taxonomy.
type DeepLinkError struct{}

func (e *DeepLinkError) Error() string {
	return "invalid 1Password link: expected an open-item URL with v (vault) and i (item) query parameters, copied from the 1Password app"
}

// Broker composes the op runner, the sanitizer, the deep-link parser, and
// the unlock session into the operations callers invoke. All fallibility
// lives in the runner; the broker only swallows errors on the two
// explicitly best-effort title fetches of the unlock flow.
type Broker struct {
	run     opcli.Invoker
	session *Session
	trail   audit.Recorder // may be nil
	logger  *slog.Logger
}

// NewBroker wires a broker. trail may be nil to disable auditing.
func NewBroker(run opcli.Invoker, session *Session, trail audit.Recorder, logger *slog.Logger) *Broker {
	return &Broker{
		run:     run,
		session: session,
		trail:   trail,
		logger:  logger,
	}
}

// Session exposes the unlock session, for health and status reporting.
func (b *Broker) Session() *Session { return b.session }

// Vaults lists all vaults the service account can see. Vault listings
// carry no secret-addressing material, so no sanitization is applied.
func (b *Broker) Vaults(ctx context.Context) ([]Vault, error) {
	vaults, err := opcli.RunJSON[[]Vault](ctx, b.run, "vault", "list")
	b.record(ctx, audit.Event{Op: "vault_list", Outcome: outcome(err)})
	if err != nil {
		return nil, err
	}
	return vaults, nil
}

// Items lists items, sanitized. vaultID is optional; when empty, items
// from all vaults are returned.
func (b *Broker) Items(ctx context.Context, vaultID string) ([]SafeItem, error) {
	args := []string{"item", "list"}
	if vaultID != "" {
		args = append(args, "--vault", vaultID)
	}

	raw, err := opcli.RunJSON[[]Item](ctx, b.run, args...)
	b.record(ctx, audit.Event{Op: "item_list", Outcome: outcome(err), Vault: vaultID})
	if err != nil {
		return nil, err
	}
	return SanitizeItems(raw), nil
}

// ItemsByTag lists items carrying the given tag, sanitized. vaultID is
// optional.
func (b *Broker) ItemsByTag(ctx context.Context, tag, vaultID string) ([]SafeItem, error) {
	args := []string{"item", "list", "--tags", tag}
	if vaultID != "" {
		args = append(args, "--vault", vaultID)
	}

	raw, err := opcli.RunJSON[[]Item](ctx, b.run, args...)
	b.record(ctx, audit.Event{Op: "item_list_by_tag", Outcome: outcome(err), Vault: vaultID, Detail: "tag=" + tag})
	if err != nil {
		return nil, err
	}
	return SanitizeItems(raw), nil
}

// Item fetches one item by title or ID. Titles are always addressable:
// list sanitization never suppresses them. IDs only become known to a
// caller through the consent flow. Sensitive values stay redacted unless
// the resolved item has been unlocked this session.
func (b *Broker) Item(ctx context.Context, titleOrID, vaultID string) (SafeItemDetails, error) {
	details, err := b.fetchDetails(ctx, titleOrID, vaultID)
	b.record(ctx, audit.Event{Op: "item_get", Outcome: outcome(err), Vault: vaultID, Item: details.Title})
	if err != nil {
		return SafeItemDetails{}, err
	}

	unlocked := b.session.IsUnlocked(details.ID)
	return SanitizeDetails(details, unlocked), nil
}

// Unlock is the consent workflow. The URL is the only accepted way to
// designate an item by ID: it has to be copied from the 1Password app,
// which proves the caller's operator can see the item there.
//
// A malformed URL fails without touching session state. For a valid URL
// the broker best-effort fetches the item so the confirmation can carry a
// human-readable title, then records the unlock; the unlock succeeds even
// if that fetch failed. Re-unlocking an already-unlocked item is
// idempotent and differs only in the confirmation.
func (b *Broker) Unlock(ctx context.Context, rawURL string) (UnlockReceipt, error) {
	ref := ParseDeepLink(rawURL)
	if ref == nil {
		b.record(ctx, audit.Event{Op: "item_unlock", Outcome: audit.OutcomeInvalidLink})
		return UnlockReceipt{}, &DeepLinkError{}
	}

	// Best-effort: a title makes the confirmation friendlier and confirms
	// reachability, but consent is not blocked on it.
	title := ""
	if details, err := b.fetchDetails(ctx, ref.ItemID, ref.VaultID); err == nil {
		title = details.Title
	} else {
		b.logger.Debug("unlock title fetch failed; continuing",
			slog.String("error", err.Error()),
		)
	}

	already := b.session.IsUnlocked(ref.ItemID)
	if !already {
		b.session.Unlock(ref.ItemID)
	}

	b.record(ctx, audit.Event{
		Op:      "item_unlock",
		Outcome: audit.OutcomeSuccess,
		Item:    title,
		Detail:  fmt.Sprintf("already_unlocked=%t", already),
	})

	return UnlockReceipt{
		Title:           title,
		AlreadyUnlocked: already,
		SessionUnlocks:  b.session.Count(),
	}, nil
}

// CreateLogin creates a login item. The caller supplied the plaintext
// being stored, so nothing is sanitized on the way back. Never retried:
// creation is the one non-idempotent operation.
func (b *Broker) CreateLogin(ctx context.Context, p CreateLoginParams) (Created, error) {
	args := []string{"item", "create", "--category", "login", "--title", p.Title}
	if p.VaultID != "" {
		args = append(args, "--vault", p.VaultID)
	}
	if p.URL != "" {
		args = append(args, "--url", p.URL)
	}
	if len(p.Tags) > 0 {
		args = append(args, "--tags", strings.Join(p.Tags, ","))
	}
	args = append(args,
		"username="+p.Username,
		"password="+p.Password,
	)

	details, err := opcli.RunJSON[ItemDetails](ctx, b.run, args...)
	b.record(ctx, audit.Event{Op: "login_create", Outcome: outcome(err), Vault: p.VaultID, Item: p.Title})
	if err != nil {
		return Created{}, err
	}
	return Created{Title: details.Title}, nil
}

// CreateSecureNote creates a secure note item.
func (b *Broker) CreateSecureNote(ctx context.Context, p CreateSecureNoteParams) (Created, error) {
	args := []string{"item", "create", "--category", "Secure Note", "--title", p.Title}
	if p.VaultID != "" {
		args = append(args, "--vault", p.VaultID)
	}
	if len(p.Tags) > 0 {
		args = append(args, "--tags", strings.Join(p.Tags, ","))
	}
	args = append(args, "notesPlain="+p.Note)

	details, err := opcli.RunJSON[ItemDetails](ctx, b.run, args...)
	b.record(ctx, audit.Event{Op: "secure_note_create", Outcome: outcome(err), Vault: p.VaultID, Item: p.Title})
	if err != nil {
		return Created{}, err
	}
	return Created{Title: details.Title}, nil
}

func (b *Broker) fetchDetails(ctx context.Context, titleOrID, vaultID string) (ItemDetails, error) {
	args := []string{"item", "get", titleOrID}
	if vaultID != "" {
		args = append(args, "--vault", vaultID)
	}
	return opcli.RunJSON[ItemDetails](ctx, b.run, args...)
}

// record writes an audit event, logging (never propagating) sink failures.
func (b *Broker) record(ctx context.Context, event audit.Event) {
	if b.trail == nil {
		return
	}
	if err := b.trail.Record(ctx, event); err != nil {
		b.logger.Warn("audit record failed", slog.String("error", err.Error()))
	}
}

// outcome maps an op error to its audit label.
func outcome(err error) string {
	switch {
	case err == nil:
		return audit.OutcomeSuccess
	case isNotFound(err):
		return audit.OutcomeNotFound
	case isAuth(err):
		return audit.OutcomeAuthFailed
	default:
		return audit.OutcomeCommand
	}
}

func isNotFound(err error) bool {
	var nf *opcli.NotFoundError
	return errors.As(err, &nf)
}

func isAuth(err error) bool {
	var ae *opcli.AuthenticationError
	return errors.As(err, &ae)
}
