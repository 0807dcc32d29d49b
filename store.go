package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeEvent announces that a store's bundle was saved or cleared. Origin
// identifies the store instance that wrote; watchers never receive events for
// their own writes, mirroring how browser storage notifications behave.
type ChangeEvent struct {
	Origin     uuid.UUID
	OccurredAt time.Time
}

// CredentialStore persists the current CredentialBundle durably across
// process restarts and shares it between concurrently running portal
// instances. Save and Clear are atomic from the caller's perspective: a Load
// from any context observes either the new bundle or a prior complete one,
// never a mix.
//
// Load performs no validation beyond structural decode; if the stored data is
// not parseable as a bundle the store self-heals by clearing the corrupt
// entry and reporting no bundle.
type CredentialStore interface {
	Save(ctx context.Context, bundle *CredentialBundle) error
	Load(ctx context.Context) (*CredentialBundle, error)
	Clear(ctx context.Context) error

	// Watch delivers change events produced by other store instances until
	// ctx is done. The stream is eventually consistent: a stale reader may
	// briefly observe an old bundle until its event arrives.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

func decodeBundle(raw []byte) (*CredentialBundle, bool) {
	bundle := &CredentialBundle{}
	if err := json.Unmarshal(raw, bundle); err != nil {
		return nil, false
	}
	if !bundle.Complete() {
		return nil, false
	}
	return bundle, true
}
