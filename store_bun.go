package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const defaultBunWatchInterval = 500 * time.Millisecond

type credentialRow struct {
	bun.BaseModel `bun:"table:portal_credentials,alias:pc"`

	ID        int64     `bun:"id,pk"`
	Payload   []byte    `bun:"payload,nullzero"`
	Revision  int64     `bun:"revision,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// BunStore keeps the bundle in a single-row sqlite table. Every write bumps a
// revision counter inside one transaction, which is what makes save-or-clear
// atomic for readers in other processes and gives the watcher something cheap
// to poll.
type BunStore struct {
	db       *bun.DB
	interval time.Duration
	logger   Logger

	mu          sync.Mutex
	lastWritten int64
}

var _ CredentialStore = (*BunStore)(nil)

// BunStoreOption customizes a BunStore.
type BunStoreOption func(*BunStore)

// WithBunWatchInterval sets the polling cadence for Watch.
func WithBunWatchInterval(interval time.Duration) BunStoreOption {
	return func(s *BunStore) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBunStoreLogger overrides the logger.
func WithBunStoreLogger(logger Logger) BunStoreOption {
	return func(s *BunStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBunStore wraps an existing bun DB; the caller owns its lifecycle. Call
// Init before first use.
func NewBunStore(db *bun.DB, opts ...BunStoreOption) *BunStore {
	s := &BunStore{
		db:       db,
		interval: defaultBunWatchInterval,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// OpenSQLiteStore opens (creating if needed) a sqlite-backed store at path.
func OpenSQLiteStore(path string, opts ...BunStoreOption) (*BunStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	store := NewBunStore(db, opts...)

	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Init creates the credentials table when missing.
func (s *BunStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*credentialRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Close releases the underlying DB.
func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) Save(ctx context.Context, bundle *CredentialBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return s.write(ctx, raw)
}

func (s *BunStore) Load(ctx context.Context) (*CredentialBundle, error) {
	row := &credentialRow{ID: 1}
	err := s.db.NewSelect().Model(row).WherePK().Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(row.Payload) == 0 {
		return nil, nil
	}

	bundle, ok := decodeBundle(row.Payload)
	if !ok {
		s.logger.Warn("credential row is corrupt, clearing")
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return bundle, nil
}

// Clear nulls the payload but keeps the row so the revision counter keeps
// advancing for watchers.
func (s *BunStore) Clear(ctx context.Context) error {
	return s.write(ctx, nil)
}

func (s *BunStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	seen, _, err := s.pollRevision(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan ChangeEvent, 8)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, own, err := s.pollRevision(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debug("revision poll failed: %v", err)
				continue
			}
			if current == seen {
				continue
			}
			seen = current

			if own {
				continue
			}

			select {
			case ch <- ChangeEvent{OccurredAt: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (s *BunStore) write(ctx context.Context, payload []byte) error {
	// Held across the transaction so a poll cannot observe the committed
	// revision before it is recorded as this instance's own.
	s.mu.Lock()
	defer s.mu.Unlock()

	var revision int64

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &credentialRow{ID: 1}
		err := tx.NewSelect().Model(row).WherePK().Scan(ctx)

		now := time.Now()
		switch {
		case err == sql.ErrNoRows:
			row = &credentialRow{ID: 1, Payload: payload, Revision: 1, UpdatedAt: now}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			row.Payload = payload
			row.Revision++
			row.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
				return err
			}
		}

		revision = row.Revision
		return nil
	})
	if err != nil {
		return err
	}

	s.lastWritten = revision
	return nil
}

// pollRevision reads the revision under the mutex write holds across its
// transaction, so a poll never compares one write's revision against
// another write's fingerprint.
func (s *BunStore) pollRevision(ctx context.Context) (revision int64, own bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := &credentialRow{ID: 1}
	err = s.db.NewSelect().
		Model(row).
		Column("revision").
		WherePK().
		Scan(ctx)
	if err == sql.ErrNoRows {
		return 0, s.lastWritten == 0, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.Revision, row.Revision == s.lastWritten, nil
}
