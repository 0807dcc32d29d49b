package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryHub is shared in-process state connecting any number of MemoryStore
// instances, each standing in for one portal window. Primarily a test
// double, but also serves embedders that keep a single window and need no
// durability.
type MemoryHub struct {
	mu   sync.Mutex
	raw  []byte
	subs map[uuid.UUID][]chan ChangeEvent
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: map[uuid.UUID][]chan ChangeEvent{},
	}
}

// NewStore attaches a new store instance with its own origin identity.
func (h *MemoryHub) NewStore() *MemoryStore {
	return &MemoryStore{
		hub:    h,
		origin: uuid.New(),
	}
}

func (h *MemoryHub) write(origin uuid.UUID, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.raw = raw
	event := ChangeEvent{Origin: origin, OccurredAt: time.Now()}
	for subOrigin, channels := range h.subs {
		if subOrigin == origin {
			continue
		}
		for _, ch := range channels {
			select {
			case ch <- event:
			default:
				// subscriber is not draining, drop rather than block
			}
		}
	}
}

func (h *MemoryHub) read() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.raw == nil {
		return nil
	}
	out := make([]byte, len(h.raw))
	copy(out, h.raw)
	return out
}

func (h *MemoryHub) subscribe(origin uuid.UUID, ch chan ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[origin] = append(h.subs[origin], ch)
}

func (h *MemoryHub) unsubscribe(origin uuid.UUID, ch chan ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	channels := h.subs[origin]
	for i, c := range channels {
		if c == ch {
			h.subs[origin] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
}

// MemoryStore implements CredentialStore against a MemoryHub.
type MemoryStore struct {
	hub    *MemoryHub
	origin uuid.UUID
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore returns a standalone store on its own private hub.
func NewMemoryStore() *MemoryStore {
	return NewMemoryHub().NewStore()
}

func (s *MemoryStore) Save(ctx context.Context, bundle *CredentialBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	s.hub.write(s.origin, raw)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (*CredentialBundle, error) {
	raw := s.hub.read()
	if raw == nil {
		return nil, nil
	}

	bundle, ok := decodeBundle(raw)
	if !ok {
		s.hub.write(s.origin, nil)
		return nil, nil
	}

	return bundle, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.hub.write(s.origin, nil)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, 8)
	s.hub.subscribe(s.origin, ch)

	go func() {
		<-ctx.Done()
		s.hub.unsubscribe(s.origin, ch)
		close(ch)
	}()

	return ch, nil
}
