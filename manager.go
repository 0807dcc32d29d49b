package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidTransition is returned when a requested session change is not
// allowed from the current state, e.g. a login while one is already in
// flight.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode("INVALID_SESSION_TRANSITION").
	WithCode(goerrors.CodeBadRequest)

// Manager is the single in-memory source of truth for authentication status
// and the current principal. All mutations go through its transition methods;
// page and UI code only ever observe State snapshots and typed errors.
//
// Every async transition captures the generation current at its start and
// re-checks it before applying its result, so a slow, now-obsolete completion
// cannot resurrect or destroy a session the user has since changed.
type Manager struct {
	store     CredentialStore
	identity  IdentityClient
	inspector *TokenInspector
	logger    Logger
	sink      ActivitySink
	clock     func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	subs       []chan State
}

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithManagerLogger overrides the logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerClock injects a custom clock (useful for tests).
func WithManagerClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithManagerActivitySink sets the sink used to publish lifecycle events.
func WithManagerActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithManagerInspector overrides the token inspector.
func WithManagerInspector(inspector *TokenInspector) ManagerOption {
	return func(m *Manager) {
		if inspector != nil {
			m.inspector = inspector
		}
	}
}

// NewManager wires the store and identity client into a manager starting in
// the unauthenticated state. Call Hydrate to derive the initial state from
// the store.
func NewManager(store CredentialStore, identity IdentityClient, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		identity:  identity,
		inspector: NewTokenInspector(),
		logger:    defLogger{},
		sink:      noopActivitySink{},
		clock:     time.Now,
		state:     State{Status: StatusUnauthenticated},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// CurrentState returns a snapshot of the session.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers an observer of state snapshots. Every applied
// transition is delivered; slow observers miss intermediate snapshots rather
// than blocking transitions. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 16)

	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}

	return ch, cancel
}

// AccessToken implements TokenSource for the request gateway.
func (m *Manager) AccessToken() (string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusAuthenticated || m.state.AccessToken == "" {
		return "", m.generation, false
	}
	return m.state.AccessToken, m.generation, true
}

// Hydrate derives the session state from the credential store: no bundle or
// a malformed/expired token yields unauthenticated (clearing the store on the
// way), an intact bundle yields authenticated without any network call.
func (m *Manager) Hydrate(ctx context.Context) (State, error) {
	m.mu.Lock()
	state, err := m.hydrateLocked(ctx)
	m.mu.Unlock()

	if err == nil && state.IsAuthenticated() {
		m.record(ctx, ActivityEvent{
			EventType:   ActivityEventHydrated,
			PrincipalID: state.Principal.ID,
			Generation:  state.Generation,
		})
	}

	return state, err
}

func (m *Manager) hydrateLocked(ctx context.Context) (State, error) {
	m.generation++
	gen := m.generation

	bundle, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("hydrate load failed: %v", err)
		m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})
		return m.state, err
	}

	if bundle == nil {
		m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})
		return m.state, nil
	}

	claims, err := m.inspector.Inspect(bundle.AccessToken)
	if err != nil || m.inspector.IsExpiredAt(claims, m.clock()) {
		m.logger.Info("stored credential is stale, clearing")
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.Error("hydrate clear failed: %v", clearErr)
		}
		m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})
		return m.state, nil
	}

	principal := bundle.Principal
	m.setStateLocked(State{
		Status:       StatusAuthenticated,
		Principal:    &principal,
		AccessToken:  bundle.AccessToken,
		RefreshToken: bundle.RefreshToken,
		Generation:   gen,
	})

	return m.state, nil
}

// Login authenticates with email/password. The principal is always
// re-fetched from the backend after the grant; decoded token claims are not
// trusted for authorization. On failure nothing is persisted and the session
// returns to unauthenticated.
func (m *Manager) Login(ctx context.Context, email, password string) (State, error) {
	creds := Credentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return m.CurrentState(), err
	}

	gen, err := m.beginAuthenticating()
	if err != nil {
		return m.CurrentState(), err
	}

	grant, err := m.identity.Login(ctx, email, password)
	if err != nil {
		return m.failLogin(ctx, gen, err)
	}

	return m.establish(ctx, gen, grant, ActivityEventLoginSuccess)
}

// InjectTokens establishes a session from pre-issued tokens, e.g. an OAuth
// redirect callback. The flow is identical to a password login once tokens
// are in hand, including the principal fetch.
func (m *Manager) InjectTokens(ctx context.Context, accessToken, refreshToken string) (State, error) {
	if accessToken == "" || refreshToken == "" {
		return m.CurrentState(), ErrGrantIncomplete
	}

	if _, err := m.inspector.Inspect(accessToken); err != nil {
		return m.CurrentState(), err
	}

	gen, err := m.beginAuthenticating()
	if err != nil {
		return m.CurrentState(), err
	}

	grant := &TokenGrant{AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "bearer"}
	return m.establish(ctx, gen, grant, ActivityEventTokenInjected)
}

// Logout tears the session down locally first: state and store are cleared
// unconditionally, then the backend revocation runs best-effort. Local
// teardown never depends on network success.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.state.AccessToken
	principalID := ""
	if m.state.Principal != nil {
		principalID = m.state.Principal.ID
	}

	m.generation++
	gen := m.generation
	m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})

	clearErr := m.store.Clear(ctx)
	m.mu.Unlock()

	if clearErr != nil {
		m.logger.Error("logout store clear failed: %v", clearErr)
	}

	m.record(ctx, ActivityEvent{
		EventType:   ActivityEventLogout,
		PrincipalID: principalID,
		Generation:  gen,
	})

	if token != "" {
		if err := m.identity.Logout(ctx, token); err != nil {
			m.logger.Warn("backend logout failed, session already torn down locally: %v", err)
		}
	}

	return clearErr
}

// NotifyExpired implements TokenSource. It is raised by the gateway on any
// 401/403 and by the freshness check. A signal whose generation no longer
// matches is discarded: the rejected request belonged to a session the user
// has since replaced.
func (m *Manager) NotifyExpired(ctx context.Context, generation uint64) {
	m.mu.Lock()

	if generation != m.generation || m.state.Status != StatusAuthenticated {
		m.mu.Unlock()
		return
	}

	principalID := ""
	if m.state.Principal != nil {
		principalID = m.state.Principal.ID
	}

	m.generation++
	gen := m.generation
	m.setStateLocked(State{Status: StatusExpired, Generation: gen})

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("expiry store clear failed: %v", err)
	}

	m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})
	m.mu.Unlock()

	m.record(ctx, ActivityEvent{
		EventType:   ActivityEventExpired,
		PrincipalID: principalID,
		Generation:  gen,
	})
}

// Refresh re-fetches the principal from the backend and replaces it in
// place, keeping the current tokens. Useful after profile updates.
func (m *Manager) Refresh(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.state.Status != StatusAuthenticated {
		m.mu.Unlock()
		return m.CurrentState(), ErrUnauthorized
	}
	gen := m.generation
	token := m.state.AccessToken
	m.mu.Unlock()

	principal, err := m.identity.Me(ctx, token)
	if err != nil {
		if IsAuthExpiredError(err) || IsTokenExpiredError(err) {
			m.NotifyExpired(ctx, gen)
		}
		return m.CurrentState(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state.Status != StatusAuthenticated {
		return m.state, ErrStaleGeneration
	}

	bundle := &CredentialBundle{
		AccessToken:  m.state.AccessToken,
		RefreshToken: m.state.RefreshToken,
		Principal:    *principal,
		IssuedAt:     m.clock(),
	}
	if err := m.store.Save(ctx, bundle); err != nil {
		return m.state, err
	}

	next := m.state
	next.Principal = principal
	m.setStateLocked(next)

	return m.state, nil
}

// WatchStore consumes store change notifications from other portal instances
// and re-runs hydration to resynchronize, until ctx is done. An in-flight
// login or injection takes precedence; resync is skipped while one runs.
func (m *Manager) WatchStore(ctx context.Context) error {
	events, err := m.store.Watch(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			m.resync(ctx)
		}
	}
}

// StartFreshnessCheck periodically re-inspects the access token and raises
// expiry when it goes stale, so sessions end even without outbound traffic.
func (m *Manager) StartFreshnessCheck(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkFreshness(ctx)
			}
		}
	}()
}

func (m *Manager) checkFreshness(ctx context.Context) {
	m.mu.Lock()
	if m.state.Status != StatusAuthenticated {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	token := m.state.AccessToken
	m.mu.Unlock()

	claims, err := m.inspector.Inspect(token)
	if err != nil || m.inspector.IsExpiredAt(claims, m.clock()) {
		m.NotifyExpired(ctx, gen)
	}
}

func (m *Manager) resync(ctx context.Context) {
	m.mu.Lock()

	if m.state.Status == StatusAuthenticating {
		m.mu.Unlock()
		return
	}

	state, err := m.hydrateLocked(ctx)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("resync failed: %v", err)
		return
	}

	principalID := ""
	if state.Principal != nil {
		principalID = state.Principal.ID
	}
	m.record(ctx, ActivityEvent{
		EventType:   ActivityEventResynced,
		PrincipalID: principalID,
		Generation:  state.Generation,
	})
}

func (m *Manager) beginAuthenticating() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusAuthenticating {
		clone := ErrInvalidTransition.Clone()
		if clone == nil {
			return 0, ErrInvalidTransition
		}
		clone.Source = ErrInvalidTransition
		return 0, clone.WithMetadata(map[string]any{
			"from": m.state.Status,
			"to":   StatusAuthenticating,
		})
	}

	m.generation++
	gen := m.generation
	m.setStateLocked(State{Status: StatusAuthenticating, Generation: gen})
	return gen, nil
}

// establish finishes a login or token injection: fetch the principal, check
// the generation still holds, persist the bundle, and flip to authenticated.
func (m *Manager) establish(ctx context.Context, gen uint64, grant *TokenGrant, event ActivityEventType) (State, error) {
	principal, err := m.identity.Me(ctx, grant.AccessToken)
	if err != nil {
		return m.failLogin(ctx, gen, err)
	}

	if !principal.Role.IsValid() {
		return m.failLogin(ctx, gen, goerrors.New("principal has an unknown or invalid role", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized))
	}

	m.mu.Lock()

	if gen != m.generation {
		m.mu.Unlock()
		return m.CurrentState(), ErrStaleGeneration
	}

	bundle := &CredentialBundle{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Principal:    *principal,
		IssuedAt:     m.clock(),
	}

	if err := m.store.Save(ctx, bundle); err != nil {
		m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})
		m.mu.Unlock()
		return m.CurrentState(), err
	}

	m.setStateLocked(State{
		Status:       StatusAuthenticated,
		Principal:    principal,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		Generation:   gen,
	})
	state := m.state
	m.mu.Unlock()

	m.record(ctx, ActivityEvent{
		EventType:   event,
		PrincipalID: principal.ID,
		Generation:  gen,
	})

	return state, nil
}

// failLogin returns the session to unauthenticated unless a newer transition
// already owns the state, in which case the late failure is discarded.
func (m *Manager) failLogin(ctx context.Context, gen uint64, cause error) (State, error) {
	m.mu.Lock()

	if gen != m.generation {
		m.mu.Unlock()
		return m.CurrentState(), ErrStaleGeneration
	}

	m.setStateLocked(State{Status: StatusUnauthenticated, Generation: gen})
	state := m.state
	m.mu.Unlock()

	m.record(ctx, ActivityEvent{
		EventType:  ActivityEventLoginFailure,
		Generation: gen,
		Metadata:   map[string]any{"error": cause.Error()},
	})

	return state, cause
}

// setStateLocked replaces the state and fans the snapshot out to
// subscribers. Callers hold m.mu.
func (m *Manager) setStateLocked(next State) {
	m.state = next
	for _, ch := range m.subs {
		select {
		case ch <- next:
		default:
			// observer is not draining, drop rather than block
		}
	}
}

func (m *Manager) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock()
	}

	sink := normalizeActivitySink(m.sink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
