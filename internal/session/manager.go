package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Entry points the page layer navigates to.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// State is a node of the session state machine.
type State int

const (
	StateUninitialized State = iota
	StateValidating
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// allowed transitions; self-loops (refresh, profile update) are not transitions
var transitions = map[State][]State{
	StateUninitialized:   {StateValidating, StateUnauthenticated},
	StateValidating:      {StateAuthenticated, StateUnauthenticated},
	StateUnauthenticated: {StateAuthenticated},
	StateAuthenticated:   {StateUnauthenticated},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is a consistent, read-only view of the session.
// User is only ever set together with Token.
type Snapshot struct {
	State   State
	Token   string
	User    *models.User
	Loading bool

	version   uint64
	evaluator *rbac.Evaluator
}

// Authenticated is false while validating; consumers treat that as signed out.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Evaluator answers permission queries for this snapshot's user. It is
// built under the same lock as the rest of the snapshot, so it never
// belongs to a different user or role.
func (s Snapshot) Evaluator() *rbac.Evaluator {
	if !s.Authenticated() {
		return rbac.Anonymous()
	}
	if s.evaluator == nil {
		return rbac.NewEvaluator(s.User.Principal())
	}
	return s.evaluator
}

// Navigator moves the page layer to a path, e.g. the login entry point after a 401.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Options configures a Manager.
type Options struct {
	// BaseURL is the API root, e.g. https://tailingsiq.example.com/api/v1.
	BaseURL   string
	Store     TokenStore
	Navigator Navigator
	// HTTPClient supplies the underlying transport and timeout. Its
	// transport is wrapped; the client itself is not modified.
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Manager owns the session: the token, the current user and the state
// machine. All reads go through Snapshot and all writes through the
// operations below. Network calls are made without holding the lock.
type Manager struct {
	client *Client
	tokens TokenStore
	nav    Navigator
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	token     string
	user      *models.User
	evaluator *rbac.Evaluator
	inflight  int
	refreshes int
	// a 401 for the token being refreshed, settled when the refresh returns
	expiredDuringRefresh bool
	epoch     uint64 // bumped whenever the session is torn down
	version   uint64 // bumped on every published change
	listeners map[int]func(Snapshot)
	nextID    int

	notifyMu  sync.Mutex
	delivered uint64
}

func NewManager(opts Options) (*Manager, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("session: base URL is required")
	}

	m := &Manager{
		tokens:    opts.Store,
		nav:       opts.Navigator,
		logger:    opts.Logger,
		evaluator: rbac.Anonymous(),
		listeners: make(map[int]func(Snapshot)),
	}
	if m.tokens == nil {
		m.tokens = NewMemoryStore()
	}
	if m.nav == nil {
		m.nav = NavigatorFunc(func(string) {})
	}
	if m.logger == nil {
		m.logger = logging.With("component", "session")
	}

	var base http.RoundTripper = http.DefaultTransport
	timeout := opts.Timeout
	if opts.HTTPClient != nil {
		if opts.HTTPClient.Transport != nil {
			base = opts.HTTPClient.Transport
		}
		if timeout == 0 {
			timeout = opts.HTTPClient.Timeout
		}
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &Transport{
			Base:           otelhttp.NewTransport(base),
			Source:         TokenSourceFunc(m.Token),
			OnUnauthorized: m.handleUnauthorized,
		},
	}

	client, err := NewClient(opts.BaseURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	m.client = client
	return m, nil
}

// Client exposes the API client; its requests go through the session's interceptor.
func (m *Manager) Client() *Client {
	return m.client
}

// Token returns the current bearer token, or "" when there is none.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (m *Manager) CurrentUser() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return nil
	}
	return m.user.Clone()
}

// Subscribe registers fn for session changes and returns a function that
// removes it. Listeners run outside the state lock, never see an older
// snapshot after a newer one, and must not call mutating Manager methods.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Initialize validates a stored token, if any. It always ends in
// StateAuthenticated or StateUnauthenticated with Loading false. A
// non-nil error explains why a stored token was discarded.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return validationError("The session has already been initialized.")
	}

	stored, err := m.tokens.Load()
	if err != nil {
		m.logger.Warn("Failed to load stored token", "error", err)
		stored = ""
	}

	if stored == "" {
		m.setStateLocked(StateUnauthenticated)
		m.commit()
		return nil
	}

	m.token = stored
	m.setStateLocked(StateValidating)
	epoch := m.epoch
	m.commit()

	user, err := m.client.Me(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		// logged out while validating; logout already settled the state
		m.mu.Unlock()
		return expiredError("The session ended while it was being validated.")
	}

	if err == nil && user.Status != "" && !user.IsActive() {
		err = expiredError("This account is no longer active.")
	}
	if err != nil {
		m.clearLocked()
		m.setStateLocked(StateUnauthenticated)
		m.commit()
		m.logger.Info("Stored token rejected", "error", err)
		return err
	}

	m.user = user
	m.setStateLocked(StateAuthenticated)
	m.commit()
	m.logger.Info("Session restored", "username", user.Username)
	return nil
}

// Login exchanges credentials for a token. On failure the previous session
// state is left untouched. A logout that happens while the call is in
// flight wins and the result is discarded.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return validationError("Username and password are required.")
	}

	m.mu.Lock()
	switch m.state {
	case StateUninitialized, StateValidating:
		m.mu.Unlock()
		return validationError("The session is still starting up. Please try again.")
	case StateAuthenticated:
		m.mu.Unlock()
		return validationError("Already signed in. Sign out before signing in as another user.")
	}
	epoch := m.epoch
	m.inflight++
	m.commit()

	resp, err := m.client.Login(ctx, username, password)

	m.mu.Lock()
	m.inflight--
	if err != nil {
		m.commit()
		m.logger.Info("Login failed", "username", username, "error", err)
		return err
	}
	if m.epoch != epoch {
		m.commit()
		return expiredError("The session ended before sign-in completed.")
	}

	m.persistLocked(resp.AccessToken)
	m.token = resp.AccessToken
	m.user = resp.User.Clone()
	if m.state != StateAuthenticated {
		m.setStateLocked(StateAuthenticated)
	}
	m.commit()

	m.logger.Info("User logged in", "username", resp.User.Username, "role", resp.User.Role)
	return nil
}

// Logout clears the local session unconditionally and then asks the
// server to revoke the token. The returned error only reports the server
// call; the local session is gone either way.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.clearLocked()
	if m.state != StateUnauthenticated {
		m.setStateLocked(StateUnauthenticated)
	}
	m.inflight++
	m.commit()

	err := m.client.Logout(ctx, token)

	m.mu.Lock()
	m.inflight--
	m.commit()

	if err != nil {
		m.logger.Warn("Server-side logout failed", "error", err)
		return err
	}
	return nil
}

// RefreshToken swaps the current token for a new one. On failure the
// current token is kept, unless the server rejected it with a 401, which
// ends the session. A result that arrives after logout is discarded.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return expiredError("Not signed in.")
	}
	epoch := m.epoch
	old := m.token
	m.inflight++
	m.refreshes++
	m.commit()

	resp, err := m.client.Refresh(ctx)

	m.mu.Lock()
	m.inflight--
	m.refreshes--
	expired := m.expiredDuringRefresh && m.refreshes == 0
	if m.refreshes == 0 {
		m.expiredDuringRefresh = false
	}
	current := m.epoch == epoch && m.state == StateAuthenticated
	if err != nil {
		m.logger.Warn("Token refresh failed", "error", err)
		if expired && current && m.token == old {
			m.expireLocked()
			return err
		}
		m.commit()
		return err
	}
	if !current {
		m.commit()
		m.logger.Info("Discarding refreshed token for ended session")
		return expiredError("The session ended before the token refresh completed.")
	}

	m.persistLocked(resp.AccessToken)
	m.token = resp.AccessToken
	m.user = resp.User.Clone()
	m.commit()
	return nil
}

// UpdateProfile saves profile fields and replaces the current user with the server's copy.
func (m *Manager) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	if update.Email != nil && !strings.Contains(*update.Email, "@") {
		return validationError("Please enter a valid email address.")
	}

	epoch, err := m.requireAuthenticated()
	if err != nil {
		return err
	}

	user, err := m.client.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.epoch != epoch || m.state != StateAuthenticated {
		m.mu.Unlock()
		return expiredError("The session ended before the profile update completed.")
	}
	m.user = user
	m.commit()
	return nil
}

func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return validationError("Current and new password are required.")
	}
	if current == next {
		return validationError("The new password must be different from the current password.")
	}
	if err := models.DefaultPasswordPolicy.Validate(next); err != nil {
		return validationError(policyMessage(err))
	}

	if _, err := m.requireAuthenticated(); err != nil {
		return err
	}
	return m.client.ChangePassword(ctx, current, next)
}

func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return validationError("Please enter a valid email address.")
	}
	return m.client.RequestPasswordReset(ctx, email)
}

func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return validationError("A reset token is required.")
	}
	if err := models.DefaultPasswordPolicy.Validate(newPassword); err != nil {
		return validationError(policyMessage(err))
	}
	return m.client.ResetPassword(ctx, token, newPassword)
}

// handleUnauthorized is the interceptor's 401 hook. Only a rejection of the
// token currently in use tears the session down; stale requests from an
// earlier session are ignored. The server revokes the old token as soon as
// it issues a new one, so while a refresh is pending a 401 for the old
// token is held until the refresh settles.
func (m *Manager) handleUnauthorized(rejected string) {
	m.mu.Lock()
	if m.state != StateAuthenticated || rejected != m.token {
		m.mu.Unlock()
		return
	}
	if m.refreshes > 0 {
		m.expiredDuringRefresh = true
		m.mu.Unlock()
		m.logger.Debug("Token rejected during refresh, waiting for the new token")
		return
	}
	m.expireLocked()
}

// expireLocked ends the session after a 401 and sends the user to login.
// It must be called with m.mu held and releases it.
func (m *Manager) expireLocked() {
	m.clearLocked()
	m.setStateLocked(StateUnauthenticated)
	m.commit()

	m.logger.Info("Session expired, redirecting to login")
	m.nav.Navigate(LoginPath)
}

func (m *Manager) requireAuthenticated() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return 0, expiredError("Not signed in.")
	}
	return m.epoch, nil
}

// clearLocked drops token and user and invalidates in-flight work.
func (m *Manager) clearLocked() {
	if err := m.tokens.Clear(); err != nil {
		m.logger.Warn("Failed to clear stored token", "error", err)
	}
	m.token = ""
	m.user = nil
	m.epoch++
}

func (m *Manager) persistLocked(token string) {
	if err := m.tokens.Save(token); err != nil {
		// the in-memory session still works; it just won't survive a restart
		m.logger.Warn("Failed to persist token", "error", err)
	}
}

func (m *Manager) setStateLocked(to State) {
	if !canTransition(m.state, to) {
		// unreachable through the public API
		panic(fmt.Sprintf("session: illegal transition %s -> %s", m.state, to))
	}
	m.state = to
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:   m.state,
		Token:   m.token,
		User:    m.user.Clone(),
		Loading:   m.state == StateValidating || m.inflight > 0,
		version:   m.version,
		evaluator: m.evaluator,
	}
}

// commit publishes the current state and releases m.mu. It must be called
// with m.mu held.
func (m *Manager) commit() {
	m.version++
	if m.state == StateAuthenticated && m.user != nil {
		m.evaluator = rbac.NewEvaluator(m.user.Principal())
	} else {
		m.evaluator = rbac.Anonymous()
	}
	snap := m.snapshotLocked()
	ls := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		ls = append(ls, fn)
	}
	m.mu.Unlock()

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if snap.version <= m.delivered {
		return
	}
	m.delivered = snap.version
	for _, fn := range ls {
		fn(snap)
	}
}

func policyMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	return "Password " + msg + "."
}
