package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/onnwee/grizzpector/nsoapi"
	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/splatnetapi"
	"github.com/onnwee/grizzpector/telemetry"
)

const (
	// PendingTTL is how long a generated sign-in link stays redeemable.
	PendingTTL = 10 * time.Minute
	// maxPending bounds the pending authorization table.
	maxPending = 10000
)

// AccountAPI is the part of the account/coral client the manager uses.
type AccountAPI interface {
	NewAuthorization() (*nsoapi.Authorization, error)
	ParseRedirectLink(link string) (url.Values, error)
	ExchangeSessionTokenCode(ctx context.Context, code, verifier string) (string, error)
	Login(ctx context.Context, sessionToken string) (*nsoapi.Credential, error)
	WebServiceToken(ctx context.Context, accessToken string) (*nsoapi.WebServiceToken, error)
}

// ServiceAPI is the part of the SplatNet 3 client the manager and facade use.
type ServiceAPI interface {
	BulletToken(ctx context.Context, webServiceToken string) (*splatnetapi.BulletToken, error)
	LatestCoopHistoryID(ctx context.Context, bulletToken string) (string, error)
	CoopHistoryDetail(ctx context.Context, bulletToken, id string) (*splatnetapi.CoopHistoryDetail, error)
}

// PendingState is an issued but not yet redeemed authorization.
type PendingState struct {
	State     string
	Verifier  string
	ExpiresAt time.Time
}

// Options customizes CreateSession. Nil fields fall back to the manager's defaults.
type Options struct {
	// Inner, when set, is used as is and no derivation call is made.
	Inner        *InnerToken
	RefreshOuter RefreshOuterFunc
	RefreshInner RefreshInnerFunc
}

// Manager runs the authorization handshake and builds sessions wired to persistence.
type Manager struct {
	account  AccountAPI
	service  ServiceAPI
	provider persistence.Provider
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]PendingState
}

// NewManager creates a Manager.
func NewManager(account AccountAPI, service ServiceAPI, provider persistence.Provider) *Manager {
	return &Manager{
		account:  account,
		service:  service,
		provider: provider,
		now:      time.Now,
		pending:  make(map[string]PendingState),
	}
}

// BeginAuthorization issues a new sign-in link and remembers its state and verifier.
func (m *Manager) BeginAuthorization() (string, PendingState, error) {
	auth, err := m.account.NewAuthorization()
	if err != nil {
		return "", PendingState{}, err
	}
	p := PendingState{State: auth.State, Verifier: auth.Verifier, ExpiresAt: m.now().Add(PendingTTL)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending)%100 == 0 {
		m.sweepLocked()
	}
	if len(m.pending) >= maxPending {
		m.sweepLocked()
		if len(m.pending) >= maxPending {
			return "", PendingState{}, ErrTooManyPending
		}
	}
	m.pending[p.State] = p
	return auth.URL, p, nil
}

// sweepLocked drops expired pending states. m.mu must be held.
func (m *Manager) sweepLocked() {
	now := m.now()
	for k, p := range m.pending {
		if !now.Before(p.ExpiresAt) {
			delete(m.pending, k)
		}
	}
}

// PendingCount reports how many authorizations are outstanding.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ParseRedirectLink extracts the handshake parameters from a pasted link.
func (m *Manager) ParseRedirectLink(link string) (url.Values, error) {
	params, err := m.account.ParseRedirectLink(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAuthorizationResponse, err)
	}
	return params, nil
}

// CompleteAuthorization redeems the redirect parameters for an outer token. The pending
// state is consumed only when the exchange succeeds, so a failed attempt can be retried
// with the same link.
func (m *Manager) CompleteAuthorization(ctx context.Context, params url.Values) (OuterToken, error) {
	state := params.Get("state")
	code := params.Get("session_token_code")
	if state == "" || code == "" {
		return OuterToken{}, fmt.Errorf("%w: missing state or session_token_code", ErrInvalidAuthorizationResponse)
	}

	m.mu.Lock()
	p, ok := m.pending[state]
	if ok && !m.now().Before(p.ExpiresAt) {
		delete(m.pending, state)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return OuterToken{}, fmt.Errorf("%w: unknown or expired state", ErrInvalidAuthorizationResponse)
	}

	sessionToken, err := m.account.ExchangeSessionTokenCode(ctx, code, p.Verifier)
	if err != nil {
		return OuterToken{}, fmt.Errorf("%w: session token: %w", ErrUpstreamRejected, err)
	}
	cred, err := m.account.Login(ctx, sessionToken)
	if err != nil {
		return OuterToken{}, fmt.Errorf("%w: login: %w", ErrUpstreamRejected, err)
	}

	m.mu.Lock()
	delete(m.pending, state)
	m.mu.Unlock()
	return outerFromCredential(cred), nil
}

// CreateSession builds a session for identity. Without opts.Inner the inner token is
// derived from outer first. Both tokens are persisted before the session is returned.
func (m *Manager) CreateSession(ctx context.Context, id Identity, outer OuterToken, opts Options) (*Session, error) {
	var inner InnerToken
	if opts.Inner != nil {
		inner = *opts.Inner
	} else {
		derived, err := m.deriveInner(ctx, outer)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
		}
		inner = derived
	}

	s := m.newSession(id, outer, inner, opts)
	s.save(ctx, id.Key(), outer)
	s.save(ctx, id.InnerKey(), inner)
	return s, nil
}

// Restore rebuilds a session from persisted records without any upstream call or
// write. A missing outer record yields an error matching persistence.ErrNotFound. A
// missing inner record leaves the inner token unissued; the first upstream call
// derives it.
func (m *Manager) Restore(ctx context.Context, id Identity) (*Session, error) {
	outer, err := persistence.LoadJSON[OuterToken](ctx, m.provider, id.Key())
	if err != nil {
		return nil, err
	}
	inner, err := persistence.LoadJSON[InnerToken](ctx, m.provider, id.InnerKey())
	if errors.Is(err, persistence.ErrNotFound) {
		telemetry.LoggerWithCorr(ctx).Info("inner record missing, deriving on first use",
			slog.String("component", "session"),
			slog.String("key", id.InnerKey()))
		inner = InnerToken{}
	} else if err != nil {
		return nil, err
	}
	return m.newSession(id, outer, inner, Options{}), nil
}

func (m *Manager) newSession(id Identity, outer OuterToken, inner InnerToken, opts Options) *Session {
	s := &Session{
		identity:     id,
		outer:        outer,
		outerState:   stateFor(outer.AccessToken),
		inner:        inner,
		innerState:   stateFor(inner.BulletToken),
		refreshOuter: opts.RefreshOuter,
		refreshInner: opts.RefreshInner,
		persist:      m.persist,
	}
	if s.refreshOuter == nil {
		s.refreshOuter = m.refreshOuter
	}
	if s.refreshInner == nil {
		s.refreshInner = m.refreshInner
	}
	return s
}

// Client returns the upstream facade bound to s.
func (m *Manager) Client(s *Session) *Client {
	return &Client{session: s, service: m.service, now: m.now}
}

func (m *Manager) persist(ctx context.Context, key string, v any) error {
	return persistence.SaveJSON(ctx, m.provider, key, v)
}

// refreshOuter signs in again with the session token. It does not retry.
func (m *Manager) refreshOuter(ctx context.Context, current OuterToken) (OuterToken, error) {
	if current.SessionToken == "" {
		return OuterToken{}, errors.New("session: no session token to refresh with")
	}
	cred, err := m.account.Login(ctx, current.SessionToken)
	if err != nil {
		return OuterToken{}, fmt.Errorf("refresh outer token: %w", err)
	}
	return outerFromCredential(cred), nil
}

// refreshInner reissues the bullet token from the stored web service token, falling
// back to the full chain when the web service token is missing, expired or rejected.
func (m *Manager) refreshInner(ctx context.Context, outer OuterToken, current InnerToken) (InnerToken, error) {
	if current.webServiceTokenUsable(m.now()) {
		bt, err := m.service.BulletToken(ctx, current.WebServiceToken)
		if err == nil {
			next := current
			next.BulletToken = bt.Token
			next.Expiry = bt.Expiry
			return next, nil
		}
		if !errors.Is(err, splatnetapi.ErrUnauthorized) {
			return InnerToken{}, fmt.Errorf("refresh inner token: %w", err)
		}
		telemetry.LoggerWithCorr(ctx).Debug("web service token rejected, deriving from outer token",
			slog.String("component", "session"))
	}
	next, err := m.deriveInner(ctx, outer)
	if err != nil {
		return InnerToken{}, fmt.Errorf("refresh inner token: %w", err)
	}
	return next, nil
}

// deriveInner runs the full chain: outer access token, web service token, bullet token.
func (m *Manager) deriveInner(ctx context.Context, outer OuterToken) (InnerToken, error) {
	wst, err := m.account.WebServiceToken(ctx, outer.AccessToken)
	if err != nil {
		return InnerToken{}, err
	}
	bt, err := m.service.BulletToken(ctx, wst.Token)
	if err != nil {
		return InnerToken{}, err
	}
	return InnerToken{
		WebServiceToken:  wst.Token,
		WebServiceExpiry: wst.Expiry,
		BulletToken:      bt.Token,
		Expiry:           bt.Expiry,
	}, nil
}

func outerFromCredential(c *nsoapi.Credential) OuterToken {
	return OuterToken{
		SessionToken: c.SessionToken,
		IDToken:      c.IDToken,
		AccessToken:  c.AccessToken,
		Expiry:       c.Expiry,
		Account:      c.Account,
	}
}
