// Package session owns the credential lifecycle for signed-in users: the two-step
// authorization handshake, the pair of chained tokens each user holds, their refresh,
// and their persistence.
//
// A user's outer token (coral) is obtained by the handshake. The inner token
// (splatnet3) is derived from it. Both expire independently and are refreshed lazily,
// when a caller finds them expired or an upstream call rejects them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/grizzpector/nsoapi"
	"github.com/onnwee/grizzpector/telemetry"
)

var (
	// ErrInvalidAuthorizationResponse is returned when a pasted redirect does not match a pending authorization.
	ErrInvalidAuthorizationResponse = errors.New("session: invalid authorization response")
	// ErrUpstreamRejected is returned when the account service refuses the handshake.
	ErrUpstreamRejected = errors.New("session: upstream rejected authorization")
	// ErrDerivationFailed is returned when the inner token cannot be derived from the outer one.
	ErrDerivationFailed = errors.New("session: inner token derivation failed")
	// ErrTooManyPending is returned when the pending authorization table is full.
	ErrTooManyPending = errors.New("session: too many pending authorizations")
)

// InnerService names the inner token's web service; it suffixes the inner record key.
const InnerService = "splatnet3"

// expiryLeeway treats tokens about to expire as expired.
const expiryLeeway = 30 * time.Second

// Identity is the chat-platform user a session belongs to.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Key is the storage key for the user's outer record.
func (i Identity) Key() string { return i.Username + "-" + i.ID }

// InnerKey is the storage key for the user's inner record.
func (i Identity) InnerKey() string { return i.Key() + "-" + InnerService }

// OuterToken is the account-level credential.
type OuterToken struct {
	SessionToken string         `json:"session_token"`
	IDToken      string         `json:"id_token,omitempty"`
	AccessToken  string         `json:"access_token"`
	Expiry       time.Time      `json:"expires_at"`
	Account      nsoapi.Account `json:"account"`
}

// Expired reports whether the token is known to be unusable at now. A zero expiry
// is treated as unknown, not expired.
func (t OuterToken) Expired(now time.Time) bool {
	return tokenExpired(t.AccessToken, t.Expiry, now)
}

// InnerToken is the service-level credential and the web service token it came from.
type InnerToken struct {
	WebServiceToken  string    `json:"web_service_token"`
	WebServiceExpiry time.Time `json:"web_service_expires_at"`
	BulletToken      string    `json:"bullet_token"`
	Expiry           time.Time `json:"expires_at"`
}

// Expired reports whether the bullet token is known to be unusable at now.
func (t InnerToken) Expired(now time.Time) bool {
	return tokenExpired(t.BulletToken, t.Expiry, now)
}

func (t InnerToken) webServiceTokenUsable(now time.Time) bool {
	return !tokenExpired(t.WebServiceToken, t.WebServiceExpiry, now)
}

func tokenExpired(tok string, exp time.Time, now time.Time) bool {
	if tok == "" {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return !now.Before(exp.Add(-expiryLeeway))
}

// TokenState tracks one token through its refresh cycle.
type TokenState int

const (
	// StateUnissued means the session holds no token of this kind yet.
	StateUnissued TokenState = iota
	// StateActive means the token was issued or restored and has not failed a refresh.
	StateActive
	// StateRefreshing means a refresh call is in flight.
	StateRefreshing
	// StateFailed means the last refresh failed. The next call may try again.
	StateFailed
)

func (s TokenState) String() string {
	switch s {
	case StateUnissued:
		return "unissued"
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// RefreshOuterFunc produces a replacement for current.
type RefreshOuterFunc func(ctx context.Context, current OuterToken) (OuterToken, error)

// RefreshInnerFunc produces a replacement inner token, given the session's outer token.
type RefreshInnerFunc func(ctx context.Context, outer OuterToken, current InnerToken) (InnerToken, error)

type persistFunc func(ctx context.Context, key string, v any) error

// Session is one user's pair of tokens plus the handlers that refresh and persist them.
// Token swaps are serialized by the session's mutex; refresh network calls are not, so
// concurrent callers may both refresh and the last swap wins.
type Session struct {
	identity Identity

	mu         sync.RWMutex
	outer      OuterToken
	outerState TokenState
	inner      InnerToken
	innerState TokenState

	refreshOuter RefreshOuterFunc
	refreshInner RefreshInnerFunc
	persist      persistFunc
}

// Identity returns the user the session belongs to.
func (s *Session) Identity() Identity { return s.identity }

// Outer returns a copy of the current outer token.
func (s *Session) Outer() OuterToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outer
}

// Inner returns a copy of the current inner token.
func (s *Session) Inner() InnerToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner
}

// OuterState reports where the outer token is in its refresh cycle.
func (s *Session) OuterState() TokenState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outerState
}

// InnerState reports where the inner token is in its refresh cycle.
func (s *Session) InnerState() TokenState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.innerState
}

// RefreshOuter replaces the outer token using the session's outer refresh handler and
// persists the result before returning it. On failure the current token is kept and
// the error is returned unchanged.
func (s *Session) RefreshOuter(ctx context.Context) (OuterToken, error) {
	s.mu.Lock()
	current := s.outer
	s.outerState = StateRefreshing
	s.mu.Unlock()

	next, err := s.refreshOuter(ctx, current)
	telemetry.RecordRefresh("outer", err)
	if err != nil {
		s.setOuterState(StateFailed)
		return OuterToken{}, err
	}
	if next.SessionToken == "" {
		next.SessionToken = current.SessionToken
	}
	if next.Account.ID == "" {
		next.Account = current.Account
	}
	s.save(ctx, s.identity.Key(), next)

	s.mu.Lock()
	s.outer = next
	s.outerState = StateActive
	s.mu.Unlock()
	return next, nil
}

// RefreshInner replaces the inner token using the session's inner refresh handler and
// persists the result before returning it.
func (s *Session) RefreshInner(ctx context.Context) (InnerToken, error) {
	s.mu.Lock()
	outer, current := s.outer, s.inner
	s.innerState = StateRefreshing
	s.mu.Unlock()

	next, err := s.refreshInner(ctx, outer, current)
	telemetry.RecordRefresh("inner", err)
	if err != nil {
		s.setInnerState(StateFailed)
		return InnerToken{}, err
	}
	s.save(ctx, s.identity.InnerKey(), next)

	s.mu.Lock()
	s.inner = next
	s.innerState = StateActive
	s.mu.Unlock()
	return next, nil
}

func (s *Session) setOuterState(st TokenState) {
	s.mu.Lock()
	s.outerState = st
	s.mu.Unlock()
}

func (s *Session) setInnerState(st TokenState) {
	s.mu.Lock()
	s.innerState = st
	s.mu.Unlock()
}

// save persists v. A failed write is logged and otherwise ignored: the token is still
// valid in memory and will be written again on its next refresh.
func (s *Session) save(ctx context.Context, key string, v any) {
	if s.persist == nil {
		return
	}
	if err := s.persist(ctx, key, v); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("failed to persist credential",
			slog.String("component", "session"),
			slog.String("key", key),
			slog.Any("err", err))
	}
}

func stateFor(tok string) TokenState {
	if tok == "" {
		return StateUnissued
	}
	return StateActive
}
