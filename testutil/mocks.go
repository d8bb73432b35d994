package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Upstream endpoint paths served by MockUpstream.
const (
	PathSessionToken    = "/connect/1.0.0/api/session_token"
	PathAccountToken    = "/connect/1.0.0/api/token"
	PathCoralLogin      = "/v3/Account/Login"
	PathWebServiceToken = "/v2/Game/GetWebServiceToken"
	PathBulletTokens    = "/api/bullet_tokens"
	PathGraphQL         = "/api/graphql"
)

// MockUpstream is a single test server standing in for the account service, coral and
// SplatNet 3. Every request is recorded so tests can assert call counts and ordering.
type MockUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	events   []string
}

// NewMockUpstream starts a mock upstream that is closed when the test ends.
func NewMockUpstream(t *testing.T) *MockUpstream {
	t.Helper()
	m := &MockUpstream{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

func (m *MockUpstream) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if key == PathGraphQL {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		var gr struct {
			Extensions struct {
				PersistedQuery struct {
					SHA256Hash string `json:"sha256Hash"`
				} `json:"persistedQuery"`
			} `json:"extensions"`
		}
		_ = json.Unmarshal(body, &gr)
		key = PathGraphQL + "#" + gr.Extensions.PersistedQuery.SHA256Hash
	}
	m.mu.Lock()
	m.events = append(m.events, key)
	handler, ok := m.handlers[key]
	m.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	handler(w, r)
}

// Handle registers fn for a path. GraphQL queries are keyed by PathGraphQL + "#" + hash.
func (m *MockUpstream) Handle(key string, fn http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = fn
}

// Record appends an arbitrary event, letting tests interleave their own markers
// (persistence writes, for example) with upstream calls.
func (m *MockUpstream) Record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of everything recorded so far, in order.
func (m *MockUpstream) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Calls counts recorded events equal to key.
func (m *MockUpstream) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == key {
			n++
		}
	}
	return n
}

// Reset clears recorded events but keeps handlers.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockSessionToken answers the session-token exchange with token.
func (m *MockUpstream) MockSessionToken(token string) {
	m.Handle(PathSessionToken, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"session_token": token})
	})
}

// MockAccountLogin answers both login steps: the account id token and the coral sign-in.
func (m *MockUpstream) MockAccountLogin(accountID, name, imageURI, accessToken string, expiresIn int) {
	m.Handle(PathAccountToken, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "na-access",
			"id_token":     "na-id",
			"expires_in":   900,
		})
	})
	m.Handle(PathCoralLogin, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 0,
			"result": map[string]any{
				"user": map[string]string{"id": accountID, "name": name, "imageUri": imageURI},
				"webApiServerCredential": map[string]any{
					"accessToken": accessToken,
					"expiresIn":   expiresIn,
				},
			},
		})
	})
}

// MockWebServiceToken answers GetWebServiceToken with token.
func (m *MockUpstream) MockWebServiceToken(token string, expiresIn int) {
	m.Handle(PathWebServiceToken, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 0,
			"result": map[string]any{"accessToken": token, "expiresIn": expiresIn},
		})
	})
}

// MockBulletToken issues token for any web service token.
func (m *MockUpstream) MockBulletToken(token string) {
	m.Handle(PathBulletTokens, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"bulletToken": token})
	})
}

// MockStatus makes key answer with a bare status code.
func (m *MockUpstream) MockStatus(key string, status int) {
	m.Handle(key, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

// MockGraphQL answers the persisted query hash with data, but only for requests
// carrying bulletToken. Other bearer tokens get 401.
func (m *MockUpstream) MockGraphQL(hash, bulletToken string, data any) {
	m.Handle(PathGraphQL+"#"+hash, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+bulletToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	})
}

// CoopHistoryData is the data member of a history query whose latest shift is id.
func CoopHistoryData(id string) map[string]any {
	return map[string]any{
		"coopResult": map[string]any{
			"historyGroupsOnlyFirst": map[string]any{
				"nodes": []any{
					map[string]any{
						"historyDetails": map[string]any{
							"nodes": []any{map[string]string{"id": id}},
						},
					},
				},
			},
		},
	}
}

// CoopPlayer builds one player result.
func CoopPlayer(name string, deliver, golden, assist, defeat, rescue, rescued int) map[string]any {
	return map[string]any{
		"player":             map[string]string{"name": name},
		"deliverCount":       deliver,
		"goldenDeliverCount": golden,
		"goldenAssistCount":  assist,
		"defeatEnemyCount":   defeat,
		"rescueCount":        rescue,
		"rescuedCount":       rescued,
	}
}

// CoopHistoryDetailData is the data member of a detail query.
func CoopHistoryDetailData(id string, me map[string]any, members ...map[string]any) map[string]any {
	ms := make([]any, 0, len(members))
	for _, mr := range members {
		ms = append(ms, mr)
	}
	return map[string]any{
		"coopHistoryDetail": map[string]any{
			"id":            id,
			"myResult":      me,
			"memberResults": ms,
		},
	}
}
