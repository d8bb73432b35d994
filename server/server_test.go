package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/grizzpector/nsoapi"
	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/session"
	"github.com/onnwee/grizzpector/splatnetapi"
	"github.com/onnwee/grizzpector/testutil"
)

// fakeEditor records edits instead of calling Discord.
type fakeEditor struct {
	mu    sync.Mutex
	edits []recordedEdit
	err   error
}

type recordedEdit struct {
	appID, token string
	edit         *discordgo.WebhookEdit
}

func (f *fakeEditor) EditOriginal(ctx context.Context, appID, token string, edit *discordgo.WebhookEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, recordedEdit{appID: appID, token: token, edit: edit})
	return f.err
}

func (f *fakeEditor) Edits() []recordedEdit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEdit(nil), f.edits...)
}

// countingProvider counts saves per key.
type countingProvider struct {
	persistence.Provider
	mu    sync.Mutex
	saves []string
}

func (p *countingProvider) Save(ctx context.Context, key string, value []byte) error {
	p.mu.Lock()
	p.saves = append(p.saves, key)
	p.mu.Unlock()
	return p.Provider.Save(ctx, key, value)
}

func (p *countingProvider) Saves() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.saves...)
}

type testEnv struct {
	handler  http.Handler
	priv     ed25519.PrivateKey
	up       *testutil.MockUpstream
	editor   *fakeEditor
	runner   *DeferredRunner
	manager  *session.Manager
	store    *session.Store
	provider *countingProvider

	errMu    sync.Mutex
	taskErrs []error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	up := testutil.NewMockUpstream(t)
	account := &nsoapi.Client{
		ClientID:     "71b963c1b7b6d119",
		AccountsURL:  up.URL,
		CoralURL:     up.URL,
		WebServiceID: "4834290508791808",
		HTTPClient:   up.Client(),
	}
	service := &splatnetapi.Client{BaseURL: up.URL, HTTPClient: up.Client()}
	provider := &countingProvider{Provider: persistence.NewFileProvider(t.TempDir())}
	manager := session.NewManager(account, service, provider)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{
		priv:     priv,
		up:       up,
		editor:   &fakeEditor{},
		runner:   NewDeferredRunner(ctx),
		manager:  manager,
		store:    session.NewStore(manager.Restore),
		provider: provider,
	}
	env.runner.OnError = func(ctx context.Context, task string, err error) {
		env.errMu.Lock()
		defer env.errMu.Unlock()
		env.taskErrs = append(env.taskErrs, err)
	}
	env.handler = NewMux(ctx, Deps{
		PublicKey: pub,
		Manager:   manager,
		Store:     env.store,
		Editor:    env.editor,
		Runner:    env.runner,
		Provider:  provider,
	})
	return env
}

func (e *testEnv) TaskErrors() []error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return append([]error(nil), e.taskErrs...)
}

func (e *testEnv) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.runner.Wait(ctx); err != nil {
		t.Fatalf("deferred tasks did not finish: %v", err)
	}
}

func signedRequest(t *testing.T, priv ed25519.PrivateKey, body []byte) *http.Request {
	t.Helper()
	ts := "1700000000"
	sig := ed25519.Sign(priv, append([]byte(ts), body...))
	req := httptest.NewRequest(http.MethodPost, InteractionsPath, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", ts)
	return req
}

// post sends a signed interaction and decodes the JSON response.
func (e *testEnv) post(t *testing.T, payload any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, signedRequest(t, e.priv, body))
	var resp map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr.Code, resp
}

var testUser = map[string]any{"id": "42", "username": "inkling"}

func commandPayload(name string, options ...map[string]any) map[string]any {
	data := map[string]any{"id": "cmd-1", "name": name, "type": 1}
	if len(options) > 0 {
		data["options"] = options
	}
	return map[string]any{
		"id":             "int-1",
		"application_id": "app-1",
		"type":           2,
		"token":          "tok-1",
		"data":           data,
		"member":         map[string]any{"user": testUser},
	}
}

func componentPayload(customID string) map[string]any {
	return map[string]any{
		"id":             "int-2",
		"application_id": "app-1",
		"type":           3,
		"token":          "tok-2",
		"data":           map[string]any{"custom_id": customID, "component_type": 2},
		"user":           testUser,
	}
}

func modalPayload(customID, link string) map[string]any {
	return map[string]any{
		"id":             "int-3",
		"application_id": "app-1",
		"type":           5,
		"token":          "tok-3",
		"data": map[string]any{
			"custom_id": customID,
			"components": []any{
				map[string]any{
					"type": 1,
					"components": []any{
						map[string]any{"type": 4, "custom_id": "signIn.modal.pasteLink.textInput", "value": link},
					},
				},
			},
		},
		"user": testUser,
	}
}

func responseFlags(resp map[string]any) int {
	data, ok := resp["data"].(map[string]any)
	if !ok {
		return 0
	}
	f, _ := data["flags"].(float64)
	return int(f)
}

func responseContent(resp map[string]any) string {
	data, _ := resp["data"].(map[string]any)
	s, _ := data["content"].(string)
	return s
}

func TestMuxHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestMuxCorrelationIDReused(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ready" {
		t.Errorf("status = %q, want ready", resp["status"])
	}
}

func TestReadyzShuttingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewMux(ctx, Deps{Provider: persistence.NewFileProvider(t.TempDir())})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rr.Code)
	}
	var resp map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp["failed_check"] != "shutdown" {
		t.Errorf("failed_check = %q, want shutdown", resp["failed_check"])
	}
}
