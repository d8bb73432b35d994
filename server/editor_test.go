package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// rewriteTransport sends every request to the test server, keeping the path.
type rewriteTransport struct {
	base string
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(rt.base, "http://")
	return http.DefaultTransport.RoundTrip(req)
}

func TestDiscordEditorPatchesOriginal(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","channel_id":"c1","content":"done"}`))
	}))
	defer srv.Close()

	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New() error = %v", err)
	}
	s.Client = &http.Client{Transport: &rewriteTransport{base: srv.URL}}

	content := "done"
	err = NewDiscordEditor(s).EditOriginal(context.Background(), "app-1", "tok-1", &discordgo.WebhookEdit{Content: &content})
	if err != nil {
		t.Fatalf("EditOriginal() error = %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if !strings.HasSuffix(gotPath, "/webhooks/app-1/tok-1/messages/@original") {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["content"] != "done" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestDiscordEditorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Unknown Webhook","code":10015}`))
	}))
	defer srv.Close()

	s, _ := discordgo.New("Bot test-token")
	s.Client = &http.Client{Transport: &rewriteTransport{base: srv.URL}}

	content := "late"
	err := NewDiscordEditor(s).EditOriginal(context.Background(), "app-1", "expired", &discordgo.WebhookEdit{Content: &content})
	if err == nil {
		t.Fatal("expected error for unknown webhook")
	}
}
