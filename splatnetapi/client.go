// Package splatnetapi is a small client for the SplatNet 3 web service: bullet token
// issuance and the persisted GraphQL queries needed to read Salmon Run history.
package splatnetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/grizzpector/config"
	"github.com/onnwee/grizzpector/telemetry"
)

// ErrUnauthorized matches an APIError caused by a rejected or expired token.
var ErrUnauthorized = errors.New("splatnetapi: unauthorized")

// BulletTokenLifetime is how long an issued bullet token is accepted. The service does
// not report it, so it is fixed here.
const BulletTokenLifetime = 2 * time.Hour

// DefaultWebViewVersion is sent as X-Web-View-Ver on every request.
const DefaultWebViewVersion = "6.0.0-e135295b"

// APIError is returned for non-success HTTP statuses.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("splatnetapi %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Is reports whether the error represents an authorization failure.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && (e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// Client issues requests against one SplatNet 3 deployment.
type Client struct {
	BaseURL        string
	UserAgent      string
	WebViewVersion string
	HTTPClient     *http.Client
}

// New builds a Client from application configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(cfg.SplatnetURL, "/"),
		UserAgent:      cfg.UserAgent,
		WebViewVersion: DefaultWebViewVersion,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// BulletToken is the credential for GraphQL requests.
type BulletToken struct {
	Token  string
	Expiry time.Time
}

// BulletToken issues a bullet token for a web service token.
func (c *Client) BulletToken(ctx context.Context, webServiceToken string) (*BulletToken, error) {
	if webServiceToken == "" {
		return nil, errors.New("splatnetapi: missing web service token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/bullet_tokens", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-GameWebToken", webServiceToken)
	body, err := c.do(req, "bullet_tokens")
	if err != nil {
		return nil, err
	}
	var out struct {
		BulletToken string `json:"bulletToken"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("splatnetapi bullet_tokens: decode: %w", err)
	}
	if out.BulletToken == "" {
		return nil, errors.New("splatnetapi bullet_tokens: empty token")
	}
	return &BulletToken{Token: out.BulletToken, Expiry: time.Now().Add(BulletTokenLifetime)}, nil
}

type persistedQuery struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

type graphQLRequest struct {
	Variables  map[string]any `json:"variables"`
	Extensions struct {
		PersistedQuery persistedQuery `json:"persistedQuery"`
	} `json:"extensions"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// graphQL runs a persisted query and decodes its data member into out.
func (c *Client) graphQL(ctx context.Context, op, hash, bulletToken string, variables map[string]any, out any) error {
	if bulletToken == "" {
		return errors.New("splatnetapi: missing bullet token")
	}
	if variables == nil {
		variables = map[string]any{}
	}
	gr := graphQLRequest{Variables: variables}
	gr.Extensions.PersistedQuery = persistedQuery{Version: 1, SHA256Hash: hash}
	payload, err := json.Marshal(gr)
	if err != nil {
		return fmt.Errorf("splatnetapi %s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/graphql", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	(&oauth2.Token{AccessToken: bulletToken, TokenType: "Bearer"}).SetAuthHeader(req)
	body, err := c.do(req, op)
	if err != nil {
		return err
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("splatnetapi %s: decode: %w", op, err)
	}
	if len(envelope.Errors) > 0 && len(envelope.Data) == 0 {
		return fmt.Errorf("splatnetapi %s: %s", op, envelope.Errors[0].Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("splatnetapi %s: decode data: %w", op, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(req.Context(), "splatnetapi", "splatnetapi."+op, telemetry.HTTPMethodAttr(req.Method))
	req = req.WithContext(ctx)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.WebViewVersion != "" {
		req.Header.Set("X-Web-View-Ver", c.WebViewVersion)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	var resp *http.Response
	var err error
	telemetry.TimeFunc(telemetry.UpstreamObserver("splatnet", op), func() {
		resp, err = hc.Do(req)
	})
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, fmt.Errorf("splatnetapi %s: %w", op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.String("component", "splatnetapi"), slog.Any("err", err))
		}
	}()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, fmt.Errorf("splatnetapi %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 256 {
			body = body[:256]
		}
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: string(body)}
		telemetry.EndSpan(span, apiErr)
		return nil, apiErr
	}
	telemetry.EndSpan(span, nil)
	return body, nil
}
