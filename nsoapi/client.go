// Package nsoapi talks to the Nintendo account service and the Nintendo Switch Online
// app API ("coral"). It covers the steps needed to turn a pasted sign-in link into an
// outer access token and to derive the per-game web service token from it.
package nsoapi

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

	"github.com/onnwee/grizzpector/config"
	"github.com/onnwee/grizzpector/telemetry"
	"golang.org/x/oauth2"
)

// ErrUnauthorized matches any APIError caused by a rejected or expired credential.
var ErrUnauthorized = errors.New("nsoapi: unauthorized")

// Coral reports auth failures in the body with HTTP 200.
const (
	coralStatusOK           = 0
	coralStatusInvalidToken = 9403
	coralStatusTokenExpired = 9404
)

// APIError is returned when an upstream endpoint answers with a non-success status.
type APIError struct {
	Op     string
	Status int
	// Code is the coral body status, zero for account endpoints.
	Code int
	Body string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("nsoapi %s: status %d code %d: %s", e.Op, e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("nsoapi %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Is reports whether the error represents an authorization failure.
func (e *APIError) Is(target error) bool {
	if target != ErrUnauthorized {
		return false
	}
	return e.Status == http.StatusUnauthorized || e.Code == coralStatusInvalidToken || e.Code == coralStatusTokenExpired
}

// Client holds the endpoints and identifiers for the account and coral APIs.
type Client struct {
	ClientID     string
	AccountsURL  string
	CoralURL     string
	WebServiceID string
	UserAgent    string
	HTTPClient   *http.Client
}

// New builds a Client from application configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		ClientID:     cfg.NSOClientID,
		AccountsURL:  strings.TrimRight(cfg.NSOAccountsURL, "/"),
		CoralURL:     strings.TrimRight(cfg.NSOCoralURL, "/"),
		WebServiceID: cfg.NSOWebServiceID,
		UserAgent:    cfg.UserAgent,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// do sends req and returns the body of a 2xx response. bearer, when set, is attached as
// an Authorization header.
func (c *Client) do(req *http.Request, op, bearer string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(req.Context(), "nsoapi", "nsoapi."+op, telemetry.HTTPMethodAttr(req.Method))
	req = req.WithContext(ctx)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	var resp *http.Response
	var err error
	telemetry.TimeFunc(telemetry.UpstreamObserver("nso", op), func() {
		resp, err = c.httpClient().Do(req)
	})
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, fmt.Errorf("nsoapi %s: %w", op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.String("component", "nsoapi"), slog.Any("err", err))
		}
	}()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, fmt.Errorf("nsoapi %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body), 256)}
		telemetry.EndSpan(span, apiErr)
		return nil, apiErr
	}
	telemetry.EndSpan(span, nil)
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, op, endpoint, bearer string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("nsoapi %s: encode: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	body, err := c.do(req, op, bearer)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("nsoapi %s: decode: %w", op, err)
	}
	return nil
}

// coralEnvelope is the wrapper every coral response uses.
type coralEnvelope[T any] struct {
	Status       int    `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Result       T      `json:"result"`
}

func (e *coralEnvelope[T]) err(op string) error {
	if e.Status == coralStatusOK {
		return nil
	}
	return &APIError{Op: op, Status: http.StatusOK, Code: e.Status, Body: e.ErrorMessage}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func expiry(now time.Time, expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}
