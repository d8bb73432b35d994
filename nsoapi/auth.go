package nsoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrInvalidRedirect is returned when a pasted link is not an account redirect.
var ErrInvalidRedirect = errors.New("nsoapi: invalid redirect link")

const sessionTokenScope = "openid user user.birthday user.mii user.screenName"

// Authorization is a freshly generated authorization request. Verifier must be kept
// server side and supplied to ExchangeSessionTokenCode once the user returns.
type Authorization struct {
	URL      string
	State    string
	Verifier string
}

// RedirectURI is the custom scheme the account service sends the user to after login.
func (c *Client) RedirectURI() string {
	return "npf" + c.ClientID + "://auth"
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURI(),
		Scopes:      strings.Fields(sessionTokenScope),
		Endpoint: oauth2.Endpoint{
			AuthURL: c.AccountsURL + "/connect/1.0.0/authorize",
		},
	}
}

// NewAuthorization generates a state and PKCE verifier and builds the login URL for them.
func (c *Client) NewAuthorization() (*Authorization, error) {
	if c.ClientID == "" || c.AccountsURL == "" {
		return nil, errors.New("nsoapi: missing client id or accounts url")
	}
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := c.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "session_token_code"),
		oauth2.SetAuthURLParam("session_token_code_challenge", oauth2.S256ChallengeFromVerifier(verifier)),
		oauth2.SetAuthURLParam("session_token_code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("theme", "login_form"),
	)
	return &Authorization{URL: authURL, State: state, Verifier: verifier}, nil
}

// ParseRedirectLink extracts the fragment parameters of a pasted redirect link. The
// link must use this client's redirect scheme and carry both a state and a
// session_token_code.
func (c *Client) ParseRedirectLink(link string) (url.Values, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRedirect, err)
	}
	if !strings.EqualFold(u.Scheme, "npf"+c.ClientID) || u.Host != "auth" {
		return nil, fmt.Errorf("%w: unexpected target %s://%s", ErrInvalidRedirect, u.Scheme, u.Host)
	}
	params, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRedirect, err)
	}
	if params.Get("state") == "" || params.Get("session_token_code") == "" {
		return nil, fmt.Errorf("%w: missing state or session_token_code", ErrInvalidRedirect)
	}
	return params, nil
}

// ExchangeSessionTokenCode trades the code from the redirect for a long-lived session token.
func (c *Client) ExchangeSessionTokenCode(ctx context.Context, code, verifier string) (string, error) {
	if code == "" || verifier == "" {
		return "", errors.New("nsoapi: missing session token code or verifier")
	}
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("session_token_code", code)
	form.Set("session_token_code_verifier", verifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AccountsURL+"/connect/1.0.0/api/session_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(req, "session_token", "")
	if err != nil {
		return "", err
	}
	var out struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("nsoapi session_token: decode: %w", err)
	}
	if out.SessionToken == "" {
		return "", errors.New("nsoapi session_token: empty session_token")
	}
	return out.SessionToken, nil
}
