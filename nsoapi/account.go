package nsoapi

import (
	"context"
	"errors"
	"time"
)

// Account is the public profile of the signed-in user.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURI string `json:"imageUri"`
}

// Credential is the result of a full login with a session token.
type Credential struct {
	SessionToken string
	IDToken      string
	AccessToken  string
	Expiry       time.Time
	Account      Account
}

// WebServiceToken authorizes calls to one game web service.
type WebServiceToken struct {
	Token  string
	Expiry time.Time
}

// Login exchanges a session token for an account id token and then signs in to
// coral with it. The returned credential carries the coral access token.
func (c *Client) Login(ctx context.Context, sessionToken string) (*Credential, error) {
	if sessionToken == "" {
		return nil, errors.New("nsoapi: missing session token")
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := c.postJSON(ctx, "token", c.AccountsURL+"/connect/1.0.0/api/token", "", map[string]string{
		"client_id":     c.ClientID,
		"session_token": sessionToken,
		"grant_type":    "urn:ietf:params:oauth:grant-type:jwt-bearer-session-token",
	}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.IDToken == "" {
		return nil, errors.New("nsoapi token: empty id_token")
	}

	var login coralEnvelope[struct {
		User       Account `json:"user"`
		Credential struct {
			AccessToken string `json:"accessToken"`
			ExpiresIn   int    `json:"expiresIn"`
		} `json:"webApiServerCredential"`
	}]
	err = c.postJSON(ctx, "account_login", c.CoralURL+"/v3/Account/Login", "", map[string]any{
		"parameter": map[string]string{
			"naIdToken": tok.IDToken,
		},
	}, &login)
	if err != nil {
		return nil, err
	}
	if err := login.err("account_login"); err != nil {
		return nil, err
	}
	if login.Result.Credential.AccessToken == "" {
		return nil, errors.New("nsoapi account_login: empty access token")
	}
	return &Credential{
		SessionToken: sessionToken,
		IDToken:      tok.IDToken,
		AccessToken:  login.Result.Credential.AccessToken,
		Expiry:       expiry(time.Now(), login.Result.Credential.ExpiresIn),
		Account:      login.Result.User,
	}, nil
}

// WebServiceToken requests a token for the configured web service using a coral access token.
func (c *Client) WebServiceToken(ctx context.Context, accessToken string) (*WebServiceToken, error) {
	if accessToken == "" {
		return nil, errors.New("nsoapi: missing access token")
	}
	var out coralEnvelope[struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}]
	err := c.postJSON(ctx, "web_service_token", c.CoralURL+"/v2/Game/GetWebServiceToken", accessToken, map[string]any{
		"parameter": map[string]any{
			"id": c.WebServiceID,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if err := out.err("web_service_token"); err != nil {
		return nil, err
	}
	if out.Result.AccessToken == "" {
		return nil, errors.New("nsoapi web_service_token: empty token")
	}
	return &WebServiceToken{
		Token:  out.Result.AccessToken,
		Expiry: expiry(time.Now(), out.Result.ExpiresIn),
	}, nil
}
