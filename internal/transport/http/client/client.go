// Package client speaks the portal's JSON API and satisfies
// auth.Authenticator so a session.Store can run outside the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/transport/http/api"
)

var ErrUnexpectedResponse = errors.New("unexpected response")

type Authenticator struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Authenticator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Authenticator{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.Error      `json:"error"`
}

type loginData struct {
	Token      string            `json:"token"`
	User       auth.Identity     `json:"user"`
	Navigation []access.NavEntry `json:"navigation"`
}

func (a *Authenticator) Authenticate(ctx context.Context, creds auth.Credentials) (auth.Identity, string, error) {
	var data loginData
	if err := a.do(ctx, http.MethodPost, "/api/v1/auth/login", "", creds, &data); err != nil {
		return auth.Identity{}, "", err
	}
	if data.Token == "" {
		return auth.Identity{}, "", fmt.Errorf("%w: login returned no token", ErrUnexpectedResponse)
	}
	return data.User, data.Token, nil
}

func (a *Authenticator) Resolve(ctx context.Context, token string) (auth.Identity, error) {
	var identity auth.Identity
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/me", token, nil, &identity); err != nil {
		return auth.Identity{}, err
	}
	return identity, nil
}

func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodPost, "/api/v1/auth/logout", token, nil, nil)
}

// Shell fetches the menu the server composes for the token's role.
func (a *Authenticator) Shell(ctx context.Context, token string) ([]access.NavEntry, error) {
	var data struct {
		Navigation []access.NavEntry `json:"navigation"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/shell", token, nil, &data); err != nil {
		return nil, err
	}
	return data.Navigation, nil
}

func (a *Authenticator) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s %s status %d", ErrUnexpectedResponse, method, path, resp.StatusCode)
	}
	if !env.Success || resp.StatusCode >= 400 {
		return errorFor(resp.StatusCode, env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// errorFor maps envelope codes back to the typed auth errors.
func errorFor(status int, apiErr *api.Error) error {
	code := ""
	message := http.StatusText(status)
	if apiErr != nil {
		code, message = apiErr.Code, apiErr.Message
	}
	switch code {
	case api.CodeInvalidCredentials:
		return auth.ErrInvalidCredentials
	case api.CodeMFARequired:
		return auth.ErrMFARequired
	case api.CodeInvalidToken, api.CodeUnauthorized:
		return auth.ErrInvalidToken
	}
	return fmt.Errorf("%w: status %d %s: %s", ErrUnexpectedResponse, status, code, message)
}
