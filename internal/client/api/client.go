// Package api is the CLI's client for the referral service HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// APIError is a non-2xx answer decoded from the server error envelope.
type APIError struct {
	Status  int               `json:"-"`
	Kind    string            `json:"kind"`
	Reason  string            `json:"reason"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	return msg
}

// IsStatus reports whether err is an *APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

var ErrNotLoggedIn = errors.New("not logged in")

type User struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Referrer *string `json:"referrer"`
}

type Code struct {
	Code       string    `json:"code"`
	User       string    `json:"user"`
	Expiration time.Time `json:"expiration"`
}

type Referral struct {
	Username string `json:"username"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Client talks to the HTTP API and keeps the current token pair. An access
// token rejected with 401 is refreshed once and the request repeated.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	tokens *TokenPair
}

// NewClient returns a Client for baseURL. A nil httpClient gets one with the
// given timeout.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Tokens() *TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *Client) setTokens(t *TokenPair) {
	c.mu.Lock()
	c.tokens = t
	c.mu.Unlock()
}

// Logout forgets the token pair. The server keeps the refresh token until it
// expires.
func (c *Client) Logout() { c.setTokens(nil) }

func (c *Client) Register(ctx context.Context, username, password, email, referralCode string) (*User, error) {
	body := map[string]string{"username": username, "password": password}
	if email != "" {
		body["email"] = email
	}
	if referralCode != "" {
		body["referralCode"] = referralCode
	}

	var u User
	if err := c.do(ctx, http.MethodPost, "/register", body, false, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	var pair TokenPair
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, false, &pair); err != nil {
		return err
	}
	c.setTokens(&pair)
	return nil
}

// Refresh rotates the refresh token. On failure the stored pair is dropped.
func (c *Client) Refresh(ctx context.Context) error {
	t := c.Tokens()
	if t == nil {
		return ErrNotLoggedIn
	}

	var pair TokenPair
	err := c.do(ctx, http.MethodPost, "/token/refresh", map[string]string{"refreshToken": t.RefreshToken}, false, &pair)
	if err != nil {
		c.setTokens(nil)
		return err
	}
	c.setTokens(&pair)
	return nil
}

func (c *Client) IssueCode(ctx context.Context) (*Code, error) {
	var code Code
	if err := c.do(ctx, http.MethodPost, "/ref_code", nil, true, &code); err != nil {
		return nil, err
	}
	return &code, nil
}

func (c *Client) GetCode(ctx context.Context) (*Code, error) {
	var code Code
	if err := c.do(ctx, http.MethodGet, "/ref_code", nil, true, &code); err != nil {
		return nil, err
	}
	return &code, nil
}

func (c *Client) DeleteCode(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/ref_code", nil, true, nil)
}

func (c *Client) CodeByEmail(ctx context.Context, email string) (*Code, error) {
	var code Code
	if err := c.do(ctx, http.MethodGet, "/ref_code_by_email/"+url.PathEscape(email), nil, true, &code); err != nil {
		return nil, err
	}
	return &code, nil
}

func (c *Client) Referrals(ctx context.Context, userID string) ([]Referral, error) {
	var out []Referral
	if err := c.do(ctx, http.MethodGet, "/referrals/"+url.PathEscape(userID), nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WhoAmI asks the server whose access token the client holds.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	t := c.Tokens()
	if t == nil {
		return "", ErrNotLoggedIn
	}

	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/token/verify", map[string]string{"token": t.AccessToken}, false, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, authed bool, out any) error {
	err := c.send(ctx, method, path, in, authed, out)
	if authed && IsStatus(err, http.StatusUnauthorized) {
		if rerr := c.Refresh(ctx); rerr != nil {
			return err
		}
		err = c.send(ctx, method, path, in, authed, out)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, in any, authed bool, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	if authed {
		t := c.Tokens()
		if t == nil {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+t.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		envelope.Error = apiErr
		// a body that is not an envelope still yields the status
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
