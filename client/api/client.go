// Package api is a typed client for the walletauth REST API.
package api

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

	"github.com/layer-3/walletauth/core"
	"golang.org/x/sync/singleflight"
)

// ErrReauthenticate means the stored session can no longer be refreshed
var ErrReauthenticate = errors.New("session expired, sign in again")

// Error is a non-2xx API response
type Error struct {
	Status int
	Code   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("walletauth api: %d %s", e.Status, e.Code)
}

// Unwrap exposes the core error for the response code, so errors.Is works
// against core sentinels
func (e *Error) Unwrap() error {
	return core.ErrorForCode(e.Code)
}

// refreshSkew renews access tokens slightly before they expire
const refreshSkew = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *slog.Logger
	now     func() time.Time

	refreshes singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTokenStore(s TokenStore) Option {
	return func(cl *Client) { cl.tokens = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  NewMemoryTokenStore(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the stored session tokens
func (c *Client) Tokens() (Tokens, error) {
	return c.tokens.Load()
}

func (c *Client) send(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &Error{Status: resp.StatusCode, Code: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// authorized sends a bearer request. An expiring access token is renewed
// first; otherwise a 401 triggers one refresh and one retry. A call never
// refreshes twice.
func (c *Client) authorized(ctx context.Context, method, path string, body, out any) error {
	tokens, err := c.tokens.Load()
	if err != nil {
		return err
	}
	if tokens.Empty() {
		return ErrReauthenticate
	}

	refreshed := false
	if tokens.AccessToken == "" || (!tokens.AccessExpiry.IsZero() && c.now().Add(refreshSkew).After(tokens.AccessExpiry)) {
		if tokens, err = c.refresh(ctx); err != nil {
			return err
		}
		refreshed = true
	}

	err = c.send(ctx, method, path, tokens.AccessToken, body, out)
	if !isUnauthorized(err) {
		return err
	}
	if refreshed {
		c.clear()
		return ErrReauthenticate
	}

	if tokens, err = c.refresh(ctx); err != nil {
		return err
	}
	err = c.send(ctx, method, path, tokens.AccessToken, body, out)
	if isUnauthorized(err) {
		c.clear()
		return ErrReauthenticate
	}
	return err
}

// refresh exchanges the refresh token once even when called concurrently
func (c *Client) refresh(ctx context.Context) (Tokens, error) {
	v, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		tokens, err := c.tokens.Load()
		if err != nil {
			return Tokens{}, err
		}
		if tokens.RefreshToken == "" {
			return Tokens{}, ErrReauthenticate
		}
		fresh, err := c.RefreshTokens(ctx, tokens.RefreshToken)
		if err != nil {
			if isUnauthorized(err) {
				c.clear()
				return Tokens{}, ErrReauthenticate
			}
			return Tokens{}, err
		}
		return c.store(*fresh)
	})
	if err != nil {
		return Tokens{}, err
	}
	return v.(Tokens), nil
}

func (c *Client) store(t core.Tokens) (Tokens, error) {
	tokens := Tokens{
		AccessToken:  t.AccessToken,
		AccessExpiry: c.now().Add(time.Duration(t.ExpiresIn) * time.Second),
		RefreshToken: t.RefreshToken,
	}
	if err := c.tokens.Save(tokens); err != nil {
		return Tokens{}, fmt.Errorf("failed to save tokens: %w", err)
	}
	return tokens, nil
}

func (c *Client) clear() {
	if err := c.tokens.Clear(); err != nil {
		c.logger.Warn("failed to clear tokens", "error", err)
	}
}
