// Package client is an HTTP client for the auth API that renews the session
// transparently when a call is rejected for an expired access credential.
package client

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

	"github.com/dtroode/learnhub-auth/internal/edge"
	"github.com/dtroode/learnhub-auth/internal/logger"
)

const (
	refreshPath = "/api/auth/refresh"
	refreshKey  = "refresh"
)

// Options configures a Client.
type Options struct {
	// Timeout applies to every round trip, refreshes included.
	Timeout time.Duration
	// OnReauth receives the login URL when the session is lost.
	OnReauth func(loginURL string)
	Logger   *logger.Logger
}

// Identity is the caller as reported by whoami.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// User is the account returned by login and registration.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// Client sends API calls with the session cookies and renews the session at
// most once per rejected call.
type Client struct {
	baseURL     *url.URL
	http        *http.Client
	jar         *sessionJar
	coordinator *Coordinator
	onReauth    func(string)
	logger      *logger.Logger

	mu         sync.Mutex
	generation uint64
	ended      bool
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.OnReauth == nil {
		opts.OnReauth = func(string) {}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithWriter(io.Discard, 0, false)
	}

	jar := newSessionJar()
	return &Client{
		baseURL: u,
		http: &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:         jar,
		coordinator: NewCoordinator(opts.Timeout),
		onReauth:    opts.OnReauth,
		logger:      opts.Logger,
	}, nil
}

type intendedPathKey struct{}

// WithIntendedPath records the page the user was after, used for the login
// redirect if the session turns out to be gone.
func WithIntendedPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, intendedPathKey{}, path)
}

// Do sends req. A 401 triggers one shared session refresh followed by a single
// replay of req. The caller owns the returned body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := rewindable(req); err != nil {
		return nil, err
	}

	issuedAt := c.currentGeneration()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isSessionEndpoint(req.URL.Path) {
		return resp, nil
	}
	drain(resp)

	if err := c.refreshSince(req.Context(), issuedAt, intendedPath(req)); err != nil {
		return nil, err
	}

	replay, err := c.replayRequest(req)
	if err != nil {
		return nil, err
	}
	replayedAt := c.currentGeneration()
	resp, err = c.http.Do(replay)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.Info("Client: call rejected after refresh", "path", req.URL.Path)
		c.endSession(replayedAt, intendedPath(req))
		return nil, ErrReauthRequired
	}
	return resp, nil
}

// refreshSince renews the session unless a refresh already completed after
// the call was issued at generation seen. A session that already ended is not
// renewed.
func (c *Client) refreshSince(ctx context.Context, seen uint64, intended string) error {
	if gen, ended := c.state(); ended {
		return ErrReauthRequired
	} else if gen != seen {
		return nil
	}

	err := c.coordinator.RunExclusive(ctx, refreshKey, func(ctx context.Context) error {
		gen, ended := c.state()
		switch {
		case ended:
			return errRefreshRejected
		case gen != seen:
			return nil
		}
		err := c.refresh(ctx)
		if errors.Is(err, errRefreshRejected) {
			c.logger.Info("Client: session refresh rejected")
			c.endSession(seen, intended)
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errRefreshRejected):
		return ErrReauthRequired
	case errors.Is(err, ErrRefreshUnavailable):
		c.logger.Warn("Client: session refresh unavailable", "error", err.Error())
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
}

func (c *Client) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(refreshPath), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.bumpGeneration()
		c.logger.Debug("Client: session refreshed")
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errRefreshRejected
	default:
		return fmt.Errorf("%w: refresh returned status %d", ErrRefreshUnavailable, resp.StatusCode)
	}
}

// endSession drops local state and hands the user to the login page. Only
// the first caller that still holds generation seen does so.
func (c *Client) endSession(seen uint64, intended string) {
	c.mu.Lock()
	if c.generation != seen || c.ended {
		c.mu.Unlock()
		return
	}
	c.jar.Reset()
	c.generation++
	c.ended = true
	c.mu.Unlock()

	c.onReauth(edge.LoginURL(intended))
}

func (c *Client) resetSession() {
	c.mu.Lock()
	c.jar.Reset()
	c.generation++
	c.ended = true
	c.mu.Unlock()
}

func (c *Client) state() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, c.ended
}

func (c *Client) currentGeneration() uint64 {
	gen, _ := c.state()
	return gen
}

func (c *Client) bumpGeneration() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()
}

// Login starts a session with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	return c.startSession(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

// Register creates an account and starts its session.
func (c *Client) Register(ctx context.Context, email, password, name string) (User, error) {
	return c.startSession(ctx, "/api/auth/register", map[string]string{"email": email, "password": password, "name": name})
}

func (c *Client) startSession(ctx context.Context, path string, payload any) (User, error) {
	resp, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return User{}, err
	}
	if resp.StatusCode/100 != 2 {
		return User{}, newStatusError(resp)
	}
	defer resp.Body.Close()

	var body struct {
		User User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return User{}, fmt.Errorf("failed to decode response: %w", err)
	}

	c.mu.Lock()
	c.generation++
	c.ended = false
	c.mu.Unlock()
	return body.User, nil
}

// Me asks the API who the session belongs to.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/auth/me"), nil)
	if err != nil {
		return Identity{}, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return Identity{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, newStatusError(resp)
	}
	defer resp.Body.Close()

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return id, nil
}

// Logout ends the session. Local state is cleared even if the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.resetSession()

	resp, err := c.send(ctx, http.MethodPost, "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// LogoutAll ends every session of the user. Local state is cleared even if
// the call fails.
func (c *Client) LogoutAll(ctx context.Context) error {
	defer c.resetSession()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/auth/logout-all"), nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return newStatusError(resp)
	}
	drain(resp)
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func (c *Client) url(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) replayRequest(req *http.Request) (*http.Request, error) {
	replay := req.Clone(req.Context())
	// The jar supplies the renewed cookies; drop any set by hand.
	replay.Header.Del("Cookie")
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		replay.Body = body
	}
	return replay, nil
}

// rewindable makes sure req can be sent a second time.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("failed to buffer request body: %w", err)
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	return nil
}

// isSessionEndpoint reports paths whose 401 is an answer, not an expired session.
func isSessionEndpoint(path string) bool {
	switch path {
	case "/api/auth/login", "/api/auth/register", refreshPath, "/api/auth/logout":
		return true
	}
	return false
}

func intendedPath(req *http.Request) string {
	if p, ok := req.Context().Value(intendedPathKey{}).(string); ok {
		return p
	}
	return req.URL.Path
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
