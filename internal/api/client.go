// ABOUTME: HTTP client for the sync server's auth and item sync endpoints
// ABOUTME: Maps credential rejections to ErrAuthFailure and every other failure to TransportError

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
	"time"

	"github.com/2389/sealnote/internal/keys"
	"github.com/2389/sealnote/internal/models"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

var (
	// ErrAuthFailure indicates the server rejected the credentials or token.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrSyncTransport indicates a network or server failure. A round failing with it
	// changed nothing and can be retried.
	ErrSyncTransport = errors.New("sync transport failure")
)

// TransportError describes a failed request.
type TransportError struct {
	Op         string // e.g. "POST /items/sync"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server returned status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match ErrSyncTransport.
func (e *TransportError) Is(target error) bool { return target == ErrSyncTransport }

// SignInRequest is the body of POST /auth/sign_in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	keys.AuthParams
}

// TokenResponse is returned by sign in and registration.
type TokenResponse struct {
	Token string `json:"token"`
}

// SyncRequest is the body of POST /items/sync. SyncToken is omitted on the first sync
// to request the full history.
type SyncRequest struct {
	SyncToken string              `json:"sync_token,omitempty"`
	Items     []models.ItemRecord `json:"items"`
}

// SyncResponse is the reply to POST /items/sync.
type SyncResponse struct {
	SyncToken      string              `json:"sync_token"`
	RetrievedItems []models.ItemRecord `json:"retrieved_items"`
	SavedItems     []models.ItemRecord `json:"saved_items"`
}

// errorResponse is the JSON error body some servers send.
type errorResponse struct {
	Error any `json:"error"`
}

// Client talks to one sync server. A Client with a token sends it as a bearer token.
type Client struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewClient creates a client for baseURL. A zero timeout means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetAuthParams fetches the public key derivation parameters for email.
func (c *Client) GetAuthParams(ctx context.Context, email string) (keys.AuthParams, error) {
	var params keys.AuthParams
	path := "/auth/params?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &params, true); err != nil {
		return keys.AuthParams{}, err
	}
	return params, nil
}

// SignIn exchanges the derived server password for a bearer token.
func (c *Client) SignIn(ctx context.Context, email, serverPassword string) (string, error) {
	var resp TokenResponse
	req := SignInRequest{Email: email, Password: serverPassword}
	if err := c.do(ctx, http.MethodPost, "/auth/sign_in", req, &resp, true); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: sign in returned no token", ErrAuthFailure)
	}
	return resp.Token, nil
}

// Register creates an account with the given params and server password.
func (c *Client) Register(ctx context.Context, email, serverPassword string, params keys.AuthParams) (string, error) {
	var resp TokenResponse
	req := RegisterRequest{Email: email, Password: serverPassword, AuthParams: params}
	if err := c.do(ctx, http.MethodPost, "/auth", req, &resp, true); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: registration returned no token", ErrAuthFailure)
	}
	return resp.Token, nil
}

// Sync pushes items and pulls changes since token. Any failure to obtain a complete,
// well-formed response is a *TransportError.
func (c *Client) Sync(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if req.Items == nil {
		req.Items = []models.ItemRecord{}
	}

	var resp SyncResponse
	if err := c.do(ctx, http.MethodPost, "/items/sync", req, &resp, false); err != nil {
		return nil, err
	}
	if resp.SyncToken == "" {
		return nil, &TransportError{Op: "POST /items/sync", Err: errors.New("response has no sync_token")}
	}
	return &resp, nil
}

// do sends a JSON request and decodes a JSON response into out. 401 and 403 are
// ErrAuthFailure; authEndpoint additionally maps 404 (unknown account) to it.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authEndpoint bool) error {
	op := method + " " + strings.SplitN(path, "?", 2)[0]

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailure, errorMessage(resp.StatusCode, data))
	case authEndpoint && resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrAuthFailure, errorMessage(resp.StatusCode, data))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(errorMessage(resp.StatusCode, data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// errorMessage extracts a readable message from an error body.
func errorMessage(status int, body []byte) string {
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != nil {
		switch v := er.Error.(type) {
		case string:
			return v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
