// Package api is a minimal Jellyfin HTTP client. Every request is made against
// whatever session the shared session.Holder carries at the time of the call.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aeolun/jellyterm/pkg/session"
)

// ErrNoSession is returned when a request needs a session and none is active
var ErrNoSession = errors.New("no active session")

// StatusError reports a non-2xx response
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// ClientInfo identifies this application to the server
type ClientInfo struct {
	Client   string
	Device   string
	DeviceID string
	Version  string
}

// PublicSystemInfo is the unauthenticated server description
type PublicSystemInfo struct {
	ID                     string `json:"Id"`
	ServerName             string `json:"ServerName"`
	Version                string `json:"Version"`
	ProductName            string `json:"ProductName"`
	LocalAddress           string `json:"LocalAddress"`
	StartupWizardCompleted bool   `json:"StartupWizardCompleted"`
}

// UserDto is the subset of the user record the client uses
type UserDto struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	ServerID string `json:"ServerId"`
}

// Client talks to the server named by the active session
type Client struct {
	http    *http.Client
	session *session.Holder
	info    ClientInfo
}

// NewClient creates a client reading the session from holder
func NewClient(holder *session.Holder, info ClientInfo) *Client {
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		session: holder,
		info:    info,
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// Session returns the holder requests are made against
func (c *Client) Session() *session.Holder {
	return c.session
}

// GetPublicSystemInfo fetches the public server description
func (c *Client) GetPublicSystemInfo(ctx context.Context) (*PublicSystemInfo, error) {
	s, ok := c.session.Current()
	if !ok {
		return nil, ErrNoSession
	}
	var info PublicSystemInfo
	if err := c.get(ctx, s, "System/Info/Public", false, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetCurrentUser fetches the user the session is signed in as
func (c *Client) GetCurrentUser(ctx context.Context) (*UserDto, error) {
	s, ok := c.session.Current()
	if !ok {
		return nil, ErrNoSession
	}
	var user UserDto
	if err := c.get(ctx, s, "Users/"+url.PathEscape(s.UserID), true, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// AuthorizationHeader renders the MediaBrowser authorization scheme value
func (c *Client) AuthorizationHeader(token string) string {
	parts := []string{
		fmt.Sprintf("Client=%q", c.info.Client),
		fmt.Sprintf("Device=%q", c.info.Device),
		fmt.Sprintf("DeviceId=%q", c.info.DeviceID),
		fmt.Sprintf("Version=%q", c.info.Version),
	}
	if token != "" {
		parts = append(parts, fmt.Sprintf("Token=%q", token))
	}
	return "MediaBrowser " + strings.Join(parts, ", ")
}

// get requests path against s. Callers read the session once and pass it in,
// so URL, token and any ids in path all belong to the same session.
func (c *Client) get(ctx context.Context, s session.Session, path string, authenticated bool, out any) error {
	base, err := url.Parse(strings.TrimRight(s.BaseURL, "/") + "/")
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", s.BaseURL, err)
	}
	target := base.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	token := ""
	if authenticated {
		token = s.AccessToken
	}
	req.Header.Set("Authorization", c.AuthorizationHeader(token))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: http.MethodGet, URL: target.String(), StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", target, err)
	}
	return nil
}
