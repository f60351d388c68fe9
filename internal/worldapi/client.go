// Package worldapi is the HTTP client for the tick-world service under test.
// Every mutating call carries a fresh client-generated idempotency token;
// tokens are never reused, even on retry of a logically-identical call.
package worldapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swarmfuzz/internal/logging"
)

// Endpoint names, used for call-history classification and coverage tracking.
const (
	EndpointRegister         = "register"
	EndpointUnregister       = "unregister"
	EndpointObserve          = "observe"
	EndpointMove             = "move"
	EndpointChatSend         = "chat_send"
	EndpointChatObserve      = "chat_observe"
	EndpointInteract         = "interact"
	EndpointEvents           = "events"
	EndpointProfile          = "profile"
	EndpointCapabilityList   = "capability_list"
	EndpointCapInstall       = "capability_install"
	EndpointCapInvoke        = "capability_invoke"
)

// Endpoints is every endpoint the harness is expected to exercise; the
// coverage detector compares collective call history against this set.
var Endpoints = []string{
	EndpointRegister, EndpointUnregister, EndpointObserve, EndpointMove,
	EndpointChatSend, EndpointChatObserve, EndpointInteract, EndpointEvents,
	EndpointProfile, EndpointCapabilityList, EndpointCapInstall, EndpointCapInvoke,
}

// Client talks to one world service instance.
type Client struct {
	baseURL    string
	roomID     string
	httpClient *http.Client
	log        *zap.Logger
}

// Config holds client construction parameters.
type Config struct {
	BaseURL string
	RoomID  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a world service client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		roomID:     cfg.RoomID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Logger.Named("worldapi"),
	}
}

// RoomID returns the room this client registers into.
func (c *Client) RoomID() string { return c.roomID }

// do performs one JSON round trip. token is the bearer credential ("" for
// register). mutating adds the idempotency header. out may be nil.
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, mutating bool, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if mutating {
		// One fresh token per call; retries generate new calls with new tokens.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Trace(logging.CategoryAPI, "%s %s network error after %s: %v", method, path, time.Since(start), err)
		return &APIError{Endpoint: endpoint, Class: FailureNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Endpoint: endpoint, Class: FailureNetwork, Err: err}
	}

	logging.Trace(logging.CategoryAPI, "%s %s -> %d in %s", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Endpoint: endpoint,
			Class:    classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Body:     truncate(string(raw), 512),
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

// Register joins the room and returns the assigned identity and credential.
func (c *Client) Register(ctx context.Context, name, role string) (RegisterResponse, error) {
	var out RegisterResponse
	err := c.do(ctx, EndpointRegister, http.MethodPost, "/api/rooms/"+c.roomID+"/register", "", true,
		RegisterRequest{RoomID: c.roomID, Name: name, Role: role}, &out)
	if err != nil {
		return RegisterResponse{}, err
	}
	if out.MemberID == "" || out.Token == "" {
		return RegisterResponse{}, &APIError{Endpoint: EndpointRegister, Class: FailureServer,
			Body: "registration response missing memberId or token"}
	}
	return out, nil
}

// Unregister leaves the room. 401/403/404 mean already-effectively-gone and
// are reported as the usual APIError for the caller to tolerate.
func (c *Client) Unregister(ctx context.Context, token string) error {
	return c.do(ctx, EndpointUnregister, http.MethodPost, "/api/rooms/"+c.roomID+"/unregister", token, true, nil, nil)
}

// Observe returns the world as seen from the caller's position.
func (c *Client) Observe(ctx context.Context, token string) (ObserveResponse, error) {
	var out ObserveResponse
	err := c.do(ctx, EndpointObserve, http.MethodGet, "/api/rooms/"+c.roomID+"/observe", token, false, nil, &out)
	return out, err
}

// MoveTo walks toward a tile.
func (c *Client) MoveTo(ctx context.Context, token string, x, y float64) error {
	return c.do(ctx, EndpointMove, http.MethodPost, "/api/rooms/"+c.roomID+"/move", token, true,
		MoveRequest{X: x, Y: y}, nil)
}

// SendChat posts a line to a channel.
func (c *Client) SendChat(ctx context.Context, token, channel, text string) error {
	return c.do(ctx, EndpointChatSend, http.MethodPost, "/api/rooms/"+c.roomID+"/chat", token, true,
		ChatRequest{Channel: channel, Text: text}, nil)
}

// ObserveChat lists recent messages visible to the caller.
func (c *Client) ObserveChat(ctx context.Context, token, channel string) ([]ChatMessage, error) {
	var out ChatObserveResponse
	err := c.do(ctx, EndpointChatObserve, http.MethodGet, "/api/rooms/"+c.roomID+"/chat?channel="+channel, token, false, nil, &out)
	return out.Messages, err
}

// Interact performs an affordance on a target.
func (c *Client) Interact(ctx context.Context, token, targetID, action string) (InteractResponse, error) {
	var out InteractResponse
	err := c.do(ctx, EndpointInteract, http.MethodPost, "/api/rooms/"+c.roomID+"/interact", token, true,
		InteractRequest{TargetID: targetID, Action: action}, &out)
	return out, err
}

// PollEvents returns events past cursor plus the next cursor.
func (c *Client) PollEvents(ctx context.Context, token, cursor string) (EventsResponse, error) {
	var out EventsResponse
	err := c.do(ctx, EndpointEvents, http.MethodGet, "/api/rooms/"+c.roomID+"/events?cursor="+cursor, token, false, nil, &out)
	return out, err
}

// UpdateProfile updates the caller's public profile fields.
func (c *Client) UpdateProfile(ctx context.Context, token string, fields map[string]string) error {
	return c.do(ctx, EndpointProfile, http.MethodPost, "/api/rooms/"+c.roomID+"/profile", token, true,
		ProfileRequest{Fields: fields}, nil)
}

// ListCapabilities lists installable behavior modules.
func (c *Client) ListCapabilities(ctx context.Context, token string) ([]Capability, error) {
	var out CapabilitiesResponse
	err := c.do(ctx, EndpointCapabilityList, http.MethodGet, "/api/rooms/"+c.roomID+"/capabilities", token, false, nil, &out)
	return out.Capabilities, err
}

// InstallCapability installs a named capability.
func (c *Client) InstallCapability(ctx context.Context, token, name string) error {
	return c.do(ctx, EndpointCapInstall, http.MethodPost, "/api/rooms/"+c.roomID+"/capabilities/install", token, true,
		CapabilityRequest{Name: name}, nil)
}

// InvokeCapability invokes an installed capability.
func (c *Client) InvokeCapability(ctx context.Context, token, name, args string) error {
	return c.do(ctx, EndpointCapInvoke, http.MethodPost, "/api/rooms/"+c.roomID+"/capabilities/invoke", token, true,
		CapabilityRequest{Name: name, Args: args}, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
