package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoBotToken is returned by bot-authenticated calls when no bot token is configured.
var ErrNoBotToken = errors.New("discord: bot token not configured")

const maxResponseBytes = 1 << 20

// Client issues REST calls to Discord. It holds no per-user state; the
// caller supplies the access token on every call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	botToken   string
	userAgent  string
}

// NewClient creates a REST client rooted at baseURL, e.g.
// https://discord.com/api/v10. A nil httpClient uses a 10s timeout client.
func NewClient(baseURL string, httpClient *http.Client, botToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		botToken:   botToken,
		userAgent:  "DiscordBot (discord-auth, 1.0)",
	}
}

// GetUser fetches the user the access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	body, _, err := c.do(ctx, http.MethodGet, UserRoute, "Bearer "+accessToken, nil)
	if err != nil {
		return nil, err
	}
	return DecodeUser(body)
}

// GetGuilds fetches the guilds of the token's user. Needs the guilds scope.
func (c *Client) GetGuilds(ctx context.Context, accessToken string) ([]Guild, error) {
	body, _, err := c.do(ctx, http.MethodGet, GuildsRoute, "Bearer "+accessToken, nil)
	if err != nil {
		return nil, err
	}
	return DecodeGuilds(body)
}

// GetConnections fetches linked accounts. Needs the connections scope.
func (c *Client) GetConnections(ctx context.Context, accessToken string) ([]UserConnection, error) {
	body, _, err := c.do(ctx, http.MethodGet, ConnectionsRoute, "Bearer "+accessToken, nil)
	if err != nil {
		return nil, err
	}
	return DecodeConnections(body)
}

// AddGuildMember adds the user to a guild the bot is in, using the user's
// guilds.join access token. It returns the member object, or an empty map
// when the user already was a member.
func (c *Client) AddGuildMember(ctx context.Context, guildID, userID Snowflake, accessToken string) (map[string]any, error) {
	if c.botToken == "" {
		return nil, ErrNoBotToken
	}

	route := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	body, status, err := c.do(ctx, http.MethodPut, route, "Bot "+c.botToken, map[string]string{
		"access_token": accessToken,
	})
	if err != nil {
		return nil, err
	}

	member := map[string]any{}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return member, nil
	}
	if err := json.Unmarshal(body, &member); err != nil {
		return nil, malformed("guild member: %v", err)
	}
	return member, nil
}

func (c *Client) do(ctx context.Context, method, route, authorization string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("discord: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("discord: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("discord: read %s: %w", route, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, RateLimitFromResponse(resp.Header, body)
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, httpError(resp.StatusCode, body)
	}

	return body, resp.StatusCode, nil
}

type errorBody struct {
	Code       int      `json:"code"`
	Message    string   `json:"message"`
	RetryAfter *float64 `json:"retry_after"`
	Global     bool     `json:"global"`
}

func httpError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	return &HTTPError{StatusCode: status, Code: eb.Code, Message: eb.Message}
}

// RateLimitFromResponse builds the error for a 429 response. The JSON
// retry_after (fractional seconds) wins over the Retry-After header.
func RateLimitFromResponse(h http.Header, body []byte) *RateLimitedError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	e := &RateLimitedError{Global: eb.Global, Message: eb.Message}
	switch {
	case eb.RetryAfter != nil:
		e.RetryAfter = seconds(*eb.RetryAfter)
	case h.Get("Retry-After") != "":
		if v, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil {
			e.RetryAfter = seconds(v)
		}
	}
	if h.Get("X-RateLimit-Global") == "true" {
		e.Global = true
	}
	return e
}

func seconds(v float64) time.Duration {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
