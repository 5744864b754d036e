// Package xtream wraps the Xtream Codes player_api.php HTTP API.
//
// Credentials never leave the server: the browser talks to our proxy
// endpoints and this package talks to the panel. Panels are frequently
// misconfigured or fronted by Cloudflare, so every response is read as
// raw text first and only then parsed as JSON.
package xtream

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultExtension is used by StreamURL when no container extension is known.
const DefaultExtension = "m3u8"

const (
	defaultTimeout = 30 * time.Second
	// Cloudflare blocks obvious bot agents ("go-resty", "python-requests"),
	// so the default mimics a browser.
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client talks to one Xtream panel with one set of credentials.
type Client struct {
	http     *resty.Client
	base     string
	username string
	password string
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent overrides the browser-like default User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.http.SetHeader("User-Agent", ua)
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// New creates a Client for the given panel. dns may be entered with or
// without scheme and trailing slashes; it is normalized once here.
func New(dns, username, password string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetHeader("User-Agent", defaultUserAgent).
			SetTimeout(defaultTimeout),
		base:     NormalizeDNS(dns),
		username: username,
		password: password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeDNS trims whitespace and trailing slashes and prefixes http://
// when the input has no scheme. Idempotent.
func NormalizeDNS(dns string) string {
	d := strings.TrimSpace(dns)
	d = strings.TrimRight(d, "/")
	if d == "" {
		return d
	}
	if !strings.Contains(d, "://") {
		d = "http://" + d
	}
	return d
}

// Base returns the normalized panel base URL (no trailing slash).
func (c *Client) Base() string { return c.base }

// call issues one GET against player_api.php and returns the body once it
// is known to be valid JSON from a 2xx answer. action may be empty (the
// bare endpoint, used for login validation).
func (c *Client) call(ctx context.Context, action string, params map[string]string) (json.RawMessage, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("username", c.username).
		SetQueryParam("password", c.password)
	if action != "" {
		req.SetQueryParam("action", action)
	}
	for k, v := range params {
		req.SetQueryParam(k, v)
	}

	resp, err := req.Get(c.base + "/player_api.php")
	if err != nil {
		// Transport-level: DNS resolution, connection refused, timeout.
		return nil, &Error{Kind: KindConnectivity, Message: msgConnection}
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, mapUpstreamError(resp.StatusCode(), body)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, mapUpstreamError(resp.StatusCode(), body)
	}
	return json.RawMessage(body), nil
}

// decodeInto unmarshals a validated payload into out, classifying decode
// failures as bad responses.
func decodeInto(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		if snippet := bodySnippet(raw); snippet != "" {
			return &Error{Kind: KindBadResponse, Message: snippet}
		}
		return &Error{Kind: KindBadResponse, Message: msgUnknownBody}
	}
	return nil
}

// ValidateLogin calls the bare endpoint. A valid account answers with a
// user_info object; anything else is an invalid-login failure carrying
// the upstream message when one is present.
func (c *Client) ValidateLogin(ctx context.Context) (*UserInfo, error) {
	raw, err := c.call(ctx, "", nil)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &Error{Kind: KindInvalidLogin, Message: msgInvalidLogin}
	}

	infoRaw, ok := doc["user_info"]
	if !ok || string(infoRaw) == "null" {
		msg := msgInvalidLogin
		if m, ok := doc["message"]; ok {
			var s string
			if json.Unmarshal(m, &s) == nil && s != "" {
				msg = s
			}
		}
		return nil, &Error{Kind: KindInvalidLogin, Message: msg}
	}

	var info UserInfo
	if err := decodeInto(infoRaw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetLiveCategories returns live TV categories in upstream order.
func (c *Client) GetLiveCategories(ctx context.Context) ([]Category, error) {
	return c.categories(ctx, "get_live_categories")
}

// GetVodCategories returns VOD categories in upstream order.
func (c *Client) GetVodCategories(ctx context.Context) ([]Category, error) {
	return c.categories(ctx, "get_vod_categories")
}

// GetSeriesCategories returns series categories in upstream order.
func (c *Client) GetSeriesCategories(ctx context.Context) ([]Category, error) {
	return c.categories(ctx, "get_series_categories")
}

func (c *Client) categories(ctx context.Context, action string) ([]Category, error) {
	raw, err := c.call(ctx, action, nil)
	if err != nil {
		return nil, err
	}
	var cats []Category
	if err := decodeInto(raw, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// GetLiveStreams returns the live listing, optionally limited to one category.
func (c *Client) GetLiveStreams(ctx context.Context, categoryID string) ([]Stream, error) {
	return c.streams(ctx, "get_live_streams", categoryID)
}

// GetVodStreams returns the VOD listing, optionally limited to one category.
func (c *Client) GetVodStreams(ctx context.Context, categoryID string) ([]Stream, error) {
	return c.streams(ctx, "get_vod_streams", categoryID)
}

func (c *Client) streams(ctx context.Context, action, categoryID string) ([]Stream, error) {
	raw, err := c.call(ctx, action, categoryParam(categoryID))
	if err != nil {
		return nil, err
	}
	var streams []Stream
	if err := decodeInto(raw, &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// GetAllSeries returns the series listing, optionally limited to one category.
func (c *Client) GetAllSeries(ctx context.Context, categoryID string) ([]Series, error) {
	raw, err := c.call(ctx, "get_series", categoryParam(categoryID))
	if err != nil {
		return nil, err
	}
	var series []Series
	if err := decodeInto(raw, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// GetSeriesInfo returns the episode detail document for one series as-is;
// its shape varies too much between panels to model.
func (c *Client) GetSeriesInfo(ctx context.Context, seriesID int64) (json.RawMessage, error) {
	return c.call(ctx, "get_series_info", map[string]string{
		"series_id": strconv.FormatInt(seriesID, 10),
	})
}

// StreamURL builds the playback URL for a stream. Pure string formatting,
// no network call.
func (c *Client) StreamURL(streamID int64, extension string) string {
	if extension == "" {
		extension = DefaultExtension
	}
	return c.base + "/" + strconv.FormatInt(streamID, 10) + "." + extension
}

func categoryParam(categoryID string) map[string]string {
	if categoryID == "" {
		return nil
	}
	return map[string]string{"category_id": categoryID}
}
