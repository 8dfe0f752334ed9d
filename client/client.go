// Package client is a Go client for the clearing service's HTTP API.
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
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudx-io/hotiron/analytics"
	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/history"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("hotiron: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("hotiron: HTTP %d: %s", e.StatusCode, e.Detail)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithAdminToken sets the bearer token sent to the admin API.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the service at baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "hotiron-client/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Health(ctx context.Context) error {
	var resp auctionapi.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("hotiron: unhealthy status %q", resp.Status)
	}
	return nil
}

func (c *Client) Sellers(ctx context.Context) ([]core.Seller, error) {
	var sellers []core.Seller
	if err := c.do(ctx, http.MethodGet, "/sellers", nil, nil, &sellers); err != nil {
		return nil, err
	}
	return sellers, nil
}

func (c *Client) RunAuction(ctx context.Context, req core.AuctionRequest) (*auctionapi.RunResponse, error) {
	var resp auctionapi.RunResponse
	if err := c.do(ctx, http.MethodPost, "/auction/run", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunByAddress uses the query-parameter endpoint.
func (c *Client) RunByAddress(ctx context.Context, address string, quantityTons float64) (*auctionapi.RunResponse, error) {
	q := url.Values{}
	q.Set("buyer_address", address)
	q.Set("quantity_tons", strconv.FormatFloat(quantityTons, 'f', -1, 64))

	var resp auctionapi.RunResponse
	if err := c.do(ctx, http.MethodPost, "/auction/run-by-address", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) History(ctx context.Context) (*history.State, error) {
	var state history.State
	if err := c.do(ctx, http.MethodGet, "/auction/history", nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/auction/history", nil, nil, nil)
}

func (c *Client) Analytics(ctx context.Context) (*analytics.Summary, error) {
	var summary analytics.Summary
	if err := c.do(ctx, http.MethodGet, "/analytics/summary", nil, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) ReceiptKey(ctx context.Context) (*auctionapi.ReceiptKeyResponse, error) {
	var key auctionapi.ReceiptKeyResponse
	if err := c.do(ctx, http.MethodGet, "/receipts/key", nil, nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ReloadSellers requires WithAdminToken.
func (c *Client) ReloadSellers(ctx context.Context) (*auctionapi.ReloadResponse, error) {
	if c.token == "" {
		return nil, errors.New("hotiron: admin token is not set")
	}
	var resp auctionapi.ReloadResponse
	if err := c.do(ctx, http.MethodPost, "/admin/sellers/reload", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream runs an auction over the reveal WebSocket. onBid is called for each
// revealed bid in order; the final result is returned.
func (c *Client) Stream(ctx context.Context, req core.AuctionRequest, onBid func(auctionapi.StreamMessage)) (*auctionapi.RunResponse, error) {
	u := *c.baseURL
	u.Path += "/auction/stream"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	header := http.Header{"User-Agent": {c.userAgent}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, fmt.Errorf("hotiron: dial stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("hotiron: send stream request: %w", err)
	}

	for {
		var msg auctionapi.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("hotiron: read stream: %w", err)
		}

		switch msg.Type {
		case auctionapi.StreamBid:
			if onBid != nil {
				onBid(msg)
			}
		case auctionapi.StreamResult:
			if msg.Result == nil {
				return nil, errors.New("hotiron: stream result frame without result")
			}
			return msg.Result, nil
		case auctionapi.StreamError:
			return nil, &APIError{Detail: msg.Detail}
		default:
			return nil, fmt.Errorf("hotiron: unexpected stream frame %q", msg.Type)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hotiron: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("hotiron: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hotiron: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hotiron: decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body auctionapi.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(data))
	}
	return apiErr
}
