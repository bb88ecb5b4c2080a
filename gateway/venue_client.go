package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ladder-maker-go/order"
)

const multiLimitOrderPath = "/api/v2/orders/multi-limit"

// VenueClient 交易所批量挂单接口的 HTTP 客户端，实现 order.Venue。
type VenueClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewVenueClient 创建带超时与限流的客户端。
func NewVenueClient(baseURL, apiKey string, timeout time.Duration, limiter RateLimiter) *VenueClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VenueClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Limiter:    limiter,
	}
}

// PlaceMultiLimitOrder 调用 POST /api/v2/orders/multi-limit。
// 非 2xx 视为传输错误；单笔挂单的拒绝在回执的 Statuses 中。
func (c *VenueClient) PlaceMultiLimitOrder(ctx context.Context, req order.MultiLimitOrder) (*order.MultiLimitOrderResponse, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode multi limit order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+multiLimitOrderPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("multi limit order status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out order.MultiLimitOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode multi limit order response: %w", err)
	}
	return &out, nil
}

var _ order.Venue = (*VenueClient)(nil)
