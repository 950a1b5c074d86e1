package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"order_dashboard/internal/models"
)

// Client talks to the upstream order API. Every call forwards the caller's
// session token so the upstream can apply its own scoping.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Orders json.RawMessage `json:"orders"`
	Order  json.RawMessage `json:"order"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchOrders returns the full order list visible to token.
func (c *Client) FetchOrders(ctx context.Context, token string) ([]*models.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/get-orders", token, nil)
	if err != nil {
		return nil, err
	}

	var orders []*models.Order
	if err := decodeList(body, &orders); err != nil {
		return nil, &models.TransientNetworkError{Op: "fetch orders", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return orders, nil
}

// UpdateOrder sends a partial update and returns the authoritative record.
func (c *Client) UpdateOrder(ctx context.Context, token, id string, changes map[string]interface{}) (*models.Order, error) {
	jsonData, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	body, err := c.do(ctx, http.MethodPut, "/api/edit/"+url.PathEscape(id), token, jsonData)
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := decodeOne(body, &order); err != nil {
		return nil, &models.TransientNetworkError{Op: "update order", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if order.ID == "" {
		order.ID = id
	}
	return &order, nil
}

func (c *Client) DeleteOrder(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/delete/"+url.PathEscape(id), token, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	op := strings.ToLower(method) + " " + path
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &models.TransientNetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransientNetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, &models.UpstreamRejection{Status: resp.StatusCode, Message: rejectionMessage(body)}
	}
	return body, nil
}

func rejectionMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// decodeList accepts a bare array or an object wrapping it in data/orders.
func decodeList(body []byte, dest *[]*models.Order) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, dest)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	switch {
	case len(env.Orders) > 0:
		return json.Unmarshal(env.Orders, dest)
	case len(env.Data) > 0:
		return json.Unmarshal(env.Data, dest)
	}
	return fmt.Errorf("no order list in response")
}

// decodeOne accepts a bare order or one wrapped in data/order.
func decodeOne(body []byte, dest *models.Order) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	switch {
	case len(env.Order) > 0 && string(env.Order) != "null":
		return json.Unmarshal(env.Order, dest)
	case len(env.Data) > 0 && string(env.Data) != "null":
		return json.Unmarshal(env.Data, dest)
	}
	return json.Unmarshal(body, dest)
}
