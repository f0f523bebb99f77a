// Package orderclient talks to a remote order service over HTTP.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/models"
)

const defaultTimeout = 5 * time.Second

// Client implements the coordinator's order collaborator against
//
//	GET {base}/api/v1/orders/{id}
//	PUT {base}/api/v1/orders/{id}/status   {"status": "..."}
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logrus.Entry
}

type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, log *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GetOrder fetches one order. A 404 maps to models.ErrOrderNotFound.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), nil, &o); err != nil {
		return nil, err
	}
	if o.ID == 0 {
		o.ID = orderID
	}
	return &o, nil
}

// SetStatus asks the order service to move the order to status.
func (c *Client) SetStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/orders/%d/status", orderID), statusRequest{Status: status}, nil)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"order_id": orderID, "status": status}).Debug("order status pushed")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.ErrOrderNotFound
	}
	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
