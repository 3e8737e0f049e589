// Package rest implements the brokerage interface over a JSON HTTP API with
// HMAC request signing.
package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ladder-trading/internal/config"
	"ladder-trading/internal/core"
)

type Client struct {
	apiKey            string
	apiSecret         string
	baseURL           string
	accountID         string
	clientOrderPrefix string

	httpClient *http.Client
}

type Options struct {
	APIKey            string
	APISecret         string
	BaseURL           string
	AccountID         string
	ClientOrderPrefix string
	HTTPTimeoutSec    int64
}

func NewClient(cfg config.BrokerConfig, instanceID string) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	if cfg.AccountID == "" {
		return nil, errors.New("account_id required")
	}
	return NewClientWithOptions(Options{
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		BaseURL:           cfg.BaseURL,
		AccountID:         cfg.AccountID,
		ClientOrderPrefix: instanceID,
		HTTPTimeoutSec:    cfg.HTTPTimeoutSec,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	return &Client{
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		accountID:         opts.AccountID,
		clientOrderPrefix: normalizeClientOrderPrefix(opts.ClientOrderPrefix),
		httpClient:        &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "rest" }

func (c *Client) OwnsClientRef(clientRef string) bool {
	clientRef = strings.TrimSpace(clientRef)
	if clientRef == "" {
		return false
	}
	return strings.HasPrefix(clientRef, c.clientOrderPrefix+"-")
}

func (c *Client) newClientOrderRef() string {
	return c.clientOrderPrefix + "-" + uuid.NewString()
}

func normalizeClientOrderPrefix(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	b := strings.Builder{}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "lt"
	}
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

// Position returns the held quantity for a symbol. A symbol absent from the
// positions list is a flat position; a position entry whose quantity field
// the API left unset comes back unpopulated so the caller's integrity check
// fails instead of trading against a phantom zero.
func (c *Client) Position(ctx context.Context, symbol string) (core.HeldQuantity, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, c.accountPath("/positions"), params, nil)
	if err != nil {
		return core.HeldQuantity{}, err
	}
	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.HeldQuantity{}, err
	}
	for _, p := range resp.Positions {
		if !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		if p.Quantity == nil {
			return core.HeldQuantity{}, nil
		}
		return core.HeldShares(*p.Quantity), nil
	}
	return core.NoPosition(), nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]core.OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("status", "OPEN")
	body, err := c.doRequest(ctx, http.MethodGet, c.accountPath("/orders"), params, nil)
	if err != nil {
		return nil, err
	}
	var resp ordersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.OpenOrder, 0, len(resp.Orders))
	for _, ord := range resp.Orders {
		if !c.OwnsClientRef(ord.ClientOrderID) {
			continue
		}
		open, err := parseOpenOrder(ord)
		if err != nil {
			return nil, err
		}
		orders = append(orders, open)
	}
	return orders, nil
}

func (c *Client) PlaceOrder(ctx context.Context, order core.TargetOrder) (core.OpenOrder, error) {
	req := placeOrderRequest{
		ClientOrderID: c.newClientOrderRef(),
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		OrderType:     "LIMIT",
		LimitPrice:    order.LimitPrice.String(),
		Quantity:      order.Quantity,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return core.OpenOrder{}, err
	}
	body, err := c.doRequest(ctx, http.MethodPost, c.accountPath("/orders"), nil, payload)
	if err != nil {
		return core.OpenOrder{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OpenOrder{}, err
	}
	placed, err := parseOpenOrder(resp)
	if err != nil {
		return core.OpenOrder{}, err
	}
	// The target's partial flag is bookkeeping the broker does not carry for
	// a fresh order; keep it on the returned snapshot.
	placed.PartialFilled = order.PartialFilled
	return placed, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, brokerID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	_, err := c.doRequest(ctx, http.MethodDelete, c.accountPath("/orders/"+brokerID), params, nil)
	return err
}

func parseOpenOrder(ord orderResponse) (core.OpenOrder, error) {
	price, err := decimal.NewFromString(ord.LimitPrice)
	if err != nil {
		return core.OpenOrder{}, fmt.Errorf("order %d: invalid limit price %q", ord.OrderID, ord.LimitPrice)
	}
	return core.OpenOrder{
		BrokerID:      strconv.FormatInt(ord.OrderID, 10),
		Symbol:        ord.Symbol,
		LimitPrice:    price,
		Quantity:      ord.OrderedQuantity,
		PartialFilled: ord.FilledQuantity != 0,
		Side:          core.Side(strings.ToUpper(ord.Side)),
	}, nil
}

func (c *Client) accountPath(suffix string) string {
	return "/v1/accounts/" + c.accountID + suffix
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, error) {
	urlStr := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		urlStr += "?" + encoded
	}
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.signRequest(req, method, path, payload)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// signRequest authenticates with an HMAC-SHA256 over timestamp, method,
// path, and body.
func (c *Client) signRequest(req *http.Request, method, path string, payload []byte) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(payload)
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-API-TIMESTAMP", ts)
	req.Header.Set("X-API-SIGNATURE", hex.EncodeToString(mac.Sum(nil)))
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
		return classifyAPIError(APIError{Code: apiErr.Code, Msg: apiErr.Msg}, status)
	}
	return fmt.Errorf("broker http error %d: %s", status, strings.TrimSpace(string(body)))
}
