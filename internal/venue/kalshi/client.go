// Package kalshi implements the venue adapter for Kalshi's trade API.
// Prices cross the wire in cents; the adapter converts to the [0, 1]
// probability scale at the boundary.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds Kalshi adapter configuration.
type Config struct {
	BaseURL string

	// APIKeyID identifies the access key; PrivateKeyPEM signs requests
	// with RSA-PSS per the trade API auth scheme.
	APIKeyID      string
	PrivateKeyPEM string

	// MarketLimit caps how many markets ListMarkets returns. Zero means
	// one page.
	MarketLimit int

	Logger *zap.Logger
}

// pageSize is the trade API page size cap.
const pageSize = 200

// Client is the Kalshi venue adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	privateKey *rsa.PrivateKey
	logger     *zap.Logger
}

// New creates a Kalshi adapter. A client without a private key can read
// market data but not trade.
func New(cfg Config) (*Client, error) {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     cfg.Logger,
	}

	if cfg.PrivateKeyPEM != "" {
		key, err := parsePrivateKey(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.privateKey = key
	}
	return c, nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

// Name implements venue.Adapter.
func (c *Client) Name() types.Venue { return types.VenueKalshi }

// ListMarkets implements venue.Adapter, paging through open markets.
func (c *Client) ListMarkets(ctx context.Context) ([]types.Market, error) {
	var out []types.Market
	cursor := ""

	for {
		params := url.Values{}
		params.Add("status", "open")
		params.Add("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			params.Add("cursor", cursor)
		}

		body, err := c.request(ctx, http.MethodGet, "/markets?"+params.Encode(), nil)
		if err != nil {
			return nil, types.NewTransientVenueError(types.VenueKalshi, "list-markets", err)
		}

		var resp marketsResponse
		err = json.Unmarshal(body, &resp)
		if err != nil {
			return nil, types.NewFatalVenueError(types.VenueKalshi, "list-markets",
				fmt.Errorf("unmarshal markets: %w", err))
		}

		for i := range resp.Markets {
			m, ok := translateMarket(&resp.Markets[i])
			if !ok {
				continue
			}
			out = append(out, m)
			if c.cfg.MarketLimit > 0 && len(out) >= c.cfg.MarketLimit {
				return out, nil
			}
		}

		cursor = resp.Cursor
		if cursor == "" || len(resp.Markets) < pageSize || c.cfg.MarketLimit == 0 {
			break
		}
	}

	c.logger.Debug("kalshi-markets-listed", zap.Int("count", len(out)))
	return out, nil
}

// translateMarket converts one trade API market. Only binary markets
// with a parseable close time qualify.
func translateMarket(km *kalshiMarket) (types.Market, bool) {
	if km.MarketType != "" && km.MarketType != "binary" {
		return types.Market{}, false
	}

	closeTime := km.ExpirationTime
	if closeTime == "" {
		closeTime = km.CloseTime
	}
	expires, err := time.Parse(time.RFC3339, closeTime)
	if err != nil {
		return types.Market{}, false
	}

	status := types.MarketOpen
	switch km.Status {
	case "open", "active":
	case "settled", "finalized":
		status = types.MarketResolved
	default:
		status = types.MarketClosed
	}

	m := types.Market{
		Venue:     types.VenueKalshi,
		ID:        km.Ticker,
		Question:  km.Title,
		Slug:      km.Ticker,
		TickSize:  float64(km.TickSize) / 100,
		ExpiresAt: expires,
		Status:    status,
		Liquidity: km.Liquidity / 100,
	}
	if status == types.MarketResolved {
		switch km.Result {
		case "yes":
			m.Outcome = types.SideYes
		case "no":
			m.Outcome = types.SideNo
		}
	}
	return m, true
}

// GetQuote implements venue.Adapter. The book lists resting bids per
// side; the ask for one side is the complement of the other side's bid.
func (c *Client) GetQuote(ctx context.Context, marketID string, side types.Side) (*types.PriceQuote, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(marketID))
	body, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenueKalshi, "get-quote", err)
	}

	var resp orderbookResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenueKalshi, "get-quote",
			fmt.Errorf("unmarshal orderbook: %w", err))
	}

	own := resp.Orderbook.Yes
	other := resp.Orderbook.No
	if side == types.SideNo {
		own, other = other, own
	}

	bidCents, bidSize := bestLevel(own)
	otherBidCents, otherSize := bestLevel(other)

	q := &types.PriceQuote{
		Venue:     types.VenueKalshi,
		MarketID:  marketID,
		Side:      side,
		BestBid:   float64(bidCents) / 100,
		BidSize:   float64(bidSize),
		Timestamp: time.Now(),
	}
	if otherBidCents > 0 {
		q.BestAsk = float64(100-otherBidCents) / 100
		q.AskSize = float64(otherSize)
	}
	return q, nil
}

// bestLevel returns the highest-priced [price, count] level.
func bestLevel(levels [][]int) (price, count int) {
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		if l[0] > price {
			price = l[0]
			count = l[1]
		}
	}
	return price, count
}

// SubmitOrder implements venue.Adapter.
func (c *Client) SubmitOrder(ctx context.Context, req venue.OrderRequest) (string, error) {
	if c.privateKey == nil {
		return "", types.NewFatalVenueError(types.VenueKalshi, "submit-order",
			errors.New("no api credentials configured"))
	}

	action := "buy"
	if req.Sell {
		action = "sell"
	}

	side := "yes"
	if req.Side == types.SideNo {
		side = "no"
	}

	order := orderRequest{
		Ticker:        req.MarketID,
		ClientOrderID: uuid.New().String(),
		Action:        action,
		Side:          side,
		Type:          "limit",
		Count:         int(math.Round(req.Size)),
	}
	cents := int(math.Round(req.Price * 100))
	if req.Side == types.SideYes {
		order.YesPrice = cents
	} else {
		order.NoPrice = cents
	}

	body, err := c.request(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		var rejected *types.RejectedOrderError
		if errors.As(err, &rejected) {
			rejected.MarketID = req.MarketID
			rejected.Side = req.Side
			return "", rejected
		}
		return "", types.NewTransientVenueError(types.VenueKalshi, "submit-order", err)
	}

	var resp orderResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return "", types.NewFatalVenueError(types.VenueKalshi, "submit-order",
			fmt.Errorf("parse response: %w", err))
	}

	c.logger.Info("kalshi-order-submitted",
		zap.String("order-id", resp.Order.OrderID),
		zap.String("ticker", req.MarketID),
		zap.String("side", string(req.Side)),
		zap.String("action", action),
		zap.Int("count", order.Count),
		zap.Int("price-cents", cents))

	return resp.Order.OrderID, nil
}

// GetOrderStatus implements venue.Adapter.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*venue.OrderStatus, error) {
	path := "/portfolio/orders/" + url.PathEscape(orderID)
	body, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenueKalshi, "get-order-status", err)
	}

	var resp orderResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenueKalshi, "get-order-status",
			fmt.Errorf("parse response: %w", err))
	}

	o := resp.Order
	priceCents := o.YesPrice
	if o.Side == "no" {
		priceCents = o.NoPrice
	}

	return &venue.OrderStatus{
		OrderID:      o.OrderID,
		Status:       o.Status,
		Size:         float64(o.InitialCount),
		SizeFilled:   float64(o.InitialCount - o.RemainingCount),
		AvgFillPrice: float64(priceCents) / 100,
		UpdatedAt:    time.Now(),
	}, nil
}

// CancelOrder implements venue.Adapter.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := "/portfolio/orders/" + url.PathEscape(orderID)
	_, err := c.request(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return types.NewTransientVenueError(types.VenueKalshi, "cancel-order", err)
	}
	c.logger.Info("kalshi-order-canceled", zap.String("order-id", orderID))
	return nil
}

// GetBalance implements venue.Adapter.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	body, err := c.request(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return 0, types.NewTransientVenueError(types.VenueKalshi, "get-balance", err)
	}

	var resp balanceResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return 0, types.NewFatalVenueError(types.VenueKalshi, "get-balance",
			fmt.Errorf("parse response: %w", err))
	}
	return float64(resp.Balance) / 100, nil
}

// GetResolution implements venue.Adapter.
func (c *Client) GetResolution(ctx context.Context, marketID string) (*types.Resolution, error) {
	path := "/markets/" + url.PathEscape(marketID)
	body, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenueKalshi, "get-resolution", err)
	}

	var resp marketResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenueKalshi, "get-resolution",
			fmt.Errorf("parse response: %w", err))
	}

	res := &types.Resolution{MarketID: marketID}
	if resp.Market.Status != "settled" && resp.Market.Status != "finalized" {
		return res, nil
	}
	switch resp.Market.Result {
	case "yes":
		res.Resolved = true
		res.Winner = types.SideYes
	case "no":
		res.Resolved = true
		res.Winner = types.SideNo
	}
	return res, nil
}

// request performs a signed trade API request. The RSA-PSS signature
// covers timestamp, method and path per the access key scheme.
func (c *Client) request(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.privateKey != nil {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature, err := c.sign(timestamp + method + req.URL.Path)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("KALSHI-ACCESS-KEY", c.cfg.APIKeyID)
		req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Code != "" &&
			(resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden) {
			return nil, &types.RejectedOrderError{
				Venue:   types.VenueKalshi,
				Code:    apiErr.Error.Code,
				Message: apiErr.Error.Message,
			}
		}
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// sign produces the RSA-PSS signature over the request digest.
func (c *Client) sign(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}
