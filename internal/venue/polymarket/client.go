// Package polymarket implements the venue adapter for Polymarket's Gamma
// and CLOB APIs, with market data streamed over websocket and orders
// signed EIP-712 style against the CTF exchange.
package polymarket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/predarb/crossvenue-arb/pkg/cache"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// maxBatchSize is the Gamma API page size cap.
const maxBatchSize = 100

// Config holds Polymarket adapter configuration.
type Config struct {
	GammaURL string
	CLOBURL  string

	// CLOB API credentials.
	APIKey     string
	Secret     string
	Passphrase string

	// PrivateKey signs orders; ProxyAddress, when set, is the funder.
	PrivateKey    string
	ProxyAddress  string
	SignatureType int

	// PolygonRPCURL reads on-chain USDC balances.
	PolygonRPCURL string

	// MarketLimit caps how many markets ListMarkets returns. Zero means
	// one page.
	MarketLimit int

	Logger *zap.Logger
}

// tokenPair maps one market to its YES and NO CLOB tokens.
type tokenPair struct {
	yes string
	no  string
}

// Client is the Polymarket venue adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	signer     *orderSigner
	wallet     *walletReader
	resolved   *cache.RistrettoCache
	logger     *zap.Logger

	mu     sync.RWMutex
	tokens map[string]tokenPair // market id -> token pair
	assets map[string]assetRef  // token id -> market side
}

// assetRef points a CLOB token back to its market and side.
type assetRef struct {
	marketID string
	side     types.Side
}

// New creates a Polymarket adapter. Order signing is initialized only
// when a private key is configured; a read-only client works without one.
func New(cfg Config) (*Client, error) {
	resolved, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create resolution cache: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		resolved:   resolved,
		logger:     cfg.Logger,
		tokens:     make(map[string]tokenPair),
		assets:     make(map[string]assetRef),
	}

	if cfg.PrivateKey != "" {
		c.signer, err = newOrderSigner(cfg)
		if err != nil {
			return nil, fmt.Errorf("init order signer: %w", err)
		}
	}
	if cfg.PolygonRPCURL != "" {
		c.wallet, err = newWalletReader(cfg.PolygonRPCURL, c.signerAddress(), cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("init wallet reader: %w", err)
		}
	}

	return c, nil
}

func (c *Client) signerAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.address
}

// Name implements venue.Adapter.
func (c *Client) Name() types.Venue { return types.VenuePolymarket }

// ListMarkets implements venue.Adapter. It pages through the Gamma API
// and records the CLOB token pair of every listed market.
func (c *Client) ListMarkets(ctx context.Context) ([]types.Market, error) {
	var out []types.Market
	offset := 0

	for {
		batch, err := c.fetchMarketsPage(ctx, maxBatchSize, offset)
		if err != nil {
			return nil, err
		}

		for i := range batch {
			m, ok := c.translateMarket(&batch[i])
			if !ok {
				continue
			}
			out = append(out, m)
			if c.cfg.MarketLimit > 0 && len(out) >= c.cfg.MarketLimit {
				return out, nil
			}
		}

		if len(batch) < maxBatchSize || c.cfg.MarketLimit == 0 {
			break
		}
		offset += maxBatchSize
	}

	c.logger.Debug("polymarket-markets-listed", zap.Int("count", len(out)))
	return out, nil
}

// fetchMarketsPage fetches one Gamma markets page.
func (c *Client) fetchMarketsPage(ctx context.Context, limit, offset int) ([]gammaMarket, error) {
	params := url.Values{}
	params.Add("closed", "false")
	params.Add("active", "true")
	params.Add("limit", strconv.Itoa(limit))
	params.Add("offset", strconv.Itoa(offset))
	params.Add("order", "volume24hr")
	params.Add("ascending", "false")

	requestURL := fmt.Sprintf("%s/markets?%s", c.cfg.GammaURL, params.Encode())

	body, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenuePolymarket, "list-markets", err)
	}

	// Gamma returns a bare array.
	var markets []gammaMarket
	err = json.Unmarshal(body, &markets)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenuePolymarket, "list-markets",
			fmt.Errorf("unmarshal markets: %w", err))
	}
	return markets, nil
}

// translateMarket converts a Gamma market, registering its token pair.
// Markets without a parseable binary token pair are skipped.
func (c *Client) translateMarket(gm *gammaMarket) (types.Market, bool) {
	yesToken, noToken, err := gm.tokenIDs()
	if err != nil {
		return types.Market{}, false
	}
	expires, err := gm.expiresAt()
	if err != nil {
		return types.Market{}, false
	}

	c.mu.Lock()
	c.tokens[gm.ID] = tokenPair{yes: yesToken, no: noToken}
	c.assets[yesToken] = assetRef{marketID: gm.ID, side: types.SideYes}
	c.assets[noToken] = assetRef{marketID: gm.ID, side: types.SideNo}
	c.mu.Unlock()

	status := types.MarketOpen
	if gm.Closed || !gm.Active {
		status = types.MarketClosed
	}

	return types.Market{
		Venue:     types.VenuePolymarket,
		ID:        gm.ID,
		Question:  gm.Question,
		Slug:      gm.Slug,
		TickSize:  gm.TickSize,
		ExpiresAt: expires,
		Status:    status,
		Liquidity: gm.LiquidityNum,
	}, true
}

// tokenFor resolves the CLOB token for one market side.
func (c *Client) tokenFor(marketID string, side types.Side) (string, error) {
	c.mu.RLock()
	pair, ok := c.tokens[marketID]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown market %s", marketID)
	}
	if side == types.SideYes {
		return pair.yes, nil
	}
	return pair.no, nil
}

// TokensFor exposes the token pair of a market for stream subscription.
func (c *Client) TokensFor(marketID string) (yes, no string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pair, found := c.tokens[marketID]
	return pair.yes, pair.no, found
}

// assetFor maps a CLOB token id back to its market side.
func (c *Client) assetFor(tokenID string) (assetRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.assets[tokenID]
	return ref, ok
}

// GetQuote implements venue.Adapter using the CLOB order book endpoint.
func (c *Client) GetQuote(ctx context.Context, marketID string, side types.Side) (*types.PriceQuote, error) {
	tokenID, err := c.tokenFor(marketID, side)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenuePolymarket, "get-quote", err)
	}

	requestURL := fmt.Sprintf("%s/book?token_id=%s", c.cfg.CLOBURL, url.QueryEscape(tokenID))
	body, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenuePolymarket, "get-quote", err)
	}

	var book bookResponse
	err = json.Unmarshal(body, &book)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenuePolymarket, "get-quote",
			fmt.Errorf("unmarshal book: %w", err))
	}

	bid, bidSize := book.bestBid()
	ask, askSize := book.bestAsk()

	return &types.PriceQuote{
		Venue:     types.VenuePolymarket,
		MarketID:  marketID,
		Side:      side,
		BestBid:   bid,
		BidSize:   bidSize,
		BestAsk:   ask,
		AskSize:   askSize,
		Timestamp: time.Now(),
	}, nil
}

// GetResolution implements venue.Adapter. Resolved outcomes are cached
// since they never change.
func (c *Client) GetResolution(ctx context.Context, marketID string) (*types.Resolution, error) {
	if cached, ok := c.resolved.Get("resolution:" + marketID); ok {
		res := cached.(types.Resolution)
		return &res, nil
	}

	requestURL := fmt.Sprintf("%s/markets/%s", c.cfg.GammaURL, url.PathEscape(marketID))
	body, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenuePolymarket, "get-resolution", err)
	}

	var gm gammaMarket
	err = json.Unmarshal(body, &gm)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenuePolymarket, "get-resolution",
			fmt.Errorf("unmarshal market: %w", err))
	}

	res := &types.Resolution{MarketID: marketID}
	if !gm.Closed {
		return res, nil
	}

	yesPrice, noPrice, err := gm.outcomePrices()
	if err != nil {
		return res, nil
	}

	// A settled market pins the winning outcome to 1.
	switch {
	case yesPrice >= 0.999:
		res.Resolved = true
		res.Winner = types.SideYes
	case noPrice >= 0.999:
		res.Resolved = true
		res.Winner = types.SideNo
	}

	if res.Resolved {
		c.resolved.Set("resolution:"+marketID, *res, 24*time.Hour)
	}
	return res, nil
}

// GetBalance implements venue.Adapter by reading the funder's on-chain
// USDC balance.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	if c.wallet == nil {
		return 0, types.NewFatalVenueError(types.VenuePolymarket, "get-balance",
			fmt.Errorf("no polygon rpc configured"))
	}
	owner := c.cfg.ProxyAddress
	if owner == "" {
		owner = c.signerAddress()
	}
	return c.wallet.usdcBalance(ctx, owner)
}

// get performs a GET request and returns the body on 2xx.
func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "crossvenue-arb/1.0")

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
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Close releases the resolution cache.
func (c *Client) Close() {
	c.resolved.Close()
}
