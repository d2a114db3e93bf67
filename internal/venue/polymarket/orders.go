package polymarket

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// orderSigner builds and signs CLOB orders against the CTF exchange on
// Polygon (chain id 137).
type orderSigner struct {
	privateKey    *ecdsa.PrivateKey
	address       string // EOA signer
	proxyAddress  string // maker/funder when set
	signatureType model.SignatureType
	builder       builder.ExchangeOrderBuilder
}

func newOrderSigner(cfg Config) (*orderSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, _ := privateKey.Public().(*ecdsa.PublicKey)
	address := crypto.PubkeyToAddress(*publicKey).Hex()

	chainID := big.NewInt(137)
	return &orderSigner{
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		builder:       builder.NewExchangeOrderBuilderImpl(chainID, nil),
	}, nil
}

// signedOrderJSON is the wire form of a signed order. Salt and
// signatureType are integers, everything else strings.
type signedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// buildOrder signs one limit order for a CLOB token.
func (s *orderSigner) buildOrder(tokenID string, price, contracts float64, sell bool) (*model.SignedOrder, error) {
	maker := s.address
	if s.proxyAddress != "" {
		maker = s.proxyAddress
	}

	side := model.BUY
	makerAmount := rawAmount(price * contracts) // USDC spent
	takerAmount := rawAmount(contracts)         // outcome tokens received
	if sell {
		side = model.SELL
		makerAmount = rawAmount(contracts)           // outcome tokens sold
		takerAmount = rawAmount(price * contracts)   // USDC received
	}

	data := &model.OrderData{
		Maker:         maker,
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        s.address,
		Expiration:    "0",
		SignatureType: s.signatureType,
	}

	return s.builder.BuildSignedOrder(s.privateKey, data, model.CTFExchange)
}

// rawAmount converts a USDC or share amount to 6-decimal raw units.
// Rounding absorbs float noise that truncation would turn into a
// missing micro-unit.
func rawAmount(v float64) string {
	return strconv.FormatInt(int64(math.Round(v*1000000)), 10)
}

// SubmitOrder implements venue.Adapter.
func (c *Client) SubmitOrder(ctx context.Context, req venue.OrderRequest) (string, error) {
	if c.signer == nil {
		return "", types.NewFatalVenueError(types.VenuePolymarket, "submit-order",
			fmt.Errorf("no private key configured"))
	}

	tokenID, err := c.tokenFor(req.MarketID, req.Side)
	if err != nil {
		return "", types.NewFatalVenueError(types.VenuePolymarket, "submit-order", err)
	}

	order, err := c.signer.buildOrder(tokenID, req.Price, req.Size, req.Sell)
	if err != nil {
		return "", types.NewFatalVenueError(types.VenuePolymarket, "submit-order",
			fmt.Errorf("build order: %w", err))
	}

	sideStr := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		sideStr = "SELL"
	}

	payload := map[string]interface{}{
		"order": signedOrderJSON{
			Salt:          order.Salt.Int64(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenId.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Side:          sideStr,
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			SignatureType: int(order.SignatureType.Int64()),
			Signature:     "0x" + common.Bytes2Hex(order.Signature),
		},
		// Owner is the API key, not the maker address.
		"owner":     c.cfg.APIKey,
		"orderType": "GTC",
	}

	body, err := c.signedRequest(ctx, http.MethodPost, "/order", payload)
	if err != nil {
		return "", types.NewTransientVenueError(types.VenuePolymarket, "submit-order", err)
	}

	var resp orderResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return "", types.NewFatalVenueError(types.VenuePolymarket, "submit-order",
			fmt.Errorf("parse response: %w", err))
	}
	if !resp.Success && resp.Error != "" {
		return "", &types.RejectedOrderError{
			Venue:    types.VenuePolymarket,
			MarketID: req.MarketID,
			Side:     req.Side,
			Code:     resp.Status,
			Message:  resp.Error,
		}
	}

	c.logger.Info("polymarket-order-submitted",
		zap.String("order-id", resp.OrderID),
		zap.String("market-id", req.MarketID),
		zap.String("side", string(req.Side)),
		zap.Bool("sell", req.Sell),
		zap.Float64("price", req.Price),
		zap.Float64("size", req.Size))

	return resp.OrderID, nil
}

// GetOrderStatus implements venue.Adapter.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*venue.OrderStatus, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, "/data/order/"+orderID, nil)
	if err != nil {
		return nil, types.NewTransientVenueError(types.VenuePolymarket, "get-order-status", err)
	}

	var resp orderStatusResponse
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return nil, types.NewFatalVenueError(types.VenuePolymarket, "get-order-status",
			fmt.Errorf("parse response: %w", err))
	}

	size, _ := strconv.ParseFloat(resp.OriginalSize, 64)
	matched, _ := strconv.ParseFloat(resp.SizeMatched, 64)
	price, _ := strconv.ParseFloat(resp.Price, 64)

	return &venue.OrderStatus{
		OrderID:      resp.ID,
		Status:       resp.Status,
		Size:         size,
		SizeFilled:   matched,
		AvgFillPrice: price,
		UpdatedAt:    time.Now(),
	}, nil
}

// CancelOrder implements venue.Adapter.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	payload := map[string]interface{}{"orderID": orderID}
	_, err := c.signedRequest(ctx, http.MethodDelete, "/order", payload)
	if err != nil {
		return types.NewTransientVenueError(types.VenuePolymarket, "cancel-order", err)
	}
	c.logger.Info("polymarket-order-canceled", zap.String("order-id", orderID))
	return nil
}

// signedRequest performs an L2-authenticated CLOB request. The HMAC
// covers timestamp, method, path and body, keyed by the url-safe base64
// decoded API secret.
func (c *Client) signedRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var bodyStr string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyStr = string(b)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	secretBytes, err := base64.URLEncoding.DecodeString(c.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(timestamp + method + path + bodyStr))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.CLOBURL+path, strings.NewReader(bodyStr))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.cfg.APIKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.cfg.Passphrase)
	req.Header.Set("POLY_ADDRESS", c.signerAddress())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
