package polymarket

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// gammaMarket is the Gamma API market representation. Numeric and array
// fields arrive as JSON-encoded strings.
type gammaMarket struct {
	ID            string  `json:"id"`
	Question      string  `json:"question"`
	Slug          string  `json:"slug"`
	EndDate       string  `json:"endDate"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
	LiquidityNum  float64 `json:"liquidityNum"`
	TickSize      float64 `json:"orderPriceMinTickSize"`
	ClobTokenIDs  string  `json:"clobTokenIds"`
	Outcomes      string  `json:"outcomes"`
	OutcomePrices string  `json:"outcomePrices"`
}

// tokenIDs decodes the embedded clobTokenIds array. Binary markets carry
// exactly two: YES first, NO second.
func (m *gammaMarket) tokenIDs() (yes, no string, err error) {
	var ids []string
	err = json.Unmarshal([]byte(m.ClobTokenIDs), &ids)
	if err != nil {
		return "", "", fmt.Errorf("decode clobTokenIds: %w", err)
	}
	if len(ids) != 2 {
		return "", "", fmt.Errorf("expected 2 token ids, got %d", len(ids))
	}
	return ids[0], ids[1], nil
}

// outcomePrices decodes the embedded outcomePrices array.
func (m *gammaMarket) outcomePrices() (yes, no float64, err error) {
	var prices []string
	err = json.Unmarshal([]byte(m.OutcomePrices), &prices)
	if err != nil {
		return 0, 0, fmt.Errorf("decode outcomePrices: %w", err)
	}
	if len(prices) != 2 {
		return 0, 0, fmt.Errorf("expected 2 outcome prices, got %d", len(prices))
	}
	yes, err = strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return 0, 0, err
	}
	no, err = strconv.ParseFloat(prices[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return yes, no, nil
}

// expiresAt parses the market end date.
func (m *gammaMarket) expiresAt() (time.Time, error) {
	return time.Parse(time.RFC3339, m.EndDate)
}

// bookLevel is one price level of a CLOB order book.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookResponse is the CLOB /book response for one token.
type bookResponse struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

// bestBid returns the highest bid and its size.
func (b *bookResponse) bestBid() (price, size float64) {
	for _, l := range b.Bids {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		if p > price {
			price = p
			size, _ = strconv.ParseFloat(l.Size, 64)
		}
	}
	return price, size
}

// bestAsk returns the lowest ask and its size.
func (b *bookResponse) bestAsk() (price, size float64) {
	for _, l := range b.Asks {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		if price == 0 || p < price {
			price = p
			size, _ = strconv.ParseFloat(l.Size, 64)
		}
	}
	return price, size
}

// orderResponse is the CLOB response to an order submission.
type orderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Error   string `json:"errorMsg"`
}

// orderStatusResponse is the CLOB view of an existing order.
type orderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// streamMessage is one event on the market data websocket.
type streamMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Timestamp string      `json:"timestamp"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}
