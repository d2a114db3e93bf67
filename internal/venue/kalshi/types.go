package kalshi

// kalshiMarket is the trade API market representation. Prices are in
// cents.
type kalshiMarket struct {
	Ticker         string  `json:"ticker"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	CloseTime      string  `json:"close_time"`
	Result         string  `json:"result"`
	Liquidity      float64 `json:"liquidity"`
	TickSize       int     `json:"tick_size"`
	CanCloseEarly  bool    `json:"can_close_early"`
	YesBid         int     `json:"yes_bid"`
	YesAsk         int     `json:"yes_ask"`
	NoBid          int     `json:"no_bid"`
	NoAsk          int     `json:"no_ask"`
	OpenInterest   int     `json:"open_interest"`
	Volume24H      int     `json:"volume_24h"`
	MarketType     string  `json:"market_type"`
	ExpirationTime string  `json:"expiration_time"`
}

type marketsResponse struct {
	Markets []kalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

type marketResponse struct {
	Market kalshiMarket `json:"market"`
}

// orderbookResponse carries resting bids per side as [price_cents, count]
// pairs. Asks are implied: an ask on YES is a bid on NO at 100-p.
type orderbookResponse struct {
	Orderbook struct {
		Yes [][]int `json:"yes"`
		No  [][]int `json:"no"`
	} `json:"orderbook"`
}

type orderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // buy or sell
	Side          string `json:"side"`   // yes or no
	Type          string `json:"type"`   // limit
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type kalshiOrder struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	Action         string `json:"action"`
	Side           string `json:"side"`
	InitialCount   int    `json:"initial_count"`
	RemainingCount int    `json:"remaining_count"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
}

type orderResponse struct {
	Order kalshiOrder `json:"order"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // cents
}
