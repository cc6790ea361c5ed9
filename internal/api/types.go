package api

import "time"

// Quote is a point-in-time price snapshot for a stock.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	AsOf          time.Time `json:"as_of"`
}

// PricePoint is one bar of a price history series.
type PricePoint struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceHistory is a historical price series for one symbol and range.
type PriceHistory struct {
	Symbol string       `json:"symbol"`
	Range  string       `json:"range"`
	Points []PricePoint `json:"points"`
}

// Investor is a tracked institutional investor profile.
type Investor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Firm        string `json:"firm"`
	Style       string `json:"style"`
	AUM         int64  `json:"aum"`
	Description string `json:"description"`
}

// Holding is one position in an investor's disclosed portfolio.
type Holding struct {
	Symbol       string  `json:"symbol"`
	CompanyName  string  `json:"company_name"`
	Shares       int64   `json:"shares"`
	Value        float64 `json:"value"`
	PortfolioPct float64 `json:"portfolio_pct"`
}

// Holdings is an investor's portfolio as of a filing date.
type Holdings struct {
	InvestorID string    `json:"investor_id"`
	FiledAt    time.Time `json:"filed_at"`
	Positions  []Holding `json:"positions"`
}

// PositionChange is one buy or sell between two filings.
type PositionChange struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"` // buy, sell, add, trim
	SharesDelta int64   `json:"shares_delta"`
	ValueDelta  float64 `json:"value_delta"`
}

// InvestorChanges lists position changes in an investor's latest filing.
type InvestorChanges struct {
	InvestorID string           `json:"investor_id"`
	Period     string           `json:"period"`
	Changes    []PositionChange `json:"changes"`
}

// Thesis is generated analysis of why an investor holds a position.
type Thesis struct {
	InvestorID  string    `json:"investor_id"`
	Symbol      string    `json:"symbol"`
	Summary     string    `json:"summary"`
	Body        string    `json:"body"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SubscriptionStatus describes the caller's plan and entitlements.
type SubscriptionStatus struct {
	Plan      string    `json:"plan"`
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WatchlistItem is one entry on the user's watchlist.
type WatchlistItem struct {
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"added_at"`
}

// Watchlist is the user's tracked symbols.
type Watchlist struct {
	Items []WatchlistItem `json:"items"`
}

// SearchResult is one match for a symbol or company search.
type SearchResult struct {
	Symbol      string `json:"symbol"`
	CompanyName string `json:"company_name"`
	Exchange    string `json:"exchange"`
}

// SearchResults holds stock search matches for a query.
type SearchResults struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}
