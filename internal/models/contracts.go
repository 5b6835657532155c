package models

import "encoding/json"

type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Session struct {
	Token string `json:"token,omitempty"`
	User  *User  `json:"user,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ErrorBody is the error envelope returned by the backend. Detail is a
// string for HTTPException and a list of objects for request validation.
type ErrorBody struct {
	Detail json.RawMessage `json:"detail,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type NewsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}

type NewsResponse struct {
	Articles []NewsArticle `json:"articles"`
}

type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Bullish reports whether the candle closed at or above its open.
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}

type StockSeries struct {
	Symbol      string   `json:"symbol"`
	LatestPrice float64  `json:"latest_price"`
	ChangePct   float64  `json:"change_pct"`
	Trend       []Candle `json:"trend"`
}

type StockQuery struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period,omitempty"`
	Interval string `json:"interval,omitempty"`
}

type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type TrendMeta struct {
	Query         string `json:"query"`
	Days          int    `json:"days"`
	TotalArticles int    `json:"totalArticles"`
	GeneratedAt   string `json:"generatedAt"`
	Note          string `json:"note,omitempty"`
}

type TrendsResponse struct {
	Series []TrendPoint `json:"series"`
	Meta   TrendMeta    `json:"meta"`
}

type TrendQuery struct {
	Days  int    `json:"days"`
	Query string `json:"query"`
}

type ChatRequest struct {
	Prompt string `json:"prompt"`
}

type ChatReply struct {
	Text  string          `json:"text"`
	Error json.RawMessage `json:"error,omitempty"`
}

// DailyInsights is the body of /api/insights/daily. The backend only
// promises JSON, so the raw object is kept next to the known fields.
type DailyInsights struct {
	Date   string         `json:"date"`
	Themes string         `json:"themes"`
	Raw    map[string]any `json:"raw,omitempty"`
}

type HealthResponse struct {
	Ok         bool                 `json:"ok"`
	TsISO      string               `json:"tsISO"`
	Service    string               `json:"service"`
	Version    string               `json:"version,omitempty"`
	Backend    string               `json:"backend"`
	Storage    string               `json:"storage"`
	Deps       []string             `json:"deps"`
	DepsStatus map[string]DepStatus `json:"deps_status"`
}

type DepStatus struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
