package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/config"
	"aiworker/dashboard-go/internal/models"
)

const (
	DefaultTrendDays  = 7
	DefaultTrendQuery = "artificial intelligence"
	MaxTrendDays      = 30
)

// TokenSource supplies the bearer credential read before each request.
type TokenSource interface {
	Token() string
}

type BackendClient struct {
	baseURL      string
	hc           *http.Client
	uploadHC     *http.Client
	tokens       TokenSource
	cb           *circuitBreaker
	log          *zap.Logger
	period       string
	interval     string
	mu           sync.RWMutex
	unauthorized func(context.Context)
}

type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openedAt  time.Time
	cooldown  time.Duration
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures < c.threshold {
		return true
	}
	if time.Since(c.openedAt) > c.cooldown {
		c.failures = 0
		c.openedAt = time.Time{}
		return true
	}
	return false
}

func (c *circuitBreaker) success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.openedAt = time.Time{}
}

func (c *circuitBreaker) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openedAt = time.Now()
	}
}

func NewBackendClient(cfg config.Config, tokens TokenSource, log *zap.Logger) *BackendClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &BackendClient{
		baseURL:  strings.TrimRight(cfg.BackendURL, "/"),
		hc:       &http.Client{Timeout: cfg.RequestTimeout},
		uploadHC: &http.Client{Timeout: cfg.UploadTimeout},
		tokens:   tokens,
		cb:       newCircuitBreaker(cfg.CircuitFailLimit, cfg.CircuitCooldown),
		log:      log.Named("backend"),
		period:   cfg.StockPeriod,
		interval: cfg.StockInterval,
	}
}

// OnUnauthorized registers fn to run when a request that carried a token is
// rejected with 401 or 403.
func (c *BackendClient) OnUnauthorized(fn func(context.Context)) {
	c.mu.Lock()
	c.unauthorized = fn
	c.mu.Unlock()
}

func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

func (c *BackendClient) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.send(ctx, c.hc, http.MethodGet, "/health", nil, "", &out); err != nil {
		return err
	}
	if out.Status != "" && out.Status != "ok" {
		return &RequestError{Kind: KindBackend, Status: http.StatusOK, Message: "backend status " + out.Status}
	}
	return nil
}

func (c *BackendClient) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.postJSON(ctx, "/auth/login", models.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return out, err
	}
	if out.AccessToken == "" {
		return out, &RequestError{Kind: KindBackend, Status: http.StatusOK, Message: "login response without access_token"}
	}
	return out, nil
}

func (c *BackendClient) Register(ctx context.Context, name, email, password string) (models.User, error) {
	var out models.User
	err := c.postJSON(ctx, "/auth/register", models.RegisterRequest{Name: name, Email: email, Password: password}, &out)
	return out, err
}

func (c *BackendClient) FetchNews(ctx context.Context) (models.NewsResponse, error) {
	var out models.NewsResponse
	if err := c.send(ctx, c.hc, http.MethodGet, "/api/news", nil, "", &out); err != nil {
		return out, err
	}
	if out.Articles == nil {
		out.Articles = []models.NewsArticle{}
	}
	return out, nil
}

type candleWire struct {
	Date   string   `json:"date"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume"`
}

type stockWire struct {
	Symbol      string       `json:"symbol"`
	LatestPrice *float64     `json:"latest_price"`
	ChangePct   *float64     `json:"change_pct"`
	Trend       []candleWire `json:"trend"`
}

// FetchStock runs the stocks worker for q.Symbol. Empty period and interval
// fall back to the configured defaults.
func (c *BackendClient) FetchStock(ctx context.Context, q models.StockQuery) (models.StockSeries, error) {
	vals := url.Values{}
	vals.Set("kind", "stocks")
	vals.Set("symbol", q.Symbol)
	if p := firstNonEmpty(q.Period, c.period); p != "" {
		vals.Set("period", p)
	}
	if iv := firstNonEmpty(q.Interval, c.interval); iv != "" {
		vals.Set("interval", iv)
	}

	var raw stockWire
	if err := c.send(ctx, c.hc, http.MethodPost, "/worker/run?"+vals.Encode(), nil, "", &raw); err != nil {
		return models.StockSeries{}, err
	}
	return normalizeStock(q.Symbol, raw), nil
}

func (c *BackendClient) FetchTrends(ctx context.Context, q models.TrendQuery) (models.TrendsResponse, error) {
	q = NormalizeTrendQuery(q)
	vals := url.Values{}
	vals.Set("days", strconv.Itoa(q.Days))
	vals.Set("query", q.Query)

	var out models.TrendsResponse
	if err := c.send(ctx, c.hc, http.MethodGet, "/api/trends?"+vals.Encode(), nil, "", &out); err != nil {
		return out, err
	}
	if out.Series == nil {
		out.Series = []models.TrendPoint{}
	}
	if out.Meta.Query == "" {
		out.Meta.Query = q.Query
	}
	if out.Meta.Days == 0 {
		out.Meta.Days = q.Days
	}
	return out, nil
}

// NormalizeTrendQuery applies the default window and query and clamps days
// to 1..30.
func NormalizeTrendQuery(q models.TrendQuery) models.TrendQuery {
	if q.Days == 0 {
		q.Days = DefaultTrendDays
	}
	if q.Days < 1 {
		q.Days = 1
	}
	if q.Days > MaxTrendDays {
		q.Days = MaxTrendDays
	}
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		q.Query = DefaultTrendQuery
	}
	return q
}

func (c *BackendClient) FetchInsights(ctx context.Context) (models.DailyInsights, error) {
	raw := map[string]any{}
	if err := c.send(ctx, c.hc, http.MethodGet, "/api/insights/daily", nil, "", &raw); err != nil {
		return models.DailyInsights{}, err
	}
	out := models.DailyInsights{Raw: raw}
	if v, ok := raw["date"].(string); ok {
		out.Date = v
	}
	out.Themes = stringify(raw["themes"])
	return out, nil
}

func (c *BackendClient) ChatWithGemini(ctx context.Context, prompt string) (models.ChatReply, error) {
	var out models.ChatReply
	if err := c.postJSON(ctx, "/api/gemini", models.ChatRequest{Prompt: prompt}, &out); err != nil {
		return out, err
	}
	if msg := rawErrorText(out.Error); msg != "" {
		return out, &RequestError{Kind: KindBackend, Status: http.StatusOK, Message: msg}
	}
	return out, nil
}

// UploadFile posts the file as multipart field "file". Unsupported
// extensions fail with KindValidation before any request is made.
func (c *BackendClient) UploadFile(ctx context.Context, name string, r io.Reader) (models.UploadResult, error) {
	kind, ok := models.UploadKindFor(name)
	if !ok {
		return models.UploadResult{}, &RequestError{Kind: KindValidation, Message: "Unsupported file type.", Err: ErrUnsupportedUpload}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("read upload %s: %w", name, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return models.UploadResult{}, err
	}
	if _, err := part.Write(data); err != nil {
		return models.UploadResult{}, err
	}
	if err := mw.Close(); err != nil {
		return models.UploadResult{}, err
	}

	var raw uploadWire
	if err := c.send(ctx, c.uploadHC, http.MethodPost, "/api/upload", &body, mw.FormDataContentType(), &raw); err != nil {
		return models.UploadResult{}, err
	}
	return normalizeUpload(name, kind, raw, data)
}

func (c *BackendClient) postJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.send(ctx, c.hc, http.MethodPost, path, bytes.NewReader(payload), "application/json", out)
}

func (c *BackendClient) send(ctx context.Context, hc *http.Client, method, path string, body io.Reader, contentType string, out any) error {
	if !c.cb.allow() {
		return &RequestError{Kind: KindNetwork, Message: "backend circuit breaker open"}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := hc.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.cb.fail()
		}
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &RequestError{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer res.Body.Close()
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	status := res.StatusCode
	if status >= 300 {
		text, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		rerr := &RequestError{Kind: KindBackend, Status: status, Message: errorMessage(status, text), Detail: backendDetail(text)}
		switch {
		case status >= 500:
			c.cb.fail()
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			c.cb.success()
			rerr.Kind = KindAuth
			// A rejection of a token that was replaced meanwhile says
			// nothing about the current session.
			if token != "" && !strings.HasPrefix(path, "/auth/") && c.tokens.Token() == token {
				c.notifyUnauthorized(ctx)
			}
		default:
			c.cb.success()
		}
		return rerr
	}
	c.cb.success()

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &RequestError{Kind: KindBackend, Status: status, Message: "invalid response body", Err: err}
	}
	return nil
}

func (c *BackendClient) notifyUnauthorized(ctx context.Context) {
	c.mu.RLock()
	fn := c.unauthorized
	c.mu.RUnlock()
	if fn == nil {
		return
	}
	c.log.Info("token rejected by backend, logging out")
	fn(context.WithoutCancel(ctx))
}

// errorMessage prefers the backend's detail or error field and falls back to
// the body text and then the status text.
func errorMessage(status int, body []byte) string {
	var eb models.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := detailText(eb.Detail); msg != "" {
			return msg
		}
		if msg := rawErrorText(eb.Error); msg != "" {
			return msg
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "<") {
		return s
	}
	return http.StatusText(status)
}

func backendDetail(body []byte) string {
	var eb models.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return detailText(eb.Detail)
}

func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(raw)
}

func rawErrorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" || trimmed == `""` || trimmed == "false" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
