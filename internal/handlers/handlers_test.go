package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiworker/dashboard-go/internal/app"
	"aiworker/dashboard-go/internal/config"
	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

type fixture struct {
	app   *app.App
	api   *API
	calls atomic.Int32
}

func (f *fixture) backend() http.Handler {
	mux := http.NewServeMux()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer T" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Invalid credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"T","user":{"id":1,"name":"Ada","email":"ada@example.com","role":"user"}}`)
	})
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/api/news", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"articles":[{"title":"Agents ship","url":"https://example.com/a","source":"Wire"}]}`)
	}))
	mux.HandleFunc("/worker/run", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"symbol":"RELIANCE.NS","latest_price":110,"trend":[{"date":"2024-01-01","open":1,"high":2,"low":1,"close":100,"volume":5},{"date":"2024-01-02","open":1,"high":2,"low":1,"close":110,"volume":5}]}`)
	}))
	mux.HandleFunc("/api/trends", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"series":[{"date":"2024-01-01","count":3}],"meta":{"totalArticles":3}}`)
	}))
	mux.HandleFunc("/api/insights/daily", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"date":"2024-01-02","themes":"agents"}`)
	}))
	mux.HandleFunc("/api/gemini", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":"All quiet."}`)
	}))
	mux.HandleFunc("/api/upload", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"type":"csv","columns":["a"],"preview":[{"a":"1"}],"rows":1}`)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		mux.ServeHTTP(w, r)
	})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	srv := httptest.NewServer(f.backend())
	t.Cleanup(srv.Close)

	cfg := config.Config{
		BackendURL:        srv.URL,
		RequestTimeout:    2 * time.Second,
		UploadTimeout:     2 * time.Second,
		StockPollInterval: time.Minute,
		TrendPollInterval: time.Minute,
		DefaultSymbol:     "RELIANCE.NS",
		StockPeriod:       "6mo",
		StockInterval:     "1d",
		DefaultTrendQuery: "artificial intelligence",
		DefaultTrendDays:  7,
		DefaultChatPrompt: "Summarize AI news today",
		CircuitFailLimit:  3,
		CircuitCooldown:   time.Minute,
		MaxUploadBytes:    1 << 20,
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.app = app.Assemble(ctx, cfg, services.NewMemoryStorage(), poll.NewManualScheduler(), nil)
	f.api = New(f.app)
	t.Cleanup(func() {
		_ = f.app.Close()
		cancel()
	})
	return f
}

func call(t *testing.T, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	return httptest.NewRequest(method, path, rd)
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	rec, body := call(t, f.api.Login, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "pw"}))
	require.Equal(t, http.StatusOK, rec.Code, body)
	require.Eventually(t, func() bool {
		return f.app.Dashboard.Stock().StockView().Status == poll.Success
	}, time.Second, 5*time.Millisecond)
}

func TestHealthReportsDeps(t *testing.T) {
	f := newFixture(t)
	rec, body := call(t, f.api.Health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "dashboard-go", body["service"])
	assert.Equal(t, "memory", body["storage"])
	assert.Equal(t, []any{"backend", "storage"}, body["deps"])
}

func TestProtected(t *testing.T) {
	f := newFixture(t)
	var reached bool
	h := f.api.Protected(func(w http.ResponseWriter, r *http.Request) { reached = true })

	rec, body := call(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not_logged_in", body["error"])
	assert.False(t, reached)

	require.NoError(t, f.app.Session.Login(context.Background(), "T", models.User{Name: "Ada"}))
	call(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, reached)
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)

	rec, body := call(t, f.api.Login, jsonRequest(t, http.MethodPost, "/", map[string]string{"email": "ada@example.com", "password": "nope"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", body["error"])

	before := f.calls.Load()
	rec, body = call(t, f.api.Login, jsonRequest(t, http.MethodPost, "/", map[string]string{"email": "ada@example.com"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email and password are required", body["error"])
	assert.Equal(t, before, f.calls.Load())

	rec, body = call(t, f.api.Login, jsonRequest(t, http.MethodPost, "/", map[string]string{"user": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", body["error"])
	assert.False(t, f.app.Session.Authenticated())
	assert.False(t, f.app.Dashboard.Mounted())
}

func TestRegisterMismatchSkipsBackend(t *testing.T) {
	f := newFixture(t)
	rec, body := call(t, f.api.Register, jsonRequest(t, http.MethodPost, "/", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "a", "confirm_password": "b",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Passwords do not match", body["error"])
	assert.Equal(t, int32(0), f.calls.Load())

	rec, body = call(t, f.api.Register, jsonRequest(t, http.MethodPost, "/", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "a", "confirm_password": "a",
	}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Registered: Ada (ada@example.com)", body["message"])
	assert.False(t, f.app.Session.Authenticated())
}

func TestSessionNeverEchoesToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec, body := call(t, f.api.Session, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "memory", body["storage"])
	assert.NotContains(t, body, "token")
	assert.NotContains(t, rec.Body.String(), `"T"`)

	rec, body = call(t, f.api.Logout, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["authenticated"])
	assert.False(t, f.app.Session.Authenticated())
}

func TestOrderAndCardControls(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec, body := call(t, f.api.SetOrder, jsonRequest(t, http.MethodPut, "/", map[string]any{"card": "upload", "before": "chart"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"upload", "chart", "stock", "gemini", "news"}, body["order"])

	rec, body = call(t, f.api.SetOrder, jsonRequest(t, http.MethodPut, "/", map[string]any{"card": "news", "delta": -10}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "news", body["order"].([]any)[0])

	rec, _ = call(t, f.api.SetOrder, jsonRequest(t, http.MethodPut, "/", map[string]any{"order": []string{"chart"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.SetPathValue("id", "weather")
	rec, _ = call(t, f.api.RefreshCard, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.SetPathValue("id", "news")
	rec, body = call(t, f.api.RefreshCard, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "news", body["id"])

	rec, _ = call(t, f.api.SetStock, jsonRequest(t, http.MethodPut, "/", map[string]string{"symbol": " tcs.ns "}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "TCS.NS", f.app.Dashboard.Stock().Symbol())

	rec, _ = call(t, f.api.SetStock, jsonRequest(t, http.MethodPut, "/", map[string]string{"symbol": ""}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, f.api.SetTrends, jsonRequest(t, http.MethodPut, "/", map[string]any{"days": 10}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = call(t, f.api.SetTrends, jsonRequest(t, http.MethodPut, "/", map[string]any{"days": 14, "query": "robotics"}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, float64(14), body["days"])
	assert.Equal(t, "robotics", body["query"])

	rec, body = call(t, f.api.Chat, jsonRequest(t, http.MethodPost, "/", map[string]string{"prompt": "Anything new?"}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Anything new?", body["prompt"])
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dashboard/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	before := f.calls.Load()
	rec, body := call(t, f.api.Upload, uploadRequest(t, "photo.png", "png"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported file type.", body["error"])
	assert.Equal(t, before, f.calls.Load())

	rec, body = call(t, f.api.Upload, uploadRequest(t, "../../data.csv", "a\n1\n"))
	require.Equal(t, http.StatusOK, rec.Code, body)
	table := body["table"].(map[string]any)
	assert.Equal(t, "1 total rows, 1 columns", table["summary"])
	assert.Equal(t, "data.csv", body["file_name"])

	rec, body = call(t, f.api.Upload, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_file", body["error"])
}

func TestStreamSendsCardViews(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	srv := httptest.NewServer(http.HandlerFunc(f.api.Stream))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	sc := bufio.NewScanner(res.Body)
	var event string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var upd struct {
			Card string         `json:"card"`
			View map[string]any `json:"view"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &upd))
		assert.Equal(t, "card", event)
		assert.Equal(t, "chart", upd.Card)
		assert.Equal(t, "Weekly AI News Trends", upd.View["title"])
		break
	}
}

func TestWriteUpstreamError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		errMsg string
	}{
		{"validation", &services.RequestError{Kind: services.KindValidation, Message: "bad"}, http.StatusBadRequest, "bad"},
		{"auth", &services.RequestError{Kind: services.KindAuth, Status: 401, Message: "Unauthorized"}, http.StatusUnauthorized, "Unauthorized"},
		{"rate limited", &services.RequestError{Kind: services.KindBackend, Status: 429, Message: "slow down"}, http.StatusTooManyRequests, "slow down"},
		{"upstream timeout", &services.RequestError{Kind: services.KindBackend, Status: 504, Message: "timeout"}, http.StatusGatewayTimeout, "timeout"},
		{"upstream 4xx", &services.RequestError{Kind: services.KindBackend, Status: 404, Message: "Not Found"}, http.StatusUnprocessableEntity, "Not Found"},
		{"network timeout", &services.RequestError{Kind: services.KindNetwork, Message: "deadline", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "upstream_timeout"},
		{"upstream 5xx", &services.RequestError{Kind: services.KindBackend, Status: 500, Message: "boom"}, http.StatusBadGateway, "boom"},
		{"wrapped validation", fmt.Errorf("form: %w", services.ErrValidation), http.StatusBadRequest, "inline"},
		{"plain", errors.New("odd"), http.StatusBadGateway, "inline"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := ""
			if tc.errMsg == "inline" {
				msg = "inline"
			}
			rec := httptest.NewRecorder()
			writeUpstreamError(rec, tc.err, msg)
			assert.Equal(t, tc.code, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.errMsg, body["error"])
		})
	}

	rec := httptest.NewRecorder()
	writeUpstreamError(rec, &services.RequestError{Kind: services.KindBackend, Status: 429}, "x")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 15, parseIntParam("", 15, 5, 120))
	assert.Equal(t, 15, parseIntParam("abc", 15, 5, 120))
	assert.Equal(t, 5, parseIntParam("1", 15, 5, 120))
	assert.Equal(t, 120, parseIntParam("999", 15, 5, 120))
	assert.Equal(t, 30, parseIntParam("30", 15, 5, 120))
}
