package tui

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiworker/dashboard-go/internal/app"
	"aiworker/dashboard-go/internal/cards"
	"aiworker/dashboard-go/internal/config"
	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

func newTestApp(t *testing.T) (*app.App, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/auth/login":
			_, _ = io.WriteString(w, `{"access_token":"T","user":{"id":1,"name":"Ada","email":"ada@example.com"}}`)
		case "/worker/run":
			_, _ = io.WriteString(w, `{"symbol":"RELIANCE.NS","latest_price":110,"change_pct":1.5,"trend":[]}`)
		case "/api/trends":
			_, _ = io.WriteString(w, `{"series":[],"meta":{}}`)
		case "/api/news":
			_, _ = io.WriteString(w, `{"articles":[]}`)
		case "/api/insights/daily":
			_, _ = io.WriteString(w, `{"date":"2024-01-02","themes":"agents"}`)
		case "/api/gemini":
			_, _ = io.WriteString(w, `{"text":"**Quiet** day."}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{
		BackendURL:        srv.URL,
		RequestTimeout:    2 * time.Second,
		UploadTimeout:     2 * time.Second,
		DefaultSymbol:     "RELIANCE.NS",
		DefaultTrendQuery: "artificial intelligence",
		DefaultTrendDays:  7,
		DefaultChatPrompt: "Summarize AI news today",
		CircuitFailLimit:  3,
		CircuitCooldown:   time.Minute,
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := app.Assemble(ctx, cfg, services.NewMemoryStorage(), poll.NewManualScheduler(), nil)
	t.Cleanup(func() {
		_ = a.Close()
		cancel()
	})
	return a, &hits
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func press(t *testing.T, m Model, key tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func TestLoginFlowAndLogout(t *testing.T) {
	a, _ := newTestApp(t)
	m := New(context.Background(), a)
	require.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "Login")

	m = typeText(t, m, "ada@example.com")
	m, _ = press(t, m, tea.KeyTab)
	m = typeText(t, m, "pw")
	m, cmd := press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	msg := cmd()
	res, ok := msg.(loginResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)

	next, _ := m.Update(msg)
	m = next.(Model)
	assert.Equal(t, screenDashboard, m.screen)
	assert.True(t, a.Session.Authenticated())
	assert.True(t, a.Dashboard.Mounted())
	assert.Contains(t, m.View(), "AI Worker Dashboard · Ada")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("L")})
	m = next.(Model)
	assert.Equal(t, screenLogin, m.screen)
	assert.False(t, a.Session.Authenticated())
	assert.Contains(t, m.View(), "Logged out.")
}

func TestRegisterMismatchStaysLocal(t *testing.T) {
	a, hits := newTestApp(t)
	m := New(context.Background(), a)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m = next.(Model)
	require.Equal(t, screenRegister, m.screen)

	for i, v := range []string{"Ada", "ada@example.com", "one", "two"} {
		if i > 0 {
			m, _ = press(t, m, tea.KeyTab)
		}
		m = typeText(t, m, v)
	}
	m, cmd := press(t, m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, "Passwords do not match", m.formErr)
	assert.Contains(t, m.View(), "Passwords do not match")
	assert.Equal(t, int32(0), hits.Load())
}

func TestDashboardKeys(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.Session.Login(context.Background(), "T", models.User{Name: "Ada"}))
	a.Dashboard.Mount(context.Background())

	m := New(context.Background(), a)
	require.Equal(t, screenDashboard, m.screen)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("J")})
	m = next.(Model)
	assert.Equal(t, []cards.CardID{cards.CardStock, cards.CardChart, cards.CardGemini, cards.CardNews, cards.CardUpload}, a.Dashboard.Grid().Order())
	assert.Equal(t, 1, m.selected)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(Model)
	assert.Equal(t, 14, a.Dashboard.Trend().Query().Days)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = next.(Model)
	require.Equal(t, editSymbol, m.editing)
	m.input.SetValue("tcs.ns")
	m, _ = press(t, m, tea.KeyEnter)
	assert.Equal(t, editNone, m.editing)
	assert.Equal(t, "TCS.NS", a.Dashboard.Stock().Symbol())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("u")})
	m = next.(Model)
	m.input.SetValue("/does/not/exist.csv")
	m, cmd := press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Contains(t, m.status, "Upload failed")
}

func TestForcedLogoutReturnsToLogin(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.Session.Login(context.Background(), "T", models.User{Name: "Ada"}))
	m := New(context.Background(), a)
	require.Equal(t, screenDashboard, m.screen)

	// Logout from outside the UI, as the API client does on a rejected token.
	require.NoError(t, a.Session.Logout(context.Background()))

	next, cmd := m.Update(waitForSessionEnd(m.ended)())
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, sessionExpired, m.formErr)
	assert.Nil(t, m.updates)
}

func TestSessionEndIgnoredAfterNewLogin(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.Session.Login(context.Background(), "T", models.User{Name: "Ada"}))
	m := New(context.Background(), a)

	require.NoError(t, a.Session.Logout(context.Background()))
	require.NoError(t, a.Session.Login(context.Background(), "T2", models.User{Name: "Ada"}))

	next, _ := m.Update(waitForSessionEnd(m.ended)())
	m = next.(Model)
	assert.Equal(t, screenDashboard, m.screen)
}

func TestNextDays(t *testing.T) {
	assert.Equal(t, 14, nextDays(7))
	assert.Equal(t, 30, nextDays(14))
	assert.Equal(t, 7, nextDays(30))
	assert.Equal(t, 7, nextDays(3))
}

func TestRenderStock(t *testing.T) {
	out := renderStock(cards.StockView{
		Symbol:   "RELIANCE.NS",
		Headline: "₹110.00 (10.00%)",
		Positive: true,
		Candles: []cards.CandleView{
			{Candle: models.Candle{Date: "2024-01-01", Open: 2, Close: 1}, Color: "down"},
			{Candle: models.Candle{Date: "2024-01-02", Open: 1, Close: 2, Volume: 9}, Color: "up"},
		},
	})
	assert.Contains(t, out, "Stock · RELIANCE.NS")
	assert.Contains(t, out, "₹110.00 (10.00%)")
	assert.Contains(t, out, "▼▲")
	assert.Contains(t, out, "V 9")
}

func TestRenderTrend(t *testing.T) {
	out := renderTrend(cards.TrendView{
		Title: "Weekly AI News Trends", Days: 7, Query: "ai", MaxY: 5,
		Points: []cards.TrendPointView{{Label: "Mon 01", Value: 5}, {Label: "Tue 02", Value: 0}},
		Footer: "5 articles in the last 7 days for “ai”.",
	})
	assert.Contains(t, out, "Mon 01")
	assert.Contains(t, out, "5 articles in the last 7 days")
	assert.Equal(t, chartHeight, strings.Count(out, "███"))

	out = renderTrend(cards.TrendView{Title: "Weekly AI News Trends", Message: "No data available"})
	assert.Contains(t, out, "No data available")
}

func TestRenderUpload(t *testing.T) {
	out := renderUpload(cards.UploadView{
		Title: "Manual Upload", Accept: cards.UploadAccept, FileName: "sales.csv", Kind: models.UploadCSV,
		Insights: "Looks seasonal.",
		Table:    &cards.TableView{Columns: []string{"region", "units"}, Rows: [][]string{{"north", "10"}}, Summary: "120 total rows, 2 columns"},
	})
	assert.Contains(t, out, "AI insight: Looks seasonal.")
	assert.Contains(t, out, "region │ units")
	assert.Contains(t, out, "north  │ 10")
	assert.Contains(t, out, "120 total rows, 2 columns")

	out = renderUpload(cards.UploadView{
		Title:   "Manual Upload",
		Snippet: &cards.SnippetView{Text: "abc...", Expandable: true, Toggle: "Show more ▼", Note: "Snippet from document (full text stored on backend)"},
	})
	assert.Contains(t, out, "[e] Show more ▼")
	assert.Contains(t, out, "full text stored on backend")
}

func TestRenderNewsAndInsights(t *testing.T) {
	out := renderNews(cards.NewsView{Title: "Latest AI News", Articles: []models.NewsArticle{}, Message: "No news available."})
	assert.Contains(t, out, "No news available.")

	r := newRenderer(80)
	out = r.renderInsights(cards.InsightsView{
		Title: "Gemini Insights", Prompt: "hi", Response: "plain answer",
		Error: "Failed to fetch Gemini response", Daily: &cards.DailyView{Date: "2024-01-02", Themes: "agents"},
	})
	assert.Contains(t, out, "answer")
	assert.Contains(t, out, "Failed to fetch Gemini response")
	assert.Contains(t, out, "agents")
}
