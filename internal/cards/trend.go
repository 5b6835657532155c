package cards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

// DayOptions are the selectable trend windows.
var DayOptions = []int{7, 14, 30}

const (
	trendTitle     = "Weekly AI News Trends"
	trendLoading   = "Loading…"
	trendFailed    = "Failed to load trends"
	trendEmpty     = "No data available"
	trendMinYAxis  = 5
	trendDateInput = "2006-01-02"
)

type TrendCard struct {
	hook *poll.Hook[models.TrendQuery, models.TrendsResponse]
}

type TrendPointView struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Date  string `json:"date"`
}

type TrendView struct {
	ID         CardID           `json:"id"`
	Status     poll.Status      `json:"status"`
	Title      string           `json:"title"`
	Days       int              `json:"days"`
	Query      string           `json:"query"`
	DayOptions []int            `json:"day_options"`
	Points     []TrendPointView `json:"points"`
	MaxY       int              `json:"max_y"`
	Message    string           `json:"message,omitempty"`
	Footer     string           `json:"footer,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func NewTrendCard(b Backend, q models.TrendQuery, opts poll.Options) *TrendCard {
	opts.Policy = poll.ClearOnError
	if opts.Name == "" {
		opts.Name = string(CardChart)
	}
	return &TrendCard{hook: poll.New(b.FetchTrends, services.NormalizeTrendQuery(q), opts)}
}

func (c *TrendCard) ID() CardID                    { return CardChart }
func (c *TrendCard) Mount(ctx context.Context)     { c.hook.Mount(ctx) }
func (c *TrendCard) Unmount()                      { c.hook.Unmount() }
func (c *TrendCard) Refresh()                      { c.hook.Refresh() }
func (c *TrendCard) Reset()                        { c.hook.Reset() }
func (c *TrendCard) Watch(fn func()) (stop func()) { return watchHook(c.hook, fn) }

// SetWindow changes days and query together. A zero days keeps the current
// window; an empty query falls back to the default keyword.
func (c *TrendCard) SetWindow(days int, query string) error {
	q := c.hook.Params()
	if days != 0 {
		if !validDays(days) {
			return fmt.Errorf("days must be one of %v", DayOptions)
		}
		q.Days = days
	}
	q.Query = query
	c.hook.SetParams(services.NormalizeTrendQuery(q))
	return nil
}

func (c *TrendCard) SetDays(days int) error {
	return c.SetWindow(days, c.hook.Params().Query)
}

func (c *TrendCard) SetQuery(query string) error {
	return c.SetWindow(0, query)
}

func (c *TrendCard) Query() models.TrendQuery {
	return c.hook.Params()
}

func (c *TrendCard) View() any {
	return c.TrendView()
}

func (c *TrendCard) TrendView() TrendView {
	return buildTrendView(c.hook.Params(), c.hook.State())
}

func buildTrendView(q models.TrendQuery, st poll.State[models.TrendsResponse]) TrendView {
	v := TrendView{
		ID:         CardChart,
		Status:     st.Status,
		Title:      trendTitle,
		Days:       q.Days,
		Query:      q.Query,
		DayOptions: DayOptions,
		Points:     []TrendPointView{},
		MaxY:       trendMinYAxis,
	}
	if st.HasData {
		for _, p := range st.Data.Series {
			v.Points = append(v.Points, TrendPointView{Label: TrendLabel(p.Date), Value: p.Count, Date: p.Date})
			if p.Count > v.MaxY {
				v.MaxY = p.Count
			}
		}
		v.Footer = fmt.Sprintf("%d articles in the last %d days for “%s”.", st.Data.Meta.TotalArticles, q.Days, q.Query)
	}

	switch {
	case st.Status == poll.Loading || st.Status == poll.Idle:
		v.Message = trendLoading
	case st.Status == poll.Error:
		v.Message = trendFailed
		v.Error = services.UserMessage(st.Err)
	case len(v.Points) == 0:
		v.Message = trendEmpty
	}
	return v
}

// TrendLabel renders a series date as a short weekday and two-digit day,
// e.g. "Mon 05". Unparseable dates are returned unchanged.
func TrendLabel(date string) string {
	for _, layout := range []string{trendDateInput, time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(date)); err == nil {
			return t.Format("Mon 02")
		}
	}
	return date
}

func validDays(days int) bool {
	for _, d := range DayOptions {
		if d == days {
			return true
		}
	}
	return false
}
