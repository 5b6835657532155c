package cards

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

var ErrEmptySymbol = errors.New("symbol is required")

type StockCard struct {
	hook *poll.Hook[models.StockQuery, models.StockSeries]
}

type CandleView struct {
	models.Candle
	Color string `json:"color"`
}

type StockView struct {
	ID          CardID       `json:"id"`
	Status      poll.Status  `json:"status"`
	Symbol      string       `json:"symbol"`
	PriceLabel  string       `json:"price_label"`
	ChangeLabel string       `json:"change_label"`
	Headline    string       `json:"headline"`
	Positive    bool         `json:"positive"`
	Candles     []CandleView `json:"candles"`
	Error       string       `json:"error,omitempty"`
	UpdatedAt   string       `json:"updated_at,omitempty"`
}

func NewStockCard(b Backend, symbol string, opts poll.Options) *StockCard {
	opts.Policy = poll.ClearOnError
	if opts.Name == "" {
		opts.Name = string(CardStock)
	}
	return &StockCard{hook: poll.New(b.FetchStock, models.StockQuery{Symbol: symbol}, opts)}
}

func (c *StockCard) ID() CardID                    { return CardStock }
func (c *StockCard) Mount(ctx context.Context)     { c.hook.Mount(ctx) }
func (c *StockCard) Unmount()                      { c.hook.Unmount() }
func (c *StockCard) Refresh()                      { c.hook.Refresh() }
func (c *StockCard) Reset()                        { c.hook.Reset() }
func (c *StockCard) Watch(fn func()) (stop func()) { return watchHook(c.hook, fn) }

// SetSymbol switches the card to another ticker and reloads.
func (c *StockCard) SetSymbol(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ErrEmptySymbol
	}
	q := c.hook.Params()
	q.Symbol = symbol
	c.hook.SetParams(q)
	return nil
}

func (c *StockCard) Symbol() string {
	return c.hook.Params().Symbol
}

func (c *StockCard) State() poll.State[models.StockSeries] {
	return c.hook.State()
}

func (c *StockCard) View() any {
	return c.StockView()
}

func (c *StockCard) StockView() StockView {
	return buildStockView(c.hook.Params().Symbol, c.hook.State())
}

func buildStockView(symbol string, st poll.State[models.StockSeries]) StockView {
	v := StockView{
		ID:          CardStock,
		Status:      st.Status,
		Symbol:      symbol,
		PriceLabel:  "--",
		ChangeLabel: "--",
		Candles:     []CandleView{},
	}
	if st.Err != nil {
		v.Error = services.UserMessage(st.Err)
	}
	if !st.UpdatedAt.IsZero() {
		v.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if st.HasData {
		s := st.Data
		if s.Symbol != "" {
			v.Symbol = s.Symbol
		}
		v.PriceLabel = strconv.FormatFloat(s.LatestPrice, 'f', 2, 64)
		v.ChangeLabel = strconv.FormatFloat(s.ChangePct, 'f', 2, 64)
		v.Positive = s.ChangePct >= 0
		for _, cd := range s.Trend {
			color := "down"
			if cd.Bullish() {
				color = "up"
			}
			v.Candles = append(v.Candles, CandleView{Candle: cd, Color: color})
		}
	}
	v.Headline = "₹" + v.PriceLabel + " (" + v.ChangeLabel + "%)"
	return v
}
