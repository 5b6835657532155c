package cards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/config"
	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
)

type Update struct {
	Card CardID `json:"card"`
	View any    `json:"view"`
}

type Snapshot struct {
	TsISO string   `json:"tsISO"`
	Order []CardID `json:"order"`
	Cards []any    `json:"cards"`
}

// Dashboard owns the grid and the five cards. It mounts them together and
// fans every card change out to subscribers.
type Dashboard struct {
	grid     *Grid
	stock    *StockCard
	trend    *TrendCard
	insights *InsightsCard
	news     *NewsCard
	upload   *UploadCard
	cards    map[CardID]Card
	log      *zap.Logger

	// life serializes Mount, Unmount and Reset.
	life    sync.Mutex
	mu      sync.Mutex
	mounted bool
	stops   []func()
	subs    map[chan Update]struct{}
}

func NewDashboard(b Backend, cfg config.Config, sched poll.Scheduler, log *zap.Logger) *Dashboard {
	if log == nil {
		log = zap.NewNop()
	}
	opts := func(name string, every time.Duration) poll.Options {
		return poll.Options{Name: name, Interval: every, Scheduler: sched, Logger: log}
	}

	d := &Dashboard{
		grid:     NewGrid(),
		stock:    NewStockCard(b, cfg.DefaultSymbol, opts(string(CardStock), cfg.StockPollInterval)),
		trend:    NewTrendCard(b, models.TrendQuery{Days: cfg.DefaultTrendDays, Query: cfg.DefaultTrendQuery}, opts(string(CardChart), cfg.TrendPollInterval)),
		insights: NewInsightsCard(b, cfg.DefaultChatPrompt, opts(string(CardGemini), cfg.InsightsPollInterval)),
		news:     NewNewsCard(b, opts(string(CardNews), cfg.NewsPollInterval)),
		upload:   NewUploadCard(b),
		log:      log.Named("dashboard"),
		subs:     make(map[chan Update]struct{}),
	}
	d.cards = map[CardID]Card{
		CardChart:  d.trend,
		CardStock:  d.stock,
		CardGemini: d.insights,
		CardNews:   d.news,
		CardUpload: d.upload,
	}
	return d
}

func (d *Dashboard) Grid() *Grid             { return d.grid }
func (d *Dashboard) Stock() *StockCard       { return d.stock }
func (d *Dashboard) Trend() *TrendCard       { return d.trend }
func (d *Dashboard) Insights() *InsightsCard { return d.insights }
func (d *Dashboard) News() *NewsCard         { return d.news }
func (d *Dashboard) Upload() *UploadCard     { return d.upload }

func (d *Dashboard) Card(id CardID) (Card, bool) {
	c, ok := d.cards[id]
	return c, ok
}

// Mount starts every card. Calling it twice is a no-op.
func (d *Dashboard) Mount(ctx context.Context) {
	d.life.Lock()
	defer d.life.Unlock()

	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = true
	d.mu.Unlock()

	stops := make([]func(), 0, len(d.cards))
	for _, id := range d.grid.Order() {
		card := d.cards[id]
		id := id
		stops = append(stops, card.Watch(func() { d.publish(id) }))
		card.Mount(ctx)
	}

	d.mu.Lock()
	d.stops = stops
	d.mu.Unlock()
	d.log.Info("dashboard mounted")
}

// Unmount stops every card and waits for requests in flight. It must not be
// called from a fetch running inside one of the cards.
func (d *Dashboard) Unmount() {
	d.life.Lock()
	defer d.life.Unlock()

	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = false
	stops := d.stops
	d.stops = nil
	d.mu.Unlock()

	for _, c := range d.cards {
		c.Unmount()
	}
	for _, stop := range stops {
		stop()
	}
	d.log.Info("dashboard unmounted")
}

// Reset returns the grid to the default order and every card to its initial
// state, then publishes the empty views. Call it on an unmounted dashboard.
func (d *Dashboard) Reset() {
	d.life.Lock()
	defer d.life.Unlock()

	_ = d.grid.SetOrder(DefaultOrder)
	for _, id := range d.grid.Order() {
		d.cards[id].Reset()
		d.publish(id)
	}
	d.log.Info("dashboard reset")
}

func (d *Dashboard) Mounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounted
}

func (d *Dashboard) Refresh(id CardID) error {
	c, ok := d.cards[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, id)
	}
	c.Refresh()
	return nil
}

func (d *Dashboard) RefreshAll() {
	for _, id := range d.grid.Order() {
		d.cards[id].Refresh()
	}
}

// Snapshot returns every card view in grid order.
func (d *Dashboard) Snapshot() Snapshot {
	order := d.grid.Order()
	out := Snapshot{
		TsISO: time.Now().UTC().Format(time.RFC3339),
		Order: order,
		Cards: make([]any, 0, len(order)),
	}
	for _, id := range order {
		out.Cards = append(out.Cards, d.cards[id].View())
	}
	return out
}

// Subscribe returns a channel of card updates, primed with the current view
// of every card. Updates are dropped for a subscriber whose buffer is full.
func (d *Dashboard) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 32)
	var once sync.Once

	for _, id := range d.grid.Order() {
		ch <- Update{Card: id, View: d.cards[id].View()}
	}
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()

	unsubscribe := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, ch)
			d.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

func (d *Dashboard) publish(id CardID) {
	upd := Update{Card: id, View: d.cards[id].View()}
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- upd:
		default:
			d.log.Debug("subscriber full, dropping update", zap.String("card", string(id)))
		}
	}
}
