package cards

import (
	"context"
	"io"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
)

// Backend is the subset of the API client the cards read from.
type Backend interface {
	FetchStock(ctx context.Context, q models.StockQuery) (models.StockSeries, error)
	FetchTrends(ctx context.Context, q models.TrendQuery) (models.TrendsResponse, error)
	FetchNews(ctx context.Context) (models.NewsResponse, error)
	FetchInsights(ctx context.Context) (models.DailyInsights, error)
	ChatWithGemini(ctx context.Context, prompt string) (models.ChatReply, error)
	UploadFile(ctx context.Context, name string, r io.Reader) (models.UploadResult, error)
}

// Card is one dashboard tile. View returns a render-ready value that is safe
// to encode as JSON.
type Card interface {
	ID() CardID
	Mount(ctx context.Context)
	Unmount()
	Refresh()
	// Reset drops everything the card loaded or was told since it was built.
	Reset()
	View() any
	Watch(fn func()) (stop func())
}

// watchHook calls fn after every state change of h until stop is called.
func watchHook[P, T any](h *poll.Hook[P, T], fn func()) func() {
	ch, unsubscribe := h.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
			fn()
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}
