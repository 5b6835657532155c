package cards

import (
	"context"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

const newsEmpty = "No news available."

type NewsCard struct {
	hook *poll.Hook[struct{}, models.NewsResponse]
}

type NewsView struct {
	ID       CardID               `json:"id"`
	Status   poll.Status          `json:"status"`
	Title    string               `json:"title"`
	Articles []models.NewsArticle `json:"articles"`
	Message  string               `json:"message,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func NewNewsCard(b Backend, opts poll.Options) *NewsCard {
	opts.Policy = poll.KeepLastGood
	if opts.Name == "" {
		opts.Name = string(CardNews)
	}
	fetch := func(ctx context.Context, _ struct{}) (models.NewsResponse, error) {
		return b.FetchNews(ctx)
	}
	return &NewsCard{hook: poll.New(fetch, struct{}{}, opts)}
}

func (c *NewsCard) ID() CardID                    { return CardNews }
func (c *NewsCard) Mount(ctx context.Context)     { c.hook.Mount(ctx) }
func (c *NewsCard) Unmount()                      { c.hook.Unmount() }
func (c *NewsCard) Refresh()                      { c.hook.Refresh() }
func (c *NewsCard) Reset()                        { c.hook.Reset() }
func (c *NewsCard) Watch(fn func()) (stop func()) { return watchHook(c.hook, fn) }

func (c *NewsCard) View() any {
	return c.NewsView()
}

func (c *NewsCard) NewsView() NewsView {
	st := c.hook.State()
	v := NewsView{
		ID:       CardNews,
		Status:   st.Status,
		Title:    "Latest AI News",
		Articles: []models.NewsArticle{},
	}
	if st.HasData && st.Data.Articles != nil {
		v.Articles = st.Data.Articles
	}
	if st.Err != nil {
		v.Error = services.UserMessage(st.Err)
	}
	if len(v.Articles) == 0 && st.Status != poll.Loading && st.Status != poll.Idle {
		v.Message = newsEmpty
	}
	return v
}
