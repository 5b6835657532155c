package cards

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
)

const (
	insightsPending = "Loading..."
	insightsEmpty   = "No response"
	insightsFailed  = "Failed to fetch Gemini response"
)

// InsightsCard shows the chat answer for a prompt next to the daily themes.
// Both keep their last good text when a refresh fails.
type InsightsCard struct {
	chat  *poll.Hook[string, models.ChatReply]
	daily *poll.Hook[struct{}, models.DailyInsights]
}

type DailyView struct {
	Date   string `json:"date"`
	Themes string `json:"themes"`
}

type InsightsView struct {
	ID         CardID      `json:"id"`
	Status     poll.Status `json:"status"`
	Title      string      `json:"title"`
	Prompt     string      `json:"prompt"`
	Response   string      `json:"response"`
	Error      string      `json:"error,omitempty"`
	Loading    bool        `json:"loading"`
	Daily      *DailyView  `json:"daily,omitempty"`
	DailyError string      `json:"daily_error,omitempty"`
}

func NewInsightsCard(b Backend, prompt string, opts poll.Options) *InsightsCard {
	opts.Policy = poll.KeepLastGood
	name := opts.Name
	if name == "" {
		name = string(CardGemini)
	}

	chatOpts := opts
	chatOpts.Name = name + ".chat"
	dailyOpts := opts
	dailyOpts.Name = name + ".daily"

	daily := func(ctx context.Context, _ struct{}) (models.DailyInsights, error) {
		return b.FetchInsights(ctx)
	}
	return &InsightsCard{
		chat:  poll.New(b.ChatWithGemini, prompt, chatOpts),
		daily: poll.New(daily, struct{}{}, dailyOpts),
	}
}

func (c *InsightsCard) ID() CardID { return CardGemini }

func (c *InsightsCard) Mount(ctx context.Context) {
	c.chat.Mount(ctx)
	c.daily.Mount(ctx)
}

func (c *InsightsCard) Unmount() {
	c.chat.Unmount()
	c.daily.Unmount()
}

func (c *InsightsCard) Refresh() {
	c.chat.Refresh()
	c.daily.Refresh()
}

func (c *InsightsCard) Reset() {
	c.chat.Reset()
	c.daily.Reset()
}

func (c *InsightsCard) Watch(fn func()) (stop func()) {
	stopChat := watchHook(c.chat, fn)
	stopDaily := watchHook(c.daily, fn)
	return func() {
		stopChat()
		stopDaily()
	}
}

// Ask sends a new prompt; an empty prompt re-asks the current one.
func (c *InsightsCard) Ask(prompt string) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		c.chat.Refresh()
		return
	}
	c.chat.SetParams(prompt)
}

func (c *InsightsCard) View() any {
	return c.InsightsView()
}

func (c *InsightsCard) InsightsView() InsightsView {
	st := c.chat.State()
	v := InsightsView{
		ID:       CardGemini,
		Status:   st.Status,
		Title:    "Gemini Insights",
		Prompt:   c.chat.Params(),
		Response: insightsPending,
		Loading:  st.Status == poll.Loading,
	}
	switch {
	case st.HasData:
		v.Response = st.Data.Text
		if v.Response == "" {
			v.Response = insightsEmpty
		}
	case st.Status == poll.Error:
		v.Response = ""
	}
	if st.Err != nil {
		v.Error = chatErrorText(st.Err)
	}

	ds := c.daily.State()
	if ds.HasData {
		v.Daily = &DailyView{Date: ds.Data.Date, Themes: ds.Data.Themes}
	}
	if ds.Err != nil {
		v.DailyError = services.UserMessage(ds.Err)
	}
	return v
}

// chatErrorText shows an error the backend put in a successful body as is
// and collapses every transport or status failure into one message.
func chatErrorText(err error) string {
	var rerr *services.RequestError
	if errors.As(err, &rerr) && rerr.Kind == services.KindBackend && rerr.Status == http.StatusOK {
		return rerr.Message
	}
	return insightsFailed
}
