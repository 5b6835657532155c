package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"aiworker/dashboard-go/internal/cards"
	"aiworker/dashboard-go/internal/poll"
)

const chartHeight = 6

// renderer turns card views into terminal text. Markdown in chat answers
// goes through glamour; everything else is plain lipgloss.
type renderer struct {
	md    *glamour.TermRenderer
	width int
}

func newRenderer(width int) *renderer {
	r := &renderer{}
	r.resize(width)
	return r
}

func (r *renderer) resize(width int) {
	if width < 40 {
		width = 40
	}
	if width == r.width && r.md != nil {
		return
	}
	r.width = width
	md, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width-6),
	)
	if err == nil {
		r.md = md
	}
}

func (r *renderer) markdown(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (r *renderer) card(view any) string {
	switch v := view.(type) {
	case cards.TrendView:
		return renderTrend(v)
	case cards.StockView:
		return renderStock(v)
	case cards.InsightsView:
		return r.renderInsights(v)
	case cards.NewsView:
		return renderNews(v)
	case cards.UploadView:
		return renderUpload(v)
	}
	return fmt.Sprintf("%v", view)
}

func renderStock(v cards.StockView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Stock · "+v.Symbol) + "\n")
	style := lossStyle
	if v.Positive {
		style = gainStyle
	}
	b.WriteString(style.Render(v.Headline))
	if v.Status == poll.Loading {
		b.WriteString(dimStyle.Render("  refreshing…"))
	}
	b.WriteString("\n")
	if len(v.Candles) > 0 {
		b.WriteString(candleStrip(v.Candles) + "\n")
		last := v.Candles[len(v.Candles)-1]
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s  O %.2f  H %.2f  L %.2f  C %.2f  V %d",
			last.Date, last.Open, last.High, last.Low, last.Close, last.Volume)))
		b.WriteString("\n")
	}
	if v.Error != "" {
		b.WriteString(errorStyle.Render(v.Error) + "\n")
	}
	if v.UpdatedAt != "" {
		b.WriteString(dimStyle.Render("updated "+v.UpdatedAt) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// candleStrip draws one coloured glyph per candle, newest last.
func candleStrip(candles []cards.CandleView) string {
	const maxCandles = 60
	if len(candles) > maxCandles {
		candles = candles[len(candles)-maxCandles:]
	}
	var b strings.Builder
	for _, c := range candles {
		if c.Color == "up" {
			b.WriteString(gainStyle.Render("▲"))
		} else {
			b.WriteString(lossStyle.Render("▼"))
		}
	}
	return b.String()
}

func renderTrend(v cards.TrendView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %dd · %s", v.Days, v.Query)) + "\n")
	if v.Message != "" {
		style := dimStyle
		if v.Status == poll.Error {
			style = errorStyle
		}
		b.WriteString(style.Render(v.Message) + "\n")
	}
	if len(v.Points) > 0 {
		b.WriteString(barChart(v.Points, v.MaxY) + "\n")
	}
	if v.Footer != "" {
		b.WriteString(dimStyle.Render(v.Footer) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// barChart renders counts as vertical bars scaled to maxY, one column per
// point, with the day labels underneath.
func barChart(points []cards.TrendPointView, maxY int) string {
	if maxY <= 0 {
		maxY = 1
	}
	const colWidth = 7
	var b strings.Builder
	for row := chartHeight; row >= 1; row-- {
		for _, p := range points {
			filled := (p.Value*chartHeight + maxY - 1) / maxY
			cell := "   "
			if filled >= row && p.Value > 0 {
				cell = "███"
			}
			b.WriteString(fmt.Sprintf("%-*s", colWidth, " "+cell))
		}
		b.WriteString("\n")
	}
	for _, p := range points {
		b.WriteString(fmt.Sprintf("%-*s", colWidth, p.Label))
	}
	b.WriteString("\n")
	for _, p := range points {
		b.WriteString(fmt.Sprintf("%-*s", colWidth, fmt.Sprintf(" %d", p.Value)))
	}
	return strings.TrimRight(b.String(), " \n")
}

func (r *renderer) renderInsights(v cards.InsightsView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title) + "\n")
	b.WriteString(dimStyle.Render("> "+v.Prompt) + "\n")
	if v.Loading {
		b.WriteString(dimStyle.Render("thinking…") + "\n")
	}
	b.WriteString(r.markdown(v.Response) + "\n")
	if v.Error != "" {
		b.WriteString(errorStyle.Render(v.Error) + "\n")
	}
	if v.Daily != nil {
		b.WriteString(dimStyle.Render("Daily themes "+v.Daily.Date+": ") + v.Daily.Themes + "\n")
	}
	if v.DailyError != "" {
		b.WriteString(errorStyle.Render(v.DailyError) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNews(v cards.NewsView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title) + "\n")
	for _, a := range v.Articles {
		b.WriteString("• " + a.Title)
		if a.Source != "" {
			b.WriteString(dimStyle.Render(" (" + a.Source + ")"))
		}
		b.WriteString("\n")
		if a.URL != "" {
			b.WriteString(dimStyle.Render("  "+a.URL) + "\n")
		}
	}
	if v.Message != "" {
		b.WriteString(dimStyle.Render(v.Message) + "\n")
	}
	if v.Error != "" {
		b.WriteString(errorStyle.Render(v.Error) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderUpload(v cards.UploadView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title))
	b.WriteString(dimStyle.Render("  accepts "+v.Accept) + "\n")
	if v.Uploading {
		b.WriteString(dimStyle.Render("uploading…") + "\n")
	}
	if v.Error != "" {
		b.WriteString(errorStyle.Render(v.Error) + "\n")
	}
	if v.FileName != "" {
		b.WriteString(v.FileName + dimStyle.Render(" ("+string(v.Kind)+")") + "\n")
	}
	if v.Insights != "" {
		b.WriteString(insightBanner.Render("AI insight: "+v.Insights) + "\n")
	}
	switch {
	case v.Table != nil:
		b.WriteString(renderTable(*v.Table) + "\n")
	case v.Snippet != nil:
		b.WriteString(v.Snippet.Text + "\n")
		if v.Snippet.Toggle != "" {
			b.WriteString(dimStyle.Render("[e] "+v.Snippet.Toggle) + "\n")
		}
		b.WriteString(dimStyle.Render(v.Snippet.Note) + "\n")
	case v.Message != "":
		b.WriteString(dimStyle.Render(v.Message) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTable(t cards.TableView) string {
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = len(c)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], c)
		}
		return strings.TrimRight(strings.Join(parts, " │ "), " ")
	}

	var b strings.Builder
	b.WriteString(line(t.Columns) + "\n")
	total := 0
	for _, w := range widths {
		total += w + 3
	}
	if total > 3 {
		total -= 3
	}
	b.WriteString(strings.Repeat("─", total) + "\n")
	for _, row := range t.Rows {
		b.WriteString(line(row) + "\n")
	}
	b.WriteString(dimStyle.Render(t.Summary))
	return b.String()
}
