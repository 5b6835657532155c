package cards

import (
	"context"
	"fmt"
	"io"
	"sync"

	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/services"
)

const (
	UploadAccept      = ".csv,.txt,.pdf"
	SnippetLimit      = 300
	uploadUnsupported = "Unsupported file type."
	uploadNoPreview   = "No preview available."
	uploadSnippetNote = "Snippet from document (full text stored on backend)"
)

// UploadCard keeps the result of the latest upload. An upload that finishes
// after a newer one started is discarded.
type UploadCard struct {
	backend Backend

	mu        sync.Mutex
	seq       uint64
	uploading bool
	result    *models.UploadResult
	err       error
	expanded  bool
	watchers  map[int]func()
	nextWatch int
}

type TableView struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary string     `json:"summary"`
}

type SnippetView struct {
	Text       string `json:"text"`
	Expandable bool   `json:"expandable"`
	Expanded   bool   `json:"expanded"`
	Toggle     string `json:"toggle,omitempty"`
	Note       string `json:"note"`
}

type UploadView struct {
	ID        CardID            `json:"id"`
	Title     string            `json:"title"`
	Accept    string            `json:"accept"`
	Uploading bool              `json:"uploading"`
	FileName  string            `json:"file_name,omitempty"`
	Kind      models.UploadKind `json:"kind,omitempty"`
	Table     *TableView        `json:"table,omitempty"`
	Snippet   *SnippetView      `json:"snippet,omitempty"`
	Message   string            `json:"message,omitempty"`
	Insights  string            `json:"insights,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func NewUploadCard(b Backend) *UploadCard {
	return &UploadCard{backend: b, watchers: make(map[int]func())}
}

func (c *UploadCard) ID() CardID { return CardUpload }

func (c *UploadCard) Mount(context.Context) {}

// Unmount drops the result of any upload still in flight.
func (c *UploadCard) Unmount() {
	c.mu.Lock()
	c.seq++
	c.uploading = false
	c.mu.Unlock()
}

func (c *UploadCard) Refresh() {}

// Reset forgets the last result and error. An upload still in flight is
// discarded when it returns.
func (c *UploadCard) Reset() {
	c.mu.Lock()
	c.seq++
	c.uploading = false
	c.result = nil
	c.err = nil
	c.expanded = false
	c.mu.Unlock()
	c.notify()
}

func (c *UploadCard) Watch(fn func()) (stop func()) {
	c.mu.Lock()
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Upload sends the file and stores the normalized result. The returned error
// is also kept for the view; a failed upload leaves the previous result.
func (c *UploadCard) Upload(ctx context.Context, name string, r io.Reader) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.uploading = true
	c.err = nil
	c.mu.Unlock()
	c.notify()

	res, err := c.backend.UploadFile(ctx, name, r)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return err
	}
	c.uploading = false
	if err != nil {
		c.err = err
	} else {
		c.result = &res
		c.expanded = false
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// ToggleSnippet flips the expanded state of a long text snippet.
func (c *UploadCard) ToggleSnippet() {
	c.mu.Lock()
	c.expanded = !c.expanded
	c.mu.Unlock()
	c.notify()
}

func (c *UploadCard) Result() (models.UploadResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return models.UploadResult{}, false
	}
	return *c.result, true
}

func (c *UploadCard) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *UploadCard) View() any {
	return c.UploadView()
}

func (c *UploadCard) UploadView() UploadView {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := UploadView{
		ID:        CardUpload,
		Title:     "Manual Upload",
		Accept:    UploadAccept,
		Uploading: c.uploading,
	}
	if c.err != nil {
		v.Error = services.UserMessage(c.err)
	}
	if c.result == nil {
		return v
	}
	res := *c.result
	v.FileName = res.FileName
	v.Kind = res.Kind
	v.Insights = res.AIInsights
	fillPreview(&v, res, c.expanded)
	return v
}

func fillPreview(v *UploadView, res models.UploadResult, expanded bool) {
	switch res.Kind {
	case models.UploadCSV:
		p, ok := res.CSV()
		if !ok {
			v.Message = uploadNoPreview
			return
		}
		v.Table = buildTable(p)
	case models.UploadTXT, models.UploadPDF:
		p, _ := res.Text()
		v.Snippet = buildSnippet(p.Snippet, expanded)
	default:
		v.Message = uploadUnsupported
	}
}

func buildTable(p models.CSVPreview) *TableView {
	t := &TableView{
		Columns: p.Columns,
		Rows:    make([][]string, 0, len(p.Rows)),
		Summary: CSVSummary(p.Summary),
	}
	for _, row := range p.Rows {
		cells := make([]string, len(p.Columns))
		for i, col := range p.Columns {
			cells[i] = row[col]
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// CSVSummary renders "N total rows, M columns".
func CSVSummary(s models.UploadSummary) string {
	return fmt.Sprintf("%d total rows, %d columns", s.NumRows, len(s.Columns))
}

func buildSnippet(text string, expanded bool) *SnippetView {
	runes := []rune(text)
	s := &SnippetView{Text: text, Note: uploadSnippetNote}
	if len(runes) <= SnippetLimit {
		return s
	}
	s.Expandable = true
	s.Expanded = expanded
	if expanded {
		s.Toggle = "Show less ▲"
	} else {
		s.Text = string(runes[:SnippetLimit]) + "..."
		s.Toggle = "Show more ▼"
	}
	return s
}
