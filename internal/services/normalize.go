package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"

	"aiworker/dashboard-go/internal/models"
)

func normalizeStock(symbol string, raw stockWire) models.StockSeries {
	trend := make([]models.Candle, 0, len(raw.Trend))
	for _, c := range raw.Trend {
		var vol int64
		if c.Volume != nil {
			vol = int64(math.Round(*c.Volume))
		}
		trend = append(trend, models.Candle{
			Date:   c.Date,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: vol,
		})
	}
	sort.SliceStable(trend, func(i, j int) bool { return trend[i].Date < trend[j].Date })

	out := models.StockSeries{
		Symbol: firstNonEmpty(raw.Symbol, symbol),
		Trend:  trend,
	}
	switch {
	case raw.LatestPrice != nil:
		out.LatestPrice = *raw.LatestPrice
	case len(trend) > 0:
		out.LatestPrice = trend[len(trend)-1].Close
	}
	if raw.ChangePct != nil {
		out.ChangePct = *raw.ChangePct
	} else {
		out.ChangePct = ChangePct(trend)
	}
	return out
}

// ChangePct is the percentage move between the last two closes, rounded to
// two decimals. Fewer than two points, or a zero previous close, yield 0.
func ChangePct(trend []models.Candle) float64 {
	if len(trend) < 2 {
		return 0
	}
	prev := trend[len(trend)-2].Close
	last := trend[len(trend)-1].Close
	if prev == 0 {
		return 0
	}
	return round2((last - prev) / prev * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type uploadWire struct {
	Type       string          `json:"type"`
	Preview    json.RawMessage `json:"preview"`
	Rows       *int            `json:"rows"`
	Columns    []string        `json:"columns"`
	Summary    *struct {
		NumRows int      `json:"num_rows"`
		Columns []string `json:"columns"`
	} `json:"summary"`
	AIInsights json.RawMessage `json:"ai_insights"`
	Error      json.RawMessage `json:"error"`
}

func normalizeUpload(name string, kind models.UploadKind, raw uploadWire, data []byte) (models.UploadResult, error) {
	if msg := rawErrorText(raw.Error); msg != "" {
		return models.UploadResult{}, &RequestError{Kind: KindBackend, Status: http.StatusOK, Message: msg}
	}
	if raw.Type != "" {
		k := models.UploadKind(raw.Type)
		switch k {
		case models.UploadCSV, models.UploadTXT, models.UploadPDF:
			kind = k
		default:
			return models.UploadResult{}, &RequestError{Kind: KindBackend, Status: http.StatusOK, Message: "Unsupported file type."}
		}
	}

	res := models.UploadResult{
		Kind:       kind,
		FileName:   name,
		AIInsights: rawErrorText(raw.AIInsights),
	}
	switch kind {
	case models.UploadCSV:
		res.Preview = csvPreview(raw, data)
	case models.UploadTXT, models.UploadPDF:
		res.Preview = models.TextPreview{Snippet: rawErrorText(raw.Preview)}
	}
	return res, nil
}

func csvPreview(raw uploadWire, data []byte) models.CSVPreview {
	local := scanCSV(data)

	p := models.CSVPreview{Columns: raw.Columns}
	if raw.Summary != nil {
		p.Summary = models.UploadSummary{NumRows: raw.Summary.NumRows, Columns: raw.Summary.Columns}
	} else {
		p.Summary = local
		if raw.Rows != nil {
			p.Summary.NumRows = *raw.Rows
		}
		if len(raw.Columns) > 0 {
			p.Summary.Columns = raw.Columns
		}
	}
	if len(p.Columns) == 0 {
		p.Columns = p.Summary.Columns
	}
	if len(p.Summary.Columns) == 0 {
		p.Summary.Columns = p.Columns
	}

	rows, cols := previewRows(raw.Preview)
	if len(p.Columns) == 0 {
		p.Columns = cols
		p.Summary.Columns = cols
	}
	p.Rows = rows
	if p.Rows == nil {
		p.Rows = []map[string]string{}
	}
	if p.Columns == nil {
		p.Columns = []string{}
	}
	if p.Summary.Columns == nil {
		p.Summary.Columns = p.Columns
	}
	return p
}

// scanCSV counts data rows and reads the header of an uploaded CSV.
func scanCSV(data []byte) models.UploadSummary {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out models.UploadSummary
	header, err := r.Read()
	if err != nil {
		return out
	}
	out.Columns = header
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				out.NumRows++
				continue
			}
			break
		}
		out.NumRows++
	}
	return out
}

// previewRows accepts a list of row objects or a column-oriented object
// ({column: {rowIndex: value}}) and returns rows plus the columns seen.
func previewRows(raw json.RawMessage) ([]map[string]string, []string) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := func(v any) error {
		d := json.NewDecoder(bytes.NewReader(raw))
		d.UseNumber()
		return d.Decode(v)
	}

	var list []map[string]any
	if err := dec(&list); err == nil {
		rows := make([]map[string]string, 0, len(list))
		seen := map[string]bool{}
		var cols []string
		for _, item := range list {
			row := make(map[string]string, len(item))
			for k, v := range item {
				row[k] = stringify(v)
				if !seen[k] {
					seen[k] = true
					cols = append(cols, k)
				}
			}
			rows = append(rows, row)
		}
		sort.Strings(cols)
		return rows, cols
	}

	var byColumn map[string]map[string]any
	if err := dec(&byColumn); err != nil {
		return nil, nil
	}
	cols := make([]string, 0, len(byColumn))
	index := map[string]bool{}
	for col, values := range byColumn {
		cols = append(cols, col)
		for idx := range values {
			index[idx] = true
		}
	}
	sort.Strings(cols)
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	rows := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		row := make(map[string]string, len(cols))
		for _, col := range cols {
			row[col] = stringify(byColumn[col][k])
		}
		rows = append(rows, row)
	}
	return rows, cols
}
