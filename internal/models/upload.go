package models

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

type UploadKind string

const (
	UploadCSV UploadKind = "csv"
	UploadTXT UploadKind = "txt"
	UploadPDF UploadKind = "pdf"
)

// UploadKindFor maps a file name to its upload kind by extension.
func UploadKindFor(name string) (UploadKind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return UploadCSV, true
	case ".txt":
		return UploadTXT, true
	case ".pdf":
		return UploadPDF, true
	}
	return "", false
}

// UploadPreview is implemented by CSVPreview and TextPreview only.
type UploadPreview interface {
	previewKind() string
}

type UploadSummary struct {
	NumRows int      `json:"num_rows"`
	Columns []string `json:"columns"`
}

type CSVPreview struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Summary UploadSummary       `json:"summary"`
}

type TextPreview struct {
	Snippet string `json:"snippet"`
}

func (CSVPreview) previewKind() string  { return "table" }
func (TextPreview) previewKind() string { return "text" }

type UploadResult struct {
	Kind       UploadKind
	FileName   string
	Preview    UploadPreview
	AIInsights string
}

func (r UploadResult) CSV() (CSVPreview, bool) {
	p, ok := r.Preview.(CSVPreview)
	return p, ok
}

func (r UploadResult) Text() (TextPreview, bool) {
	p, ok := r.Preview.(TextPreview)
	return p, ok
}

func (r UploadResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type":      r.Kind,
		"file_name": r.FileName,
	}
	if r.AIInsights != "" {
		out["ai_insights"] = r.AIInsights
	}
	switch p := r.Preview.(type) {
	case CSVPreview:
		out["columns"] = p.Columns
		out["preview"] = p.Rows
		out["summary"] = p.Summary
	case TextPreview:
		out["preview"] = p.Snippet
	case nil:
	default:
		return nil, fmt.Errorf("upload preview %T", p)
	}
	return json.Marshal(out)
}
