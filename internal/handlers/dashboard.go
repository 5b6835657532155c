package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/cards"
)

func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.dash.Snapshot())
}

// orderRequest carries either a full order or a single drag gesture.
type orderRequest struct {
	Order  []cards.CardID `json:"order,omitempty"`
	Card   cards.CardID   `json:"card,omitempty"`
	Before cards.CardID   `json:"before,omitempty"`
	Delta  int            `json:"delta,omitempty"`
}

func (a *API) SetOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grid := a.dash.Grid()
	var err error
	switch {
	case len(req.Order) > 0:
		err = grid.SetOrder(req.Order)
	case req.Card != "" && req.Delta != 0:
		err = grid.MoveBy(req.Card, req.Delta)
	case req.Card != "":
		err = grid.Move(req.Card, req.Before)
	default:
		err = cards.ErrBadOrder
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": grid.Order()})
}

func (a *API) RefreshCard(w http.ResponseWriter, r *http.Request) {
	id := cards.CardID(r.PathValue("id"))
	if err := a.dash.Refresh(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	card, _ := a.dash.Card(id)
	writeJSON(w, http.StatusAccepted, card.View())
}

func (a *API) SetStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.dash.Stock().SetSymbol(req.Symbol); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, a.dash.Stock().StockView())
}

func (a *API) SetTrends(w http.ResponseWriter, r *http.Request) {
	q := a.dash.Trend().Query()
	req := struct {
		Days  int     `json:"days"`
		Query *string `json:"query"`
	}{}
	if !decodeJSON(w, r, &req) {
		return
	}
	query := q.Query
	if req.Query != nil {
		query = *req.Query
	}
	if err := a.dash.Trend().SetWindow(req.Days, query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, a.dash.Trend().TrendView())
}

// Chat asks a new prompt. The answer arrives through the card, so the
// response is the card view at the time of the request.
func (a *API) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.dash.Insights().Ask(req.Prompt)
	writeJSON(w, http.StatusAccepted, a.dash.Insights().InsightsView())
}

func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.UploadTimeout)
	defer cancel()
	name := filepath.Base(hdr.Filename)
	card := a.dash.Upload()
	if err := card.Upload(ctx, name, file); err != nil {
		a.log.Info("upload failed", zap.String("file", name), zap.Error(err))
		writeUpstreamError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, card.UploadView())
}
