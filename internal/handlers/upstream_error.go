package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"aiworker/dashboard-go/internal/services"
)

// writeUpstreamError maps an API client error onto a presentation server
// response. msg is what a form or card would show inline.
func writeUpstreamError(w http.ResponseWriter, err error, msg string) {
	if msg == "" {
		msg = services.UserMessage(err)
	}
	var upErr *services.RequestError
	if errors.As(err, &upErr) {
		body := map[string]any{"error": msg, "kind": upErr.Kind}
		if upErr.Status != 0 {
			body["upstream_status"] = upErr.Status
		}
		switch {
		case upErr.Kind == services.KindValidation:
			writeJSON(w, http.StatusBadRequest, body)
		case upErr.Kind == services.KindAuth:
			writeJSON(w, http.StatusUnauthorized, body)
		case upErr.Status == http.StatusTooManyRequests:
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, body)
		case upErr.Status == http.StatusRequestTimeout || upErr.Status == http.StatusGatewayTimeout:
			writeJSON(w, http.StatusGatewayTimeout, body)
		case upErr.Status >= 400 && upErr.Status < 500:
			writeJSON(w, http.StatusUnprocessableEntity, body)
		case upErr.Kind == services.KindNetwork && isTimeout(upErr.Err):
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{"error": "upstream_timeout", "kind": upErr.Kind})
		default:
			writeJSON(w, http.StatusBadGateway, body)
		}
		return
	}

	if errors.Is(err, services.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg, "kind": services.KindValidation})
		return
	}
	if isTimeout(err) {
		writeJSON(w, http.StatusGatewayTimeout, map[string]any{"error": "upstream_timeout"})
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]any{"error": msg})
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
