package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/forms"
	"aiworker/dashboard-go/internal/models"
)

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var f forms.LoginForm
	if !decodeJSON(w, r, &f) {
		return
	}
	user, err := a.app.Login(r.Context(), &f)
	if err != nil {
		writeUpstreamError(w, err, f.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "authenticated": true})
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var f forms.RegisterForm
	if !decodeJSON(w, r, &f) {
		return
	}
	user, err := a.app.Register(r.Context(), &f)
	if err != nil {
		writeUpstreamError(w, err, f.Error)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "message": f.Notice})
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.app.Logout(r.Context()); err != nil {
		a.log.Warn("logout", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

// Session reports who is logged in. The token itself is never echoed.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	snap := a.app.Session.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		Authenticated bool         `json:"authenticated"`
		User          *models.User `json:"user"`
		Storage       string       `json:"storage"`
	}{
		Authenticated: snap.Token != "",
		User:          snap.User,
		Storage:       a.app.Session.StorageBackend(),
	})
}
