package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"aiworker/dashboard-go/internal/models"
)

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := []string{}
	depsStatus := map[string]models.DepStatus{}
	check := func(name string, err error) {
		if err != nil {
			depsStatus[name] = models.DepStatus{Ok: false, Error: err.Error()}
			return
		}
		deps = append(deps, name)
		depsStatus[name] = models.DepStatus{Ok: true}
	}
	check("backend", a.app.Client.Health(ctx))
	check("storage", a.app.Storage.Ping(ctx))

	resp := models.HealthResponse{
		Ok:         len(deps) == len(depsStatus),
		TsISO:      nowISO(),
		Service:    "dashboard-go",
		Version:    os.Getenv("SERVICE_VERSION"),
		Backend:    a.app.Client.BaseURL(),
		Storage:    a.app.Storage.Backend(),
		Deps:       deps,
		DepsStatus: depsStatus,
	}
	writeJSON(w, http.StatusOK, resp)
}
