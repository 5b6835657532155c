package http

import (
	"net/http"

	"aiworker/dashboard-go/internal/app"
	"aiworker/dashboard-go/internal/handlers"
)

func NewRouter(a *app.App) http.Handler {
	api := handlers.New(a)
	log := a.Log.Named("http")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", api.Health)
	mux.HandleFunc("POST /api/v1/auth/login", api.Login)
	mux.HandleFunc("POST /api/v1/auth/register", api.Register)
	mux.HandleFunc("POST /api/v1/auth/logout", api.Logout)
	mux.HandleFunc("GET /api/v1/session", api.Session)
	mux.HandleFunc("GET /api/v1/dashboard", api.Protected(api.Dashboard))
	mux.HandleFunc("PUT /api/v1/dashboard/order", api.Protected(api.SetOrder))
	mux.HandleFunc("POST /api/v1/dashboard/cards/{id}/refresh", api.Protected(api.RefreshCard))
	mux.HandleFunc("PUT /api/v1/dashboard/stock", api.Protected(api.SetStock))
	mux.HandleFunc("PUT /api/v1/dashboard/trends", api.Protected(api.SetTrends))
	mux.HandleFunc("POST /api/v1/dashboard/chat", api.Protected(api.Chat))
	mux.HandleFunc("POST /api/v1/dashboard/upload", api.Protected(api.Upload))
	mux.HandleFunc("GET /api/v1/stream", api.Protected(api.Stream))

	h := http.Handler(mux)
	h = withRecovery(log)(h)
	h = withLogging(log)(h)
	h = withRateLimit(a.Cfg.RateLimitPerMin)(h)
	h = withRequestID(h)
	h = withCORS(h)
	return h
}
