package server

import (
	"net/http"

	"github.com/tulumbak/courierhook/internal/auth"
	"github.com/tulumbak/courierhook/internal/metrics"
	"github.com/tulumbak/courierhook/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	health := handlers.NewHealthHandlers(r.server.DB(), r.server.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.Handle("GET /metrics", metrics.Handler())

	webhook := handlers.NewWebhookHandlers(r.server.Pipeline())
	r.mux.HandleFunc("POST /api/webhook/courier", webhook.Receive)
	r.mux.HandleFunc("POST /api/webhook/{platform}", webhook.Receive)

	requireOperator := auth.RequireOperator(r.server.JWTService(), r.server.adminLimiter)

	sources := handlers.NewSourceHandlers(r.server.Sources())
	r.mux.Handle("POST /api/admin/webhook-sources", requireOperator(http.HandlerFunc(sources.Create)))
	r.mux.Handle("GET /api/admin/webhook-sources", requireOperator(http.HandlerFunc(sources.List)))
	r.mux.Handle("GET /api/admin/webhook-sources/{platform}", requireOperator(http.HandlerFunc(sources.Get)))
	r.mux.Handle("PUT /api/admin/webhook-sources/{platform}", requireOperator(http.HandlerFunc(sources.Update)))
	r.mux.Handle("DELETE /api/admin/webhook-sources/{platform}", requireOperator(http.HandlerFunc(sources.Delete)))
	r.mux.Handle("POST /api/admin/webhook-sources/{platform}/test", requireOperator(http.HandlerFunc(sources.SelfTest)))

	deliveries := handlers.NewDeliveryHandlers(r.server.Ledger())
	r.mux.Handle("GET /api/admin/webhook-deliveries", requireOperator(http.HandlerFunc(deliveries.List)))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
