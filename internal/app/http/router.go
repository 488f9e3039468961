package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"impresos-uribe/cotizaciones/internal/app/config"
	"impresos-uribe/cotizaciones/internal/app/http/handlers"
	"impresos-uribe/cotizaciones/internal/app/http/middleware"
	"impresos-uribe/cotizaciones/internal/platform/logging"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

// emailsPerMinute caps sends per client IP.
const emailsPerMinute = 10

func NewRouter(cfg *config.Config, h *handlers.Handlers, m *metrics.Metrics, log *slog.Logger) http.Handler {
	log = logging.OrDiscard(log)
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id", middleware.TokenHeader},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", m.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.InternalAuth(cfg.APIToken))

		r.Get("/state", h.State)
		r.Get("/events", h.Events)
		r.Post("/refresh", h.Refresh)
		r.Post("/retry", h.Retry)

		r.Get("/quotes", h.ListQuotes)
		r.Get("/quotes/{id}", h.GetQuote)
		r.Delete("/quotes/{id}", h.DeleteQuote)
		r.Post("/quotes/{id}/edit", h.EditQuote)
		r.Get("/quotes/{id}/preview", h.QuotePreview)
		r.Get("/quotes/{id}/pdf", h.QuotePDF)
		r.Get("/quotes/{id}/email", h.EmailDefaults)
		r.With(httprate.LimitByIP(emailsPerMinute, time.Minute)).
			Post("/quotes/{id}/email", h.EmailQuote)

		r.Route("/draft", func(r chi.Router) {
			r.Post("/", h.NewDraft)
			r.Get("/", h.GetDraft)
			r.Put("/", h.UpdateDraft)
			r.Get("/preview", h.DraftPreview)
			r.Post("/items", h.AddItem)
			r.Delete("/items/{itemID}", h.RemoveItem)
			r.Post("/save", h.SaveDraft)
			r.Post("/cancel", h.CancelDraft)
		})
	})

	return r
}
