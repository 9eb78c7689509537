package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/afyacare/clinic-intake-platform/internal/clinic"
	httpmiddleware "github.com/afyacare/clinic-intake-platform/internal/http/middleware"
	"github.com/afyacare/clinic-intake-platform/internal/messaging"
	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	WebhookHandler  *messaging.WebhookHandler
	AdminHandler    *clinic.AdminHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	DB              Pinger
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: provider webhooks and health checks.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck(cfg.DB))
		public.Post("/webhook/whatsapp", cfg.WebhookHandler.HandleWhatsApp)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin control panel, JWT-protected.
	if cfg.AdminHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/clinics", cfg.AdminHandler.List)
			admin.Post("/clinics", cfg.AdminHandler.Create)
			admin.Route("/clinics/{clinicID}", func(c chi.Router) {
				c.Get("/", cfg.AdminHandler.Detail)
				c.Post("/toggle", cfg.AdminHandler.Toggle)
				c.Post("/reset", cfg.AdminHandler.Reset)
				c.Get("/hospitals", cfg.AdminHandler.Hospitals)
				c.Put("/hospitals", cfg.AdminHandler.SetHospitals)
				c.Post("/message", cfg.AdminHandler.SendMessage)
			})
		})
	}

	return r
}

func healthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
