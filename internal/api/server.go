package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/agent"
	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/chatstore"
	"github.com/snarg/session-engine/internal/config"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/metrics"
	"github.com/snarg/session-engine/internal/photostore"
	"github.com/snarg/session-engine/internal/registry"
	"github.com/snarg/session-engine/internal/settingsstore"
)

// Server is the session core's HTTP surface: SSE event streams, the query
// side-channel endpoints (speak/stop-audio), settings, and photo retrieval.
type Server struct {
	http   *http.Server
	log    zerolog.Logger
	health *HealthHandler
}

// ServerOptions wires the HTTP surface to the process-wide singletons that
// back it. Every *store/*Manager here is already keyed internally by
// userId, so handlers depend on them directly rather than routing every
// request through the registry.
type ServerOptions struct {
	Config   *config.Config
	Registry *registry.Registry
	Bus      *eventbus.Bus

	ChatHistory *chathistory.Manager
	Settings    *settingsstore.Store
	Photos      *photostore.Store
	Agent       agent.Provider   // nil if no agent provider is configured
	ChatStore   *chatstore.Store // nil when running in-memory only
	MQTTClient  mqtt.Client

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

// NewServer builds the chi router and wraps it in an *http.Server.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.Config.CORSOrigins != "" {
		for _, o := range strings.Split(opts.Config.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated: health and metrics.
	health := NewHealthHandler(HealthOptions{
		MQTTClient: opts.MQTTClient,
		Registry:   opts.Registry,
		Agent:      opts.Agent,
		ChatStore:  opts.ChatStore,
		Version:    opts.Version,
		StartTime:  opts.StartTime,
	})
	r.Get("/api/health", health.ServeHTTP)

	var pool *pgxpool.Pool
	if opts.ChatStore != nil {
		pool = opts.ChatStore.Pool()
	}
	collector := metrics.NewCollector(pool, opts.Registry, opts.Bus)
	prometheus.MustRegister(collector)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	sse := NewSSEHandler(SSEOptions{
		Bus:         opts.Bus,
		Registry:    opts.Registry,
		ChatHistory: opts.ChatHistory,
	})
	speak := NewSpeakHandler(opts.Registry)
	settings := NewSettingsHandler(opts.Settings, "system")
	photos := NewPhotoHandler(opts.Photos)

	// Authenticated routes: bearer token + per-method write gating.
	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(1 << 20))
		r.Use(BearerAuth(opts.Config.AuthToken, opts.Config.WriteToken))
		r.Use(WriteAuth(opts.Config.WriteToken))
		r.Use(ResponseTimeout(opts.Config.WriteTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Get("/chat/stream", sse.Chat)
			r.Get("/transcription-stream", sse.Transcription)
			r.Get("/photo-stream", sse.Photo)

			r.Post("/speak", speak.Speak)
			r.Post("/stop-audio", speak.StopAudio)

			r.Get("/theme-preference", settings.ThemePreference)
			r.Post("/theme-preference", settings.ThemePreference)
			r.Get("/settings", settings.Settings)
			r.Patch("/settings", settings.Settings)

			r.Get("/latest-photo", photos.Latest)
			r.Get("/photo/{requestId}", photos.ByRequestID)
			r.Get("/photo-base64/{requestId}", photos.Base64)

			if opts.Config.DebugEndpoints {
				debug := NewDebugHandler(opts.Registry)
				r.Post("/debug/kill-session", debug.KillSession)
			}
		})
	})

	srv := &http.Server{
		Addr:        opts.Config.HTTPAddr,
		Handler:     r,
		ReadTimeout: opts.Config.ReadTimeout,
		IdleTimeout: opts.Config.IdleTimeout,
		// WriteTimeout left at 0: SSE connections are long-lived and
		// ResponseTimeout/per-write deadlines already bound everything else.
		WriteTimeout: 0,
	}

	return &Server{http: srv, log: opts.Log, health: health}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
