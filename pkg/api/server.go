// Package api framewire REST and websocket API
//
// @title           framewire API
// @version         1.0.0
// @description     Channel management and websocket frame transport for framewire.
// @host            localhost:9090
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/codec"
	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

// Server holds the API server state
type Server struct {
	channels ChannelService
	store    SeriesStore
	relay    Relay
	config   ServerConfig
	metrics  *Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	fallback envelope.Fallback
	upgrader websocket.Upgrader
}

// NewServer creates a new API server. The registry receives the server's metrics and
// backs /metrics; nil uses a fresh registry.
func NewServer(deps Dependencies, config ServerConfig) (*Server, error) {
	if deps.Channels == nil || deps.Store == nil || deps.Relay == nil {
		return nil, errors.New("api server requires channels, store and relay")
	}
	config = config.withDefaults()
	fallback, err := envelope.FallbackByName(config.Fallback)
	if err != nil {
		return nil, err
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Server{
		channels: deps.Channels,
		store:    deps.Store,
		relay:    deps.Relay,
		config:   config,
		metrics:  NewMetrics(registry),
		gatherer: registry,
		logger:   logging.OrNop(deps.Logger),
		fallback: fallback,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{envelope.ContentType},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Routes builds the router with all routes configured
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Unprotected endpoints for probes and scraping
	r.Get("/health", s.metrics.InstrumentHandler("GET", "/health", s.handleHealth))
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Post("/channels", s.metrics.InstrumentHandler("POST", "/api/v1/channels", s.handleCreateChannel))
		r.Get("/channels", s.metrics.InstrumentHandler("GET", "/api/v1/channels", s.handleListChannels))
		r.Get("/channels/{key}", s.metrics.InstrumentHandler("GET", "/api/v1/channels/{key}", s.handleGetChannel))
		r.Delete("/channels/{key}", s.metrics.InstrumentHandler("DELETE", "/api/v1/channels/{key}", s.handleDeleteChannel))
		r.Get("/channels/{key}/latest", s.metrics.InstrumentHandler("GET", "/api/v1/channels/{key}/latest", s.handleLatest))

		r.Get("/frame/write", s.metrics.InstrumentHandler("GET", "/api/v1/frame/write", s.handleWrite))
		r.Get("/frame/stream", s.metrics.InstrumentHandler("GET", "/api/v1/frame/stream", s.handleStream))

		r.Get("/stats", s.metrics.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
	})

	r.Get("/swagger/*", s.handleSwagger)
	return r
}

func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/swagger/", "/swagger/index.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerUI))
	case "/swagger/doc.json", "/swagger/swagger.json":
		doc, err := swag.ReadDoc("swagger")
		if err != nil {
			s.logger.Error("generate swagger doc", zap.Error(err))
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	default:
		http.NotFound(w, r)
	}
}

const swaggerUI = `<!DOCTYPE html>
<html>
<head>
	 <title>framewire API Documentation</title>
	 <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui.css" />
</head>
<body>
	 <div id="swagger-ui"></div>
	 <script src="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui-bundle.js"></script>
	 <script>
	   window.onload = function() {
	     SwaggerUIBundle({
	       url: '/swagger/doc.json',
	       dom_id: '#swagger-ui',
	       presets: [
	         SwaggerUIBundle.presets.apis,
	         SwaggerUIBundle.presets.standalone
	       ]
	     });
	   };
	 </script>
</body>
</html>`

// Addr returns the listen address built from Bind and Port
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	if SwaggerInfo != nil {
		SwaggerInfo.Host = fmt.Sprintf("localhost:%d", s.config.Port)
	}

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting framewire server",
			zap.String("addr", srv.Addr),
			zap.String("metrics", fmt.Sprintf("http://%s/metrics", srv.Addr)),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down framewire server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

// startMetricsUpdater refreshes the store gauges until ctx is cancelled
func (s *Server) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()
	for {
		s.metrics.UpdateStoreStats(s.store.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) envelopeOptions() []envelope.Option {
	return []envelope.Option{
		envelope.WithRetriever(s.channels),
		envelope.WithFallback(s.fallback),
		envelope.WithCodecOptions(codec.WithRetention(s.config.CodecRetention)),
		envelope.WithLogger(s.logger),
	}
}
