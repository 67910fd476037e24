// Package server assembles the HTTP surface: routes, middleware, and
// the shared HTTP client used by provider adapters.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/voicebridge/voicebridge/pkg/gateway/callflow"
	"github.com/voicebridge/voicebridge/pkg/gateway/config"
	"github.com/voicebridge/voicebridge/pkg/gateway/events"
	"github.com/voicebridge/voicebridge/pkg/gateway/handlers"
	"github.com/voicebridge/voicebridge/pkg/gateway/lifecycle"
	"github.com/voicebridge/voicebridge/pkg/gateway/media"
	"github.com/voicebridge/voicebridge/pkg/gateway/metrics"
	"github.com/voicebridge/voicebridge/pkg/gateway/mw"
)

// Deps are the pre-built components the server routes to. Orchestrator
// and Media are required; the rest degrade gracefully when nil.
type Deps struct {
	Logger       *slog.Logger
	Orchestrator *callflow.Orchestrator
	Dialer       handlers.Dialer
	Media        *media.Store
	Hub          *events.Hub
	Metrics      *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
	lc     *lifecycle.Lifecycle
}

// NewHTTPClient builds the outbound client shared by provider adapters
// and the recording fetcher.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		mux:    http.NewServeMux(),
		lc:     &lifecycle.Lifecycle{},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	health := &handlers.Health{
		Ready: func() bool { return !s.lc.IsDraining() },
	}
	s.mux.HandleFunc("GET /healthz", health.Live)
	s.mux.HandleFunc("GET /readyz", health.Readyz)

	call := &handlers.Call{
		Orchestrator: s.deps.Orchestrator,
		Logger:       s.logger,
	}
	s.mux.HandleFunc("POST /call/start", call.Start)
	s.mux.HandleFunc("POST /call/turn", call.Turn)

	if s.deps.Dialer != nil {
		s.mux.Handle("GET /call/dial", &handlers.Dial{
			Dialer:   s.deps.Dialer,
			StartURL: s.cfg.PublicBaseURL + "/call/start",
			Metrics:  s.deps.Metrics,
			Logger:   s.logger,
		})
	}

	s.mux.Handle("GET /media/{name}", &handlers.Media{Store: s.deps.Media})

	if s.deps.Hub != nil {
		s.mux.Handle("GET /call/events", &handlers.Events{
			Hub:    s.deps.Hub,
			Logger: s.logger,
		})
	}

	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

// SetDraining flips the readiness probe to failing so load balancers
// stop routing new calls during shutdown.
func (s *Server) SetDraining() {
	s.lc.SetDraining(true)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
