package webchat

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Option func(*options)

type options struct {
	upgrader        websocket.Upgrader
	logger          zerolog.Logger
	shutdownTimeout time.Duration
}

func WithUpgrader(u websocket.Upgrader) Option {
	return func(o *options) { o.upgrader = u }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) { o.shutdownTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:          log.Logger.With().Str("component", "webchat").Logger(),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewHandler mounts the JSON API, the event websocket and the health probe.
// sub may be nil, in which case /ws answers 404.
func NewHandler(svc ChatService, sub EventSubscriber, opts ...Option) http.Handler {
	o := buildOptions(opts)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/threads/{id}/messages", NewSendHandler(svc, o.logger))
	mux.HandleFunc("GET /api/threads", NewThreadsHandler(svc, o.logger))
	mux.HandleFunc("GET /api/threads/{id}/messages", NewHistoryHandler(svc, o.logger))
	mux.HandleFunc("GET /api/threads/{id}/checkpoints", NewCheckpointsHandler(svc, o.logger))
	mux.HandleFunc("GET /ws", NewWSHandler(sub, o.upgrader, o.logger))
	mux.HandleFunc("GET /healthz", NewHealthHandler())
	return mux
}

// Server owns the HTTP listener of the service.
type Server struct {
	httpSrv         *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

func NewServer(addr string, svc ChatService, sub EventSubscriber, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("chat service is nil")
	}
	o := buildOptions(opts)
	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(svc, sub, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: o.shutdownTimeout,
		logger:          o.logger,
	}, nil
}

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-egCtx.Done()
		s.logger.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.logger.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("starting threadchat server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
