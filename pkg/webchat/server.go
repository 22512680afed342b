package webchat

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
	"github.com/cassowary-ai/sidekick/pkg/compute"
	"github.com/cassowary-ai/sidekick/pkg/config"
	"github.com/cassowary-ai/sidekick/pkg/scrape"
	"github.com/cassowary-ai/sidekick/pkg/search"
	"github.com/cassowary-ai/sidekick/pkg/transport"
)

// Server wires config, stream backend, conversation manager and router
// into one listenable unit.
type Server struct {
	cfg     config.Config
	backend *StreamBackend
	manager *ConvManager
	mux     *http.ServeMux
	logger  zerolog.Logger
}

func NewServer(cfg config.Config, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := NewStreamBackend(cfg.Redis)
	if err != nil {
		return nil, err
	}

	sse := transport.NewSSEClient(logger)
	pages := scrape.NewCachedPageReader(nil)
	caller := &compute.TransportCaller{Transport: sse, Endpoint: cfg.Endpoints[cfg.Backend]}

	factory := func(convID string) (*chat.Session, error) {
		sess := chat.NewSession(convID, cfg.ChatOptions(), chat.Collaborators{
			Scraper:   scrape.NewHTTPScraper(logger),
			Optimizer: compute.NewCallerOptimizer(caller, cfg.Model, logger),
			Searcher:  search.NewHTTPSearcher(cfg.SearchURL, logger),
			Pages:     pages,
			Transport: sse,
			Medium:    compute.NewMedium(caller, logger),
			High:      compute.NewHigh(caller, logger),
		}, logger)
		sess.SetEndpoints(cfg.Endpoints)
		return sess, nil
	}

	manager := NewConvManager(factory, backend, logger)
	mux := http.NewServeMux()
	NewRouter(manager, pages, logger).Mount(mux)

	return &Server{
		cfg:     cfg,
		backend: backend,
		manager: manager,
		mux:     mux,
		logger:  logger.With().Str("component", "server").Logger(),
	}, nil
}

// Handler exposes the routed mux, mostly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then drains conversations and the
// stream backend.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Listen).Msg("webchat server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.manager.Shutdown()
		_ = s.backend.Close()
		return nil
	case err := <-errCh:
		s.manager.Shutdown()
		_ = s.backend.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "webchat server")
	}
}
