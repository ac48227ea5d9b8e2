package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/internal/catalog"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/metrics"
	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

const metricsNamespace = "gridstash"

// Server represents the inventory server
type Server struct {
	config    *config.Config
	logger    *zap.Logger
	session   *Session
	inventory *authority.Service
	validator TokenValidator
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	upgrader  websocket.Upgrader
	httpSrv   *http.Server

	// owned resources, closed on shutdown; nil when injected
	store store.Store
	redis *redis.Client

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex
	connWG      sync.WaitGroup

	// Shutdown
	ctx      context.Context
	cancel   context.CancelFunc
	flushed  chan struct{}
	stopOnce sync.Once
}

// New creates a new server instance
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	logger.Info("initializing server")

	ctx, cancel := context.WithCancel(context.Background())
	fail := func(err error, msg string) (*Server, error) {
		cancel()
		return nil, errors.Wrap(err, msg)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return fail(err, "failed to connect to Redis")
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Address))

	validator, err := NewJWTValidator(ctx, cfg, redisClient, logger)
	if err != nil {
		_ = redisClient.Close()
		return fail(err, "failed to initialize JWT validator")
	}

	var items inventory.Catalog = inventory.SampleCatalog()
	if cfg.Catalog.Path != "" {
		loaded, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			_ = redisClient.Close()
			return fail(err, "failed to load item catalog")
		}
		items = loaded
		logger.Info("item catalog loaded", zap.String("path", cfg.Catalog.Path))
	}

	st, err := store.Open(ctx, cfg, redisClient)
	if err != nil {
		_ = redisClient.Close()
		return fail(err, "failed to open snapshot store")
	}
	logger.Info("snapshot store opened",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("format", cfg.Storage.Format))

	m := metrics.New(metricsNamespace)
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		_ = st.Close()
		_ = redisClient.Close()
		return fail(err, "failed to register metrics")
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []authority.Option{
		authority.WithStore(st),
		authority.WithMetrics(m),
		authority.WithLogger(logger),
	}
	if !cfg.Server.IsAuthority() {
		opts = append(opts, authority.AsReplica())
		logger.Warn("running as replica, inventory mutations are refused")
	}
	svc := authority.New(items, opts...)

	srv := newServer(ctx, cancel, cfg, logger, svc, validator, m, registry)
	srv.store = st
	srv.redis = redisClient

	logger.Info("server initialized")
	return srv, nil
}

// newServer assembles a server around already built collaborators and
// starts the periodic snapshot flush.
func newServer(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	svc *authority.Service,
	validator TokenValidator,
	m *metrics.Metrics,
	registry *prometheus.Registry,
) *Server {
	srv := &Server{
		config:      cfg,
		logger:      logger,
		session:     NewSession("main", cfg.Server.MaxPlayers, logger),
		inventory:   svc,
		validator:   validator,
		metrics:     m,
		registry:    registry,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		flushed:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	go func() {
		defer close(srv.flushed)
		if cfg.Storage.FlushInterval > 0 {
			svc.Run(ctx, cfg.Storage.FlushInterval)
		}
	}()
	return srv
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("listening",
		zap.String("websocket", "ws://"+addr+"/ws"),
		zap.String("health", "http://"+addr+"/health"),
		zap.String("metrics", "http://"+addr+"/metrics"))

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and saves every open inventory
func (s *Server) Shutdown() error {
	var errs error
	s.stopOnce.Do(func() {
		s.logger.Info("shutting down server")
		s.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "http shutdown"))
			}
		}

		// unblock every read pump; each connection then leaves and saves
		s.connMu.RLock()
		for conn := range s.connections {
			_ = conn.ws.Close()
		}
		s.connMu.RUnlock()
		done := make(chan struct{})
		go func() {
			s.connWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("connections did not close in time")
		}

		<-s.flushed
		for _, owner := range s.inventory.Owners() {
			if err := s.inventory.CloseOwner(ctx, owner); err != nil && !errors.Is(err, authority.ErrOwnerNotOpen) {
				errs = errors.CombineErrors(errs, err)
			}
		}

		if s.store != nil {
			if err := s.store.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "store close"))
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "redis close"))
			}
		}
		s.logger.Info("server shutdown complete")
	})
	return errs
}

// handleWebSocket authenticates and upgrades a client connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("remote", r.RemoteAddr))

	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		logger.Info("missing JWT token")
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	player, err := s.validator.ValidateToken(r.Context(), tokenString)
	if err != nil {
		logger.Info("invalid JWT token", zap.Error(err))
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, s, player)

	s.connWG.Add(1)
	defer s.connWG.Done()
	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()
	if s.metrics != nil {
		s.metrics.Connections.Inc()
	}
	logger.Info("websocket connection established",
		zap.String("player_id", player.ID),
		zap.String("username", player.Username))

	// blocks until the client goes away
	conn.Handle()

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()
	if s.metrics != nil {
		s.metrics.Connections.Dec()
	}
	logger.Info("websocket connection closed", zap.String("player_id", player.ID))
}

// handleHealth reports liveness and session status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        "ok",
		"authoritative": s.inventory.IsAuthority(),
		"session":       s.session.Status(len(s.inventory.Owners())),
	})
}
