// Package server assembles the lifecycle API: stores, capabilities,
// middleware, routes and background loops.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"

	"github.com/katello/lifecycle/pkg/audit"
	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/cache"
	"github.com/katello/lifecycle/pkg/candlepin"
	"github.com/katello/lifecycle/pkg/config"
	"github.com/katello/lifecycle/pkg/ha"
	"github.com/katello/lifecycle/pkg/lifecycle"
	"github.com/katello/lifecycle/pkg/tasks"
	"github.com/katello/lifecycle/pkg/tenancy"
)

// Server owns the HTTP router and the singleton background loops.
type Server struct {
	cfg    *config.Config
	db     *gorm.DB
	kube   kubernetes.Interface
	logger *slog.Logger

	service    *lifecycle.Service
	auditStore *audit.Store
	taskStore  *tasks.TaskStore
	registry   *tasks.Registry
	authorizer authz.Authorizer
	elector    *ha.LeaderElector
	router     chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithKubernetesClient sets the client used for SubjectAccessReview
// authorization and Lease leader election.
func WithKubernetesClient(c kubernetes.Interface) Option {
	return func(s *Server) { s.kube = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New migrates the schema and wires every component from cfg.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	bindings := lifecycle.NewBindingStore(db)
	orgs := lifecycle.NewOrganizationStore(db, bindings)
	s.auditStore = audit.NewStore(db)
	s.taskStore = tasks.NewTaskStore(db)
	s.registry = tasks.NewRegistry()

	locker := ha.NewMigrationLocker(db, &cfg.HA)
	if err := ha.MigrateAll(ctx, locker, bindings, s.auditStore, s.taskStore); err != nil {
		return nil, err
	}

	authorizer, err := authz.NewAuthorizer(&cfg.Authz, s.kube)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer: %w", err)
	}
	s.authorizer = authorizer

	svcOpts := []lifecycle.ServiceOption{
		lifecycle.WithAuthorizer(authz.NewBindingAuthorizer(authorizer)),
		lifecycle.WithLogger(s.logger.With("component", "lifecycle")),
	}
	if cfg.Audit.Enabled {
		svcOpts = append(svcOpts, lifecycle.WithAuditor(audit.NewAuditor(s.auditStore, &cfg.Audit, s.logger)))
	}
	if cfg.Cache.Enabled {
		svcOpts = append(svcOpts, lifecycle.WithResolutionCache(
			cache.NewLRUCache[string, uint](cfg.Cache.MaxSize, cfg.Cache.ResolutionTTL)))
	}
	if cfg.Candlepin.Enabled {
		client, err := candlepin.NewClient(&cfg.Candlepin, s.logger.With("component", "candlepin"))
		if err != nil {
			return nil, fmt.Errorf("failed to create candlepin client: %w", err)
		}
		candlepin.RegisterHandlers(s.registry, client)
		svcOpts = append(svcOpts, lifecycle.WithCandlepinLinker(candlepin.NewTaskLinker(s.taskStore, s.logger)))
	}
	s.service = lifecycle.NewService(bindings, orgs, svcOpts...)

	if err := s.mountRoutes(); err != nil {
		return nil, err
	}
	s.elector = s.newElector()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Service returns the lifecycle service.
func (s *Server) Service() *lifecycle.Service { return s.service }

// TaskRegistry returns the registry task handlers are bound in.
func (s *Server) TaskRegistry() *tasks.Registry { return s.registry }

func (s *Server) mountRoutes() error {
	identity, err := authz.NewIdentityMiddleware(&s.cfg.Authz)
	if err != nil {
		return fmt.Errorf("failed to create identity middleware: %w", err)
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token",
			tenancy.OrganizationHeader, audit.CorrelationHeader},
		ExposedHeaders: []string{"Link", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	orgMiddleware := tenancy.NewMiddleware(s.cfg.Tenancy.Mode, s.cfg.Tenancy.DefaultOrganization)
	r.Route(authz.APIPrefix, func(api chi.Router) {
		api.Use(identity)
		api.Use(scopedTenancy(orgMiddleware))
		if s.cfg.Audit.Enabled {
			api.Use(audit.Middleware(s.auditStore, &s.cfg.Audit, s.logger.With("component", "audit")))
		}

		api.Mount("/audit", audit.Router(s.auditStore, s.authorizer))
		api.Mount("/tasks", tasks.Router(s.taskStore, s.authorizer))
		api.Group(func(g chi.Router) {
			g.Use(authz.AuthzMiddleware(s.authorizer))
			g.Mount("/", lifecycle.NewRouter(s.service, nil))
		})
	})

	s.router = r
	return nil
}

// scopedTenancy resolves the request organization except on
// /organizations routes, which name it in the path.
func scopedTenancy(orgMiddleware func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withOrg := orgMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, authz.APIPrefix+"/organizations") {
				next.ServeHTTP(w, r)
				return
			}
			withOrg.ServeHTTP(w, r)
		})
	}
}

func (s *Server) newElector() *ha.LeaderElector {
	le := ha.NewLeaderElector(&s.cfg.HA, s.kube, s.logger.With("component", "ha"))
	if s.cfg.Tasks.Enabled {
		pool := tasks.NewWorkerPool(s.taskStore, s.registry, &s.cfg.Tasks, s.logger.With("component", "tasks"))
		le.Add(ha.Singleton{Name: "task-workers", Run: pool.Run})
	}
	if s.cfg.Audit.Enabled && s.cfg.Audit.RetentionDays > 0 {
		rw := audit.NewRetentionWorker(s.auditStore, &s.cfg.Audit, s.logger.With("component", "audit"))
		le.Add(ha.Singleton{Name: "audit-retention", Run: rw.Run})
	}
	return le
}

// Run serves HTTP on cfg.Listen and runs the background loops until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopsDone := make(chan struct{})
	go func() {
		s.elector.Run(ctx)
		close(loopsDone)
	}()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("lifecycle server listening", "listen", s.cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if runErr == nil {
		<-loopsDone
	}
	s.logger.Info("lifecycle server stopped")
	return runErr
}
