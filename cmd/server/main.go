// Command server boots one voicecore pod: Postgres-backed repositories,
// the in-process call session registry, the callback scheduler, the
// autoscaling controller, the HA gateway health checker, and the HTTP
// surface of §6 — mirroring the teacher's single-process Server/
// NewServer/Start shape (cmd/server/main.go), generalized to this
// module's much larger dependency graph.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xpload/voicecore-ai-sub002/internal/audit"
	"github.com/xpload/voicecore-ai-sub002/internal/autoscale"
	"github.com/xpload/voicecore-ai-sub002/internal/callback"
	"github.com/xpload/voicecore-ai-sub002/internal/config"
	coresession "github.com/xpload/voicecore-ai-sub002/internal/core/session"
	"github.com/xpload/voicecore-ai-sub002/internal/core/task"
	"github.com/xpload/voicecore-ai-sub002/internal/directory"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/event"
	"github.com/xpload/voicecore-ai-sub002/internal/gateway"
	"github.com/xpload/voicecore-ai-sub002/internal/handler"
	"github.com/xpload/voicecore-ai-sub002/internal/ledger"
	"github.com/xpload/voicecore-ai-sub002/internal/media"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/internal/routing"
	"github.com/xpload/voicecore-ai-sub002/internal/services/call"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"github.com/xpload/voicecore-ai-sub002/pkg/redis"
	"github.com/xpload/voicecore-ai-sub002/pkg/twilio"
)

// Server owns every long-lived component a pod runs: the HTTP router
// and the background loops that keep the cross-pod state converged.
type Server struct {
	cfg    *config.Config
	router *mux.Router

	calls      *call.Service
	scheduler  *callback.Scheduler
	autoscaler *autoscale.Controller
	gw         *gateway.Gateway

	cancel context.CancelFunc
}

// NewServer wires the full dependency graph: repositories, domain
// services, the WebRTC media bridge, the cross-pod session manager,
// and finally the HTTP handler manager — the same "one place builds
// everything, nothing is a package singleton" discipline as the
// teacher's handler.NewHandlerManager, just expanded out to main
// because this module has far more moving parts than one handler
// package's constructor should own.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := repository.NewDatabaseConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if len(cfg.Gateway.Endpoints) > 0 {
		if err := repository.SeedEndpoints(db, cfg.Gateway.Endpoints, "/health", 5*time.Second); err != nil {
			return nil, fmt.Errorf("seed gateway endpoints: %w", err)
		}
	}
	repos := repository.NewGormRepositoryManager(db)

	var redisSvc redis.RedisServiceInterface
	if concrete, err := redis.NewRedisService(cfg.Redis.ToRedisConfig()); err != nil {
		logger.Base().Warn("redis unavailable, cross-pod session tracking disabled", zap.Error(err))
	} else {
		redisSvc = concrete
	}

	dirSvc := directory.NewService(repos.Agent())
	routingEngine := routing.NewEngine(dirSvc)
	ledgerSvc := ledger.NewService(repos)
	auditSvc := audit.NewService(repos.Audit(), cfg.Secrets.PrivacyHashSalt)
	events := event.NewEventBus()

	bridge := media.NewBridge(&cfg.Media)
	if cfg.Secrets.TwilioAccountSID != "" && cfg.Secrets.TwilioAuthToken != "" {
		bridge = bridge.WithTURN(twilio.NewTwilioTokenService(cfg.Secrets.TwilioAccountSID, cfg.Secrets.TwilioAuthToken, true))
	}

	var sessionManager *coresession.Manager
	if redisSvc != nil {
		sessionManager = coresession.NewManager(redisSvc, cfg.InstanceID)
	}

	callSvc := call.NewService(repos, routingEngine, ledgerSvc, auditSvc, events, bridge, sessionManager)

	callbackSvc := callback.NewService(repos, routingEngine)
	var taskBus task.Bus
	if redisSvc != nil {
		bus := task.NewRedisBus(redisSvc)
		taskBus = bus
	}
	scheduler := callback.NewScheduler(callbackSvc, routingEngine, callSvc, taskBus)
	if taskBus != nil {
		if err := taskBus.Subscribe(context.Background(), scheduler.HandleTask); err != nil {
			logger.Base().Error("failed to subscribe callback scheduler to task bus", zap.Error(err))
		}
	}

	concurrency := autoscale.NewHostConcurrencyProvider(callSvc)
	autoscaler := autoscale.NewController(repos, concurrency, loggingScaleFunc, cfg.Scaling.CapacityPerInstance)

	gw := gateway.NewGateway(repos.Gateway(), gateway.HTTPProber{}, domain.SelectionPolicy(cfg.Gateway.SelectionPolicy),
		cfg.Gateway.FailureThreshold, cfg.Gateway.HalfOpenAfter)

	handlerManager := handler.NewHandlerManager(cfg.Secrets, cfg.RateLimit, repos, callSvc, bridge, callbackSvc, dirSvc, auditSvc)

	router := mux.NewRouter()
	handlerManager.SetupAllRoutes(router)

	return &Server{
		cfg:        cfg,
		router:     router,
		calls:      callSvc,
		scheduler:  scheduler,
		autoscaler: autoscaler,
		gw:         gw,
	}, nil
}

// loggingScaleFunc is the default ScaleFunc (§4.4 "the substrate is
// external; the controller only knows 'from N to M'"): no orchestration
// client ships in this module, so scaling decisions are logged and
// recorded but not yet executed against a real substrate. Swap this
// for a k8s HPA/cloud ASG client when one is wired in.
func loggingScaleFunc(ctx context.Context, tenantID string, from, to int) error {
	logger.Base().Info("autoscale decision (no substrate wired, logging only)",
		zap.String("tenant_id", tenantID), zap.Int("from", from), zap.Int("to", to))
	return nil
}

// Start runs the HTTP server and every background loop until ctx is
// cancelled, then shuts the HTTP server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.calls.StartCleanupRoutine(ctx, time.Minute, 15*time.Minute)
	go s.scheduler.Run(ctx)
	go s.gw.RunHealthChecks(ctx)
	go s.runAutoscaleLoop(ctx)

	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Base().Info("starting voicecore server", zap.String("addr", srv.Addr), zap.String("instance_id", s.cfg.InstanceID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// runAutoscaleLoop force-evaluates every active tenant on the
// configured evaluation period (§4.4's periodic trigger; per-tenant
// cooldowns inside Evaluate do the rest of the gating).
func (s *Server) runAutoscaleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Scaling.EvaluationPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.autoscaler.ForceEvaluation(ctx, ""); err != nil {
				logger.Base().Error("autoscale evaluation failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("info: .env not found, relying on process environment: %v", err)
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadFromEnv()
	logger.Base().Info("loaded configuration", zap.String("instance_id", cfg.InstanceID), zap.String("port", cfg.Port))

	server, err := NewServer(cfg)
	if err != nil {
		logger.Base().Fatal("failed to initialize server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Base().Fatal("server exited with error", zap.Error(err))
	}
	logger.Base().Info("server shut down cleanly")
}
