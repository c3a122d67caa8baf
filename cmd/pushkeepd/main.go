// Command pushkeepd runs the push-gateway service: the metadata store,
// the push lifecycle manager (controller/registry/jobmanager/
// statusrec/pipeline), the optional recurring-push scheduler, and the
// control-plane HTTP API. Structured after the teacher's
// server/cmd/server/main.go: a cobra root command, PUSHKEEP_*-prefixed
// env-var defaults, and signal.NotifyContext-driven graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pushkeep-io/pushkeep/internal/api"
	"github.com/pushkeep-io/pushkeep/internal/authn"
	"github.com/pushkeep-io/pushkeep/internal/controller"
	"github.com/pushkeep-io/pushkeep/internal/db"
	"github.com/pushkeep-io/pushkeep/internal/deststore"
	"github.com/pushkeep-io/pushkeep/internal/evaluator"
	"github.com/pushkeep-io/pushkeep/internal/jobmanager"
	"github.com/pushkeep-io/pushkeep/internal/metrics"
	"github.com/pushkeep-io/pushkeep/internal/model"
	"github.com/pushkeep-io/pushkeep/internal/registry"
	"github.com/pushkeep-io/pushkeep/internal/scheduler"
	"github.com/pushkeep-io/pushkeep/internal/statusrec"
	"github.com/pushkeep-io/pushkeep/internal/tablestore"
)

var (
	version = "dev"
	commit  = "none"
)

type config struct {
	httpAddr      string
	dbDriver      string
	dbDSN         string
	secretKey     string
	secretKeyPrev string
	logLevel      string
	localRoot     string
	authIssuer    string
	noAuth        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "pushkeepd",
		Short: "pushkeepd — the result-push orchestrator service",
		Long: `pushkeepd evaluates named queries against table definitions and streams
the results into named destinations (object stores, databases) on demand
or on a recurring schedule, tracking each push's lifecycle status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("PUSHKEEP_HTTP_ADDR", ":8080"), "control-plane HTTP listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("PUSHKEEP_DB_DRIVER", "sqlite"), "metadata store driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("PUSHKEEP_DB_DSN", "./pushkeep.db"), "metadata store DSN or file path for sqlite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("PUSHKEEP_SECRET_KEY", ""), "master key for encrypting destination credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.secretKeyPrev, "secret-key-previous", envOrDefault("PUSHKEEP_SECRET_KEY_PREVIOUS", ""), "retired master key, still accepted for decrypting credentials written before a rotation")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("PUSHKEEP_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.localRoot, "local-root", envOrDefault("PUSHKEEP_LOCAL_ROOT", "./data/pushes"), "filesystem root for \"local\" typed destinations")
	root.PersistentFlags().StringVar(&cfg.authIssuer, "auth-issuer", envOrDefault("PUSHKEEP_AUTH_ISSUER", "pushkeepd"), "JWT issuer for the control API's bearer tokens")
	root.PersistentFlags().BoolVar(&cfg.noAuth, "no-auth", envOrDefault("PUSHKEEP_NO_AUTH", "false") == "true", "disable control API authentication (local dev only)")

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pushkeepd %s (commit: %s)\n", version, commit)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return errors.New("secret key is required — set --secret-key or PUSHKEEP_SECRET_KEY")
	}

	logger.Info("starting pushkeepd",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))

	var retired [][]byte
	if cfg.secretKeyPrev != "" {
		prevBytes := make([]byte, 32)
		copy(prevBytes, []byte(cfg.secretKeyPrev))
		retired = append(retired, prevBytes)
	}

	if err := db.InitEncryption(keyBytes, retired...); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	tables := tablestore.New(gormDB, logger)
	destinations := deststore.New(gormDB, logger, deststore.WithLocalRoot(cfg.localRoot))

	reg := registry.New(logger)
	jm := jobmanager.New(logger)
	metricsRecorder := metrics.New(prometheus.DefaultRegisterer)
	hub := api.NewHub(logger)
	recorder := statusrec.New(reg, model.SystemClock{}, metricsRecorder, logger).WithNotifier(hub)

	ctrl := controller.New(controller.Deps{
		Tables:       tables,
		Destinations: destinations,
		Registry:     reg,
		JobManager:   jm,
		Recorder:     recorder,
		Evaluator:    evaluator.NewSQLEvaluator(sqlDB, logger),
		RenderConfig: model.DefaultRenderConfig(),
		Clock:        model.SystemClock{},
		Metrics:      metricsRecorder,
		Logger:       logger,
	})

	scheduleRepo := db.NewScheduleRepository(gormDB)
	sched, err := scheduler.New(scheduleStore{repo: scheduleRepo, tables: tables, destinations: destinations}, ctrl, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	var authMgr *authn.Manager
	if !cfg.noAuth {
		authMgr, err = authn.NewGenerated(cfg.authIssuer)
		if err != nil {
			return fmt.Errorf("failed to initialize control API auth: %w", err)
		}
		token, err := authMgr.IssueToken("pushkeepd-operator")
		if err != nil {
			return fmt.Errorf("failed to mint operator token: %w", err)
		}
		logger.Info("control API operator token (save this — it will not be shown again)", zap.String("token", token))
	} else {
		logger.Warn("control API authentication disabled (--no-auth)")
	}

	router := api.NewRouter(api.RouterConfig{
		Controller:   ctrl,
		Tables:       tables,
		Destinations: destinations,
		Stream:       hub,
		Auth:         authMgr,
		Logger:       logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("control API listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down pushkeepd")

	// Cancel every in-flight push so the process does not hang waiting
	// on a streaming pipeline that will never be observed again.
	ctrl.CancelAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("pushkeepd stopped")
	return nil
}

// scheduleStore adapts db.ScheduleRepository + the table/destination
// stores' UUID lookups into the scheduler.Store interface.
type scheduleStore struct {
	repo         *db.ScheduleRepository
	tables       *tablestore.Store
	destinations *deststore.Store
}

func (s scheduleStore) ListEnabled(ctx context.Context) ([]scheduler.Schedule, error) {
	rows, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.Schedule, len(rows))
	for i, row := range rows {
		out[i] = scheduler.Schedule{
			ID:              row.ID,
			Name:            row.Name,
			TableID:         row.TableID,
			DestinationID:   row.DestinationID,
			DestinationPath: model.ResourcePath(row.DestinationPath),
			Format:          model.ResultType(row.Format),
			CronExpression:  row.CronExpression,
		}
	}
	return out, nil
}

func (s scheduleStore) ResolveTable(ctx context.Context, id uuid.UUID) (model.TableId, bool) {
	return s.tables.ByUUID(ctx, id)
}

func (s scheduleStore) ResolveDestination(ctx context.Context, id uuid.UUID) (model.DestinationId, bool) {
	return s.destinations.ByUUID(ctx, id)
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
