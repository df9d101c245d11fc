package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cloudreports/patients/internal/config"
	"github.com/cloudreports/patients/internal/domain/patient"
	"github.com/cloudreports/patients/internal/platform/artifact"
	"github.com/cloudreports/patients/internal/platform/db"
	"github.com/cloudreports/patients/internal/platform/metrics"
	"github.com/cloudreports/patients/internal/platform/middleware"
	"github.com/cloudreports/patients/internal/platform/openapi"
	"github.com/cloudreports/patients/internal/platform/session"
	"github.com/cloudreports/patients/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "patients-server",
		Short: "Cloud Stored Patient Reports server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient reports web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the patient table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return runExport(cmd.Context(), out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("out", "", "output file (default: timestamped name in the current directory, - for stdout)")
	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// store is the opened patient repository plus what the health check needs.
type store struct {
	repo   patient.Repository
	pinger db.Pinger
	stats  func() *db.PoolStats
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config, rec patient.MetricsRecorder) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			repo:   patient.NewTableRepoSQLite(sqlDB, cfg.TableName, rec),
			pinger: db.SQLPinger{DB: sqlDB},
			stats:  func() *db.PoolStats { return db.SQLStats(sqlDB) },
			close:  func() { _ = sqlDB.Close() },
		}, nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &store{
			repo:   patient.NewTableRepoPG(pool, cfg.TableName, rec),
			pinger: pool,
			stats:  func() *db.PoolStats { return db.GetPoolStats(pool) },
			close:  pool.Close,
		}, nil
	}
}

// openArtifacts returns the snapshot store. Without an S3 bucket, snapshots
// are kept in memory and served under /exports; the second result is then
// non-nil.
func openArtifacts(ctx context.Context, cfg *config.Config) (patient.ArtifactStore, *artifact.MemoryStore, error) {
	if cfg.ExportToS3() {
		s3Store, err := artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket:    cfg.ExportS3Bucket,
			Region:    cfg.ExportS3Region,
			Endpoint:  cfg.ExportS3Endpoint,
			PathStyle: cfg.ExportS3PathStyle,
			Prefix:    cfg.ExportS3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	}
	mem := artifact.NewMemoryStore("/exports", artifact.DefaultRetain)
	return mem, mem, nil
}

// resolveSessionKey returns SESSION_KEY or a random 32-byte key. The second
// return value is true when a random key was generated.
func resolveSessionKey(value string) ([]byte, bool, error) {
	if value != "" {
		return []byte(value), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random session key: %w", err)
	}
	return key, true, nil
}

// serverDeps is everything newServer wires into the router.
type serverDeps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	svc       *patient.Service
	codec     *session.Codec
	auth      *session.Authenticator
	recorder  *metrics.Recorder
	store     *store
	snapshots *artifact.MemoryStore
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = web.MustRenderer()

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(d.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(d.cfg.RequestTimeout, "/metrics", "/export.csv", "/exports", "/api/v1/patients/export"))
	e.Use(session.Middleware(d.codec))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "patients-server",
		})
	})
	e.GET("/health/db", db.HealthHandler(d.store.pinger, d.cfg.StoreDriver, d.store.stats))
	e.GET("/metrics", d.recorder.Handler())

	// API groups
	apiV1 := e.Group("/api/v1")

	h := patient.NewHandler(d.svc, d.auth, d.codec, d.logger)
	h.RegisterRoutes(e.Group(""), apiV1)

	// OpenAPI document for the JSON API
	docs := openapi.NewGenerator("Cloud Stored Patient Reports API", version, "/api/v1")
	docs.UseCookieAuth(session.CookieName)
	h.DescribeAPI(docs)
	docs.RegisterRoutes(apiV1)

	if d.snapshots != nil {
		artifact.NewHandler(d.snapshots).RegisterRoutes(e.Group("/exports", session.RequireLogin("/login")))
	}
	return e
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Store
	ctx := context.Background()
	rec := metrics.NewRecorder()
	st, err := openStore(ctx, cfg, rec)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open patient store")
	}
	defer st.close()
	logger.Info().Str("driver", cfg.StoreDriver).Str("table", cfg.TableName).Msg("connected to patient store")

	artifacts, snapshots, err := openArtifacts(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure csv snapshot store")
	}
	if snapshots == nil {
		logger.Info().Str("bucket", cfg.ExportS3Bucket).Msg("csv snapshots upload to s3")
	}

	key, generated, err := resolveSessionKey(cfg.SessionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve session key")
	}
	if generated {
		logger.Warn().Msg("SESSION_KEY not set; using a random key, sessions end on restart")
	}

	svc := patient.NewService(
		patient.NewCachedRepository(st.repo, cfg.CacheTTL, rec),
		patient.WithArtifactStore(artifacts),
		patient.WithLogger(logger.With().Str("component", "patient").Logger()),
	)

	e := newServer(serverDeps{
		cfg:       cfg,
		logger:    logger,
		svc:       svc,
		codec:     session.NewCodec(key),
		auth:      session.NewAuthenticator(cfg.LoginUser, cfg.LoginPassword),
		recorder:  rec,
		store:     st,
		snapshots: snapshots,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runExport(ctx context.Context, out string, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer st.close()

	return exportTable(ctx, patient.NewService(st.repo), out, stdout)
}

// exportTable writes the current table as CSV to out, to a timestamped file
// when out is empty, or to stdout when out is "-".
func exportTable(ctx context.Context, svc *patient.Service, out string, stdout io.Writer) error {
	name, data, err := svc.ExportCSV(ctx)
	if err != nil {
		return err
	}
	switch out {
	case "-":
		_, err = stdout.Write(data)
		return err
	case "":
		out = name
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(data), out)
	return nil
}
