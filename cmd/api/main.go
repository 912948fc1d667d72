package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blobgate/internal/auth"
	"blobgate/internal/config"
	"blobgate/internal/database"
	"blobgate/internal/database/migration"
	handlers "blobgate/internal/http/handler"
	"blobgate/internal/http/middleware"
	"blobgate/internal/otel"
	"blobgate/internal/replay"
	"blobgate/internal/repository/postgres"
	"blobgate/internal/rules"
	"blobgate/internal/service"
	"blobgate/internal/storage"
	"blobgate/internal/whitelist"
)

// replaySweepInterval bounds how long expired proof reservations linger.
const replaySweepInterval = 10 * time.Minute

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing (no-op unless OTEL_ENABLED=true)
	shutdownTracing, err := otel.Init(ctx, time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	acceptRules, err := rules.Load(cfg.RulesFile)
	if err != nil {
		log.Fatalf("failed to load acceptance rules: %v", err)
	}

	var verifier *auth.Verifier
	if cfg.Upload.RequireAuth {
		verifier, err = auth.NewVerifier(cfg.Auth.Secret)
		if err != nil {
			log.Fatalf("failed to initialize proof verifier: %v", err)
		}
	}

	// Allow-list cache refreshes in the background and keeps serving the
	// last known good snapshot when the directory is unreachable.
	var allow service.AllowList
	if cfg.Whitelist.Enabled {
		cache, err := whitelist.New(cfg.Whitelist.URL, cfg.Whitelist.File)
		if err != nil {
			log.Fatalf("failed to initialize whitelist cache: %v", err)
		}
		go cache.Run(ctx, cfg.Whitelist.RefreshInterval)
		allow = cache
	}

	guard := replay.NewPostgresGuard(db)
	go sweepReplayGuard(ctx, guard)

	blobRepo := postgres.NewBlobPostgres(db)
	uploadSvc := service.NewUploadService(verifier, guard, allow, objStore, blobRepo, service.Options{
		Rules:               acceptRules,
		RequireAuth:         cfg.Upload.RequireAuth,
		RequirePubkeyInRule: cfg.Upload.RequirePubkeyInRule,
		WhitelistRequired:   cfg.Whitelist.Enabled,
		TempDir:             cfg.Upload.TempDir,
		PublicHost:          cfg.AppHost,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Uploads are hashed while streaming, without buffering whole
		// bodies in memory.
		StreamRequestBody: true,
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, uploadSvc, cfg)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// sweepReplayGuard periodically drops reservations whose proofs have expired,
// keeping the used_proofs table bounded.
func sweepReplayGuard(ctx context.Context, guard replay.Guard) {
	ticker := time.NewTicker(replaySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := guard.Sweep(ctx, now.UTC()); err != nil {
				log.Printf("replay guard sweep failed: %v", err)
			}
		}
	}
}
