package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/domain/inventory"
	"github.com/clinic/clinic/internal/domain/notify"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/specimen"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/domain/treatment"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic billing and inventory API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openPool loads the config and connects, for the one-shot commands.
func openPool(ctx context.Context) (*config.Config, *db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db.NewMigrator(pool), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations against a tenant schema",
	}
	cmd.PersistentFlags().String("tenant", "", "Tenant id (defaults to DEFAULT_TENANT)")

	schemaFor := func(cmd *cobra.Command, cfg *config.Config) (string, error) {
		tenant, _ := cmd.Flags().GetString("tenant")
		if tenant == "" {
			tenant = cfg.DefaultTenant
		}
		if !db.ValidTenantID(tenant) {
			return "", fmt.Errorf("invalid tenant identifier: %s", tenant)
		}
		return db.SchemaName(tenant), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, migrator, closePool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			schema, err := schemaFor(cmd, cfg)
			if err != nil {
				return err
			}
			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, migrator, closePool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			schema, err := schemaFor(cmd, cfg)
			if err != nil {
				return err
			}
			version, err := migrator.Down(ctx, schema)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			fmt.Printf("Rolled back version %d on schema %s.\n", version, schema)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, migrator, closePool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			schema, err := schemaFor(cmd, cfg)
			if err != nil {
				return err
			}
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinic tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic schema and migrate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name); err != nil {
				return fmt.Errorf("failed to create tenant: %w", err)
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant id (letters, digits, underscore)")
	cmd.AddCommand(createCmd)

	return cmd
}

// userCmd bootstraps staff accounts, which is the only way to create the
// first admin outside development mode.
func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff user in a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in staff.CreateUserInput
			in.Username, _ = cmd.Flags().GetString("username")
			in.Password, _ = cmd.Flags().GetString("password")
			in.FullName, _ = cmd.Flags().GetString("full-name")
			in.Email, _ = cmd.Flags().GetString("email")
			in.Role, _ = cmd.Flags().GetString("role")
			tenant, _ := cmd.Flags().GetString("tenant")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, release, err := db.WithTenantConn(ctx, pool, tenant)
			if err != nil {
				return err
			}
			defer release()

			svc := staff.NewService(staff.NewRepoPG(pool), nil, newLogger(cfg.Env))
			u, err := svc.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s user %s (%s) in tenant %s.\n", u.Role, u.Username, u.ID, tenant)
			return nil
		},
	}
	createCmd.Flags().String("tenant", "", "Tenant id (defaults to DEFAULT_TENANT)")
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("full-name", "", "Display name")
	createCmd.Flags().String("email", "", "Email address")
	createCmd.Flags().String("role", auth.RoleAdmin, "admin, doctor, receptionist or accountant")
	cmd.AddCommand(createCmd)

	return cmd
}

// resolveSigningKey returns the configured HS256 key, or a random one for
// development. The bool reports whether the key was generated.
func resolveSigningKey(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// sessionStores holds state that must be shared between server instances.
type sessionStores struct {
	idempotency middleware.IdempotencyStore
	revocations auth.RevocationStore
	close       func() error
}

// newSessionStores uses Redis when REDIS_URL is set so idempotent replays and
// logouts survive restarts and are shared between instances.
func newSessionStores(redisURL string) (*sessionStores, error) {
	if redisURL == "" {
		return &sessionStores{
			idempotency: middleware.NewMemoryIdempotencyStore(idempotencyTTL),
			revocations: auth.NewMemoryRevocationStore(),
			close:       func() error { return nil },
		}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return &sessionStores{
		idempotency: middleware.NewRedisIdempotencyStore(client, idempotencyTTL),
		revocations: auth.NewRedisRevocationStore(client),
		close:       client.Close,
	}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()
	clk := clock.New(loc)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	txRunner := db.NewTxRunner(pool)

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New()
	}

	signingKey, generated, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare signing key")
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; issued tokens will not survive a restart")
	}

	stores, err := newSessionStores(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure session stores")
	}
	defer func() { _ = stores.close() }()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "Idempotency-Key"},
	}))

	// Operational endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, cfg.DefaultTenant))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// API group
	jwtCfg := auth.JWTConfig{
		Issuer:      cfg.AuthIssuer,
		Audience:    cfg.AuthAudience,
		JWKSURL:     cfg.AuthJWKSURL,
		SigningKey:  signingKey,
		Skipper:     auth.AuthSkipper,
		Revocations: stores.revocations,
	}
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}
	apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	apiV1.Use(middleware.Audit(logger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Idempotency(stores.idempotency, logger))

	// Notifications
	notifySvc := notify.NewService(notify.NewRepoPG(pool), logger)
	notify.NewHandler(notifySvc).RegisterRoutes(apiV1)

	// Inventory
	inventorySvc := inventory.NewService(
		inventory.NewMaterialRepoPG(pool),
		inventory.NewImportRepoPG(pool),
		inventory.NewExportRepoPG(pool),
		txRunner, clk, logger,
	)
	inventorySvc.SetNotifier(notifySvc)
	inventorySvc.SetMetrics(metrics)
	inventory.NewHandler(inventorySvc).RegisterRoutes(apiV1)

	// Billing and treatment records
	recordRepo := treatment.NewRecordRepoPG(pool)
	billingSvc := billing.NewService(billing.NewBillRepoPG(pool), billing.NewReceiptRepoPG(pool), txRunner, clk, logger)
	billingSvc.SetPropagator(recordRepo)
	billingSvc.SetSpendSource(inventorySvc)
	billingSvc.SetMetrics(metrics)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Price list
	catalogSvc := catalog.NewService(catalog.NewCategoryRepoPG(pool), catalog.NewProcedureRepoPG(pool), logger)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)

	treatmentSvc := treatment.NewService(recordRepo, billingSvc, txRunner, clk, logger)
	treatmentSvc.SetCatalog(catalogSvc)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(apiV1)

	// Lab specimens
	specimenSvc := specimen.NewService(specimen.NewLabRepoPG(pool), specimen.NewSpecimenRepoPG(pool), txRunner, clk, logger)
	specimen.NewHandler(specimenSvc).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(patient.NewRepoPG(pool), treatmentSvc, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Staff and login
	issuer := &auth.Issuer{
		SigningKey: signingKey,
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		TTL:        cfg.AuthTokenTTL,
	}
	staffSvc := staff.NewService(staff.NewRepoPG(pool), issuer, logger)
	staffSvc.SetRevocations(stores.revocations)
	staff.NewHandler(staffSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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
