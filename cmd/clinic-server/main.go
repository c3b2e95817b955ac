package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinix/clinix/internal/config"
	"github.com/clinix/clinix/internal/domain/directory"
	"github.com/clinix/clinix/internal/domain/scheduling"
	"github.com/clinix/clinix/internal/platform/auth"
	"github.com/clinix/clinix/internal/platform/booking"
	"github.com/clinix/clinix/internal/platform/db"
	"github.com/clinix/clinix/internal/platform/middleware"
)

const migrationsDir = "migrations"

func main() {
	root := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic scheduling service",
	}
	root.AddCommand(serveCmd(), migrateCmd(), workerCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func setup(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := newLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, logger, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, logger, pool, nil
}

func newLocker(cfg *config.Config, logger zerolog.Logger) booking.Locker {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, booking operations run without distributed locking")
		return booking.NopLocker()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, falling back to no-op locking")
		return booking.NopLocker()
	}
	return booking.NewRedisLocker(redis.NewClient(opts), cfg.LockTTL)
}

type services struct {
	dirSvc   *directory.Service
	shiftSvc *scheduling.ShiftService
	apptSvc  *scheduling.AppointmentService
	tasks    scheduling.SyncTaskRepository
}

func buildServices(pool *pgxpool.Pool, locker booking.Locker, logger zerolog.Logger) *services {
	branches := directory.NewBranchRepoPG(pool)
	rooms := directory.NewRoomRepoPG(pool)
	staff := directory.NewStaffRepoPG(pool)
	patients := directory.NewPatientRepoPG(pool)
	dirSvc := directory.NewService(branches, rooms, staff, patients)

	shifts := scheduling.NewShiftRepoPG(pool)
	appts := scheduling.NewAppointmentRepoPG(pool)
	tasks := scheduling.NewSyncTaskRepoPG(pool)
	checker := scheduling.NewChecker(shifts, appts)

	apptSvc := scheduling.NewAppointmentService(appts, dirSvc, checker, locker, logger)
	shiftSvc := scheduling.NewShiftService(shifts, appts, dirSvc, checker, locker, tasks, apptSvc, logger)

	return &services{dirSvc: dirSvc, shiftSvc: shiftSvc, apptSvc: apptSvc, tasks: tasks}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := buildServices(pool, newLocker(cfg, logger), logger)

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.RequestID())
			e.Use(middleware.Logger(logger))
			e.Use(middleware.Recovery(logger))

			e.GET("/health", func(c echo.Context) error {
				if err := pool.Ping(c.Request().Context()); err != nil {
					return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				}
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			})

			api := e.Group("/api/v1")
			if cfg.IsDev() && cfg.JWTSecret == "" {
				logger.Warn().Msg("JWT_SECRET not set, using development auth")
				api.Use(auth.DevAuthMiddleware())
			} else {
				api.Use(auth.JWTMiddleware(cfg.JWTSecret))
			}

			directory.NewHandler(svcs.dirSvc).RegisterRoutes(api)
			scheduling.NewHandler(svcs.shiftSvc, svcs.apptSvc).RegisterRoutes(api)

			go func() {
				logger.Info().Str("port", cfg.Port).Msg("server starting")
				if err := e.Start(":" + cfg.Port); err != nil {
					logger.Info().Err(err).Msg("server stopped")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info().Msg("server stopped cleanly")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, logger, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, migrationsDir).Up(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", n).Msg("migrations complete")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%03d %-30s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the appointment sync worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, pool, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := buildServices(pool, newLocker(cfg, logger), logger)
			worker := scheduling.NewSyncWorker(svcs.tasks, svcs.apptSvc, logger, cfg.WorkerInterval)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var branches, doctorsPer, patientsPer int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with fake directory data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, logger, pool, err := setup(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			start := time.Now()
			if err := runSeed(ctx, pool, branches, doctorsPer, patientsPer); err != nil {
				return err
			}
			logger.Info().
				Int("branches", branches).
				Dur("took", time.Since(start)).
				Msg("seed complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&branches, "branches", 2, "number of branches to create")
	cmd.Flags().IntVar(&doctorsPer, "doctors", 5, "doctors per branch")
	cmd.Flags().IntVar(&patientsPer, "patients", 20, "patients per branch")
	return cmd
}
