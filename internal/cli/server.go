package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-live-service/internal/adaptive"
	"quiz-live-service/internal/app"
	"quiz-live-service/internal/config"
	"quiz-live-service/internal/domain"
	amqpaudit "quiz-live-service/internal/infra/amqp"
	"quiz-live-service/internal/infra/memory"
	pgstore "quiz-live-service/internal/infra/postgres"
	redisstore "quiz-live-service/internal/infra/redis"
	"quiz-live-service/internal/infra/sqlstore"
	"quiz-live-service/internal/logger"
	"quiz-live-service/internal/metrics"
	transport "quiz-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	banks, err := buildBanks(cfg, pool, redisClient)
	if err != nil {
		return err
	}
	catalog, err := buildCatalog(ctx, pool, log)
	if err != nil {
		return err
	}
	audit, closeAudit, err := buildAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeAudit)

	hub := app.NewHub()
	hub.OnDrop(m.EventDropped)
	var bus app.Bus = app.NewLocalBus(hub)

	g, gctx := errgroup.WithContext(ctx)

	var liveStore app.LiveSessionRepository = memory.NewLiveSessionStore()
	if redisClient != nil {
		liveStore = redisstore.NewLiveSessionStore(redisClient, config.Duration(cfg.Redis.TTL, 2*time.Hour))
		eventBus := redisstore.NewEventBus(redisClient, cfg.Redis.Channel, log)
		if err := eventBus.StartForwarder(gctx, hub.Deliver); err != nil {
			return err
		}
		bus = eventBus
	}

	opts := []app.Option{app.WithLogger(log), app.WithMetrics(m)}
	live := app.NewLiveService(liveStore, banks, audit, bus, liveConfig(cfg), opts...)
	sim := app.NewSimulatorService(memory.NewSimulatorSessionStore(), catalog, live, audit, bus, app.SimulatorConfig{
		HintBudget: cfg.Simulator.HintBudget,
		Penalties:  cfg.Simulator.HintPenalties,
		SkipPolicy: domain.SkipPolicy(cfg.Simulator.SkipPolicy),
	}, opts...)

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("auth.secret not configured, facilitator tokens will not survive a restart")
	}
	handler := transport.NewHandler(transport.Options{
		Live:        live,
		Simulator:   sim,
		Hub:         hub,
		Auth:        transport.NewAuthenticator(secret, config.Duration(cfg.Auth.TokenTTL, 12*time.Hour)),
		Logger:      log,
		Metrics:     m,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("starting quiz service", "port", finalPort, "redis", redisClient != nil, "postgres", pool != nil, "audit", cfg.Audit.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func liveConfig(cfg config.Config) app.LiveConfig {
	q := cfg.Quiz
	return app.LiveConfig{
		QuestionCap:   q.QuestionCap,
		QuestionTimer: config.Duration(q.QuestionTimer, 30*time.Second),
		Countdown:     config.Duration(q.Countdown, 5*time.Second),
		DefaultBankID: q.BankID,
		Ability: adaptive.Params{
			Initial:  q.Theta.Initial,
			Min:      q.Theta.Min,
			Max:      q.Theta.Max,
			BaseStep: q.Theta.BaseStep,
			MaxStep:  q.Theta.MaxStep,
			Medio:    q.Thresholds.Medio,
			Avanzato: q.Thresholds.Avanzato,
		},
	}
}

// buildBanks picks the bank source (Postgres, YAML file or the built-in sample) and the cache
// in front of it (Redis when configured).
func buildBanks(cfg config.Config, pool *pgxpool.Pool, client *redis.Client) (app.BankRepository, error) {
	var loader memory.BankLoader
	switch {
	case pool != nil:
		loader = pgstore.NewBankLoader(pool)
	case cfg.Quiz.BankFile != "":
		loader = memory.NewFileBankLoader(cfg.Quiz.BankFile)
	default:
		sample, err := memory.SampleBank()
		if err != nil {
			return nil, err
		}
		loader = memory.NewStaticBankLoader(map[string]domain.ItemBank{sample.ID: sample})
	}

	ttl := config.Duration(cfg.Quiz.BankTTL, 10*time.Minute)
	if client != nil {
		return redisstore.NewBankCache(client, loader, ttl), nil
	}
	return memory.NewBankRepository(loader, ttl), nil
}

func buildCatalog(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) (app.ExerciseCatalog, error) {
	if pool == nil {
		return memory.DefaultExerciseCatalog()
	}
	loader := pgstore.NewExerciseLoader(pool)
	if err := seedExercises(ctx, loader, log, false); err != nil {
		return nil, err
	}
	return loader, nil
}

// buildAudit opens the configured audit sink and tees it to RabbitMQ when amqp.url is set.
func buildAudit(ctx context.Context, cfg config.Config, log *logger.Logger) (app.AuditLog, func(), error) {
	var (
		sink    app.AuditLog
		closers []func()
	)
	switch cfg.Audit.Driver {
	case "", "memory":
		sink = memory.NewAuditLog()
	case sqlstore.DriverPostgres, sqlstore.DriverSQLite:
		dsn := cfg.Audit.DSN
		if dsn == "" && cfg.Audit.Driver == sqlstore.DriverPostgres {
			dsn = cfg.Postgres.URL
		}
		store, err := sqlstore.Open(ctx, cfg.Audit.Driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		sink = store
		closers = append(closers, func() { _ = store.Close() })
	default:
		return nil, nil, fmt.Errorf("unknown audit driver %q", cfg.Audit.Driver)
	}

	if cfg.AMQP.URL != "" {
		publisher, err := amqpaudit.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		sink = amqpaudit.NewAuditTee(sink, publisher, log)
		closers = append(closers, func() { _ = publisher.Close() })
	}

	return sink, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
