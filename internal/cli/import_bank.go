package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-live-service/internal/config"
	"quiz-live-service/internal/infra/memory"
	pgstore "quiz-live-service/internal/infra/postgres"
	redisstore "quiz-live-service/internal/infra/redis"
	"quiz-live-service/internal/logger"
)

// NewImportBankCmd loads a YAML item bank (and optionally the built-in exercises) into Postgres.
func NewImportBankCmd(configPath *string) *cobra.Command {
	var (
		file      string
		exercises bool
	)
	cmd := &cobra.Command{
		Use:   "import-bank",
		Short: "Import a YAML question bank into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()
			return importBank(cmd.Context(), cfg, log, file, exercises)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML bank file (defaults to quiz.bank_file)")
	cmd.Flags().BoolVar(&exercises, "exercises", false, "also store the built-in simulator exercises")
	return cmd
}

func importBank(ctx context.Context, cfg config.Config, log *logger.Logger, file string, withExercises bool) error {
	if file == "" {
		file = cfg.Quiz.BankFile
	}
	if file == "" && !withExercises {
		return fmt.Errorf("no bank file given")
	}
	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	var invalidate func(context.Context, string) error
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		invalidate = redisstore.NewBankCache(client, nil, time.Minute).Invalidate
	}

	if file != "" {
		banks, err := memory.ReadBankFile(file)
		if err != nil {
			return err
		}
		loader := pgstore.NewBankLoader(pool)
		for _, bank := range banks {
			if err := loader.SaveBank(ctx, bank); err != nil {
				return err
			}
			if invalidate != nil {
				if err := invalidate(ctx, bank.ID); err != nil {
					log.Warn("bank cache invalidation failed", "bank_id", bank.ID, "error", err)
				}
			}
			log.Info("bank imported", "bank_id", bank.ID, "questions", len(bank.Questions))
		}
	}

	if withExercises {
		if err := seedExercises(ctx, pgstore.NewExerciseLoader(pool), log, true); err != nil {
			return err
		}
	}
	return nil
}

// seedExercises stores the built-in templates. Without force, an existing catalog is left alone.
func seedExercises(ctx context.Context, loader *pgstore.ExerciseLoader, log *logger.Logger, force bool) error {
	if !force {
		existing, err := loader.ListExercises(ctx, "")
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
	}
	builtin, err := memory.DefaultExerciseCatalog()
	if err != nil {
		return err
	}
	all, err := builtin.ListExercises(ctx, "")
	if err != nil {
		return err
	}
	for _, ex := range all {
		if err := loader.SaveExercise(ctx, ex); err != nil {
			return err
		}
	}
	log.Info("simulator exercises stored", "count", len(all))
	return nil
}
