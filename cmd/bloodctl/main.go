// Package main содержит утилиту администрирования сервиса донорства.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/config"
	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/seed"
)

// App хранит зависимости, общие для команд.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	ctx    context.Context
}

var (
	storageDriver string
	app           *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodctl",
		Short: "Administrative tool for the blood donation service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil && app.logger != nil {
				app.logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&storageDriver, "storage", "s", "", "storage driver: memory, mongo or postgres (overrides STORAGE_DRIVER)")

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(indexesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initApp() error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if storageDriver != "" {
		cfg.StorageDriver = storageDriver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app = &App{
		cfg:    cfg,
		logger: logger,
		ctx:    context.Background(),
	}
	return nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <users.yaml>",
		Short: "Create users listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.cfg.StorageDriver == config.StorageMemory {
				return errors.New("seeding the in-memory store has no effect, use SEED_FILE with the server instead")
			}

			f, err := seed.LoadFromPath(args[0])
			if err != nil {
				return err
			}

			repo, err := repository.Open(app.cfg, app.logger)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer repo.Close()

			users := f.Models(time.Now().UTC())
			created, err := seed.Apply(app.ctx, repo, users, app.logger)
			if err != nil {
				return err
			}

			fmt.Printf("Created %d of %d users, existing ones skipped\n", len(created), len(users))
			for _, u := range created {
				fmt.Printf("  %-36s  %-20s  %s\n", u.ID, u.Role, u.Email)
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set to issue tokens the server accepts")
			}
			p := model.Principal{UserID: userID, Role: model.Role(role)}
			if !p.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}

			auth := middleware.NewAuthMiddleware(app.cfg.JWTSecret)
			token, err := auth.IssueToken(p, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(model.RoleDonor), "donor or medical_institution")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")

	return cmd
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create MongoDB indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.cfg.StorageDriver != config.StorageMongo {
				return fmt.Errorf("indexes are managed by migrations for the %s driver", app.cfg.StorageDriver)
			}

			repo, err := repository.NewMongoRepository(app.cfg.MongoURI, app.cfg.MongoDatabase, app.logger)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer repo.Close()

			ctx, cancel := context.WithTimeout(app.ctx, 30*time.Second)
			defer cancel()

			if err := repo.EnsureIndexes(ctx); err != nil {
				return err
			}
			fmt.Println("Indexes are up to date")
			return nil
		},
	}
}
