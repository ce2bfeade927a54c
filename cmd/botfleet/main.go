package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prohmpiriya/botfleet/internal/repository"
	"github.com/prohmpiriya/botfleet/pkg/config"
	"github.com/prohmpiriya/botfleet/pkg/database"
	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/middleware"
)

var (
	Version = "dev"

	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "botfleet",
		Short:         "Multi-tenant chat bot fleet runtime",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to an env file (default: ./.env when present)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.LoadWithPath(envFile)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
		OutputPath:  cfg.Log.OutputPath,
	})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.IsMemory() {
				return fmt.Errorf("migrate needs DATABASE_DRIVER=postgres")
			}

			ctx := cmd.Context()
			db, err := database.NewPostgres(ctx, &database.PostgresConfig{
				Host:     cfg.Database.Host,
				Port:     cfg.Database.Port,
				User:     cfg.Database.User,
				Password: cfg.Database.Password,
				Database: cfg.Database.DBName,
				SSLMode:  cfg.Database.SSLMode,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.Migrate(ctx, db.Pool()); err != nil {
				return err
			}
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token for POST /admin/create-tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.TokenTTL
			}
			token, err := middleware.GenerateToken(cfg.JWT.Secret, subject, middleware.RoleAdmin, cfg.JWT.Issuer, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: JWT_TOKEN_TTL)")
	return cmd
}
