package cli

import (
	"context"
	"fmt"

	"anoa.com/promptvault/internal/config"
	"anoa.com/promptvault/pkg/cache"
	"anoa.com/promptvault/pkg/database"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Env is what a command needs to talk to the stores.
type Env struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
}

// Opener builds an Env. The returned func releases it.
type Opener func(ctx context.Context) (*Env, func(), error)

// NewRootCommand creates the root command for ledgerctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openFromConfig)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for promptvault",
		Long:          "Runs the relationship sweep and audits credit ledgers against the configured database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func openFromConfig(ctx context.Context) (*Env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(cfg.DSN(), database.Options{MaxOpenConns: 4})
	if err != nil {
		return nil, nil, err
	}
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		closeDB(db)
		return nil, nil, err
	}

	release := func() {
		if rdb != nil {
			rdb.Close()
		}
		closeDB(db)
	}
	return &Env{Config: cfg, DB: db, Redis: rdb}, release, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
