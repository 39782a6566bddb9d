package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/atlekbai/treefinder/internal/access"
	"github.com/atlekbai/treefinder/internal/config"
	"github.com/atlekbai/treefinder/internal/db"
	"github.com/atlekbai/treefinder/internal/finder"
	"github.com/atlekbai/treefinder/internal/logger"
	"github.com/atlekbai/treefinder/internal/schema"
)

var rootCmd = &cobra.Command{
	Use:           "treefinder",
	Short:         "Find pages in a content tree with selector strings",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is everything a command needs to run finds.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	reg    *schema.Registry
	acl    *access.Filter
	store  *access.Store
	finder *finder.Finder
}

func (a *app) Close() { a.pool.Close() }

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logger.Get()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	reg, err := schema.NewRegistry(nil, nil, nil)
	if err != nil {
		pool.Close()
		return nil, err
	}
	acl, err := access.NewFilter(reg, cfg.GuestRoleID, cfg.AccessCacheSize)
	if err != nil {
		pool.Close()
		return nil, err
	}
	reg.OnChange(acl.Invalidate)
	if err := reg.Load(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("load schema registry: %w", err)
	}
	log.Info("schema registry loaded",
		"fields", reg.FieldCount(),
		"templates", reg.TemplateCount(),
		"languages", len(reg.Languages()),
	)

	f := finder.New(reg, pool, acl, finder.Config{
		MaxDepth:          cfg.MaxSelectorDepth,
		LanguagePageNames: cfg.LanguagePageNames,
		Logger:            log,
	})
	return &app{
		cfg:    cfg,
		pool:   pool,
		reg:    reg,
		acl:    acl,
		store:  access.NewStore(pool, cfg.SuperuserRoleID),
		finder: f,
	}, nil
}
