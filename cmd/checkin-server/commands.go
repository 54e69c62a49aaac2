package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/checkin/internal/app"
	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/config"
	"github.com/BrandonDHaskell/checkin/internal/db"
)

type rootOptions struct {
	envFile string
	verbose bool
	cfg     config.Config
	logger  *logrus.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "checkin-server",
		Short:         "Event check-in engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if opts.envFile != "" {
				files = append(files, opts.envFile)
			}
			if err := config.LoadDotenv(files...); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			opts.cfg = config.FromEnv()
			applyFlags(cmd, &opts.cfg)
			opts.logger = app.NewLogger(opts.cfg.Env, opts.verbose)
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	pf.String("store", "", "backend: sqlite|postgres|memory (overrides CHECKIN_STORE)")
	pf.String("db", "", "sqlite database path (overrides CHECKIN_DB_PATH)")
	pf.String("postgres-dsn", "", "postgres DSN (overrides CHECKIN_POSTGRES_DSN)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedDevCommand(opts))
	cmd.AddCommand(newStaffTokenCommand(opts))

	return cmd
}

// applyFlags copies explicitly set flags over the environment config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	set("store", &cfg.Store)
	set("db", &cfg.DBPath)
	set("postgres-dsn", &cfg.PostgresDSN)
	set("http-addr", &cfg.HTTPAddr)
	set("grpc-addr", &cfg.GRPCAddr)
	set("seed-file", &cfg.SeedFile)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fx, err := app.LoadFixture(opts.cfg.SeedFile)
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(ctx, opts.cfg, fx)
			if err != nil {
				return err
			}
			defer func() {
				if err := stores.Close(); err != nil {
					opts.logger.WithError(err).Warn("close stores")
				}
			}()

			a, err := app.New(opts.cfg, stores, opts.logger)
			if err != nil {
				return err
			}
			opts.logger.WithFields(logrus.Fields{
				"env":   opts.cfg.Env,
				"store": opts.cfg.Store,
			}).Info("checkin-server starting")
			return a.Run(ctx)
		},
	}
	cmd.Flags().String("http-addr", "", "HTTP listen address (overrides CHECKIN_HTTP_ADDR)")
	cmd.Flags().String("grpc-addr", "", "gRPC listen address, empty disables (overrides CHECKIN_GRPC_ADDR)")
	cmd.Flags().String("seed-file", "", "fixture for the memory store (overrides CHECKIN_SEED_FILE)")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := app.OpenDB(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			opts.logger.WithField("store", opts.cfg.Store).Info("migrations applied")
			return nil
		},
	}
}

func newSeedDevCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-dev",
		Short: "Load fixture participants, items and allocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := app.LoadFixture(opts.cfg.SeedFile)
			if err != nil {
				return err
			}
			conn, dialect, err := app.OpenDB(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.SeedDev(cmd.Context(), conn, dialect, fx); err != nil {
				return err
			}
			opts.logger.WithFields(logrus.Fields{
				"participants": len(fx.Participants),
				"allocations":  len(fx.Allocations()),
			}).Info("seeded")
			return nil
		},
	}
	cmd.Flags().String("seed-file", "", "YAML fixture (overrides CHECKIN_SEED_FILE)")
	return cmd
}

func newStaffTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		staffID   int64
		staffType string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "staff-token",
		Short: "Issue a staff bearer token signed with CHECKIN_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := auth.NewVerifier(opts.cfg.JWTSecret)
			if err != nil {
				return err
			}
			tok, err := v.Issue(staffID, staffType, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&staffID, "id", 0, "staff id (required)")
	cmd.Flags().StringVar(&staffType, "type", auth.StaffTypeScanner, "staff type claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
