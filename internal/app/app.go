package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/config"
	"github.com/BrandonDHaskell/checkin/internal/grpcapi"
	"github.com/BrandonDHaskell/checkin/internal/httpapi"
	"github.com/BrandonDHaskell/checkin/internal/ratelimit"
)

const shutdownTimeout = 5 * time.Second

// NewLogger returns a JSON logger in prod and a text logger otherwise.
func NewLogger(env string, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if env == "prod" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// reconcileGrace keeps the reconciler well clear of in-flight audit
// appends: twice the append timeout, and never under a minute.
func reconcileGrace(auditTimeout time.Duration) time.Duration {
	g := 2 * auditTimeout
	if g < time.Minute {
		g = time.Minute
	}
	return g
}

// App holds the assembled engine.
type App struct {
	cfg        config.Config
	logger     logrus.FieldLogger
	stores     *Stores
	http       *httpapi.Server
	grpc       *grpc.Server
	reconciler *service.AuditReconciler
}

// New wires services and transports over stores. It starts nothing.
func New(cfg config.Config, stores *Stores, logger logrus.FieldLogger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		v, err := auth.NewVerifier(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else if cfg.RequireStaffAuth {
		return nil, fmt.Errorf("staff auth required: %w", auth.ErrMissingSecret)
	}

	limiter := ratelimit.New(cfg.ScanRatePerSec, cfg.ScanBurst)

	svc := service.NewCheckInService(
		service.NewResolver(stores.Participants, m),
		stores.Allocations,
		service.NewAuditLog(stores.Logs, cfg.AuditTimeout, logger, m),
		logger,
		m,
	)

	a := &App{
		cfg:    cfg,
		logger: logger,
		stores: stores,
		http: httpapi.NewServer(httpapi.Dependencies{
			Logger:           logger,
			Addr:             cfg.HTTPAddr,
			CheckIn:          svc,
			Verifier:         verifier,
			RequireStaffAuth: cfg.RequireStaffAuth,
			Limiter:          limiter,
			Metrics:          m,
			Gatherer:         reg,
		}),
		reconciler: service.NewAuditReconciler(stores.Gaps, stores.Backfill, service.ReconcilerConfig{
			IntervalMinutes: cfg.ReconcileIntervalMin,
			Backfill:        cfg.ReconcileBackfill,
			Grace:           reconcileGrace(cfg.AuditTimeout),
		}, logger, m),
	}
	if cfg.GRPCAddr != "" {
		a.grpc = grpcapi.NewServer(grpcapi.Dependencies{
			Logger:           logger,
			CheckIn:          svc,
			Verifier:         verifier,
			RequireStaffAuth: cfg.RequireStaffAuth,
			Limiter:          limiter,
			Metrics:          m,
		})
	}
	return a, nil
}

// Run serves until ctx is cancelled or a listener fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	var lis net.Listener
	if a.grpc != nil {
		l, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		lis = l
	}

	g, ctx := errgroup.WithContext(ctx)

	a.reconciler.Start(ctx)
	defer a.reconciler.Stop()

	g.Go(func() error {
		a.logger.WithField("addr", a.cfg.HTTPAddr).Info("http listening")
		if err := a.http.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if a.grpc != nil {
		g.Go(func() error {
			a.logger.WithField("addr", a.cfg.GRPCAddr).Info("grpc listening")
			if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if a.grpc != nil {
			a.grpc.GracefulStop()
		}
		return a.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
