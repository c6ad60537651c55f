package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielpatrickdp/adaptive-dbn/internal/metrics"
	"github.com/danielpatrickdp/adaptive-dbn/internal/server"
	"github.com/danielpatrickdp/adaptive-dbn/internal/update"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// #region serve
func newServeCmd(a *app) *cobra.Command {
	var addr, metricsAddr string
	var commitEvery int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve inference and online learning over gRPC",
		Long: `Loads the active network and serves dbn.v1.Network (Infer, Update,
Parents, Unroll). Updates are logged to the store and the network is
snapshotted as a new version every --commit-every committed updates and on
shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.Server.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("commit-every") {
				a.cfg.Server.CommitEvery = commitEvery
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC listen address (overrides config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for /metrics (overrides config)")
	cmd.Flags().IntVar(&commitEvery, "commit-every", 0, "snapshot after N committed updates (overrides config)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.GetCurrent()
	if err != nil {
		return fmt.Errorf("no active network (run init first): %w", err)
	}
	n, err := rec.Network()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	srv, err := server.New(n, server.Options{
		Store:       store,
		VersionID:   rec.VersionID,
		CommitEvery: a.cfg.Server.CommitEvery,
		Learner:     update.Config{LearningRate: a.cfg.Learner.LearningRate},
		Metrics:     m,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	g := grpc.NewServer()
	srv.Register(g)

	var httpSrv *http.Server
	if a.cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		httpSrv = &http.Server{Addr: a.cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	a.logger.Info("serving",
		zap.String("network", n.Name),
		zap.String("version_id", rec.VersionID),
		zap.String("addr", lis.Addr().String()),
		zap.String("metrics_addr", a.cfg.Server.MetricsAddr),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- g.Serve(lis) }()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		g.GracefulStop()
		<-errCh
	case err = <-errCh:
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if flushErr := srv.Flush(); flushErr != nil {
		return errors.Join(err, flushErr)
	}
	if err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	a.logger.Info("stopped", zap.String("version_id", srv.VersionID()))
	return nil
}

// #endregion serve
