package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/ensemble"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the reduction coordinator for a distributed ensemble",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "listen address",
			},
			&cli.IntFlag{
				Name:     "members",
				Aliases:  []string{"n"},
				Required: true,
				Usage:    "number of ensemble members per reduction",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	logger, ctx, cancel := setup(c)
	defer cancel()
	defer syncLogger(logger)

	members := c.Int("members")
	if members <= 0 {
		return fmt.Errorf("members must be positive, got %d", members)
	}

	coordinator := ensemble.NewCoordinator(logger, members)
	defer coordinator.PrintStatistics()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "ensemble",
			Name:      "coordinator_rounds_completed_total",
			Help:      "Reduction rounds answered to every member.",
		}, func() float64 { return float64(coordinator.Completed()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "ensemble",
			Name:      "coordinator_rounds_aborted_total",
			Help:      "Reduction rounds failed before completion.",
		}, func() float64 { return float64(coordinator.Aborted()) }),
	)

	mux := http.NewServeMux()
	mux.Handle("/reduce", coordinator)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return listenAndServe(ctx, logger, c.String("addr"), mux)
}

func listenAndServe(ctx context.Context, logger *zap.Logger, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
