// Command cachectl runs a cluster-data aggregator against a metadata
// store, refreshing it on a fixed interval and exposing refresh metrics
// over HTTP, the way the teacher's cmd/server wires its Redis-protocol
// server: parse flags, build the pieces, start them, wait for a signal,
// shut down in reverse order.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/10yihang/clustercache/internal/clusterdata"
	"github.com/10yihang/clustercache/internal/config"
	"github.com/10yihang/clustercache/internal/fakeaccessor"
	"github.com/10yihang/clustercache/internal/metrics"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if cfg.ClusterName == "" {
		log.Fatal("-cluster is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	// The coordination-service client is an external collaborator (spec
	// §1's out-of-scope list); this demo binary refreshes against an empty
	// in-memory fake and seeds no data into it.
	acc := fakeaccessor.New(cfg.ClusterName)

	aggregator := clusterdata.New(cfg.ClusterName, cfg.TaskCache, logger)

	exporter := metrics.NewExporter(cfg.MetricsAddr)
	go func() {
		if err := exporter.Start(); err != nil {
			logger.Warn("metrics exporter stopped", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := aggregator.Refresh(acc); err != nil {
					logger.Error("refresh failed", zap.Error(err))
					aggregator.RequireFullRefresh()
				}
			case <-done:
				return
			}
		}
	}()

	logger.Info("cachectl started",
		zap.String("cluster", cfg.ClusterName),
		zap.String("metricsAddr", cfg.MetricsAddr),
		zap.Duration("refreshInterval", cfg.RefreshInterval),
		zap.Bool("taskCache", cfg.TaskCache))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exporter.Stop(ctx); err != nil {
		logger.Warn("error stopping metrics exporter", zap.Error(err))
	}
}
