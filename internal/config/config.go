// Package config loads the handful of knobs cachectl needs, the way the
// teacher's cmd/server/main.go builds its flag set directly rather than
// pulling in a config-file framework.
package config

import (
	"flag"
	"time"
)

// Config holds cachectl's runtime settings.
type Config struct {
	ClusterName     string
	MetricsAddr     string
	RefreshInterval time.Duration
	TaskCache       bool
}

// Parse parses args (typically os.Args[1:]) with its own "cachectl" flag
// set into a Config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("cachectl", flag.ContinueOnError)
	cfg := &Config{}
	fs.StringVar(&cfg.ClusterName, "cluster", "", "cluster name")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", ":9108", "address to serve /metrics on")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", 5*time.Second, "interval between autonomous refreshes")
	fs.BoolVar(&cfg.TaskCache, "task-cache", false, "serve the task pipeline's cache variant instead of the main pipeline's")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
