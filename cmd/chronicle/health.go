package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

func newHealthCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the database and report pool usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withInternalDeps(ctx, func(d *internalDeps) error {
				report := d.pool.Health(ctx)
				if asJSON {
					if err := printJSON(report); err != nil {
						return err
					}
				} else {
					displayHealth(report)
				}
				if report.Status != dbpool.StatusOK {
					return errors.New("database is degraded")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func displayHealth(r dbpool.HealthReport) {
	fmt.Printf("Status:   %s\n", r.Status)
	fmt.Printf("Driver:   %s %s\n", r.Driver, r.ServerVersion)
	fmt.Printf("Latency:  %s\n", r.Latency.Round(time.Microsecond))
	fmt.Printf("Sessions: %d open, %d in use, %d idle, %d max\n", r.OpenSessions, r.InUse, r.Idle, r.MaxSessions)
	fmt.Printf("Waits:    %d (%s)\n", r.WaitCount, r.WaitDuration.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
}

func newMonitorCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve Prometheus metrics and a health endpoint",
		Long:  "Serves /metrics and /healthz until interrupted. The address defaults to metrics.listen from the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withInternalDeps(ctx, func(d *internalDeps) error {
				addr := listen
				if addr == "" {
					addr = d.Config.Metrics.Listen
				}
				return serveMonitor(ctx, addr, d.pool)
			})
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, e.g. :9464")

	return cmd
}

func monitorMux(pool *dbpool.Manager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := pool.Health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status != dbpool.StatusOK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			log.WithError(err).Warn("writing health response")
		}
	})
	return mux
}

func serveMonitor(ctx context.Context, addr string, pool *dbpool.Manager) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           monitorMux(pool),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithField("addr", addr).Info("monitor listening")
	fmt.Printf("Serving /metrics and /healthz on %s\n", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving monitor: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
