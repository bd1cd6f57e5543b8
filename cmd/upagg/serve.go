package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"upagg/internal/aggregation/handler"
	"upagg/internal/aggregation/metrics"
	httpapi "upagg/internal/http"
	"upagg/internal/platform/httpserver"
	httpmetrics "upagg/internal/platform/metrics"
)

func newServeCmd(policyFile *string) *cobra.Command {
	var dataset string
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve result lookups over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx, *policyFile, dataset)
			if err != nil {
				return err
			}
			defer b.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			aggMetrics := metrics.NewWithRegistry(reg)

			if runOnStart || b.memory != nil {
				svc, err := b.service(aggMetrics)
				if err != nil {
					return err
				}
				if _, err := svc.Run(ctx); err != nil {
					return err
				}
			}

			checks := map[string]httpapi.HealthCheck{}
			if b.db != nil {
				checks["postgres"] = b.db.PingContext
			}
			if b.redis != nil {
				checks["redis"] = b.redis.Health
			}
			if b.kafka != nil {
				checks["kafka"] = b.kafka.Ping
			}

			router := httpapi.NewRouter(httpapi.Deps{
				Logger:   b.logger,
				Metrics:  httpmetrics.New(reg),
				Gatherer: reg,
				Checks:   checks,
				Routes:   []httpapi.Registrar{handler.New(b.reader(), b.logger, aggMetrics)},
			})

			srv := httpserver.New(b.cfg.Addr, router)
			b.logger.InfoContext(ctx, "starting upagg", "addr", b.cfg.Addr)
			return httpserver.Serve(ctx, srv, b.logger)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset YAML to resolve at startup and serve from memory")
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run one aggregation before serving")
	return cmd
}
