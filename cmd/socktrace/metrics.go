package main

import (
	"context"
	"net/http"

	"github.com/aegistudio/shaft"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	metricsAddr string
)

func initMetricsModule() shaft.Option {
	if metricsAddr == "" {
		return shaft.Module()
	}
	return shaft.Module(
		shaft.Provide(func(
			ctx context.Context, group *errgroup.Group,
			logger *zap.SugaredLogger,
			collectors []prometheus.Collector,
		) ([]moduleBarrier, error) {
			prometheus.MustRegister(collectors...)
			serveMux := http.NewServeMux()
			serveMux.Handle("/metrics", promhttp.Handler())
			server := &http.Server{
				Addr:    metricsAddr,
				Handler: serveMux,
			}
			group.Go(func() error {
				logger.Infof("serving metrics on %s", metricsAddr)
				err := server.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-ctx.Done()
				return server.Shutdown(context.Background())
			})
			return nil, nil
		}),
	)
}

func init() {
	moduleInits = append(moduleInits, initMetricsModule)
	rootCmd.PersistentFlags().StringVar(
		&metricsAddr, "metrics", metricsAddr,
		"address to serve prometheus metrics on")
}
