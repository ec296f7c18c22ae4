package main

import (
	"context"
	"time"

	"github.com/aegistudio/shaft"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/httptrace"
	"github.com/chaitin/socktrace/metrics"
	"github.com/chaitin/socktrace/pkg/httpwire"
)

var (
	httpEnabled bool
	httpPending = httptrace.DefaultPendingCapacity
)

func initHTTPModule() shaft.Option {
	if !(allEnabled || httpEnabled) {
		return shaft.Module()
	}
	return shaft.Module(
		httptrace.Module,
		shaft.Provide(func() []httptrace.Option {
			return []httptrace.Option{
				httptrace.WithPendingCapacity(httpPending),
			}
		}),
		shaft.Provide(func(
			tracker *httptrace.Tracker,
		) []prometheus.Collector {
			return []prometheus.Collector{
				metrics.NewHTTPCollector(tracker),
			}
		}),
		shaft.Provide(func(
			ctx context.Context, group *errgroup.Group,
			logger *zap.SugaredLogger, tracker *httptrace.Tracker,
		) ([]moduleBarrier, error) {
			ch := tracker.Sink().Records()
			group.Go(func() error {
				for {
					var record []byte
					select {
					case <-ctx.Done():
						return nil
					case record = <-ch:
					}
					event, err := socktrace.DecodeHTTPEvent(record)
					if err != nil {
						logger.Warnf("skip http record: %v", err)
						continue
					}
					switch event.Method {
					case httpwire.MethodResponse:
						logger.Infof(
							"%s - http response %s:%d -> %s:%d latency=%s",
							formatTimestamp(event.TimestampNS),
							socktrace.IPv4(event.SrcIP), event.SrcPort,
							socktrace.IPv4(event.DstIP), event.DstPort,
							time.Duration(event.LatencyNS))
					default:
						logger.Infof(
							"%s - http request %s %q %s:%d -> %s:%d",
							formatTimestamp(event.TimestampNS),
							event.Method, event.Path,
							socktrace.IPv4(event.SrcIP), event.SrcPort,
							socktrace.IPv4(event.DstIP), event.DstPort)
					}
				}
			})
			return nil, nil
		}),
	)
}

func init() {
	moduleInits = append(moduleInits, initHTTPModule)
	rootCmd.PersistentFlags().BoolVar(
		&httpEnabled, "http", httpEnabled,
		"correlate http requests for logging")
	rootCmd.PersistentFlags().IntVar(
		&httpPending, "http-pending", httpPending,
		"bound of receive calls correlated at once")
}
