package main

import (
	"context"
	"fmt"

	"github.com/aegistudio/shaft"
	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/dnstrace"
	"github.com/chaitin/socktrace/metrics"
)

var (
	dnsEnabled bool
)

func initDNSModule() shaft.Option {
	if !(allEnabled || dnsEnabled) {
		return shaft.Module()
	}
	return shaft.Module(
		dnstrace.Module,
		shaft.Provide(func(
			tracker *dnstrace.Tracker,
		) []prometheus.Collector {
			return []prometheus.Collector{
				metrics.NewDNSCollector(tracker),
			}
		}),
		shaft.Provide(func(
			ctx context.Context, group *errgroup.Group,
			logger *zap.SugaredLogger, tracker *dnstrace.Tracker,
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
					event, err := socktrace.DecodeDNSEvent(record)
					if err != nil {
						logger.Warnf("skip dns record: %v", err)
						continue
					}
					queryType := dns.TypeToString[event.QueryType]
					if queryType == "" {
						queryType = fmt.Sprintf(
							"TYPE%d", event.QueryType)
					}
					logger.Infof(
						"%s - dns query %s:%d -> %s %s %q",
						formatTimestamp(event.TimestampNS),
						socktrace.IPv4(event.SrcIP), event.SrcPort,
						socktrace.IPv4(event.DstIP),
						queryType, event.QueryName)
				}
			})
			return nil, nil
		}),
	)
}

func init() {
	moduleInits = append(moduleInits, initDNSModule)
	rootCmd.PersistentFlags().BoolVar(
		&dnsEnabled, "dns", dnsEnabled,
		"extract dns queries for logging")
}
