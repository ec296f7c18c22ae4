package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aegistudio/shaft"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/conntrack"
	"github.com/chaitin/socktrace/metrics"
)

var (
	connEnabled bool
)

func initConnModule() shaft.Option {
	if !(allEnabled || connEnabled) {
		return shaft.Module()
	}
	return shaft.Module(
		conntrack.Module,
		shaft.Provide(func(
			tracker *conntrack.Tracker,
		) []prometheus.Collector {
			return []prometheus.Collector{
				metrics.NewConnCollector(tracker),
			}
		}),
		shaft.Provide(func(
			ctx context.Context, group *errgroup.Group,
			logger *zap.SugaredLogger, tracker *conntrack.Tracker,
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
					event, err := socktrace.DecodeConnEvent(record)
					if err != nil {
						logger.Warnf("skip conn record: %v", err)
						continue
					}
					eventProto := fmt.Sprintf("%d", event.Protocol)
					switch event.Protocol {
					case unix.IPPROTO_TCP:
						eventProto = "tcp"
					case unix.IPPROTO_UDP:
						eventProto = "udp"
					}
					logger.Infof(
						"%s - conn_%s %s:%d -> %s:%d dur=%s retrans=%d",
						formatTimestamp(event.TimestampNS), eventProto,
						socktrace.IPv4(event.SrcIP), event.SrcPort,
						socktrace.IPv4(event.DstIP), event.DstPort,
						time.Duration(event.DurationNS),
						event.Retransmits)
				}
			})
			return nil, nil
		}),
	)
}

func init() {
	moduleInits = append(moduleInits, initConnModule)
	rootCmd.PersistentFlags().BoolVar(
		&connEnabled, "conn", connEnabled,
		"track connection lifecycles for logging")
}
