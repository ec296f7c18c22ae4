package main

import (
	"context"

	"github.com/aegistudio/shaft"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/replay"
)

var (
	pcapPath string
)

func initReplayModule() shaft.Option {
	if pcapPath == "" {
		return shaft.Module()
	}
	return shaft.Module(
		shaft.Provide(func(
			ctx context.Context, group *errgroup.Group,
			logger *zap.SugaredLogger, mux *socktrace.Mux,
		) ([]moduleBarrier, error) {
			replayer := replay.New(mux,
				replay.WithLogger(logger.Named("replay")))
			group.Go(func() error {
				return replayer.ReplayFile(ctx, pcapPath)
			})
			return nil, nil
		}),
	)
}

func init() {
	moduleInits = append(moduleInits, initReplayModule)
	rootCmd.PersistentFlags().StringVar(
		&pcapPath, "pcap", pcapPath,
		"capture file to replay into the trackers")
}
