package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/aegistudio/shaft"
	"github.com/aegistudio/shaft/serpent"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/chaitin/socktrace"
)

type moduleBarrier struct{}

var (
	moduleInits []func() shaft.Option
	allEnabled  bool
	logLevel    = "info"
)

var rootCmd = &cobra.Command{
	Use:  "socktrace",
	Long: "Socket activity tracer",
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		for _, moduleInit := range moduleInits {
			if err := serpent.AddOption(
				cmd, moduleInit()); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: serpent.Executor(shaft.Module(
		shaft.Stack(func(
			next func(*errgroup.Group, context.Context) error,
			rootCtx serpent.CommandContext,
		) error {
			cancelCtx, cancel := context.WithCancel(rootCtx)
			group, ctx := errgroup.WithContext(cancelCtx)
			defer func() { _ = group.Wait() }()
			defer cancel()
			return next(group, ctx)
		}),
		shaft.Invoke(func(
			group *errgroup.Group, _ []moduleBarrier,
			logger *zap.SugaredLogger,
		) error {
			logger.Info("initialization complete")
			return group.Wait()
		}),
		shaft.Provide(func(
			hooks []socktrace.Hook,
		) (*socktrace.Mux, error) {
			mux := socktrace.NewMux()
			if err := mux.Attach(hooks...); err != nil {
				return nil, err
			}
			return mux, nil
		}),
		shaft.Stack(func(
			next func(*zap.Logger, *zap.SugaredLogger) error,
		) error {
			level, err := zapcore.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			consoleLevel := zap.NewAtomicLevelAt(level)
			consoleConfig := zap.NewDevelopmentEncoderConfig()
			consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			consoleErrors := zapcore.Lock(os.Stderr)
			consoleEncoder := zapcore.NewConsoleEncoder(consoleConfig)
			loggerCore := zapcore.NewCore(
				consoleEncoder, consoleErrors, consoleLevel)
			logger := zap.New(loggerCore)
			sugaredLogger := logger.Sugar()
			defer logger.Sync()
			return next(logger, sugaredLogger)
		}),
	)).RunE,
}

// formatTimestamp renders record timestamps for the event
// log lines.
func formatTimestamp(ns uint64) string {
	return time.Unix(0, int64(ns)).
		Format("2006-01-02T15:04:05.999999999")
}

func init() {
	rootCmd.PersistentFlags().BoolVar(
		&allEnabled, "all", allEnabled,
		"enable all trackers")
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", logLevel,
		"setup the log level of the logger")
}

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt)
	defer cancel()
	if err := serpent.ExecuteContext(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}
