package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datanode/internal/logging"
	"datanode/internal/model"
	"datanode/internal/node"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		mockMode   bool
	)

	cmd := &cobra.Command{
		Use:          "datanode [port] [storage_dir] [datanode_id] [namenode_host] [namenode_port]",
		Short:        "GridDFS DataNode: stores blocks and keeps a session with the NameNode",
		Args:         cobra.MaximumNArgs(5),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			// 根据命令行参数覆盖配置
			if err := applyArgs(config, args); err != nil {
				return err
			}
			if err := validateConfig(config); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			return run(cmd.Context(), config, mockMode)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVar(&mockMode, "mock", false, "Run with an in-process NameNode")
	cmd.AddCommand(newBlockCommand())
	return cmd
}

func run(ctx context.Context, config *model.Config, mockMode bool) error {
	logger, closer, err := logging.New(config.Logging.Level, config.Logging.Output, config.Logging.Format)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting datanode",
		slog.String("datanode_id", config.Server.DatanodeId),
		slog.String("listen_address", config.Server.ListenAddress),
		slog.String("advertise_address", config.Server.AdvertiseAddress),
		slog.String("storage", config.Storage.DataRootPath),
		slog.String("capacity", humanize.Bytes(uint64(config.Storage.CapacityBytes))),
		slog.Bool("mock", mockMode))

	n, err := node.New(node.Options{Config: config, Mock: mockMode, Logger: logger})
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := n.Start(ctx); err != nil {
		return err
	}

	waitForShutdown(ctx, n, config, logger)
	logger.Info("datanode shutdown complete")
	return nil
}

// waitForShutdown 等待关闭信号并优雅关闭
func waitForShutdown(ctx context.Context, n *node.Node, config *model.Config, logger *slog.Logger) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()
	logger.Info("initiating graceful shutdown")

	shutdownTimeout := model.Seconds(config.Shutdown.Timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownComplete := make(chan error, 1)
	go func() {
		shutdownComplete <- n.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-shutdownComplete:
		if err != nil {
			logger.Warn("shutdown finished with errors", slog.Any("error", err))
		} else {
			logger.Info("graceful shutdown completed")
		}
	case <-time.After(shutdownTimeout + time.Second):
		logger.Warn("shutdown timeout reached, forcing exit")
	}
}
