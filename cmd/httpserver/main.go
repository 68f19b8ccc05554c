package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/azure-storage-migration-kit/blob"
	"github.com/ruteri/azure-storage-migration-kit/cmd/flags"
	"github.com/ruteri/azure-storage-migration-kit/common"
	"github.com/ruteri/azure-storage-migration-kit/httpserver"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
	"github.com/ruteri/azure-storage-migration-kit/metrics"
	"github.com/ruteri/azure-storage-migration-kit/storage"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

func main() {
	app := &cli.App{
		Name:  "httpserver",
		Usage: "Serve migration checkpoints and blob lookups",
		Flags: append([]cli.Flag{
			flagListenAddr,
			flags.StatefulStorageFlag,
			flags.NewStorageFlag,
			flags.OldStorageFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name))
			ctx := cCtx.Context

			factory := storage.NewClientFactory(logger)
			stateful, err := factory.ServiceFor(ctx, cCtx.String(flags.StatefulStorageFlag.Name))
			if err != nil {
				return fmt.Errorf("stateful storage: %w", err)
			}

			metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			var blobs *blob.ServiceClientWithFallback
			if newLocation := cCtx.String(flags.NewStorageFlag.Name); newLocation != "" {
				primary, err := factory.ServiceFor(ctx, newLocation)
				if err != nil {
					return fmt.Errorf("new storage: %w", err)
				}
				var secondary interfaces.ServiceHandle
				if oldLocation := cCtx.String(flags.OldStorageFlag.Name); oldLocation != "" {
					if secondary, err = factory.ServiceFor(ctx, oldLocation); err != nil {
						return fmt.Errorf("old storage: %w", err)
					}
				}
				if blobs, err = blob.NewServiceClientWithFallback(primary, secondary, metricsSrv.Fallback().Tracker(), logger); err != nil {
					return err
				}
			} else {
				logger.Warn("No --new-storage given, blob lookups are disabled")
			}

			server, err := httpserver.New(cfg, httpserver.NewHandler(stateful, blobs, logger), metricsSrv)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
