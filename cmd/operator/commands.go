package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/azure-storage-migration-kit/blob"
	"github.com/ruteri/azure-storage-migration-kit/cmd/flags"
	"github.com/ruteri/azure-storage-migration-kit/common"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
	"github.com/ruteri/azure-storage-migration-kit/metrics"
	"github.com/ruteri/azure-storage-migration-kit/scanner"
	"github.com/ruteri/azure-storage-migration-kit/storage"
	"github.com/ruteri/azure-storage-migration-kit/table"
	"github.com/urfave/cli/v2"
)

// exitMigrationIncomplete is the exit code of a scan that found an unmigrated blob.
const exitMigrationIncomplete = 2

// factory is shared by the commands of one process so that memory:// accounts persist
// between calls.
var factory *storage.ClientFactory

func clientFactory(log *slog.Logger) *storage.ClientFactory {
	if factory == nil {
		factory = storage.NewClientFactory(log)
	}
	return factory
}

// entityMetrics counts entity writes of this process. It is not served.
var entityMetricsSrv *metrics.MetricsServer

func entityMetrics() (*metrics.MetricsServer, error) {
	if entityMetricsSrv == nil {
		m, err := metrics.New(common.PackageName, "")
		if err != nil {
			return nil, err
		}
		entityMetricsSrv = m
	}
	return entityMetricsSrv, nil
}

func signalContext(cCtx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
}

func checkBlobMigration(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	tagName, tagValue := cCtx.String(flagTagName.Name), cCtx.String(flagTagValue.Name)
	if (tagName == "") != (tagValue == "") {
		return cli.Exit("--tag-name and --tag-value must be given together", 1)
	}

	ctx, cancel := signalContext(cCtx)
	defer cancel()

	f := clientFactory(logger)
	target, err := f.ServiceFor(ctx, cCtx.String(flags.TargetStorageFlag.Name))
	if err != nil {
		return fmt.Errorf("target storage: %w", err)
	}
	stateful, err := f.ServiceFor(ctx, cCtx.String(flags.StatefulStorageFlag.Name))
	if err != nil {
		return fmt.Errorf("stateful storage: %w", err)
	}

	metricsAddr := cCtx.String(flagScanMetricsAddr.Name)
	metricsSrv, err := metrics.New(common.PackageName, metricsAddr)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		go func() {
			logger.Info("Starting metrics server", "metricsAddress", metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil {
				logger.Error("Metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown failed", "err", err)
			}
		}()
	}

	s, err := scanner.New(target, stateful, scanner.Config{
		ScanID:   cCtx.String(flagScanID.Name),
		TagName:  tagName,
		TagValue: tagValue,
		PageSize: int32(cCtx.Int(flagPageSize.Name)),
		Reset:    cCtx.Bool(flagReset.Name),
		Log:      logger,
		Observer: metricsSrv.Scan(),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	res, err := s.Run(ctx)
	if errors.Is(err, interfaces.ErrMigrationIncomplete) {
		return cli.Exit(err.Error(), exitMigrationIncomplete)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cCtx.App.Writer, "scanned %d blobs in %d containers (%d skipped) of %s in %s\n",
		res.BlobsScanned, res.ContainersScanned, res.ContainersSkipped, res.Account, res.Duration.Round(time.Millisecond))
	return nil
}

func openBlobService(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*blob.ServiceClientWithFallback, error) {
	newLocation := cCtx.String(flags.NewStorageFlag.Name)
	if newLocation == "" {
		return nil, cli.Exit("--new-storage is required", 1)
	}

	f := clientFactory(logger)
	primary, err := f.ServiceFor(ctx, newLocation)
	if err != nil {
		return nil, fmt.Errorf("new storage: %w", err)
	}

	var secondary interfaces.ServiceHandle
	if oldLocation := cCtx.String(flags.OldStorageFlag.Name); oldLocation != "" {
		if secondary, err = f.ServiceFor(ctx, oldLocation); err != nil {
			return nil, fmt.Errorf("old storage: %w", err)
		}
	}

	tracker := func(containerName, blobName string) {
		logger.Info("Blob served by the legacy account", slog.String("container", containerName), slog.String("blob", blobName))
	}
	return blob.NewServiceClientWithFallback(primary, secondary, tracker, logger)
}

func blobClient(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*blob.BlobClientWithFallback, error) {
	svc, err := openBlobService(ctx, cCtx, logger)
	if err != nil {
		return nil, err
	}
	containerName := cCtx.String(flagContainer.Name)
	fallbackContainer := cCtx.String(flagFallbackContainer.Name)
	if fallbackContainer == "" {
		fallbackContainer = containerName
	}
	return svc.ContainerClientOnDifferentContainerNames(containerName, fallbackContainer).BlobClient(cCtx.String(flagBlob.Name)), nil
}

func blobExists(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := signalContext(cCtx)
	defer cancel()

	client, err := blobClient(ctx, cCtx, logger)
	if err != nil {
		return err
	}
	exists, err := client.Exists(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, exists)
	return nil
}

func getBlob(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := signalContext(cCtx)
	defer cancel()

	client, err := blobClient(ctx, cCtx, logger)
	if err != nil {
		return err
	}

	if cCtx.Bool(flagSAS.Name) {
		sasURL, err := client.GenerateSASURL(ctx, interfaces.SASOptions{
			Permissions: interfaces.SASPermissions{Read: true},
			ExpiresOn:   time.Now().UTC().Add(cCtx.Duration(flagSASExpiry.Name)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cCtx.App.Writer, sasURL)
		return nil
	}

	body, err := client.Download(ctx, nil)
	if err != nil {
		return err
	}
	defer body.Close()

	out := cCtx.App.Writer
	if path := cCtx.String(flagOutput.Name); path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	n, err := io.Copy(out, body)
	if err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	logger.Debug("Blob downloaded", slog.Int64("bytes", n))
	return nil
}

func openTable(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, opts ...table.Option) (*table.DualClient, error) {
	f := clientFactory(logger)
	tableName := cCtx.String(flagTable.Name)

	var newTable, oldTable interfaces.TableHandle
	var err error
	if location := cCtx.String(flags.NewStorageFlag.Name); location != "" {
		if newTable, err = f.TableFor(ctx, location, tableName); err != nil {
			return nil, fmt.Errorf("new storage: %w", err)
		}
	}
	if location := cCtx.String(flags.OldStorageFlag.Name); location != "" {
		if oldTable, err = f.TableFor(ctx, location, tableName); err != nil {
			return nil, fmt.Errorf("old storage: %w", err)
		}
	}
	return table.NewDualClient(oldTable, newTable, append([]table.Option{table.WithLogger(logger)}, opts...)...)
}

func listEntities(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := signalContext(cCtx)
	defer cancel()

	client, err := openTable(ctx, cCtx, logger)
	if err != nil {
		return err
	}

	pager := client.ListEntities(ctx, &interfaces.ListEntitiesOptions{
		Filter: cCtx.String(flagFilter.Name),
		Select: cCtx.StringSlice(flagSelect.Name),
		Top:    int32(cCtx.Int(flagTop.Name)),
	})
	count := 0
	for entity, err := range pager.All() {
		if err != nil {
			return err
		}
		line, err := storage.MarshalEntity(entity)
		if err != nil {
			return err
		}
		fmt.Fprintln(cCtx.App.Writer, string(line))
		count++
	}
	logger.Debug("Listed entities", slog.String("table", client.Name()), slog.Int("count", count))
	return nil
}

func createEntity(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := signalContext(cCtx)
	defer cancel()

	var properties map[string]any
	if err := json.Unmarshal([]byte(cCtx.String(flagProperties.Name)), &properties); err != nil {
		return cli.Exit(fmt.Sprintf("--properties must be a JSON object: %v", err), 1)
	}

	m, err := entityMetrics()
	if err != nil {
		return err
	}
	countFailure := m.Fallback().EntityErrorHandler(cCtx.String(flagTable.Name))

	var secondaryFailed bool
	client, err := openTable(ctx, cCtx, logger, table.WithErrorHandler(func(err error, entity interfaces.Entity) {
		secondaryFailed = true
		countFailure(err, entity)
	}))
	if err != nil {
		return err
	}

	receipt, err := client.CreateEntity(ctx, interfaces.Entity{
		PartitionKey: cCtx.String(flagPartitionKey.Name),
		RowKey:       cCtx.String(flagRowKey.Name),
		Properties:   properties,
	})
	if err != nil {
		return err
	}
	if secondaryFailed {
		logger.Warn("Entity was not mirrored to the legacy table")
	}
	fmt.Fprintln(cCtx.App.Writer, receipt.ETag)
	return nil
}
