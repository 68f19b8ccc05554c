package main

import (
	"log"
	"os"

	"github.com/ruteri/azure-storage-migration-kit/cmd/flags"
	"github.com/ruteri/azure-storage-migration-kit/storage"
	"github.com/urfave/cli/v2"
)

var flagScanID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "scan id, names the stateful container holding the checkpoint",
}
var flagTagName = &cli.StringFlag{
	Name:  "tag-name",
	Usage: "blob index tag every scanned blob must carry, requires --tag-value",
}
var flagTagValue = &cli.StringFlag{
	Name:  "tag-value",
	Usage: "expected value of --tag-name",
}
var flagReset = &cli.BoolFlag{
	Name:  "reset",
	Usage: "ignore the stored checkpoint and scan every container again",
}
var flagPageSize = &cli.IntFlag{
	Name:  "page-size",
	Value: 1,
	Usage: "blobs listed between two checkpoints",
}
var flagScanMetricsAddr = &cli.StringFlag{
	Name:  "metrics-addr",
	Usage: "address to serve Prometheus metrics on while the scan runs",
}

var flagContainer = &cli.StringFlag{
	Name:     "container",
	Required: true,
	Usage:    "container name on the new account",
}
var flagFallbackContainer = &cli.StringFlag{
	Name:  "fallback-container",
	Usage: "container name on the legacy account, defaults to --container",
}
var flagBlob = &cli.StringFlag{
	Name:     "blob",
	Required: true,
	Usage:    "blob name",
}
var flagSAS = &cli.BoolFlag{
	Name:  "sas",
	Usage: "print a read-only SAS url instead of the content",
}
var flagSASExpiry = &cli.DurationFlag{
	Name:  "sas-expiry",
	Value: storage.SASExpiry,
	Usage: "validity of the SAS url",
}
var flagOutput = &cli.StringFlag{
	Name:  "output",
	Value: "-",
	Usage: "file to write the blob to, - for stdout",
}

var flagTable = &cli.StringFlag{
	Name:     "table",
	Required: true,
	Usage:    "table name, identical on both accounts",
}
var flagFilter = &cli.StringFlag{
	Name:  "filter",
	Usage: "OData filter expression",
}
var flagSelect = &cli.StringSliceFlag{
	Name:  "select",
	Usage: "properties to return",
}
var flagTop = &cli.IntFlag{
	Name:  "top",
	Usage: "maximum entities per page",
}
var flagPartitionKey = &cli.StringFlag{
	Name:     "partition-key",
	Required: true,
}
var flagRowKey = &cli.StringFlag{
	Name:     "row-key",
	Required: true,
}
var flagProperties = &cli.StringFlag{
	Name:  "properties",
	Value: "{}",
	Usage: "entity properties as a JSON object",
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "operator",
		Usage: "Operate a storage account migration",
		Flags: flags.LogFlags,
		Commands: []*cli.Command{
			{
				Name:  "check-blob-migration",
				Usage: "Scan every blob of the target account, checkpointing progress to the stateful account",
				Flags: []cli.Flag{
					flagScanID,
					flags.StatefulStorageFlag,
					flags.TargetStorageFlag,
					flagTagName,
					flagTagValue,
					flagReset,
					flagPageSize,
					flagScanMetricsAddr,
				},
				Action: checkBlobMigration,
			},
			{
				Name:  "blob-exists",
				Usage: "Check a blob on the new account, then on the legacy account",
				Flags: []cli.Flag{
					flags.NewStorageFlag,
					flags.OldStorageFlag,
					flagContainer,
					flagFallbackContainer,
					flagBlob,
				},
				Action: blobExists,
			},
			{
				Name:  "get-blob",
				Usage: "Download a blob from whichever account holds it",
				Flags: []cli.Flag{
					flags.NewStorageFlag,
					flags.OldStorageFlag,
					flagContainer,
					flagFallbackContainer,
					flagBlob,
					flagSAS,
					flagSASExpiry,
					flagOutput,
				},
				Action: getBlob,
			},
			{
				Name:  "list-entities",
				Usage: "List the merged entities of a table on both accounts as JSON lines",
				Flags: []cli.Flag{
					flags.NewStorageFlag,
					flags.OldStorageFlag,
					flagTable,
					flagFilter,
					flagSelect,
					flagTop,
				},
				Action: listEntities,
			},
			{
				Name:  "create-entity",
				Usage: "Create an entity on the new table and mirror it to the legacy table",
				Flags: []cli.Flag{
					flags.NewStorageFlag,
					flags.OldStorageFlag,
					flagTable,
					flagPartitionKey,
					flagRowKey,
					flagProperties,
				},
				Action: createEntity,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
