// Package common holds build metadata and logger setup shared by the commands.
package common

// Version is overridden at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"

// PackageName is used as the metrics namespace.
const PackageName = "azure_migration_kit"
