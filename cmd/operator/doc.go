// Package main (cmd/operator) is the command line tool for running a storage account
// migration.
//
// check-blob-migration walks every container and blob of the target account and stores a
// checkpoint after each page in the stateful account, so an interrupted scan picks up
// where it stopped when run again with the same --id. With --tag-name and --tag-value
// every blob must carry that blob index tag; the first blob that does not stops the scan
// with exit code 2. A finished scan only visits containers created since; --reset starts
// over.
//
//	operator check-blob-migration --id migration-2024 \
//	    --stateful-storage "$STATEFUL_STORAGE_CONNECTION_STRING" \
//	    --target-storage vault://vault.internal:8200/secret/storage/new?key=connection_string \
//	    --tag-name migrated --tag-value true
//
// blob-exists, get-blob, list-entities and create-entity go through the same dual-account
// clients applications use: reads try --new-storage first and --old-storage second, entity
// writes land on the new table and are mirrored to the old one.
package main
