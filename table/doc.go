// Package table implements the dual-backend entity client used while a table is
// migrated from an old storage account to a new one.
//
// Writes go to the new table first and are duplicated best effort to the old one.
// Listings stream the new table and then the old one, dropping old entities whose
// partition and row key were already yielded. Batch transactions, deletes, updates,
// upserts and access policies are not supported and fail with
// interfaces.ErrNotImplemented.
package table
