// Package legacy keeps the older service-level blob API on top of the fallback layer.
//
// BlobServiceWithFallback addresses blobs by container and blob name instead of by
// handle. Reads consult the primary account first and fall back to the secondary
// account only on a not-found signal; writes go to the primary account only.
package legacy
