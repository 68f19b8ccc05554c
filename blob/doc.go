// Package blob implements the dual-backend blob clients.
//
// ClientWithFallback is generic over the blob handle type. Every read first asks the
// primary blob whether it exists; only when it does not, and a fallback blob is
// configured, the fallback serves the read and the FallbackTracker is notified. Errors
// of whichever blob was used are returned unchanged.
//
//	primary exists?  yes -> primary
//	                 no  -> fallback configured? yes -> fallback (notify)
//	                                             no  -> primary
//
// Deletes are attempted on both blobs. Uploads only reach the primary.
//
// ContainerClientWithFallback and ServiceClientWithFallback pair containers and
// accounts so callers can address blobs by name.
package blob
