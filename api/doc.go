/*
Package api holds the configuration and response types of the migration status server.

The server itself lives in the httpserver package; this package only describes what goes
over the wire so that clients and tests share one definition.

# Endpoints

  - GET /api/checkpoints/{scan_id}/{account_name} - CheckpointResponse for a scan
  - GET /api/blobs/{container}/{blob} - BlobExistsResponse, checked against the new account
    first and the legacy account second
  - GET /livez, /readyz, /drain, /undrain - health and draining

Failed requests carry an ErrorResponse body.
*/
package api
