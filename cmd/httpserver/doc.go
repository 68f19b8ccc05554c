// Package main (cmd/httpserver) runs the migration status server.
//
// The server answers checkpoint queries from the stateful account and blob existence
// queries through the new and legacy accounts, and exposes Prometheus metrics counting how
// often the legacy account is still hit. See package httpserver for the endpoints.
//
//	httpserver --listen-addr 0.0.0.0:8080 \
//	    --stateful-storage "$STATEFUL_STORAGE_CONNECTION_STRING" \
//	    --new-storage "$NEW_STORAGE_CONNECTION_STRING" \
//	    --old-storage "$OLD_STORAGE_CONNECTION_STRING"
package main
