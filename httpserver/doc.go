/*
Package httpserver implements the migration status server.

It lets operators and dashboards look at the state of a migration without running a scan:

  - GET /api/checkpoints/{scan_id}/{account_name} - the checkpoint a scan persisted for an
    account, read from the stateful account
  - GET /api/blobs/{container}/{blob} - whether a blob exists on the new account or, failing
    that, on the legacy account; legacy hits are counted by the fallback metrics
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Mark server as not ready
  - GET /undrain - Mark server as ready

Metrics are served by a separate listener (see package metrics) and pprof is mounted under
/debug when enabled.

# Usage

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return err
	}
	blobs, err := blob.NewServiceClientWithFallback(newAccount, oldAccount, metricsSrv.Fallback().Tracker(), log)
	if err != nil {
		return err
	}
	srv, err := httpserver.New(cfg, httpserver.NewHandler(stateful, blobs, log), metricsSrv)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
