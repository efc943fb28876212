// Package health tracks the health of pipeline stages.
//
// Every stage operation of a cycle maps to one of three states:
//
//   - healthy: the last call returned Success
//   - degraded: Warning, Error or Retry; the stage keeps running
//   - unhealthy: Critical; the stage was terminated
//
// A Monitor keeps the latest Status per stage, keyed "pipeline/stage", and
// aggregates them: any unhealthy stage makes the whole host unhealthy. Its
// Handler serves the aggregate as JSON, with status 503 when unhealthy, and is
// mounted on the metrics server:
//
//	monitor := health.NewMonitor()
//	group, _ := pipeline.BuildAll(reg, cfg, pipeline.WithHealth(monitor))
//	srv.SetHealthHandler(monitor.Handler("madsplug"))
//
// Messages come from LastError and are sanitized before they are stored, so
// URLs, paths, addresses and credentials do not leak through the endpoint.
package health
