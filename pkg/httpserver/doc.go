// Package httpserver serves the operational endpoint of the billing daemon:
// Prometheus metrics on /metrics, liveness on /livez and readiness on /readyz.
//
// The server is bound to a context instead of process signals so it can run
// inside an errgroup next to the renewal worker and the outbox sweeper:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error {
//		return srv.Run(ctx, httpserver.Handler(reg, log, pg.Healthcheck(pool)))
//	})
package httpserver
