// Package api hosts the HTTP server, middleware, and REST handlers for
// pagewatch. Notable routes:
//   - GET /healthz and /readyz for probes; /readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET|POST /v1/checks/due and POST /v1/checks/all to run a check pass.
//   - POST /v1/targets/{id}/check to check one target.
//   - /v1/targets for target CRUD, GET /v1/logs for recent checks.
//   - POST /v1/diff and POST /v1/notifications/test as operator tools.
//
// Every response, including errors, is JSON.
package api
