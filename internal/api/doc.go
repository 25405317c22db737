// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - POST /analyze starts an analysis and returns its id.
//   - GET /status/{analysis_id} and GET /results/{analysis_id} for polling.
//   - POST /cancel/{analysis_id} and POST /preview.
//   - GET /healthz, /readyz and /metrics for operators.
package api
