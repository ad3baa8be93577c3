// Package api hosts the read-only HTTP server over the entity cache. Notable
// routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/types for the registered entity types.
//   - GET /v1/entities/{kind} for the cached records of one kind.
//   - GET /v1/entities/{kind}/{identity} for one record, optionally refreshed
//     from upstream with ?refresh=true.
package api
