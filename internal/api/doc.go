// Package api hosts the HTTP server, middleware, and handlers for the lead
// engine. Notable routes:
//   - GET /healthz / readyz for probes, GET /metrics for Prometheus scraping.
//   - POST /api/scraping/... for job control, GET /api/leads for paginated
//     lead review, POST /api/leads/{contact,automate} for bulk outreach.
//   - POST /webhook/... for authenticated callbacks from the workflow runner.
//   - GET /ws for the persistent viewer broadcast channel.
package api
