// Package api serves the synclog engine over HTTP.
//
// Routes:
//
//	POST   /v1/stores/{storeId}/push    push a batch at an expected head
//	GET    /v1/stores/{storeId}/events  pull events after ?since, up to ?limit
//	DELETE /v1/stores/{storeId}         reset (refused in production)
//	GET    /healthz                     liveness and database ping
//	GET    /metrics                     Prometheus exposition
//
// Conflicts are 409 with a reason from the engine's taxonomy. Access
// refusals are 403; missing or invalid credentials are 401.
package api
