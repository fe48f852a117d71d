// Package services implements the HTTP client for the Los Salineros song API.
//
// # Remote Client
//
// [SongAPI] implements [RemoteClient] against the endpoints served by internal/server:
//
//	GET    /api/songs                  all songs
//	POST   /api/songs                  create (server assigns id, clientId de-duplicates)
//	PUT    /api/songs/{id}             update
//	DELETE /api/songs/{id}             delete, idempotent
//	GET    /api/songs/changes?since=T  {created, modified, deleted, serverTime}
//	GET    /health                     liveness probe
//
// Requests are throttled with a token bucket ([rate.Limiter]) and bounded by a per-request timeout.
// When a token is configured, requests carry it as a bearer token through an [oauth2.StaticTokenSource].
//
// # Error Handling
//
// Failures map onto the shared taxonomy:
//   - transport failures and timeouts wrap [shared.ErrNetwork] and are retried up to the configured attempts
//   - 400/422 responses unwrap to [shared.ErrValidation]
//   - 408/429/5xx responses unwrap to [shared.ErrServer]
//   - other 4xx responses unwrap to [shared.ErrRejected]
//
// Only network and server failures are transient; see [shared.IsTransient].
package services
