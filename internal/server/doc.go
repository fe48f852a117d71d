// Package server provides HTTP routing, middleware, and the development song API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method-qualified patterns
// ("PUT /api/songs/{id}"), so wildcards are read with [http.Request.PathValue].
//
// # Song API
//
// [SongHandler] serves the endpoints the sync client expects:
//
//	GET    /health
//	GET    /api/songs
//	POST   /api/songs               body may carry "clientId"; repeats return the first song
//	GET    /api/songs/{id}
//	PUT    /api/songs/{id}          upsert
//	DELETE /api/songs/{id}          204 whether or not the song existed
//	GET    /api/songs/changes?since=RFC3339
//
// Invalid songs are answered with 422 and {"error": "..."}.
//
// [SongStore] keeps songs in memory with tombstones for deletes and a strictly increasing clock,
// so a change set's serverTime can be used as the next "since" without missing writes.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
