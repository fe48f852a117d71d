// Package repositories implements SQLite persistence for the local song cache and sync state.
//
// Key Implementations:
//   - [SongRepository] : the songs collection keyed by id (implements models.SongStore)
//   - [OutboxRepository] : the durable FIFO of pending mutations ordered by an autoincrement seq (implements models.OutboxStore)
//   - [SyncMetaRepository] : scalar keys such as the last sync timestamp (implements models.SyncStateStore)
//   - [LocalStore] : bundles the three over one database handle
//
// Every failure is wrapped with shared.ErrStorage so callers can tell local storage failures
// apart from remote ones. Writes are per-key upserts; deletes of missing keys are no-ops.
package repositories
