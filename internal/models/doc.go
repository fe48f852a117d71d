// Package models defines domain entities and persistence interfaces for the salineros song catalog.
//
// The package contains:
//
//   - [Song] : one catalog item with lyrics, chords, optional melody/audio notes and tags
//   - [OutboxEntry] : a local mutation (save or delete) not yet confirmed by the server
//   - [ChangeSet] : what the server reports as created, modified and deleted since a timestamp
//   - [ExportDocument] : the versioned JSON document used by export and import
//
// Songs are validated at the boundary with [Song.Validate], which normalizes whitespace and tags
// before checking length constraints. Business logic never re-checks fields.
//
// The [SongStore], [OutboxStore] and [SyncStateStore] interfaces describe the local persistent store.
// The SQLite implementation lives in the repositories package.
package models
