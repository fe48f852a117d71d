package models

import "time"

// SongStore is the keyed, durable song collection.
//
// Delete of a missing id is a no-op. Get of a missing id returns [shared.ErrSongNotFound].
type SongStore interface {
	Get(id string) (*Song, error)         // Get retrieves a song by id
	Put(song *Song) error                 // Put inserts or replaces a song keyed by its id
	Delete(id string) error               // Delete removes a song by id
	List() ([]*Song, error)               // List returns every stored song
	Rekey(oldID string, song *Song) error // Rekey atomically replaces the row stored under oldID with song
}

// OutboxStore is the durable FIFO of pending mutations.
type OutboxStore interface {
	Append(entry *OutboxEntry) error                // Append adds an entry at the tail and assigns its Seq
	First() (*OutboxEntry, error)                   // First returns the head entry, or nil when empty
	Remove(entryID string) error                    // Remove deletes one entry by its id
	List() ([]*OutboxEntry, error)                  // List returns every entry in insertion order
	Count() (int, error)                            // Count returns the number of pending entries
	RemoveForSong(songID string) (int, error)       // RemoveForSong deletes all entries targeting songID
	RewriteSongID(oldID, newID string) (int, error) // RewriteSongID re-targets entries from oldID to newID
	PendingSongIDs() (map[string]struct{}, error)   // PendingSongIDs returns the ids with at least one entry
}

// SyncStateStore persists the scalar sync state.
type SyncStateStore interface {
	LastSync() (*time.Time, error) // LastSync returns nil when no sync has completed
	SetLastSync(at time.Time) error
}
