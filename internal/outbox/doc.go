// Package outbox implements the durable FIFO of song mutations awaiting server confirmation.
//
// A [Queue] wraps the SQLite outbox table. Entries are replayed oldest first by [Queue.Drain],
// which stops at the first failure so later mutations never overtake earlier ones.
package outbox
