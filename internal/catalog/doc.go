// Package catalog is the in-memory, always-sorted view of the song collection and the entry point
// for user edits.
//
// # Edits
//
// [Catalog.Create], [Catalog.Update] and [Catalog.Delete] go to the song API when online and fall
// back to local storage plus the outbox when the API is unreachable. Validation failures and server
// rejections are returned without queuing.
//
// Songs that still have queued mutations are never sent directly: the new edit is stored locally
// and queued behind the older ones so the outbox replays them in order.
//
// # Ordering
//
// Songs are kept sorted by title with Spanish collation, ignoring case, with the id as tie-break.
// Search and tag filters return results in the same order.
package catalog
