// Package tasks runs the catalog's background synchronization with the song API.
//
// # Sync Pass
//
// One pass of the [Coordinator] runs these steps in order and aborts at the first failure:
//
//  1. Drain the outbox, replaying each queued mutation against the [services.RemoteClient]
//     - creates of offline songs carry their placeholder id as clientId and adopt the server id;
//       when the server answers with an earlier copy, the queued snapshot is sent as an update
//     - deletes of songs that never reached the server are skipped
//     - entries the server rejects are dropped and reported with [events.OutboxRejected]
//  2. Fetch the changes since the last successful pass (the full catalog on first run)
//  3. Apply them with the [Reconciler]
//  4. Record the new last-sync timestamp
//  5. Reload the catalog through the optional [Refresher]
//
// A pass that fails after re-keying songs still reloads the catalog so placeholder ids do not linger.
//
// # State Machine
//
// The coordinator moves between [Idle], [Syncing] and [BackingOff]. Periodic ticks start a pass
// only from Idle while online; manual triggers and reconnects start one from any state but Syncing.
// A failed pass schedules a retry after BaseDelay * 2^(n-1) until MaxRetries consecutive failures,
// after which only a manual trigger or reconnect restarts the cycle.
//
// # Conflicts
//
// A song reported as modified or deleted by the server while a local mutation for it is still
// queued is a conflict. The server copy is stored, the queued mutation is kept for the next drain,
// and an [events.SyncConflict] event is published. Cancelling the queued mutation acknowledges it.
//
// # Connectivity
//
// [Connectivity] is the explicit online flag, pushed by callers or polled against the health endpoint.
// Every offline to online transition is delivered to a running coordinator as a reconnect.
//
// # Progress Reporting
//
// [Coordinator.Trigger] accepts a channel of [ProgressUpdate] values. Sends never block.
package tasks
