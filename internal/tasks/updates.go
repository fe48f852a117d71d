package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a sync pass.
//
// Used to send step-by-step updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Sync pipeline phase enumeration
type Phase int

const (
	DrainOutbox Phase = iota
	FetchChanges
	ApplyChanges
	RecordSync
	RefreshCatalog
)

func (p Phase) String() string {
	switch p {
	case DrainOutbox:
		return "drain_outbox"
	case FetchChanges:
		return "fetch_changes"
	case ApplyChanges:
		return "apply_changes"
	case RecordSync:
		return "record_sync"
	case RefreshCatalog:
		return "refresh_catalog"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func drainingUpdate(pending int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DrainOutbox,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Replaying %d pending change(s)...", pending),
	}
}

func drainedUpdate(replayed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DrainOutbox,
		Step:    2,
		Total:   2,
		Message: fmt.Sprintf("Outbox drained (%d replayed)", replayed),
	}
}

func fetchChangesUpdate(since *time.Time) ProgressUpdate {
	msg := "Fetching full catalog..."
	if since != nil {
		msg = fmt.Sprintf("Fetching changes since %s...", since.Format(time.RFC3339))
	}
	return ProgressUpdate{Phase: FetchChanges, Step: 1, Total: 1, Message: msg}
}

func applyChangesUpdate(result *ReconcileResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyChanges,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Applied %d change(s), %d conflict(s)", result.Applied, len(result.Conflicts)),
		Data:    result,
	}
}

func recordSyncUpdate(at time.Time) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RecordSync,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Last sync set to %s", at.Format(time.RFC3339)),
	}
}

func refreshCatalogUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: RefreshCatalog, Step: 1, Total: 1, Message: "Reloading catalog..."}
}
