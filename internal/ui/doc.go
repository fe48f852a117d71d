// Package ui renders CLI status output with a small [lipgloss] palette.
//
// Colors follow meaning rather than component: green for work that reached the server,
// orange for work parked in the outbox or waiting on a retry, red for failures.
// [Event] turns sync lifecycle events into single status lines for `sync watch`.
package ui
