// Package events carries sync lifecycle notifications from the coordinator and catalog to interested listeners.
//
// Delivery is best effort: a slow subscriber misses events instead of stalling a sync pass.
package events
