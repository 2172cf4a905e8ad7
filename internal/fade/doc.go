// Package fade implements the per-source fade and black-frame detection
// core.
//
// Responsibilities: rolling-window storage of per-frame image statistics,
// black-frame run tracking, heuristic fade classification with hysteresis,
// and per-source verdict publication.
// Key types: Tracker, StatsStore, BlackFrameTracker, Classifier,
// FadeVerdict.
//
// Concurrency contract: all per-source state is owned by this package and
// split into two independent lock domains. Domain one guards frame history
// and frame counters (mutated only by Tracker.Observe, one producer per
// source). Domain two guards the last-verdict map, which the opacity
// driver and HTTP surfaces read concurrently. Readers always receive
// fully-formed snapshots, never partially-updated state.
//
// No SQL/database or network code is allowed in this package.
package fade
