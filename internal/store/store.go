// Package store holds the authoritative mutable state of the Moosic server.
//
// Exactly one Store exists per process. A single mutex (embedded in the
// Store) guards every field: all mutating operations, and any read that
// composes multiple fields, must hold it. Critical sections stay short —
// field assignments, slice splices, bounded loops — and never span I/O,
// process spawning, or waiting on a child.
package store

import (
	"sync"
	"time"

	"github.com/daniel-jacob-pearson/moosic/internal/config"
)

// HistoryEntry records one played (or skipped-as-played) song together
// with the wall-clock times it started and finished, in seconds since the
// epoch.
type HistoryEntry struct {
	Item     []byte
	Started  float64
	Finished float64
}

// Store is the single authoritative aggregate of server state.
//
// Queue entries are opaque byte strings — usually absolute filenames,
// possibly URLs, not necessarily valid UTF-8. The queue never contains
// empty entries; ingress paths filter them out.
//
// Ownership: only the queue consumer writes Current, PlayerPID and
// SongStart, except that player.Signal clears PlayerPID when the child has
// already exited. Everything else mutates state exclusively through the
// method surface, which serializes on the embedded mutex.
type Store struct {
	sync.Mutex

	// State that survives a restart.
	Queue        [][]byte
	QueueRunning bool
	LoopMode     bool
	History      []HistoryEntry
	MaxHistory   int

	// Transient state.
	Current           []byte
	Paused            bool
	PlayerPID         int // 0 when no child process exists
	SongStart         float64
	LastPause         float64
	AccumulatedPaused float64
	IgnoreFinish      bool
	Quit              bool
	LastQueueUpdate   float64

	Config   config.Table
	Confdir  string
	ConfFile string
}

// New returns a Store with the documented defaults: an empty queue with
// consumption enabled and a history capacity of 50.
func New() *Store {
	return &Store{
		QueueRunning:    true,
		MaxHistory:      50,
		LastQueueUpdate: Now(),
	}
}

// Now is the wall clock used for all store timestamps: seconds since the
// epoch as a floating-point number.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// TouchQueue records that the queue was mutated. LastQueueUpdate is kept
// monotonic non-decreasing even if the wall clock steps backward.
// Callers must hold the lock.
func (s *Store) TouchQueue() {
	if t := Now(); t > s.LastQueueUpdate {
		s.LastQueueUpdate = t
	}
}

// TrimHistory drops the oldest entries until the history fits MaxHistory.
// Callers must hold the lock.
func (s *Store) TrimHistory() {
	for len(s.History) > s.MaxHistory {
		s.History = s.History[1:]
	}
}

// RecordHistory appends a history entry and trims to capacity. Callers
// must hold the lock.
func (s *Store) RecordHistory(item []byte, started, finished float64) {
	s.History = append(s.History, HistoryEntry{Item: item, Started: started, Finished: finished})
	s.TrimHistory()
}

// CurrentTime reports how long the current song has been playing, in
// seconds, net of time spent paused. Zero when nothing is playing.
// Callers must hold the lock.
func (s *Store) CurrentTime() float64 {
	if len(s.Current) == 0 {
		return 0
	}
	if s.Paused {
		return s.LastPause - s.SongStart - s.AccumulatedPaused
	}
	return Now() - s.SongStart - s.AccumulatedPaused
}

// FilterEmpty returns items with all empty entries removed. Empty strings
// are forbidden in the queue, so every ingress path runs through this.
func FilterEmpty(items [][]byte) [][]byte {
	kept := make([][]byte, 0, len(items))
	for _, item := range items {
		if len(item) > 0 {
			kept = append(kept, item)
		}
	}
	return kept
}
