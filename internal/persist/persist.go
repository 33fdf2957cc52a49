// Package persist saves and restores the subset of server state that
// survives a restart: the queue, the run and loop flags, the history and
// its limit.
//
// The on-disk format is a version-tagged YAML document. Queue entries and
// history items are []byte fields, which the YAML encoder writes as
// sequences of byte values, so opaque byte strings round-trip intact. Writes go through an atomic rename so a crash never
// leaves a torn state file.
package persist

import (
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/daniel-jacob-pearson/moosic/internal/store"
)

// SchemaVersion tags the saved-state layout. Readers reject files written
// with a different tag instead of guessing.
const SchemaVersion = 1

// DefaultInterval is how often the periodic saver wakes up.
const DefaultInterval = 300 * time.Second

type snapshot struct {
	Version      int            `yaml:"version"`
	Queue        [][]byte       `yaml:"queue"`
	QueueRunning bool           `yaml:"queue_running"`
	LoopMode     bool           `yaml:"loop_mode"`
	History      []historyEntry `yaml:"history"`
	MaxHistory   int            `yaml:"max_history"`
}

type historyEntry struct {
	Item     []byte  `yaml:"item"`
	Started  float64 `yaml:"started"`
	Finished float64 `yaml:"finished"`
}

// Save writes the persistent subset of s to path. If the queue is running
// and a song is playing, that song is prepended to the saved queue so it
// is replayed after a restart.
func Save(s *store.Store, path string) error {
	s.Lock()
	snap := snapshot{
		Version:      SchemaVersion,
		Queue:        append([][]byte(nil), s.Queue...),
		QueueRunning: s.QueueRunning,
		LoopMode:     s.LoopMode,
		MaxHistory:   s.MaxHistory,
	}
	if s.QueueRunning && len(s.Current) > 0 {
		snap.Queue = append([][]byte{s.Current}, snap.Queue...)
	}
	for _, h := range s.History {
		snap.History = append(snap.History, historyEntry{Item: h.Item, Started: h.Started, Finished: h.Finished})
	}
	s.Unlock()

	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding saved state: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

// Load restores previously saved state from path into s. A missing file
// is not an error; the store is left untouched and false is returned.
func Load(s *store.Store, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decoding %q: %w", path, err)
	}
	if snap.Version != SchemaVersion {
		return false, fmt.Errorf("%q: unsupported saved-state version %d", path, snap.Version)
	}

	s.Lock()
	defer s.Unlock()
	s.Queue = store.FilterEmpty(snap.Queue)
	s.QueueRunning = snap.QueueRunning
	s.LoopMode = snap.LoopMode
	s.History = nil
	for _, h := range snap.History {
		s.History = append(s.History, store.HistoryEntry{Item: h.Item, Started: h.Started, Finished: h.Finished})
	}
	s.MaxHistory = snap.MaxHistory
	if s.MaxHistory < 0 {
		s.MaxHistory = 0
	}
	s.TrimHistory()
	return true, nil
}

// Saver periodically writes the state file, skipping saves while the
// queue hasn't changed since the last one.
type Saver struct {
	Store    *store.Store
	Path     string
	Interval time.Duration
	Log      zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// Start launches the periodic save loop in its own goroutine.
func (sv *Saver) Start() {
	if sv.Interval <= 0 {
		sv.Interval = DefaultInterval
	}
	sv.stop = make(chan struct{})
	sv.done = make(chan struct{})
	go sv.run()
}

// Stop terminates the save loop. It does not write a final snapshot;
// shutdown cleanup does that explicitly.
func (sv *Saver) Stop() {
	close(sv.stop)
	<-sv.done
}

func (sv *Saver) run() {
	defer close(sv.done)
	ticker := time.NewTicker(sv.Interval)
	defer ticker.Stop()

	sv.Store.Lock()
	prev := sv.Store.LastQueueUpdate
	sv.Store.Unlock()

	for {
		select {
		case <-sv.stop:
			return
		case <-ticker.C:
			sv.Store.Lock()
			current := sv.Store.LastQueueUpdate
			sv.Store.Unlock()
			if current == prev {
				continue
			}
			if err := Save(sv.Store, sv.Path); err != nil {
				sv.Log.Warn().Err(err).Msg("Cannot save state")
				continue
			}
			prev = current
		}
	}
}
