package api

import (
	"syscall"
	"time"

	"github.com/daniel-jacob-pearson/moosic/internal/config"
	"github.com/daniel-jacob-pearson/moosic/internal/player"
	"github.com/daniel-jacob-pearson/moosic/internal/store"
	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

func (m *Methods) installPlayback(reg *Registry) {
	reg.Register("pause", m.pause, [][]string{{Boolean}},
		`Pauses the currently playing song.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("unpause", m.unpause, [][]string{{Boolean}},
		`Unpauses the current song.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("toggle_pause", m.togglePause, [][]string{{Boolean}},
		`Pauses the current song if it is playing, and unpauses if it is paused.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("skip", m.skip, [][]string{{Boolean}},
		`Skips the rest of the current song to play the next song in the queue.
This only has an effect if there actually is a current song.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("next", m.next, [][]string{{Boolean}, {Boolean, Int}},
		`Stops the current song (if any), and jumps ahead to a song that is
currently in the queue. The skipped songs are recorded in the history as
if they had been played.

Arguments: A single integer that tells how far forward into the song queue
    to advance. If no argument is given, a value of 1 is assumed.
Return value: Nothing meaningful.`)
	reg.Register("previous", m.previous, [][]string{{Boolean}, {Boolean, Int}},
		`Stops the current song (if any), removes the most recently played song
from the history, and puts these songs at the head of the queue. When loop
mode is on, the songs at the tail of the song queue are used instead of
the most recently played songs in the history.

Arguments: A single integer that tells how far back in the history list to
    retreat. If no argument is given, a value of 1 is assumed.
Return value: Nothing meaningful.`)
	reg.Register("stop", m.stop, [][]string{{Boolean}},
		`Stops playing the current song and stops new songs from playing. The
current song is returned to the head of the song queue and is not recorded
in the history list.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("putback", m.putback, [][]string{{Boolean}},
		`Places the currently playing song at the beginning of the queue.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("halt_queue", m.haltQueue, [][]string{{Boolean}},
		`Stops any new songs from being played. Use run_queue() to reverse this
state.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("haltqueue", m.haltQueue, [][]string{{Boolean}},
		`Stops any new songs from being played. Use run_queue() to reverse this
state.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("run_queue", m.runQueue, [][]string{{Boolean}},
		`Allows new songs to be played again after halt_queue() has been called.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("runqueue", m.runQueue, [][]string{{Boolean}},
		`Allows new songs to be played again after halt_queue() has been called.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("set_loop_mode", m.setLoopMode, [][]string{{Boolean, Boolean}},
		`Turns loop mode on or off.

If loop mode is on, songs are returned to the end of the song queue after
they finish playing.  If loop mode is off, songs that have finished
playing are not returned to the queue.

Arguments: True if you want to turn loop mode on, False if you want to
    turn it off.
Return value: Nothing meaningful.`)
	reg.Register("toggle_loop_mode", m.toggleLoopMode, [][]string{{Boolean}},
		`Turns loop mode on if it is off, and turns it off if it is on.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("reconfigure", m.reconfigure, [][]string{{Boolean}},
		`Tells the server to reread its player configuration file.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("die", m.die, [][]string{{Boolean}},
		`Tells the server to terminate itself.

Arguments: None.
Return value: Nothing meaningful.`)
}

// pauseDelay separates the polite stop request from the unconditional
// one, giving the player a chance to quiesce its audio device first.
const pauseDelay = 100 * time.Millisecond

// pauseLocked suspends the player child: TSTP first so the player can
// react, then STOP to make sure. Callers must hold the lock.
func (m *Methods) pauseLocked() error {
	s := m.Store
	if len(s.Current) == 0 || s.PlayerPID == 0 {
		return nil
	}
	if err := player.Signal(s, syscall.SIGTSTP); err != nil {
		return xmlrpc.Faultf(xmlrpc.CodeInternal, "%v (in method \"pause\")", err)
	}
	time.Sleep(pauseDelay)
	if err := player.Signal(s, syscall.SIGSTOP); err != nil {
		return xmlrpc.Faultf(xmlrpc.CodeInternal, "%v (in method \"pause\")", err)
	}
	if !s.Paused {
		s.LastPause = store.Now()
	}
	s.Paused = true
	return nil
}

// unpauseLocked resumes the player child and settles the pause-time
// accounting. Callers must hold the lock.
func (m *Methods) unpauseLocked() error {
	s := m.Store
	if len(s.Current) == 0 || s.PlayerPID == 0 {
		return nil
	}
	if err := player.Signal(s, syscall.SIGCONT); err != nil {
		return xmlrpc.Faultf(xmlrpc.CodeInternal, "%v (in method \"unpause\")", err)
	}
	if s.Paused {
		s.AccumulatedPaused += store.Now() - s.LastPause
	}
	s.Paused = false
	return nil
}

// skipLocked terminates the player child, then unpauses it so the
// termination takes place right away instead of waiting for a CONT from
// elsewhere. Callers must hold the lock.
func (m *Methods) skipLocked() error {
	s := m.Store
	if len(s.Current) == 0 || s.PlayerPID == 0 {
		return nil
	}
	if err := player.Signal(s, player.TerminateSignal(s, s.Current)); err != nil {
		return xmlrpc.Faultf(xmlrpc.CodeInternal, "%v (in method \"skip\")", err)
	}
	return m.unpauseLocked()
}

// putbackLocked returns the current song to the head of the queue.
// Callers must hold the lock.
func (m *Methods) putbackLocked() {
	s := m.Store
	if len(s.Current) == 0 {
		return
	}
	s.Queue = append([][]byte{s.Current}, s.Queue...)
	s.TouchQueue()
}

// stopLocked is the shared stop path: the current song goes back to the
// queue head, consumption halts, and the child is terminated without a
// history record. Callers must hold the lock.
func (m *Methods) stopLocked() error {
	s := m.Store
	m.putbackLocked()
	s.QueueRunning = false
	if len(s.Current) > 0 {
		s.IgnoreFinish = true
	}
	return m.skipLocked()
}

func (m *Methods) pause(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	m.Store.Lock()
	defer m.Store.Unlock()
	if err := m.pauseLocked(); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Methods) unpause(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	m.Store.Lock()
	defer m.Store.Unlock()
	if err := m.unpauseLocked(); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Methods) togglePause(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	var err error
	if s.Paused {
		err = m.unpauseLocked()
	} else {
		err = m.pauseLocked()
	}
	if err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Methods) skip(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	m.Store.Lock()
	defer m.Store.Unlock()
	if err := m.skipLocked(); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Methods) next(params []any) (any, error) {
	if err := wantArgs(params, 0, 1); err != nil {
		return nil, err
	}
	howmany := 1
	if len(params) == 1 {
		var err error
		if howmany, err = argInt(params, 0); err != nil {
			return nil, err
		}
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	wasRunning := s.QueueRunning
	if err := m.stopLocked(); err != nil {
		return nil, err
	}
	for i := 0; i < howmany && len(s.Queue) > 0; i++ {
		song := s.Queue[0]
		s.Queue = s.Queue[1:]
		if s.LoopMode {
			s.Queue = append(s.Queue, song)
		}
		// Skipped songs enter the history as if they had been played,
		// all sharing the start time of the song that was current.
		s.RecordHistory(song, s.SongStart, store.Now())
	}
	s.TouchQueue()
	if wasRunning {
		s.QueueRunning = true
	}
	return true, nil
}

func (m *Methods) previous(params []any) (any, error) {
	if err := wantArgs(params, 0, 1); err != nil {
		return nil, err
	}
	howmany := 1
	if len(params) == 1 {
		var err error
		if howmany, err = argInt(params, 0); err != nil {
			return nil, err
		}
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	wasRunning := s.QueueRunning
	if err := m.stopLocked(); err != nil {
		return nil, err
	}
	for i := 0; i < howmany; i++ {
		if !s.LoopMode {
			if len(s.History) == 0 {
				break
			}
			last := s.History[len(s.History)-1]
			s.History = s.History[:len(s.History)-1]
			s.Queue = append([][]byte{last.Item}, s.Queue...)
		} else {
			if len(s.Queue) == 0 {
				break
			}
			tail := s.Queue[len(s.Queue)-1]
			s.Queue = append([][]byte{tail}, s.Queue[:len(s.Queue)-1]...)
		}
	}
	s.TouchQueue()
	if wasRunning {
		s.QueueRunning = true
	}
	return true, nil
}

func (m *Methods) stop(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	m.Store.Lock()
	defer m.Store.Unlock()
	if err := m.stopLocked(); err != nil {
		return nil, err
	}
	return true, nil
}

func (m *Methods) putback(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	m.Store.Lock()
	defer m.Store.Unlock()
	m.putbackLocked()
	return true, nil
}

func (m *Methods) haltQueue(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.QueueRunning = false
	return true, nil
}

func (m *Methods) runQueue(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.QueueRunning = true
	return true, nil
}

func (m *Methods) setLoopMode(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	value, err := argBool(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.LoopMode = value
	return true, nil
}

func (m *Methods) toggleLoopMode(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.LoopMode = !s.LoopMode
	return true, nil
}

func (m *Methods) reconfigure(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	path := s.ConfFile
	s.Unlock()

	table, err := config.Load(path)
	if err != nil {
		m.Log.Error().Err(err).Msg("The configuration file could not be reloaded!")
		return nil, xmlrpc.Faultf(xmlrpc.CodeInternal, "the configuration file could not be reloaded: %v", err)
	}
	s.Lock()
	s.Config = table
	s.Unlock()
	return true, nil
}

func (m *Methods) die(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.Quit = true
	if len(s.Current) > 0 {
		s.IgnoreFinish = true
	}
	if err := m.skipLocked(); err != nil {
		return nil, err
	}
	return true, nil
}
