// Package player spawns and supervises the external child process that
// plays one song at a time, and runs the queue consumer that drives it.
package player

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/daniel-jacob-pearson/moosic/internal/store"
)

// LogTimeFormat is the 12-hour timestamp used in the player log headers
// and the server log.
const LogTimeFormat = "03:04:05PM"

// Player runs one external player command per song, with the child's
// stdout and stderr appended to the player_log in the configuration
// directory.
type Player struct {
	Store   *store.Store
	Confdir string
	Log     zerolog.Logger
}

// Run plays a single song and returns when it's over.
//
// The player command is resolved from the config table. If no pattern
// matches, or the child cannot be spawned, the song is dropped with a log
// notice and the ignore-finish flag is set so the failure doesn't pollute
// the history.
func (p *Player) Run(song []byte) {
	p.Store.Lock()
	table := p.Store.Config
	p.Store.Unlock()

	argv, ok := table.Resolve(song)
	if !ok {
		p.Log.Info().Msgf("No player could be found for %q.", song)
		p.setIgnoreFinish()
		return
	}

	logfile, err := p.openPlayerLog(argv)
	if err != nil {
		p.Log.Error().Err(err).Msg("Cannot open player log file")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	// Stdin stays nil so the child reads from the null device and can't
	// grab the terminal.
	if logfile != nil {
		cmd.Stdout = logfile
		cmd.Stderr = logfile
	}
	if err := cmd.Start(); err != nil {
		p.Log.Error().Err(err).Msgf("Could not execute %q", strings.Join(argv, " "))
		if logfile != nil {
			fmt.Fprintf(logfile, "Could not execute %q: %v\n", strings.Join(argv, " "), err)
			logfile.Close()
		}
		p.setIgnoreFinish()
		return
	}

	p.Store.Lock()
	p.Store.PlayerPID = cmd.Process.Pid
	p.Store.Unlock()

	// The child's exit status is irrelevant; skip and stop terminate it
	// with signals, which reports as an "error" here.
	_ = cmd.Wait()

	p.Store.Lock()
	p.Store.PlayerPID = 0
	p.Store.Unlock()
	if logfile != nil {
		logfile.Close()
	}
}

func (p *Player) setIgnoreFinish() {
	p.Store.Lock()
	p.Store.IgnoreFinish = true
	p.Store.Unlock()
}

// openPlayerLog opens the per-session child log and writes the
// timestamped header that delimits this invocation's output.
func (p *Player) openPlayerLog(argv []string) (*os.File, error) {
	path := filepath.Join(p.Confdir, "player_log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	now := time.Now().Format(LogTimeFormat)
	fmt.Fprintf(f, "%s Executing \"%s\"\n", now, strings.Join(argv, " "))
	return f, nil
}

// Signal delivers sig to the current player child, if any. Callers must
// hold the store lock. A child that has already exited (ESRCH) is treated
// as absent: the recorded pid is cleared and no error is reported. Other
// kernel errors surface to the caller.
func Signal(s *store.Store, sig syscall.Signal) error {
	if s.PlayerPID == 0 {
		return nil
	}
	if err := syscall.Kill(s.PlayerPID, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			s.PlayerPID = 0
			return nil
		}
		return fmt.Errorf("signaling player (pid %d): %w", s.PlayerPID, err)
	}
	return nil
}

// TerminateSignal picks the signal that makes the player of song exit.
// ogg123 mishandles TERM, so it gets INT instead; this is a documented
// workaround for that one program, not a general policy.
func TerminateSignal(s *store.Store, song []byte) syscall.Signal {
	if argv, ok := s.Config.Resolve(song); ok && argv[0] == "ogg123" {
		return syscall.SIGINT
	}
	return syscall.SIGTERM
}
