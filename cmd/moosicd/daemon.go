package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/daniel-jacob-pearson/moosic/internal/api"
	"github.com/daniel-jacob-pearson/moosic/internal/config"
	"github.com/daniel-jacob-pearson/moosic/internal/persist"
	"github.com/daniel-jacob-pearson/moosic/internal/player"
	"github.com/daniel-jacob-pearson/moosic/internal/server"
	"github.com/daniel-jacob-pearson/moosic/internal/store"
)

// daemonEnv marks the re-executed child so it doesn't daemonize again.
const daemonEnv = "MOOSICD_DAEMONIZED"

// shutdownTimeout bounds the drain of in-flight requests at exit.
const shutdownTimeout = 5 * time.Second

// run carries out the whole daemon lifecycle: load configuration and
// saved state, bind the listeners, detach, install signal handlers, and
// consume the queue until told to quit.
func run(opts *options) error {
	// Detach before acquiring any process-bound resources (listeners,
	// log files); everything below runs in the daemonized child.
	if !opts.foreground && !opts.logStdout {
		if err := daemonize(opts.confdir); err != nil {
			return fmt.Errorf("cannot go into the background: %w", err)
		}
	}

	confFile, err := config.EnsureFile(opts.confdir)
	if err != nil {
		return err
	}
	table, err := config.Load(confFile)
	if err != nil {
		return fmt.Errorf("error reading configuration file %q: %w", confFile, err)
	}

	logPath := filepath.Join(opts.confdir, "server_log")
	log, logFile, err := openLogger(opts, logPath)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	log.Info().Msg("Starting up.")
	if os.Getenv(daemonEnv) == "1" {
		log.Info().Msgf("Transformed into a daemon with PID: %d", os.Getpid())
	}

	s := store.New()
	s.Config = table
	s.Confdir = opts.confdir
	s.ConfFile = confFile

	// Load previously saved state, if any. The command-line history size
	// wins over whatever was saved.
	savePath := filepath.Join(opts.confdir, "saved_state")
	if _, err := persist.Load(s, savePath); err != nil {
		log.Warn().Err(err).Msg("Saved state could not be loaded.")
	}
	s.Lock()
	s.MaxHistory = opts.historySize
	if s.MaxHistory < 0 {
		s.MaxHistory = 0
	}
	s.TrimHistory()
	s.Unlock()

	methods := &api.Methods{Store: s, Log: log, Version: Version}
	registry := api.NewRegistry()
	methods.Install(registry)

	srv := &server.Server{
		Registry: registry,
		Log:      log,
	}
	// --tcp replaces the local socket; --tcp-also keeps both.
	if opts.tcpPort == 0 || opts.tcpAlso != 0 {
		srv.SocketPath = filepath.Join(opts.confdir, "socket")
	}
	port := opts.tcpPort
	if port == 0 {
		port = opts.tcpAlso
	}
	if port != 0 {
		host := ""
		if opts.localOnly {
			host = "127.0.0.1"
		}
		srv.TCPAddr = fmt.Sprintf("%s:%d", host, port)
	}
	if err := srv.Start(); err != nil {
		return err
	}

	saver := &persist.Saver{Store: s, Path: savePath, Log: log}
	saver.Start()

	watcher := watchConfig(registry, confFile, log)

	installSignalHandlers(registry, log)

	// The queue consumer owns the main goroutine until shutdown.
	consumer := &player.Consumer{
		Store:  s,
		Player: &player.Player{Store: s, Confdir: opts.confdir, Log: log},
	}
	consumer.Run()

	// Cleanup: stop accepting requests (draining the ones in flight),
	// persist state, and terminate the player child. Failures here are
	// logged and otherwise ignored; we're leaving anyway.
	log.Info().Msgf("Shutting down (PID: %d).", os.Getpid())
	if watcher != nil {
		watcher.Close()
	}
	saver.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Error while closing listeners")
	}
	if err := persist.Save(s, savePath); err != nil {
		log.Warn().Err(err).Msg("Cannot save state")
	}
	s.Lock()
	if len(s.Current) > 0 {
		_ = player.Signal(s, syscall.SIGTERM)
	}
	s.Unlock()
	return nil
}

// openLogger builds the server log: line-oriented messages of the form
// "HH:MM:SSPM [LEVEL] text" (AM or PM), appended to server_log unless
// --stdout.
func openLogger(opts *options, logPath string) (zerolog.Logger, *os.File, error) {
	var out io.Writer = os.Stdout
	var f *os.File
	if !opts.logStdout {
		var err error
		f, err = os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("cannot open server log file %q: %w", logPath, err)
		}
		out = f
	}

	level := zerolog.InfoLevel
	if opts.quiet {
		level = zerolog.ErrorLevel
	}
	if opts.debug {
		level = zerolog.DebugLevel
	}

	cw := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: player.LogTimeFormat,
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("[%s]", strings.ToUpper(fmt.Sprint(i)))
		},
	}
	log := zerolog.New(cw).Level(level).With().Timestamp().Logger()
	return log, f, nil
}

// daemonize detaches from the terminal by re-executing this binary in a
// new session with its stderr pointed at the server log. The parent
// exits; the child (marked by daemonEnv) carries on.
func daemonize(confdir string) error {
	if os.Getenv(daemonEnv) == "1" {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(confdir, 0o700); err != nil {
		return err
	}
	logPath := filepath.Join(confdir, "server_log")
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Dir = "/"
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}

// installSignalHandlers wires HUP to a config reload and the termination
// signals to an orderly shutdown via the same die method clients use.
func installSignalHandlers(registry *api.Registry, log zerolog.Logger) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigc {
			if sig == syscall.SIGHUP {
				if _, err := registry.Dispatch("reconfigure", nil); err != nil {
					log.Error().Err(err).Msg("Reconfiguration failed; keeping the previous configuration.")
				}
				continue
			}
			signum := 0
			if s, ok := sig.(syscall.Signal); ok {
				signum = int(s)
			}
			log.Info().Msgf("Killed by signal %d (PID: %d).", signum, os.Getpid())
			if _, err := registry.Dispatch("die", nil); err != nil {
				log.Error().Err(err).Msg("Shutdown request failed")
			}
		}
	}()
}

// watchConfig reloads the player table automatically when the config file
// changes on disk. SIGHUP and the reconfigure method remain available;
// the watcher just saves the round trip. A watch failure only costs that
// convenience, so it is logged and tolerated.
func watchConfig(registry *api.Registry, confFile string, log zerolog.Logger) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot watch the configuration file")
		return nil
	}
	if err := watcher.Add(confFile); err != nil {
		log.Warn().Err(err).Msg("Cannot watch the configuration file")
		watcher.Close()
		return nil
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				log.Debug().Msgf("Configuration file changed on disk: %s", event.Name)
				if _, err := registry.Dispatch("reconfigure", nil); err != nil {
					log.Error().Err(err).Msg("Reconfiguration failed; keeping the previous configuration.")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Configuration watcher error")
			}
		}
	}()
	return watcher
}
