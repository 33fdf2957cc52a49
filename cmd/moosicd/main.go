// Command moosicd is the Moosic jukebox server: a daemon that maintains
// a queue of music files and plays them one after another with external
// player programs, taking requests from Moosic clients over a local
// socket or TCP.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// Version is the Moosic server's version string.
const Version = "1.5.6"

type options struct {
	historySize int
	confdir     string
	tcpPort     int
	tcpAlso     int
	localOnly   bool
	foreground  bool
	quiet       bool
	debug       bool
	logStdout   bool
}

func defaultConfdir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = "/tmp"
	}
	return filepath.Join(home, ".moosic")
}

func parseOptions(args []string) (*options, error) {
	opts := &options{}
	flags := pflag.NewFlagSet("moosicd", pflag.ContinueOnError)
	flags.SortFlags = false

	flags.IntVarP(&opts.historySize, "history-size", "s", 50,
		"Sets the maximum size of the history list.")
	flags.StringVarP(&opts.confdir, "config", "c", defaultConfdir(),
		"Specifies the directory where moosicd should keep the various files that it uses.")
	flags.IntVarP(&opts.tcpPort, "tcp", "t", 0,
		"Listen to the given TCP port number for client requests instead of using the normal communication method. (Beware: this may create network security vulnerabilities.)")
	flags.IntVarP(&opts.tcpAlso, "tcp-also", "T", 0,
		"Listen to the given TCP port number for client requests in addition to using the normal communication method. (Beware: this may create network security vulnerabilities.)")
	flags.BoolVarP(&opts.localOnly, "local-only", "l", false,
		"Only listen for TCP connections that originate from the local computer. This only has an effect when --tcp or --tcp-also is used.")
	flags.BoolVarP(&opts.foreground, "foreground", "f", false,
		"Stay in the foreground instead of detaching from the current terminal and going into the background.")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false,
		"Don't print any informational messages.")
	flags.BoolVarP(&opts.debug, "debug", "d", false,
		"Print additional informational messages.")
	flags.BoolVarP(&opts.logStdout, "stdout", "S", false,
		"Output messages to stdout instead of logging to a file. This also prevents the program from putting itself in the background and detaching from the current terminal.")
	showVersion := flags.BoolP("version", "v", false,
		"Print version information and exit.")
	showHelp := flags.BoolP("help", "h", false,
		"Print this help text and exit.")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [options]\nOptions:\n%s", filepath.Base(os.Args[0]), flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Option processing error: %v\n", err)
		os.Exit(2)
	}
	if *showHelp {
		flags.Usage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Printf("moosicd %s\n", Version)
		os.Exit(0)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Warning: non-option command line arguments are ignored.")
	}

	confdir, err := filepath.Abs(opts.confdir)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration directory: %w", err)
	}
	opts.confdir = confdir
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
