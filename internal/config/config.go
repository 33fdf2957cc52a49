// Package config manages the filetype-to-player association table.
//
// The table lives in a line-oriented text file: pairs of lines, the first a
// regular expression matched against queue items, the second the command
// used to play items that match. Blank lines and lines starting with '#'
// are ignored. Earlier pairs take precedence over later ones.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Entry associates a filename pattern with a player command template.
type Entry struct {
	Pattern *regexp.Regexp
	Command []string
}

// Table is the ordered list of filetype-player associations.
type Table []Entry

// Load parses a player configuration file.
func Load(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var table Table
	var pattern *regexp.Regexp
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		// The first line in each pair is a regular expression, the
		// second is the command that plays whatever the regexp matches.
		if pattern == nil {
			re, err := regexp.Compile(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad pattern: %w", path, lineno, err)
			}
			pattern = re
		} else {
			table = append(table, Entry{Pattern: pattern, Command: strings.Fields(line)})
			pattern = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return table, nil
}

// String renders the table in the same shape the config file uses, for the
// showconfig method.
func (t Table) String() string {
	var b strings.Builder
	for _, e := range t {
		b.WriteString(e.Pattern.String())
		b.WriteString("\n\t")
		b.WriteString(strings.Join(e.Command, " "))
		b.WriteString("\n")
	}
	return b.String()
}

var backref = regexp.MustCompile(`\\([0-9])`)

// Resolve walks the table in order and builds the command that plays song.
// It returns false if no pattern matches.
//
// Each argument of the matching template has the literal token "$item"
// replaced with the song name and backreferences (\1, \2, ...) expanded
// from the pattern match. If no argument changed, the song name is
// appended as a final positional argument.
func (t Table) Resolve(song []byte) ([]string, bool) {
	for _, e := range t {
		groups := e.Pattern.FindSubmatch(song)
		if groups == nil {
			continue
		}
		argv := make([]string, len(e.Command))
		copy(argv, e.Command)
		substituted := false
		for i, arg := range argv {
			expanded := strings.ReplaceAll(arg, "$item", string(song))
			expanded = backref.ReplaceAllStringFunc(expanded, func(ref string) string {
				n := int(ref[1] - '0')
				if n >= len(groups) || groups[n] == nil {
					return ref
				}
				return string(groups[n])
			})
			if expanded != arg {
				argv[i] = expanded
				substituted = true
			}
		}
		if !substituted {
			argv = append(argv, string(song))
		}
		return argv, true
	}
	return nil, false
}

// EnsureFile prepares the configuration file, creating the configuration
// directory and a default config file if they don't already exist. The
// path of the config file is returned.
func EnsureFile(confdir string) (string, error) {
	path := filepath.Join(confdir, "config")
	if err := os.MkdirAll(confdir, 0o700); err != nil {
		return "", fmt.Errorf("creating directory %q: %w", confdir, err)
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("%q exists, but is not a regular file", path)
		}
		return path, nil
	case os.IsNotExist(err):
		if err := os.WriteFile(path, []byte(defaultConfig(path)), 0o600); err != nil {
			return "", fmt.Errorf("creating configuration file %q: %w", path, err)
		}
		return path, nil
	default:
		return "", err
	}
}

// defaultConfig is the player table written on first run. It covers the
// common formats and documents the file format itself.
func defaultConfig(path string) string {
	return `# ` + path + `
# This file associates filetypes with commands which play them.
#
# The format of this file is as follows:  Every pair of lines forms a unit.
# The first line in a pair is a regular expression that will be matched against
# items in the play list.  The second line in a pair is the command that will
# be used to play any items that match the regular expression.  The name of the
# item to be played will be appended to the end of this command line, unless
# the command contains "$item" or a backreference such as \1; those are replaced
# by the item's name or by the matching group instead, and nothing is appended.
#
# The command will not be interpreted by a shell, so don't bother trying to use
# shell variables or globbing or I/O redirection, and be mindful of how you use
# quotes and parentheses.  If you need any of these fancy features, wrap up the
# command in a real shell script (and remember to use an "exec" statement to
# invoke the program that does the actual song playing, otherwise Moosic won't
# be able to do things like stop or pause the song).
#
# Blank lines and lines starting with a '#' character are ignored.  Regular
# expressions specified earlier in this file take precedence over those
# specified later.

(?i)\.mp3$
mpg123 -q

(?i)\.midi?$
timidity -idq

(?i)\.(mod|xm|s3m|stm|it|mtm|669|amf)$
mikmod -q

(?i)\.(wav|8svx|aiff|aifc|aif|au|cdr|maud|sf|snd|voc)$
sox $item -t ossdsp /dev/dsp

(?i)\.ogg$
ogg123 -q

(?i)\.m3u$
moosic -o pl-add

(?i)^cda://(\S+)
takcd \1
`
}
