package api

import (
	"strings"

	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

func (m *Methods) installInfo(reg *Registry) {
	reg.Register("list", m.list, [][]string{{Array}, {Array, Array}},
		`Lists the song queue's contents. If a range is specified, only the
items that fall within that range are listed.

Arguments: Either none, or an array of integers that represents a range.`+rangeHelp+`
Return value: An array of (base64-encoded) strings, representing the
    selected range from the song queue's contents.`)
	reg.Register("indexed_list", m.indexedList, [][]string{{Struct}, {Struct, Array}},
		`Lists the song queue's contents. If a range is specified, only the
items that fall within that range are listed.

This differs from list() only in its return value, and is useful when you
want to know the starting position of your selected range within the song
queue (which can be different than the starting index of the specified
range if, for example, the starting index is a negative integer).

Arguments: Either none, or an array of integers that represents a range.`+rangeHelp+`
Return value: A struct with two elements. The first is "list", an array of
    (base64-encoded) strings, representing the selected range from the
    song queue's contents. The second is "start", an integer index value
    that represents the position of the first item of the returned list in
    the song queue.`)
	reg.Register("queue_length", m.queueLength, [][]string{{Int}},
		`Returns the number of items in the song queue.

Arguments: None.
Return value: The number of items in the song queue.`)
	reg.Register("length", m.queueLength, [][]string{{Int}},
		`Returns the number of items in the song queue.

Arguments: None.
Return value: The number of items in the song queue.`)
	reg.Register("current", m.current, [][]string{{Base64}},
		`Returns the name of the currently playing song.

Arguments: None.
Return value: The name of the currently playing song.`)
	reg.Register("history", m.history, [][]string{{Array}, {Array, Int}},
		`Returns a list of the items that were recently played.

Arguments: If a positive integer argument is given, then no more than that
    number of entries will be returned.  If a number is not specified, or
    if zero is given, then the entire history is returned.
Return value: An array of triples, each representing a song that was
    played along with the times that it started and finished playing.`)
	reg.Register("get_history_limit", m.getHistoryLimit, [][]string{{Int}},
		`Gets the limit on the size of the history list stored in memory.

Arguments: None.
Return value: The maximum number of history entries that the server will
    remember.`)
	reg.Register("set_history_limit", m.setHistoryLimit, [][]string{{Boolean, Int}},
		`Sets the limit on the size of the history list stored in memory.

This will irrevocably discard history entries if the new limit is lower
than the current size of the history list.

Arguments: The new maximum number of history entries. If this value is
    negative, the history limit will be set to zero.
Return value: Nothing meaningful.`)
	reg.Register("is_paused", m.isPaused, [][]string{{Boolean}},
		`Tells you whether the current song is paused or not.

Arguments: None.
Return value: True if the current song is paused, otherwise False.`)
	reg.Register("is_looping", m.isLooping, [][]string{{Boolean}},
		`Tells you whether loop mode is on or not.

If loop mode is on, songs are returned to the end of the song queue after
they finish playing.  If loop mode is off, songs that have finished
playing are not returned to the queue.

Arguments: None.
Return value: True if loop mode is set, False if it is not.`)
	reg.Register("is_queue_running", m.isQueueRunning, [][]string{{Boolean}},
		`Tells you whether the queue consumption (advancement) is activated.

Arguments: None.
Return value: True if new songs are going to be played from the queue
    after the current song is finished, otherwise False.`)
	reg.Register("current_time", m.currentTime, [][]string{{Double}},
		`Returns the amount of time that the current song has been playing.

Arguments: None.
Return value: The number of seconds that the current song has been
    playing.`)
	reg.Register("last_queue_update", m.lastQueueUpdate, [][]string{{Double}},
		`Returns the time at which the song queue was last modified.

This method is intended for use by GUI clients that don't want to waste
time downloading the entire contents of the song queue if it hasn't
changed.

Arguments: None.
Return value: A floating-point number that represents time as the number
    of seconds since the epoch.`)
	reg.Register("version", m.version, [][]string{{String}},
		`Returns the Moosic server's version string.

Arguments: None.
Return value: The version string for the Moosic server.`)
	reg.Register("api_version", m.apiVersion, [][]string{{Array}},
		`Returns the version number for the API that the server implements.

Arguments: None.
Return value: The version number, which is a 2-element array of integers.
    The first element is the major version, and the second element is the
    minor version.`)
	reg.Register("showconfig", m.showConfig, [][]string{{Base64}},
		`Returns a textual description of the server's player configuration.

Arguments: None.
Return value: A (base64-encoded) string that shows which programs will be
    used to play the various file-types recognized by the Moosic server.`)
	reg.Register("getconfig", m.getConfig, [][]string{{Array}},
		`Returns a list of the server's filetype-player associations.

Arguments: None.
Return value: An array of pairs. The first element of each pair is a
    (base64-encoded) string that represents a regular expression pattern,
    and the second element is a (base64-encoded) string that represents
    the system command that should be used to handle songs that match the
    corresponding pattern.`)
	reg.Register("no_op", m.noOp, [][]string{{Boolean}},
		`Does nothing, successfully.

Arguments: None.
Return value: Nothing meaningful.`)
}

func (m *Methods) list(params []any) (any, error) {
	if err := wantArgs(params, 0, 1); err != nil {
		return nil, err
	}
	rng, err := optionalRange(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	start, end, err := rng.Bounds(len(s.Queue))
	if err != nil {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "%v", err)
	}
	items := make([]any, 0, end-start)
	for _, item := range s.Queue[start:end] {
		items = append(items, item)
	}
	return items, nil
}

func (m *Methods) indexedList(params []any) (any, error) {
	if err := wantArgs(params, 0, 1); err != nil {
		return nil, err
	}
	rng, err := optionalRange(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	start, end, err := rng.Bounds(len(s.Queue))
	if err != nil {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "%v", err)
	}
	items := make([]any, 0, end-start)
	for _, item := range s.Queue[start:end] {
		items = append(items, item)
	}
	return map[string]any{"start": start, "list": items}, nil
}

func (m *Methods) queueLength(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return len(s.Queue), nil
}

func (m *Methods) current(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	if s.Current == nil {
		return []byte{}, nil
	}
	return s.Current, nil
}

func (m *Methods) history(params []any) (any, error) {
	if err := wantArgs(params, 0, 1); err != nil {
		return nil, err
	}
	limit := 0
	if len(params) == 1 {
		var err error
		if limit, err = argInt(params, 0); err != nil {
			return nil, err
		}
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	entries := s.History
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	result := make([]any, 0, len(entries))
	for _, h := range entries {
		result = append(result, []any{h.Item, h.Started, h.Finished})
	}
	return result, nil
}

func (m *Methods) getHistoryLimit(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return s.MaxHistory, nil
}

func (m *Methods) setHistoryLimit(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	size, err := argInt(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	if size < 0 {
		size = 0
	}
	s.MaxHistory = size
	s.TrimHistory()
	return true, nil
}

func (m *Methods) isPaused(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return s.Paused, nil
}

func (m *Methods) isLooping(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return s.LoopMode, nil
}

func (m *Methods) isQueueRunning(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return s.QueueRunning, nil
}

func (m *Methods) currentTime(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return s.CurrentTime(), nil
}

func (m *Methods) lastQueueUpdate(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return s.LastQueueUpdate, nil
}

func (m *Methods) version(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	return m.Version, nil
}

func (m *Methods) apiVersion(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	return []any{APIMajorVersion, APIMinorVersion}, nil
}

func (m *Methods) showConfig(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	return []byte(s.Config.String()), nil
}

func (m *Methods) getConfig(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	result := make([]any, 0, len(s.Config))
	for _, e := range s.Config {
		result = append(result, []any{
			[]byte(e.Pattern.String()),
			[]byte(strings.Join(e.Command, " ")),
		})
	}
	return result, nil
}

func (m *Methods) noOp(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	return true, nil
}
