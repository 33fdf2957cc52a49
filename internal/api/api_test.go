package api

import (
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-jacob-pearson/moosic/internal/config"
	"github.com/daniel-jacob-pearson/moosic/internal/store"
	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

func newServerUnderTest(t *testing.T) (*store.Store, *Registry) {
	t.Helper()
	s := store.New()
	m := &Methods{Store: s, Log: zerolog.Nop(), Version: "1.5.6"}
	reg := NewRegistry()
	m.Install(reg)
	return s, reg
}

func call(t *testing.T, reg *Registry, name string, params ...any) any {
	t.Helper()
	result, err := reg.Dispatch(name, params)
	require.NoError(t, err, "method %s", name)
	return result
}

func callFault(t *testing.T, reg *Registry, name string, params ...any) *xmlrpc.Fault {
	t.Helper()
	_, err := reg.Dispatch(name, params)
	require.Error(t, err, "method %s", name)
	return xmlrpc.AsFault(err)
}

func items(names ...string) []any {
	arr := make([]any, len(names))
	for i, n := range names {
		arr[i] = []byte(n)
	}
	return arr
}

func queue(s *store.Store) []string {
	s.Lock()
	defer s.Unlock()
	out := make([]string, len(s.Queue))
	for i, item := range s.Queue {
		out[i] = string(item)
	}
	return out
}

func setQueue(s *store.Store, names ...string) {
	s.Lock()
	defer s.Unlock()
	s.Queue = nil
	for _, n := range names {
		s.Queue = append(s.Queue, []byte(n))
	}
}

func TestAppendFiltersEmptyItems(t *testing.T) {
	s, reg := newServerUnderTest(t)

	call(t, reg, "append", items("/m/a.mp3", "/m/b.mp3", ""))

	assert.Equal(t, []string{"/m/a.mp3", "/m/b.mp3"}, queue(s))
	assert.Equal(t, 2, call(t, reg, "queue_length"))
}

func TestInsertPrependReplace(t *testing.T) {
	s, reg := newServerUnderTest(t)

	call(t, reg, "append", items("b", "d"))
	call(t, reg, "prepend", items("a"))
	call(t, reg, "insert", items("c"), 2)
	assert.Equal(t, []string{"a", "b", "c", "d"}, queue(s))

	call(t, reg, "insert", items("x"), -1)
	assert.Equal(t, []string{"a", "b", "c", "x", "d"}, queue(s))

	call(t, reg, "replace", items("z", ""))
	assert.Equal(t, []string{"z"}, queue(s))
}

func TestInsertRejectsNonByteItems(t *testing.T) {
	s, reg := newServerUnderTest(t)

	f := callFault(t, reg, "append", []any{"plain string"})
	assert.Equal(t, xmlrpc.CodeType, f.Code)
	assert.Empty(t, queue(s))

	f = callFault(t, reg, "insert", []any{7}, 0)
	assert.Equal(t, xmlrpc.CodeType, f.Code)
}

func TestReplaceRangeIsAtomicCutInsert(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c", "d")

	call(t, reg, "replace_range", []any{1, 3}, items("x", "y", "z"))
	assert.Equal(t, []string{"a", "x", "y", "z", "d"}, queue(s))
}

func TestCutAndCutList(t *testing.T) {
	s, reg := newServerUnderTest(t)

	setQueue(s, "x", "y", "z", "w", "v")
	call(t, reg, "cut", []any{1, 3})
	assert.Equal(t, []string{"x", "w", "v"}, queue(s))

	setQueue(s, "x", "y", "z", "w", "v")
	call(t, reg, "cut_list", []any{0, 2})
	assert.Equal(t, []string{"y", "w", "v"}, queue(s))
}

func TestCutListOutOfBounds(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b")

	f := callFault(t, reg, "cut_list", []any{5})
	assert.Equal(t, xmlrpc.CodeIndex, f.Code)
	assert.Equal(t, []string{"a", "b"}, queue(s))
}

func TestCropAndCropList(t *testing.T) {
	s, reg := newServerUnderTest(t)

	setQueue(s, "a", "b", "c", "d")
	call(t, reg, "crop", []any{1, 3})
	assert.Equal(t, []string{"b", "c"}, queue(s))

	setQueue(s, "a", "b", "c", "d")
	call(t, reg, "crop_list", []any{3, 0})
	assert.Equal(t, []string{"d", "a"}, queue(s))
}

func TestRemoveAndFilter(t *testing.T) {
	s, reg := newServerUnderTest(t)

	setQueue(s, "/m/a.mp3", "/m/b.ogg", "/m/c.mp3")
	call(t, reg, "remove", []byte(`\.mp3$`))
	assert.Equal(t, []string{"/m/b.ogg"}, queue(s))

	setQueue(s, "/m/a.mp3", "/m/b.ogg", "/m/c.mp3")
	call(t, reg, "filter", []byte(`\.mp3$`))
	assert.Equal(t, []string{"/m/a.mp3", "/m/c.mp3"}, queue(s))

	// Restricted to a range, items outside it are untouched.
	setQueue(s, "/m/a.mp3", "/m/b.mp3", "/m/c.ogg")
	call(t, reg, "remove", []byte(`\.mp3$`), []any{1, 3})
	assert.Equal(t, []string{"/m/a.mp3", "/m/c.ogg"}, queue(s))
}

func TestBadRegexp(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a")

	f := callFault(t, reg, "remove", []byte("(unbalanced"))
	assert.Equal(t, xmlrpc.CodeParse, f.Code)
	assert.Equal(t, []string{"a"}, queue(s))
}

func TestMovePreservesMultiset(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c", "d", "e")

	call(t, reg, "move", []any{0, 2}, 4)
	assert.Equal(t, []string{"c", "d", "a", "b", "e"}, queue(s))

	setQueue(s, "a", "b", "c", "d")
	call(t, reg, "move_list", []any{0, 3}, 2)
	assert.Equal(t, []string{"b", "a", "d", "c"}, queue(s))
}

func TestSwap(t *testing.T) {
	s, reg := newServerUnderTest(t)

	setQueue(s, "a", "b", "c", "d")
	f := callFault(t, reg, "swap", []any{0, 2}, []any{1, 3})
	assert.Equal(t, xmlrpc.CodeParse, f.Code)
	assert.Equal(t, []string{"a", "b", "c", "d"}, queue(s), "failed swap must not mutate")

	call(t, reg, "swap", []any{0, 2}, []any{2, 4})
	assert.Equal(t, []string{"c", "d", "a", "b"}, queue(s))

	// Swapping twice returns the original arrangement.
	call(t, reg, "swap", []any{0, 2}, []any{2, 4})
	assert.Equal(t, []string{"a", "b", "c", "d"}, queue(s))
}

func TestSwapUnevenRanges(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c", "d", "e")

	call(t, reg, "swap", []any{0, 1}, []any{2, 5})
	assert.Equal(t, []string{"c", "d", "e", "b", "a"}, queue(s))
}

func TestShuffleSortReverse(t *testing.T) {
	s, reg := newServerUnderTest(t)

	setQueue(s, "d", "b", "a", "c")
	call(t, reg, "shuffle")
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, queue(s))

	call(t, reg, "sort")
	assert.Equal(t, []string{"a", "b", "c", "d"}, queue(s))
	call(t, reg, "sort")
	assert.Equal(t, []string{"a", "b", "c", "d"}, queue(s), "sort is idempotent")

	call(t, reg, "reverse")
	assert.Equal(t, []string{"d", "c", "b", "a"}, queue(s))
	call(t, reg, "reverse")
	assert.Equal(t, []string{"a", "b", "c", "d"}, queue(s), "double reverse is the identity")

	// Range-limited reverse touches only the slice.
	call(t, reg, "reverse", []any{1, 3})
	assert.Equal(t, []string{"a", "c", "b", "d"}, queue(s))
}

func TestSub(t *testing.T) {
	s, reg := newServerUnderTest(t)

	setQueue(s, "/old/a.mp3", "/old/old.mp3")
	call(t, reg, "sub", []byte("old"), []byte("new"))
	assert.Equal(t, []string{"/new/a.mp3", "/new/old.mp3"}, queue(s))

	setQueue(s, "/old/old.mp3")
	call(t, reg, "sub_all", []byte("old"), []byte("new"))
	assert.Equal(t, []string{"/new/new.mp3"}, queue(s))

	// Substitution with backreferences.
	setQueue(s, "/m/track-07.mp3")
	call(t, reg, "sub", []byte(`track-(\d+)`), []byte(`song-\1`))
	assert.Equal(t, []string{"/m/song-07.mp3"}, queue(s))

	// Items substituted into nothing are dropped.
	setQueue(s, "xxx", "keep")
	call(t, reg, "sub_all", []byte("x"), []byte(""))
	assert.Equal(t, []string{"keep"}, queue(s))
}

func TestSubAllIdempotentWhenPatternGone(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "/old/a.mp3")

	call(t, reg, "sub_all", []byte("old"), []byte("new"))
	first := queue(s)
	call(t, reg, "sub_all", []byte("old"), []byte("new"))
	assert.Equal(t, first, queue(s))
}

func TestListAndIndexedList(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c", "d")

	assert.Equal(t, items("a", "b", "c", "d"), call(t, reg, "list"))
	assert.Equal(t, items("b", "c"), call(t, reg, "list", []any{1, 3}))

	result := call(t, reg, "indexed_list", []any{-2}).(map[string]any)
	assert.Equal(t, 2, result["start"])
	assert.Equal(t, items("c", "d"), result["list"])

	result = call(t, reg, "indexed_list", []any{-9}).(map[string]any)
	assert.Equal(t, 0, result["start"])
}

func TestRangeValidation(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a")

	f := callFault(t, reg, "list", []any{1, 2, 3})
	assert.Equal(t, xmlrpc.CodeParse, f.Code)

	f = callFault(t, reg, "list", []any{"zero"})
	assert.Equal(t, xmlrpc.CodeParse, f.Code)

	f = callFault(t, reg, "list", "not a range")
	assert.Equal(t, xmlrpc.CodeType, f.Code)
	_ = s
}

func TestNextRecordsSkippedSongs(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c", "d")

	call(t, reg, "next", 2)

	assert.Equal(t, []string{"c", "d"}, queue(s))
	s.Lock()
	require.Len(t, s.History, 2)
	assert.Equal(t, []byte("a"), s.History[0].Item)
	assert.Equal(t, []byte("b"), s.History[1].Item)
	// Skipped songs share the start time of the song that was current.
	assert.Equal(t, s.History[0].Started, s.History[1].Started)
	assert.True(t, s.QueueRunning, "queue_running restored to its prior value")
	s.Unlock()
}

func TestNextPreservesHaltedState(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b")
	call(t, reg, "halt_queue")

	call(t, reg, "next")

	s.Lock()
	assert.False(t, s.QueueRunning)
	s.Unlock()
}

func TestNextLoopModeRequeues(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c")
	call(t, reg, "set_loop_mode", true)

	call(t, reg, "next", 2)

	assert.Equal(t, []string{"c", "a", "b"}, queue(s))
	s.Lock()
	assert.Len(t, s.History, 2)
	s.Unlock()
}

func TestPrevious(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "c", "d")
	s.Lock()
	s.RecordHistory([]byte("a"), 1, 2)
	s.RecordHistory([]byte("b"), 3, 4)
	s.Unlock()

	call(t, reg, "previous", 1)
	assert.Equal(t, []string{"b", "c", "d"}, queue(s))
	s.Lock()
	require.Len(t, s.History, 1)
	assert.Equal(t, []byte("a"), s.History[0].Item)
	s.Unlock()

	// With loop mode on, the queue tail rotates to the head instead.
	call(t, reg, "set_loop_mode", true)
	call(t, reg, "previous", 1)
	assert.Equal(t, []string{"d", "b", "c"}, queue(s))
	s.Lock()
	assert.Len(t, s.History, 1, "history untouched in loop mode")
	s.Unlock()
}

func TestStopPutsCurrentBack(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c")
	s.Lock()
	s.Current = []byte("now")
	s.Unlock()

	call(t, reg, "stop")

	assert.Equal(t, []string{"now", "a", "b", "c"}, queue(s))
	s.Lock()
	assert.False(t, s.QueueRunning)
	assert.True(t, s.IgnoreFinish)
	assert.Empty(t, s.History)
	s.Unlock()
}

func TestHaltAndRunQueue(t *testing.T) {
	s, reg := newServerUnderTest(t)

	call(t, reg, "halt_queue")
	assert.Equal(t, false, call(t, reg, "is_queue_running"))
	call(t, reg, "run_queue")
	assert.Equal(t, true, call(t, reg, "is_queue_running"))

	// The short aliases point at the same implementations.
	call(t, reg, "haltqueue")
	assert.Equal(t, false, call(t, reg, "is_queue_running"))
	call(t, reg, "runqueue")
	assert.Equal(t, true, call(t, reg, "is_queue_running"))
	_ = s
}

func TestLoopModeFlags(t *testing.T) {
	_, reg := newServerUnderTest(t)

	assert.Equal(t, false, call(t, reg, "is_looping"))
	call(t, reg, "set_loop_mode", true)
	assert.Equal(t, true, call(t, reg, "is_looping"))
	call(t, reg, "toggle_loop_mode")
	assert.Equal(t, false, call(t, reg, "is_looping"))
}

func TestHistoryAndLimits(t *testing.T) {
	s, reg := newServerUnderTest(t)
	s.Lock()
	s.RecordHistory([]byte("a"), 1, 2)
	s.RecordHistory([]byte("b"), 3, 4)
	s.RecordHistory([]byte("c"), 5, 6)
	s.Unlock()

	all := call(t, reg, "history").([]any)
	require.Len(t, all, 3)
	assert.Equal(t, []any{[]byte("a"), 1.0, 2.0}, all[0])

	last := call(t, reg, "history", 2).([]any)
	require.Len(t, last, 2)
	assert.Equal(t, []any{[]byte("b"), 3.0, 4.0}, last[0])

	assert.Equal(t, 50, call(t, reg, "get_history_limit"))
	call(t, reg, "set_history_limit", 1)
	assert.Equal(t, 1, call(t, reg, "get_history_limit"))
	require.Len(t, call(t, reg, "history").([]any), 1)

	// Negative limits clamp to zero.
	call(t, reg, "set_history_limit", -5)
	assert.Equal(t, 0, call(t, reg, "get_history_limit"))
	assert.Empty(t, call(t, reg, "history").([]any))
}

func TestCurrentAndTimes(t *testing.T) {
	s, reg := newServerUnderTest(t)

	assert.Equal(t, []byte{}, call(t, reg, "current"))
	assert.Equal(t, 0.0, call(t, reg, "current_time"))

	s.Lock()
	s.Current = []byte("/m/a.mp3")
	s.SongStart = store.Now() - 30
	s.AccumulatedPaused = 10
	s.Unlock()

	assert.Equal(t, []byte("/m/a.mp3"), call(t, reg, "current"))
	elapsed := call(t, reg, "current_time").(float64)
	assert.InDelta(t, 20.0, elapsed, 1.0)

	before := call(t, reg, "last_queue_update").(float64)
	call(t, reg, "append", items("x"))
	after := call(t, reg, "last_queue_update").(float64)
	assert.Greater(t, after, before)
}

func TestVersionAndConfigInfo(t *testing.T) {
	s, reg := newServerUnderTest(t)
	s.Lock()
	s.Config = config.Table{{Pattern: regexp.MustCompile(`\.mp3$`), Command: []string{"mpg123", "-q"}}}
	s.Unlock()

	assert.Equal(t, "1.5.6", call(t, reg, "version"))
	assert.Equal(t, []any{1, 8}, call(t, reg, "api_version"))
	assert.Equal(t, []byte("\\.mp3$\n\tmpg123 -q\n"), call(t, reg, "showconfig"))
	cfg := call(t, reg, "getconfig").([]any)
	require.Len(t, cfg, 1)
	assert.Equal(t, []any{[]byte(`\.mp3$`), []byte("mpg123 -q")}, cfg[0])
	assert.Equal(t, true, call(t, reg, "no_op"))
}

func TestDie(t *testing.T) {
	s, reg := newServerUnderTest(t)
	s.Lock()
	s.Current = []byte("now")
	s.Unlock()

	call(t, reg, "die")

	s.Lock()
	assert.True(t, s.Quit)
	assert.True(t, s.IgnoreFinish)
	s.Unlock()
}

func TestDispatchMiss(t *testing.T) {
	_, reg := newServerUnderTest(t)
	f := callFault(t, reg, "bogus_method")
	assert.Equal(t, xmlrpc.CodeNoSuchMethod, f.Code)
}

func TestIntrospection(t *testing.T) {
	_, reg := newServerUnderTest(t)

	names := call(t, reg, "system.listMethods").([]any)
	assert.Contains(t, names, any("insert"))
	assert.Contains(t, names, any("system.multicall"))

	sigs := call(t, reg, "system.methodSignature", "insert").([]any)
	require.Len(t, sigs, 1)
	assert.Equal(t, []any{Boolean, Array, Int}, sigs[0])

	help := call(t, reg, "system.methodHelp", "no_op").(string)
	assert.Contains(t, help, "Does nothing, successfully.")

	f := callFault(t, reg, "system.methodHelp", "bogus")
	assert.Equal(t, xmlrpc.CodeNoSuchMethod, f.Code)
}

func TestIntrospectionDisabled(t *testing.T) {
	_, reg := newServerUnderTest(t)
	reg.AllowIntrospection = false

	f := callFault(t, reg, "system.listMethods")
	assert.Equal(t, xmlrpc.CodeIntrospectionDisabled, f.Code)
}

func TestMulticall(t *testing.T) {
	s, reg := newServerUnderTest(t)

	calls := []any{
		map[string]any{"methodName": "append", "params": []any{items("a", "b")}},
		map[string]any{"methodName": "queue_length", "params": []any{}},
		map[string]any{"methodName": "bogus", "params": []any{}},
		map[string]any{"methodName": "system.multicall", "params": []any{}},
	}
	results := call(t, reg, "system.multicall", calls).([]any)
	require.Len(t, results, 4)

	assert.Equal(t, []any{true}, results[0])
	assert.Equal(t, []any{2}, results[1])

	miss := results[2].(map[string]any)
	assert.Equal(t, xmlrpc.CodeNoSuchMethod, miss["faultCode"])

	recursive := results[3].(map[string]any)
	assert.Equal(t, xmlrpc.CodeRequestRefused, recursive["faultCode"])

	assert.Equal(t, []string{"a", "b"}, queue(s))
}

func TestLastQueueUpdateStrictlyIncreases(t *testing.T) {
	s, reg := newServerUnderTest(t)
	setQueue(s, "a", "b", "c")

	mutators := []struct {
		name   string
		params []any
	}{
		{"append", []any{items("z")}},
		{"cut", []any{[]any{0, 1}}},
		{"reverse", nil},
		{"clear", nil},
	}
	prev := call(t, reg, "last_queue_update").(float64)
	for _, op := range mutators {
		call(t, reg, op.name, op.params...)
		now := call(t, reg, "last_queue_update").(float64)
		assert.Greater(t, now, prev, "after %s", op.name)
		prev = now
	}
}
