package api

import (
	"bytes"
	"math/rand"
	"regexp"
	"sort"

	"github.com/daniel-jacob-pearson/moosic/internal/ranges"
	"github.com/daniel-jacob-pearson/moosic/internal/store"
	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

func (m *Methods) installPlaylist(reg *Registry) {
	reg.Register("insert", m.insert, [][]string{{Boolean, Array, Int}},
		`Inserts items at a given position in the queue.

Arguments: The first argument is an array of (base64-encoded) strings,
    representing the items to be added.
  * The second argument specifies the position in the queue where the items
    will be inserted.
  * When adding local filenames to the queue, only absolute pathnames should
    be used.  Using relative pathnames would be foolish because the server
    has no idea what the client's current working directory is.
Return value: Nothing meaningful.`)
	reg.Register("append", m.append, [][]string{{Boolean, Array}},
		`Adds items to the end of the queue.

Arguments: An array of (base64-encoded) strings, representing the items to
    be added.
Return value: Nothing meaningful.`)
	reg.Register("prepend", m.prepend, [][]string{{Boolean, Array}},
		`Adds items to the beginning of the queue.

Arguments: An array of (base64-encoded) strings, representing the items to
    be added.
Return value: Nothing meaningful.`)
	reg.Register("replace", m.replace, [][]string{{Boolean, Array}},
		`Replaces the contents of the queue with the given items.

This is equivalent to calling clear() and prepend() in succession, except
that this operation is atomic.

Arguments: An array of (base64-encoded) strings, representing the items to
    be added.
Return value: Nothing meaningful.`)
	reg.Register("replace_range", m.replaceRange, [][]string{{Boolean, Array, Array}},
		`Replaces a slice of the contents of the queue with the given items.

This is equivalent to calling cut() and insert() in succession, except
that this operation is atomic.

Arguments: The first is an array of integers that represents a range; the
    second is an array of (base64-encoded) strings, representing the items
    to be added.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("clear", m.clear, [][]string{{Boolean}},
		`Removes all items from the queue.

Arguments: None.
Return value: Nothing meaningful.`)
	reg.Register("cut", m.cut, [][]string{{Boolean, Array}},
		`Remove all queued items that fall within the given range.

Arguments: An array of integers that represents a range.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("cut_list", m.cutList, [][]string{{Boolean, Array}},
		`Removes the items referenced by a list of positions within the queue.

Arguments: An array of integers that represents a list of the positions of
    the items to be removed.
Return value: Nothing meaningful.`)
	reg.Register("crop", m.crop, [][]string{{Boolean, Array}},
		`Remove all queued items that do not fall within the given range.

Arguments: An array of integers that represents a range.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("crop_list", m.cropList, [][]string{{Boolean, Array}},
		`Removes all items except for those referenced by a list of positions.

Arguments: An array of integers that represents a list of the positions of
    the items to be kept.
Return value: Nothing meaningful.`)
	reg.Register("remove", m.remove, [][]string{{Boolean, Base64}, {Boolean, Base64, Array}},
		`Removes all items that match the given regular expression.

Arguments: A regular expression that specifies which items to remove.
  * Optionally, an array of integers may be given as a second argument.
    This argument represents a range to which the removal will be limited.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("filter", m.filter, [][]string{{Boolean, Base64}, {Boolean, Base64, Array}},
		`Removes all items that don't match the given regular expression.

Arguments: A regular expression that specifies which items to keep.
  * Optionally, an array of integers may be given as a second argument.
    This argument represents a range to which the filtering will be limited.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("move", m.move, [][]string{{Boolean, Array, Int}},
		`Moves a range of items to a new position within the queue.

Arguments: The first argument is an array of integers that represents a
    range of items to be moved.`+rangeHelp+`
  * The second argument, "destination", specifies the position in the queue
    where the items will be moved.
Return value: Nothing meaningful.`)
	reg.Register("move_list", m.moveList, [][]string{{Boolean, Array, Int}},
		`Moves the items referenced by a list of positions to a new position.

Arguments: The first argument is an array of integers that represents a
    list of the positions of the items to be moved.
  * The second argument, "destination", specifies the position in the queue
    where the items will be moved.
Return value: Nothing meaningful.`)
	reg.Register("swap", m.swap, [][]string{{Boolean, Array, Array}},
		`Swaps the items contained in one range with the items contained in the
other range. Overlapping ranges may not be swapped.

Return value: Nothing meaningful.`)
	reg.Register("shuffle", m.shuffle, [][]string{{Boolean}, {Boolean, Array}},
		`Rearrange the contents of the queue into a random order.

Arguments: Either none, or an array of integers that represents a range.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("sort", m.sort, [][]string{{Boolean}, {Boolean, Array}},
		`Arranges the contents of the queue into sorted order.

Arguments: Either none, or an array of integers that represents a range.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("reverse", m.reverse, [][]string{{Boolean}, {Boolean, Array}},
		`Reverses the order of the items in the queue.

Arguments: Either none, or an array of integers that represents a range.`+rangeHelp+`
Return value: Nothing meaningful.`)
	reg.Register("sub", m.sub, [][]string{{Boolean, Base64, Base64}, {Boolean, Base64, Base64, Array}},
		`Performs a regular expression substitution on the items in the queue.

Arguments: The first is a (base64-encoded) regular expression that
    specifies the text to be replaced.
  * The second argument is the (base64-encoded) string that will be used to
    replace the first occurrence of the regular expression within each
    queue item. Backreferences to groups within the match (\1, \2, ...)
    will be expanded.
  * Optionally, an array of integers may be given as a third argument,
    representing a range to which the substitution will be limited.`+rangeHelp+`
  * If performing a replacement changes an item in the queue into the empty
    string, then it is removed from the queue.
Return value: Nothing meaningful.`)
	reg.Register("sub_all", m.subAll, [][]string{{Boolean, Base64, Base64}, {Boolean, Base64, Base64, Array}},
		`Performs a global regular expression substitution on the items in the
queue.

Arguments: The first is a (base64-encoded) regular expression that
    specifies the text to be replaced.
  * The second argument is the (base64-encoded) string that will be used to
    replace all occurrences of the regular expression within each queue
    item. Backreferences to groups within the match (\1, \2, ...) will be
    expanded.
  * Optionally, an array of integers may be given as a third argument,
    representing a range to which the substitution will be limited.`+rangeHelp+`
  * If performing a replacement changes an item in the queue into the empty
    string, then it is removed from the queue.
Return value: Nothing meaningful.`)
}

// spliceAt inserts items into the queue at position p (negative positions
// wrap from the end). Callers must hold the lock.
func spliceAt(s *store.Store, items [][]byte, p int) {
	p = ranges.Clamp(p, len(s.Queue))
	queue := make([][]byte, 0, len(s.Queue)+len(items))
	queue = append(queue, s.Queue[:p]...)
	queue = append(queue, items...)
	queue = append(queue, s.Queue[p:]...)
	s.Queue = queue
	s.TouchQueue()
}

func (m *Methods) insert(params []any) (any, error) {
	if err := wantArgs(params, 2, 2); err != nil {
		return nil, err
	}
	items, err := argItems(params, 0)
	if err != nil {
		return nil, err
	}
	position, err := argInt(params, 1)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	spliceAt(s, store.FilterEmpty(items), position)
	return true, nil
}

func (m *Methods) append(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	items, err := argItems(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.Queue = append(s.Queue, store.FilterEmpty(items)...)
	s.TouchQueue()
	return true, nil
}

func (m *Methods) prepend(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	items, err := argItems(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	spliceAt(s, store.FilterEmpty(items), 0)
	return true, nil
}

func (m *Methods) replace(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	items, err := argItems(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.Queue = store.FilterEmpty(items)
	s.TouchQueue()
	return true, nil
}

func (m *Methods) replaceRange(params []any) (any, error) {
	if err := wantArgs(params, 2, 2); err != nil {
		return nil, err
	}
	rng, err := argRange(params, 0)
	if err != nil {
		return nil, err
	}
	items, err := argItems(params, 1)
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
	kept := store.FilterEmpty(items)
	queue := make([][]byte, 0, len(s.Queue)-(end-start)+len(kept))
	queue = append(queue, s.Queue[:start]...)
	queue = append(queue, kept...)
	queue = append(queue, s.Queue[end:]...)
	s.Queue = queue
	s.TouchQueue()
	return true, nil
}

func (m *Methods) clear(params []any) (any, error) {
	if err := wantArgs(params, 0, 0); err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	s.Queue = nil
	s.TouchQueue()
	return true, nil
}

func (m *Methods) cut(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	rng, err := argRange(params, 0)
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
	s.Queue = append(s.Queue[:start], s.Queue[end:]...)
	s.TouchQueue()
	return true, nil
}

func (m *Methods) cutList(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	indices, err := argIndices(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	drop, err := resolveIndexSet(indices, len(s.Queue))
	if err != nil {
		return nil, err
	}
	queue := s.Queue[:0]
	for i, item := range s.Queue {
		if !drop[i] {
			queue = append(queue, item)
		}
	}
	s.Queue = queue
	s.TouchQueue()
	return true, nil
}

func (m *Methods) crop(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	rng, err := argRange(params, 0)
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
	s.Queue = append([][]byte(nil), s.Queue[start:end]...)
	s.TouchQueue()
	return true, nil
}

func (m *Methods) cropList(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	indices, err := argIndices(params, 0)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	queue := make([][]byte, 0, len(indices))
	for _, i := range indices {
		j, err := ranges.Index(i, len(s.Queue))
		if err != nil {
			return nil, xmlrpc.Faultf(xmlrpc.CodeIndex, "%v", err)
		}
		queue = append(queue, s.Queue[j])
	}
	s.Queue = queue
	s.TouchQueue()
	return true, nil
}

func (m *Methods) remove(params []any) (any, error) {
	return m.grepQueue(params, false)
}

func (m *Methods) filter(params []any) (any, error) {
	return m.grepQueue(params, true)
}

// grepQueue keeps the items within the range that match (or, for remove,
// don't match) the given pattern.
func (m *Methods) grepQueue(params []any, keepMatching bool) (any, error) {
	if err := wantArgs(params, 1, 2); err != nil {
		return nil, err
	}
	re, err := argRegexp(params, 0)
	if err != nil {
		return nil, err
	}
	rng, err := optionalRange(params, 1)
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
	kept := make([][]byte, 0, end-start)
	for _, item := range s.Queue[start:end] {
		if re.Match(item) == keepMatching {
			kept = append(kept, item)
		}
	}
	queue := make([][]byte, 0, len(s.Queue)-(end-start)+len(kept))
	queue = append(queue, s.Queue[:start]...)
	queue = append(queue, kept...)
	queue = append(queue, s.Queue[end:]...)
	s.Queue = queue
	s.TouchQueue()
	return true, nil
}

func (m *Methods) move(params []any) (any, error) {
	if err := wantArgs(params, 2, 2); err != nil {
		return nil, err
	}
	rng, err := argRange(params, 0)
	if err != nil {
		return nil, err
	}
	dest, err := argInt(params, 1)
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
	moved := append([][]byte(nil), s.Queue[start:end]...)
	// Mark the old positions instead of removing them right away, so the
	// destination index keeps its meaning.
	marked := make([][]byte, len(s.Queue))
	copy(marked, s.Queue)
	for i := start; i < end; i++ {
		marked[i] = nil
	}
	d := ranges.Clamp(dest, len(marked))
	queue := make([][]byte, 0, len(marked)+len(moved))
	queue = append(queue, marked[:d]...)
	queue = append(queue, moved...)
	queue = append(queue, marked[d:]...)
	s.Queue = compactMarked(queue)
	s.TouchQueue()
	return true, nil
}

func (m *Methods) moveList(params []any) (any, error) {
	if err := wantArgs(params, 2, 2); err != nil {
		return nil, err
	}
	indices, err := argIndices(params, 0)
	if err != nil {
		return nil, err
	}
	dest, err := argInt(params, 1)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	marked := make([][]byte, len(s.Queue))
	copy(marked, s.Queue)
	moved := make([][]byte, 0, len(indices))
	for _, i := range indices {
		j, err := ranges.Index(i, len(s.Queue))
		if err != nil {
			return nil, xmlrpc.Faultf(xmlrpc.CodeIndex, "%v", err)
		}
		moved = append(moved, s.Queue[j])
		marked[j] = nil
	}
	d := ranges.Clamp(dest, len(marked))
	queue := make([][]byte, 0, len(marked)+len(moved))
	queue = append(queue, marked[:d]...)
	queue = append(queue, moved...)
	queue = append(queue, marked[d:]...)
	s.Queue = compactMarked(queue)
	s.TouchQueue()
	return true, nil
}

// compactMarked removes the nil markers left behind by move operations.
// Queue entries are never nil (empty items are filtered at ingress), so
// nil is a safe out-of-band marker.
func compactMarked(queue [][]byte) [][]byte {
	kept := queue[:0]
	for _, item := range queue {
		if item != nil {
			kept = append(kept, item)
		}
	}
	return kept
}

func resolveIndexSet(indices []int, n int) (map[int]bool, error) {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		j, err := ranges.Index(i, n)
		if err != nil {
			return nil, xmlrpc.Faultf(xmlrpc.CodeIndex, "%v", err)
		}
		set[j] = true
	}
	return set, nil
}

func (m *Methods) swap(params []any) (any, error) {
	if err := wantArgs(params, 2, 2); err != nil {
		return nil, err
	}
	rngA, err := argRange(params, 0)
	if err != nil {
		return nil, err
	}
	rngB, err := argRange(params, 1)
	if err != nil {
		return nil, err
	}
	s := m.Store
	s.Lock()
	defer s.Unlock()
	n := len(s.Queue)
	aStart, aEnd, err := rngA.Bounds(n)
	if err != nil {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "%v", err)
	}
	bStart, bEnd, err := rngB.Bounds(n)
	if err != nil {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "%v", err)
	}
	if ranges.Overlapping(aStart, aEnd, bStart, bEnd) {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse,
			"Overlapping ranges may not be swapped: [%d, %d) [%d, %d)", aStart, aEnd, bStart, bEnd)
	}
	// Make sure range A is closer to the head of the queue than range B.
	if aStart > bStart {
		aStart, aEnd, bStart, bEnd = bStart, bEnd, aStart, aEnd
	}
	// An empty range B lying inside A: moving A's items to B's position
	// puts them back where they are, so the queue is left unchanged.
	if aEnd > bStart {
		return true, nil
	}
	queue := make([][]byte, 0, n)
	queue = append(queue, s.Queue[:aStart]...)
	queue = append(queue, s.Queue[bStart:bEnd]...)
	queue = append(queue, s.Queue[aEnd:bStart]...)
	queue = append(queue, s.Queue[aStart:aEnd]...)
	queue = append(queue, s.Queue[bEnd:]...)
	s.Queue = queue
	s.TouchQueue()
	return true, nil
}

func (m *Methods) shuffle(params []any) (any, error) {
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
	slice := s.Queue[start:end]
	rand.Shuffle(len(slice), func(i, j int) {
		slice[i], slice[j] = slice[j], slice[i]
	})
	s.TouchQueue()
	return true, nil
}

func (m *Methods) sort(params []any) (any, error) {
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
	slice := s.Queue[start:end]
	sort.SliceStable(slice, func(i, j int) bool {
		return bytes.Compare(slice[i], slice[j]) < 0
	})
	s.TouchQueue()
	return true, nil
}

func (m *Methods) reverse(params []any) (any, error) {
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
	slice := s.Queue[start:end]
	for i, j := 0, len(slice)-1; i < j; i, j = i+1, j-1 {
		slice[i], slice[j] = slice[j], slice[i]
	}
	s.TouchQueue()
	return true, nil
}

func (m *Methods) sub(params []any) (any, error) {
	return m.substitute(params, false)
}

func (m *Methods) subAll(params []any) (any, error) {
	return m.substitute(params, true)
}

func (m *Methods) substitute(params []any, global bool) (any, error) {
	if err := wantArgs(params, 2, 3); err != nil {
		return nil, err
	}
	re, err := argRegexp(params, 0)
	if err != nil {
		return nil, err
	}
	replacement, err := argBytes(params, 1)
	if err != nil {
		return nil, err
	}
	rng, err := optionalRange(params, 2)
	if err != nil {
		return nil, err
	}
	template := convertTemplate(replacement)
	s := m.Store
	s.Lock()
	defer s.Unlock()
	start, end, err := rng.Bounds(len(s.Queue))
	if err != nil {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "%v", err)
	}
	replaced := make([][]byte, 0, end-start)
	for _, item := range s.Queue[start:end] {
		var out []byte
		if global {
			out = re.ReplaceAll(item, template)
		} else {
			out = replaceFirst(re, item, template)
		}
		if len(out) > 0 {
			replaced = append(replaced, out)
		}
	}
	queue := make([][]byte, 0, len(s.Queue)-(end-start)+len(replaced))
	queue = append(queue, s.Queue[:start]...)
	queue = append(queue, replaced...)
	queue = append(queue, s.Queue[end:]...)
	s.Queue = queue
	s.TouchQueue()
	return true, nil
}

// replaceFirst substitutes only the first match of re within item.
func replaceFirst(re *regexp.Regexp, item, template []byte) []byte {
	loc := re.FindSubmatchIndex(item)
	if loc == nil {
		return item
	}
	out := make([]byte, 0, len(item))
	out = append(out, item[:loc[0]]...)
	out = re.Expand(out, template, item, loc)
	out = append(out, item[loc[1]:]...)
	return out
}

// convertTemplate rewrites a backslash-style replacement string (\1, \2,
// ...) into the ${n} template syntax the regexp package expands, escaping
// any literal dollar signs along the way.
func convertTemplate(replacement []byte) []byte {
	out := make([]byte, 0, len(replacement))
	for i := 0; i < len(replacement); i++ {
		c := replacement[i]
		switch {
		case c == '$':
			out = append(out, '$', '$')
		case c == '\\' && i+1 < len(replacement):
			next := replacement[i+1]
			switch {
			case next >= '0' && next <= '9':
				out = append(out, '$', '{', next, '}')
			case next == '\\':
				out = append(out, '\\')
			case next == 'n':
				out = append(out, '\n')
			case next == 't':
				out = append(out, '\t')
			default:
				out = append(out, next)
			}
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}
