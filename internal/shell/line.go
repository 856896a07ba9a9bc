package shell

import "errors"

// LineMaxSize bounds a single shell line, matching the fixed buffer the
// original keeps per history entry.
const LineMaxSize = 64

// HistorySize is the number of entries kept in the history ring,
// including the one used as the current line.
const HistorySize = 21

// errLineTooLong is returned by line.insert when the line is already at
// LineMaxSize.
var errLineTooLong = errors.New("shell: line too long")

// line is a single fixed-capacity entry: either the line currently being
// edited, or a past entry in the history ring.
type line struct {
	buf  [LineMaxSize]byte
	size int
}

func (l *line) String() string { return string(l.buf[:l.size]) }

func (l *line) reset() { l.size = 0 }

func (l *line) copyFrom(src *line) {
	l.size = src.size
	copy(l.buf[:l.size], src.buf[:src.size])
}

// insert places c at index, shifting everything at or after index one
// slot to the right.
func (l *line) insert(index int, c byte) error {
	if index > l.size {
		return errors.New("shell: index out of range")
	}
	if l.size == LineMaxSize {
		return errLineTooLong
	}
	copy(l.buf[index+1:l.size+1], l.buf[index:l.size])
	l.buf[index] = c
	l.size++
	return nil
}

// erase removes the byte at index, shifting everything after it one slot
// to the left.
func (l *line) erase(index int) error {
	if index >= l.size {
		return errors.New("shell: index out of range")
	}
	copy(l.buf[index:l.size-1], l.buf[index+1:l.size])
	l.size--
	return nil
}

// history is a circular buffer of lines, always non-empty: the entry at
// newest is the line currently being edited. oldest and newest only ever
// grow, wrapping modulo len(entries) when indexing — mirroring the
// original's "mind integer overflows" comment on a 64-bit counter.
type history struct {
	entries [HistorySize]line
	newest  uint64
	oldest  uint64
	index   uint64
}

func (h *history) get(i uint64) *line { return &h.entries[i%HistorySize] }

func (h *history) newestLine() *line { return h.get(h.newest) }

func (h *history) indexLine() *line { return h.get(h.index) }

func (h *history) resetIndex() { h.index = h.newest }

func (h *history) sameAsPrevious() bool {
	return h.newest != h.oldest && h.newestLine().String() == h.get(h.newest-1).String()
}

// push commits the current line into history and starts a fresh one, the
// way pressing enter does. An empty line, or one identical to the
// previous entry, is not duplicated.
func (h *history) push() {
	if h.newestLine().size == 0 || h.sameAsPrevious() {
		h.resetIndex()
		return
	}

	h.newest++
	h.resetIndex()

	if h.newest-h.oldest >= HistorySize {
		h.oldest = h.newest - HistorySize + 1
	}
}

// back copies the previous history entry into the current line, as the
// up arrow does. It is a no-op at the oldest entry.
func (h *history) back() {
	if h.index == h.oldest {
		return
	}
	h.index--
	h.newestLine().copyFrom(h.indexLine())
}

// forward copies the next history entry into the current line, as the
// down arrow does. Moving forward from the newest entry clears the line.
func (h *history) forward() {
	if h.index == h.newest {
		return
	}
	h.index++
	if h.index == h.newest {
		h.newestLine().reset()
	} else {
		h.newestLine().copyFrom(h.indexLine())
	}
}
