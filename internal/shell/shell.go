// Package shell implements an interactive line-editing command shell: a
// mutex-protected command registry (exact lookup via hash table, prefix
// completion and iteration via a sorted list), a history ring, and a
// byte-at-a-time input state machine handling raw characters, control
// characters, and ANSI CSI/SS3 escape sequences.
package shell

import (
	"errors"

	"github.com/go-rtos/microkernel/internal/sched"
)

// ThreadStackSize is the stack size used for the shell thread.
const ThreadStackSize = 4096

// MaxArgs bounds the number of whitespace-separated tokens a line is
// split into; a line producing more is rejected.
const MaxArgs = 16

const separator = ' '

// Control characters recognized while editing a line. XXX adjust to
// taste, as the original puts it.
const (
	eraseBS  = '\b'
	eraseDEL = 0x7f
)

// IO abstracts the shell's byte-oriented collaborators: Getc reads one
// input byte (blocking), Printf writes formatted output. It stands in
// for the distilled contract's getc/vfprintf pair.
type IO interface {
	Getc() (byte, error)
	Printf(format string, args ...any)
}

// Shell is a single interactive session: a line buffer with cursor, an
// escape-sequence accumulator, and a history ring, all driven by one
// thread reading through IO and dispatching against a Registry.
type Shell struct {
	io       IO
	registry *Registry

	hist   history
	cursor int

	escBuf []byte

	argBuf [LineMaxSize]byte
	argv   []string
}

// New creates a shell bound to the given registry and I/O.
func New(registry *Registry, io IO) *Shell {
	sh := &Shell{io: io, registry: registry}
	registerDefaults(sh)
	return sh
}

// Spawn starts the shell's read-eval loop as a dedicated thread at the
// lowest application priority, matching the original's
// THREAD_MIN_PRIORITY. It must be called before the scheduler starts, or
// from within another thread's body.
func Spawn(s *sched.Scheduler, registry *Registry, io IO) (*Shell, error) {
	sh := New(registry, io)
	_, err := s.Spawn("shell", sched.MinPriority, ThreadStackSize, func(any) { sh.Run() }, nil)
	if err != nil {
		return nil, err
	}
	return sh, nil
}

func (sh *Shell) current() *line { return sh.hist.newestLine() }

func (sh *Shell) prompt() { sh.io.Printf("shell> ") }

func (sh *Shell) resetLine() {
	sh.current().reset()
	sh.cursor = 0
	sh.prompt()
}

// erase blanks the currently displayed line on the terminal without
// touching history, so it can be redrawn from a different entry (used by
// the up/down history commands).
func (sh *Shell) erase() {
	cur := sh.current()
	for sh.cursor != cur.size {
		sh.io.Printf(" ")
		sh.cursor++
	}
	for cur.size > 0 {
		sh.io.Printf("\b \b")
		cur.size--
	}
	cur.size = 0
	sh.cursor = 0
}

// restore redraws the current line from its buffer and moves the cursor
// to its end.
func (sh *Shell) restore() {
	cur := sh.current()
	sh.io.Printf("%s", cur.String())
	sh.cursor = cur.size
}

func isCtrlChar(c byte) bool { return c < ' ' || c >= 0x7f }

func (sh *Shell) processLeft() {
	if sh.cursor == 0 {
		return
	}
	sh.cursor--
	sh.io.Printf("\x1b[1D")
}

func (sh *Shell) processRight() bool {
	if sh.cursor >= sh.current().size {
		return false
	}
	sh.cursor++
	sh.io.Printf("\x1b[1C")
	return true
}

func (sh *Shell) processUp() {
	sh.erase()
	sh.hist.back()
	sh.restore()
}

func (sh *Shell) processDown() {
	sh.erase()
	sh.hist.forward()
	sh.restore()
}

func (sh *Shell) processHome() {
	for sh.cursor != 0 {
		sh.processLeft()
	}
}

func (sh *Shell) processEnd() {
	size := sh.current().size
	for sh.cursor < size {
		sh.processRight()
	}
}

func (sh *Shell) processDel() {
	if !sh.processRight() {
		return
	}
	sh.processBackspace()
}

func (sh *Shell) processBackspace() {
	cur := sh.current()
	if err := cur.erase(sh.cursor - 1); err != nil {
		return
	}
	sh.cursor--

	sh.io.Printf("\b%s ", string(cur.buf[sh.cursor:cur.size]))
	remaining := cur.size - sh.cursor + 1
	for ; remaining > 0; remaining-- {
		sh.io.Printf("\b")
	}
}

func (sh *Shell) processRawChar(c byte) error {
	cur := sh.current()
	if err := cur.insert(sh.cursor, c); err != nil {
		sh.io.Printf("\nshell: line too long\n")
		return err
	}
	sh.cursor++

	if sh.cursor == cur.size {
		sh.io.Printf("%c", c)
		return nil
	}

	// The backspace character only moves the cursor; it never erases,
	// so redraw the tail and walk the cursor back over it.
	sh.io.Printf("%s", string(cur.buf[sh.cursor-1:cur.size]))
	remaining := cur.size - sh.cursor
	for ; remaining > 0; remaining-- {
		sh.io.Printf("\b")
	}
	return nil
}

func findWord(str string, from int) int {
	i := from
	for i < len(str) && str[i] == separator {
		i++
	}
	return i
}

func (sh *Shell) processTabulation() {
	str := sh.current().String()
	start := findWord(str, 0)
	word := str[start:sh.cursor]
	cmdCursor := sh.cursor - len(word)

	cmd, size, single, ok := sh.registry.Complete(word)
	if !ok {
		return
	}

	if !single {
		saved := sh.cursor
		sh.io.Printf("\n")
		sh.printMatches(word)
		sh.prompt()
		sh.restore()
		for sh.cursor != saved {
			sh.processLeft()
		}
	}

	name := cmd.Name()[:size]

	for sh.cursor != cmdCursor {
		sh.processBackspace()
	}
	for i := 0; i < len(name); i++ {
		if err := sh.processRawChar(name[i]); err != nil {
			return
		}
	}
}

const completionMatchWidth = 16
const completionMatchesPerLine = 4

func (sh *Shell) printMatches(prefix string) {
	names := sh.registry.Matches(prefix)
	for i, name := range names {
		sh.io.Printf("%-16s", name)
		if (i+1)%completionMatchesPerLine == 0 {
			sh.io.Printf("\n")
		}
	}
	if len(names)%completionMatchesPerLine != 0 {
		sh.io.Printf("\n")
	}
}

// processArgs splits the current line into whitespace-separated tokens,
// in place in argBuf, and points argv at them. A line yielding more than
// MaxArgs tokens is rejected.
func (sh *Shell) processArgs() error {
	cur := sh.current()
	n := copy(sh.argBuf[:], cur.buf[:cur.size])
	buf := sh.argBuf[:n]

	sh.argv = sh.argv[:0]
	prev := byte(separator)
	start := 0
	for i := 0; i <= len(buf); i++ {
		var c byte
		if i < len(buf) {
			c = buf[i]
		}

		if i == len(buf) || c == separator {
			if prev != separator {
				if len(sh.argv) == MaxArgs {
					sh.io.Printf("shell: too many arguments\n")
					return errTooManyArgs
				}
				sh.argv = append(sh.argv, string(buf[start:i]))
			}
		} else if prev == separator {
			start = i
		}

		if i < len(buf) {
			prev = c
		}
	}

	return nil
}

func (sh *Shell) processLine() {
	var cmd *Command

	if err := sh.processArgs(); err == nil && len(sh.argv) > 0 {
		cmd = sh.registry.Lookup(sh.argv[0])
		if cmd == nil {
			sh.io.Printf("shell: %s: command not found\n", sh.argv[0])
		}
	}

	sh.hist.push()

	if cmd != nil {
		cmd.fn(sh.io, sh.argv)
	}
}

// processCtrlChar handles one control character other than ESC. It
// returns true when the caller should reset the line state (enter/return
// was processed).
func (sh *Shell) processCtrlChar(c byte) bool {
	switch c {
	case eraseBS, eraseDEL:
		sh.processBackspace()
	case '\t':
		sh.processTabulation()
	case '\n', '\r':
		sh.io.Printf("\n")
		sh.processLine()
		return true
	}
	return false
}

// Run is the shell thread's body: an outer loop resetting the line and
// prompt, and an inner loop reading and dispatching one byte at a time
// across the normal / escape-start / CSI states.
func (sh *Shell) Run() {
	for {
		sh.resetLine()
		escape := 0

		for {
			c, err := sh.io.Getc()
			if err != nil {
				continue
			}

			if escape != 0 {
				switch escape {
				case escStart:
					// CSI and SS3 sequences are processed identically.
					if c == '[' || c == 'O' {
						escape = escCSI
					} else {
						escape = 0
					}
				case escCSI:
					escape = sh.processEscSequence(c)
				default:
					escape = 0
				}
				continue
			}

			if isCtrlChar(c) {
				if c == 0x1b {
					escape = escStart
					continue
				}
				if sh.processCtrlChar(c) {
					break
				}
				continue
			}

			sh.processRawChar(c)
		}
	}
}

var errTooManyArgs = errors.New("shell: too many arguments")
