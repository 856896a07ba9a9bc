package shell

import (
	"errors"
	"strings"

	"github.com/go-rtos/microkernel/internal/ksync"
	"github.com/go-rtos/microkernel/internal/sched"
)

// htableBits and htableSize size the hash table used for exact command
// lookup; the sorted list alongside it serves iteration and completion.
const (
	htableBits = 6
	htableSize = 1 << htableBits

	// HashTableSize is htableSize, exported for callers (e.g. the root
	// Options type) that report the kernel's fixed resource budgets.
	HashTableSize = htableSize
)

// ErrExist is returned by Register when a command name is already taken.
var ErrExist = errors.New("shell: command name collision")

// ErrInval is returned by Register when a command name contains a
// character outside [a-zA-Z0-9_-], or is empty.
var ErrInval = errors.New("shell: invalid command name")

// Func is a command handler. args[0] is the command name.
type Func func(io IO, args []string)

// Command describes a single registered shell command.
type Command struct {
	name      string
	fn        Func
	usage     string
	shortDesc string
	longDesc  string

	htNext *Command
	lsNext *Command
}

// NewCommand builds a command ready to be passed to Registry.Register.
// longDesc may be empty, in which case help for this command prints only
// usage and shortDesc.
func NewCommand(name string, fn Func, usage, shortDesc, longDesc string) *Command {
	return &Command{name: name, fn: fn, usage: usage, shortDesc: shortDesc, longDesc: longDesc}
}

// Name returns the command's registered name.
func (c *Command) Name() string { return c.name }

// Registry is the mutex-protected pair of containers commands live in: a
// hash table for O(1) exact lookup and a name-sorted singly linked list
// for iteration and prefix completion. The lock only protects the
// containers themselves, not the commands: once looked up, a Command's
// fields are immutable and safe to read without holding the lock.
type Registry struct {
	mu     *ksync.Mutex
	htable [htableSize]*Command
	list   *Command
}

// NewRegistry creates an empty registry.
func NewRegistry(s *sched.Scheduler) *Registry {
	return &Registry{mu: ksync.NewMutex(s)}
}

func hashStr(name string, bits uint) uint32 {
	var hash uint32
	for i := 0; i < len(name); i++ {
		hash = (hash << 5) - hash + uint32(name[i])
	}
	return hash & ((1 << bits) - 1)
}

func checkName(name string) error {
	if name == "" {
		return ErrInval
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return ErrInval
		}
	}
	return nil
}

// Register adds a command to the registry. Registering two commands
// under the same name returns ErrExist; registering one with a name
// outside [a-zA-Z0-9_-] (or empty) returns ErrInval.
func (r *Registry) Register(cmd *Command) error {
	if err := checkName(cmd.name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := hashStr(cmd.name, htableBits)
	if head := r.htable[bucket]; head == nil {
		r.htable[bucket] = cmd
	} else {
		tmp := head
		for {
			if tmp.name == cmd.name {
				return ErrExist
			}
			if tmp.htNext == nil {
				break
			}
			tmp = tmp.htNext
		}
		tmp.htNext = cmd
	}

	r.addSorted(cmd)
	return nil
}

func (r *Registry) addSorted(cmd *Command) {
	prev := r.list
	if prev == nil || cmd.name < prev.name {
		cmd.lsNext = prev
		r.list = cmd
		return
	}

	for {
		next := prev.lsNext
		if next == nil || cmd.name < next.name {
			prev.lsNext = cmd
			cmd.lsNext = next
			return
		}
		prev = next
	}
}

// Lookup returns the command registered under name, or nil.
func (r *Registry) Lookup(name string) *Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := r.htable[hashStr(name, htableBits)]; c != nil; c = c.htNext {
		if c.name == name {
			return c
		}
	}
	return nil
}

// each calls fn for every registered command, in sorted name order, while
// holding the registry lock.
func (r *Registry) each(fn func(*Command)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := r.list; c != nil; c = c.lsNext {
		fn(c)
	}
}

// matchFrom returns the first command in the sorted list, starting at cmd,
// whose name shares the given prefix.
func matchFrom(cmd *Command, prefix string) *Command {
	for c := cmd; c != nil; c = c.lsNext {
		if strings.HasPrefix(c.name, prefix) {
			return c
		}
	}
	return nil
}

// Complete implements prefix completion over the sorted command list:
// given the characters typed so far, it finds the first matching command
// and extends size to the number of leading characters common to every
// other match. ok is false when nothing matches. single is false when
// more than one command could still match str, in which case the caller
// should list Matches(prefix) rather than complete blindly.
func (r *Registry) Complete(str string) (cmd *Command, size int, single bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd = matchFrom(r.list, str)
	if cmd == nil {
		return nil, 0, false, false
	}

	next := cmd.lsNext
	if next == nil || !strings.HasPrefix(next.name, str) {
		return cmd, len(cmd.name), true, true
	}

	for next.lsNext != nil && strings.HasPrefix(next.lsNext.name, str) {
		next = next.lsNext
	}

	size = len(str)
	if size == 0 {
		size = 1
	}
	for size-1 < len(cmd.name) && size-1 < len(next.name) && cmd.name[size-1] == next.name[size-1] {
		size++
	}
	size--
	return cmd, size, false, true
}

// Matches returns the names of every command sharing the given prefix,
// in sorted order, starting from the first match returned by Complete.
func (r *Registry) Matches(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for c := matchFrom(r.list, prefix); c != nil && strings.HasPrefix(c.name, prefix); c = c.lsNext {
		names = append(names, c.name)
	}
	return names
}
