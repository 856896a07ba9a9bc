package shell

// Escape sequence processing states. Zero means "not in an escape
// sequence"; the two non-zero states below must stay distinct from it.
const (
	escStart = 1 + iota
	escCSI
)

// escSeqMaxSize bounds the characters collected after ESC [ or ESC O
// before giving up on the sequence, matching the original's arbitrary
// choice of 8.
const escSeqMaxSize = 8

// EscSeqMaxSize is escSeqMaxSize, exported for callers that report the
// kernel's fixed resource budgets.
const EscSeqMaxSize = escSeqMaxSize

// escSeq binds a CSI/SS3 final sequence (the bytes after ESC [ or ESC O,
// not including the introducer) to the edit it performs.
type escSeq struct {
	str string
	fn  func(*Shell)
}

var escSeqs = []escSeq{
	{"A", (*Shell).processUp},
	{"B", (*Shell).processDown},
	{"C", (*Shell).processRight},
	{"D", (*Shell).processLeft},
	{"H", (*Shell).processHome},
	{"1~", (*Shell).processHome},
	{"3~", (*Shell).processDel},
	{"F", (*Shell).processEnd},
	{"4~", (*Shell).processEnd},
}

func lookupEscSeq(str string) func(*Shell) {
	for _, seq := range escSeqs {
		if seq.str == str {
			return seq.fn
		}
	}
	return nil
}

// processEscSequence consumes one byte of a CSI/SS3 sequence already
// past its introducer, appending it to the in-progress buffer. It
// returns the next state: escCSI while the sequence is still being
// collected, or 0 once it's complete (matched or not) and the buffer has
// been reset.
func (sh *Shell) processEscSequence(c byte) int {
	if len(sh.escBuf) >= escSeqMaxSize-1 {
		sh.io.Printf("shell: escape sequence too long\n")
		sh.escBuf = sh.escBuf[:0]
		return 0
	}

	sh.escBuf = append(sh.escBuf, c)

	if c >= '@' && c <= '~' {
		if fn := lookupEscSeq(string(sh.escBuf)); fn != nil {
			fn(sh)
		}
		sh.escBuf = sh.escBuf[:0]
		return 0
	}

	return escCSI
}
