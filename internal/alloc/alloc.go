// Package alloc implements a first-fit, boundary-tag heap allocator over
// a single fixed-size arena, following Knuth's "The Art of Computer
// Programming" Volume 1, 2.5 (Algorithm A, first fit; Algorithm C,
// liberation with boundary tags).
//
// Each block starts and ends with an 8-byte boundary tag encoding its
// size with the allocation bit stored in the tag's low bit (block sizes
// are always a multiple of the allocator's alignment, so that bit is
// otherwise unused). The footer tag lets Free() locate the previous
// block in constant time when deciding whether to merge free
// neighbors. Free blocks carry their free-list linkage (next/prev
// offsets) intrusively in their own payload bytes, exactly as the
// original C implementation stores a list node there — the two
// offsets are read and written with encoding/binary instead of a
// native pointer, since Go has no boundary-tag-sized integer pointer
// type to overlay on a byte slice.
package alloc

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/ksync"
)

// ErrNoMem is returned by Alloc when no free block is large enough to
// satisfy the request.
var ErrNoMem = errors.New("alloc: out of memory")

// ErrInval is returned when Free is given a pointer that was not
// returned by this allocator's Alloc.
var ErrInval = errors.New("alloc: invalid pointer")

const (
	// Align is the alignment, in bytes, guaranteed for every payload
	// Alloc returns.
	Align = 8

	btagSize = 8
	nodeSize = 16 // next offset (8) + prev offset (8), stored in payload

	allocatedMask = uint64(1)
	sizeMask      = ^allocatedMask

	noOffset = ^uint64(0)
)

func p2round(value, align uint64) uint64 {
	return (value + align - 1) &^ (align - 1)
}

// blockMinSize is the smallest block the allocator ever hands out:
// two boundary tags plus room for a free-list node, rounded up to
// Align.
var blockMinSize = p2round(uint64(btagSize*2+nodeSize), Align)

// Allocator is a boundary-tag first-fit allocator over a fixed arena.
// All operations are serialized by the kernel's own internal/ksync
// mutex rather than sync.Mutex, so heap access participates in the
// scheduler's preemption/sleep discipline like everything else in the
// kernel — a thread blocked waiting for the heap lock is a thread the
// scheduler can run something else in place of. Alloc never waits for
// memory to be freed: when no block fits it returns ErrNoMem at once.
type Allocator struct {
	mu    *ksync.Mutex
	arena []byte

	freeHead uint64

	allocated  uint64
	highWater  uint64
	obs        kiface.Observer
}

// Option configures an Allocator at construction time.
type Option func(*Allocator)

// WithObserver attaches a metrics observer notified on every Alloc and
// Free.
func WithObserver(obs kiface.Observer) Option {
	return func(a *Allocator) { a.obs = obs }
}

// New creates an allocator over a freshly allocated arena of the given
// size, initialized as a single free block spanning the whole arena.
// mu must be a fresh, unlocked mutex dedicated to this allocator.
func New(arenaSize int, mu *ksync.Mutex, opts ...Option) (*Allocator, error) {
	if arenaSize < 0 || uint64(arenaSize) < blockMinSize {
		return nil, ErrInval
	}
	if uint64(arenaSize)%Align != 0 {
		return nil, ErrInval
	}

	a := &Allocator{
		mu:    mu,
		arena: make([]byte, arenaSize),
		obs:   kiface.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.blockInit(0, uint64(arenaSize), true)
	a.freeHead = noOffset
	a.freeListAdd(0)
	return a, nil
}

// --- boundary tag primitives ---

func (a *Allocator) btagRead(off uint64) uint64 {
	return binary.LittleEndian.Uint64(a.arena[off : off+btagSize])
}

func (a *Allocator) btagWrite(off, value uint64) {
	binary.LittleEndian.PutUint64(a.arena[off:off+btagSize], value)
}

func (a *Allocator) blockSize(off uint64) uint64 {
	return a.btagRead(off) & sizeMask
}

func (a *Allocator) blockAllocated(off uint64) bool {
	return a.btagRead(off)&allocatedMask != 0
}

func (a *Allocator) blockEnd(off uint64) uint64 {
	return off + a.blockSize(off)
}

func (a *Allocator) footerOffset(off uint64) uint64 {
	return a.blockEnd(off) - btagSize
}

// blockInit writes matching header and footer tags encoding size and
// the allocation bit, discarding whatever was previously stored in the
// block (including any free-list linkage — callers must not call this
// on a block still threaded into the free list).
func (a *Allocator) blockInit(off, size uint64, allocated bool) {
	v := size
	if allocated {
		v |= allocatedMask
	}
	a.btagWrite(off, v)
	a.btagWrite(a.footerOffset(off), v)
}

func (a *Allocator) setAllocated(off uint64, allocated bool) {
	a.blockInit(off, a.blockSize(off), allocated)
}

func (a *Allocator) payloadOffset(off uint64) uint64 { return off + btagSize }

func (a *Allocator) payloadLen(off uint64) uint64 { return a.blockSize(off) - 2*btagSize }

func (a *Allocator) blockFromPayloadOffset(poff uint64) uint64 { return poff - btagSize }

// blockPrev returns the offset of the block immediately preceding off,
// using its footer tag — which is always the block's own header tag
// sitting just before off — to learn its size without a forward scan.
func (a *Allocator) blockPrev(off uint64) (uint64, bool) {
	if off == 0 {
		return 0, false
	}
	prevSize := a.btagRead(off-btagSize) & sizeMask
	return off - prevSize, true
}

func (a *Allocator) blockNext(off uint64) (uint64, bool) {
	next := a.blockEnd(off)
	if next >= uint64(len(a.arena)) {
		return 0, false
	}
	return next, true
}

// --- free list (singly-traversable, doubly-linked for O(1) removal) ---

func (a *Allocator) getNext(off uint64) uint64 {
	p := a.payloadOffset(off)
	return binary.LittleEndian.Uint64(a.arena[p : p+8])
}

func (a *Allocator) setNext(off, next uint64) {
	p := a.payloadOffset(off)
	binary.LittleEndian.PutUint64(a.arena[p:p+8], next)
}

func (a *Allocator) getPrev(off uint64) uint64 {
	p := a.payloadOffset(off) + 8
	return binary.LittleEndian.Uint64(a.arena[p : p+8])
}

func (a *Allocator) setPrev(off, prev uint64) {
	p := a.payloadOffset(off) + 8
	binary.LittleEndian.PutUint64(a.arena[p:p+8], prev)
}

// freeListAdd marks an allocated block free and inserts it at the head
// of the free list. Inserting at the head rather than the tail is a
// deliberate cache-locality bet: a block just freed was recently
// touched and is the most likely candidate to be reused "soon" by the
// first-fit scan, which always starts at the head.
func (a *Allocator) freeListAdd(off uint64) {
	a.setAllocated(off, false)
	a.setNext(off, a.freeHead)
	a.setPrev(off, noOffset)
	if a.freeHead != noOffset {
		a.setPrev(a.freeHead, off)
	}
	a.freeHead = off
}

func (a *Allocator) freeListRemove(off uint64) {
	next := a.getNext(off)
	prev := a.getPrev(off)
	if prev != noOffset {
		a.setNext(prev, next)
	} else {
		a.freeHead = next
	}
	if next != noOffset {
		a.setPrev(next, prev)
	}
	a.setAllocated(off, true)
}

// freeListFind performs the first-fit scan: O(n) in the number of free
// blocks, which is why real-time allocators generally avoid general
// purpose allocation on hot paths — a constant-time or bounded-time
// allocator would be used instead for those.
func (a *Allocator) freeListFind(size uint64) (uint64, bool) {
	for off := a.freeHead; off != noOffset; off = a.getNext(off) {
		if a.blockSize(off) >= size {
			return off, true
		}
	}
	return 0, false
}

// blockSplit carves a size-byte block off the front of off, provided
// enough remains after the split to form a valid minimum-size block,
// and returns the offset of the new trailing block. off must already
// be marked allocated (i.e. removed from the free list) before calling.
func (a *Allocator) blockSplit(off, size uint64) (uint64, bool) {
	total := a.blockSize(off)
	if total < size+blockMinSize {
		return 0, false
	}
	a.blockInit(off, size, true)
	rest := off + size
	a.blockInit(rest, total-size, true)
	return rest, true
}

// blockMerge merges two adjacent free blocks into one, returning the
// offset of the merged block. Both blocks must already be free.
func (a *Allocator) blockMerge(off1, off2 uint64) (uint64, bool) {
	if a.blockAllocated(off1) || a.blockAllocated(off2) {
		return 0, false
	}
	a.freeListRemove(off1)
	a.freeListRemove(off2)
	size := a.blockSize(off1) + a.blockSize(off2)
	lo := off1
	if off1 > off2 {
		lo = off2
	}
	a.blockInit(lo, size, true)
	a.freeListAdd(lo)
	return lo, true
}

func convertToBlockSize(size uint64) uint64 {
	size = p2round(size, Align)
	size += btagSize * 2
	if size < blockMinSize {
		size = blockMinSize
	}
	return size
}

// Alloc reserves and returns size bytes of 8-byte-aligned memory, or
// ErrNoMem if no free block is large enough. Alloc(0) returns a nil
// slice and no error, mirroring the original's mem_alloc(0) == NULL.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if size < 0 {
		return nil, ErrInval
	}

	blockSize := convertToBlockSize(uint64(size))

	a.mu.Lock()
	block, ok := a.freeListFind(blockSize)
	if !ok {
		a.mu.Unlock()
		return nil, ErrNoMem
	}

	a.freeListRemove(block)
	if rest, split := a.blockSplit(block, blockSize); split {
		a.freeListAdd(rest)
	}

	a.allocated += a.blockSize(block)
	allocated := a.allocated
	if allocated > a.highWater {
		a.highWater = allocated
	}
	highWater := a.highWater
	a.mu.Unlock()

	a.obs.ObserveHeap(allocated, uint64(len(a.arena))-allocated, highWater)

	poff := a.payloadOffset(block)
	return a.arena[poff : poff+a.payloadLen(block) : poff+a.payloadLen(block)], nil
}

// Free releases memory previously returned by Alloc, merging with any
// adjacent free neighbors. Free(nil) is a no-op. ptr must be a slice
// returned directly by this Allocator's Alloc (not a re-sliced or
// re-allocated copy); passing anything else returns ErrInval.
func (a *Allocator) Free(ptr []byte) error {
	if ptr == nil {
		return nil
	}

	base := uintptr(unsafe.Pointer(&a.arena[0]))
	p := uintptr(unsafe.Pointer(&ptr[0]))
	if p < base || p >= base+uintptr(len(a.arena)) {
		return ErrInval
	}
	poff := uint64(p - base)
	if poff < btagSize || poff%Align != 0 {
		return ErrInval
	}
	block := a.blockFromPayloadOffset(poff)

	a.mu.Lock()
	if !a.blockAllocated(block) {
		a.mu.Unlock()
		return ErrInval
	}

	a.allocated -= a.blockSize(block)

	a.freeListAdd(block)

	if prev, has := a.blockPrev(block); has {
		if merged, ok := a.blockMerge(block, prev); ok {
			block = merged
		}
	}
	if next, has := a.blockNext(block); has {
		a.blockMerge(block, next)
	}

	allocated := a.allocated
	highWater := a.highWater
	a.mu.Unlock()

	a.obs.ObserveHeap(allocated, uint64(len(a.arena))-allocated, highWater)
	return nil
}

// Stats reports current allocator usage.
type Stats struct {
	Allocated uint64
	Free      uint64
	HighWater uint64
}

// Stats returns a snapshot of current allocator usage. Cheap enough to
// call from a shell command or a periodic metrics observer.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Allocated: a.allocated,
		Free:      uint64(len(a.arena)) - a.allocated,
		HighWater: a.highWater,
	}
}
