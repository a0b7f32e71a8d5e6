// Package bitarr implements the bit array used to mark seen terminals
// during unseen-terminal enumeration.
package bitarr

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// BitArray is a fixed-capacity bit vector that can be cleared to a smaller
// working size. The capacity is allocated once; Clear only zeroes the words
// covering the requested size.
type BitArray struct {
	words   []uint64
	maxSize uint64
	size    uint64
}

// New allocates a bit array with the given capacity, all bits unset.
func New(size uint64) *BitArray {
	return &BitArray{
		words:   make([]uint64, (size+63)/64),
		maxSize: size,
		size:    size,
	}
}

// Size returns the current working size.
func (b *BitArray) Size() uint64 { return b.size }

// Clear resets the working region to the given size with all bits unset.
// size must not exceed the allocated capacity.
func (b *BitArray) Clear(size uint64) {
	if size > b.maxSize {
		log.Fatalf("bitarr: clear size %d exceeds capacity %d", size, b.maxSize)
	}
	b.size = size
	for i := range b.words[:(size+63)/64] {
		b.words[i] = 0
	}
}

// Mark sets the bit at index.
func (b *BitArray) Mark(index uint64) {
	b.words[index/64] |= 1 << (index % 64)
}

// NextOpen returns the index of the first unset bit at or after start.
// Returns Size() if every remaining bit is set.
func (b *BitArray) NextOpen(start uint64) uint64 {
	for i := start; i < b.size; i++ {
		if b.words[i/64]&(1<<(i%64)) == 0 {
			return i
		}
	}
	return b.size
}

// The unseen-terminal sweep reuses one scratchpad across all groups to
// avoid allocating gigabit arrays repeatedly. Enumeration is single
// threaded; the flag only diagnoses misuse.
var (
	shared *BitArray
	inUse  atomic.Bool
)

// Acquire returns the shared scratchpad, allocating it on first use.
// It dies if the scratchpad is already held, which indicates two
// interleaved unseen enumerations.
func Acquire(size uint64) *BitArray {
	if !inUse.CompareAndSwap(false, true) {
		log.Fatalf("bitarr: shared scratchpad already in use")
	}
	if shared == nil || shared.maxSize < size {
		shared = New(size)
	}
	return shared
}

// Release frees the shared scratchpad for the next enumeration.
func Release() {
	inUse.Store(false)
}
