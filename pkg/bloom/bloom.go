package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"
)

// Filter is a bloom filter used as a negative cache: MayContain returning
// false guarantees the key was never added, true requires a real lookup.
// The k probe positions are derived from one 128-bit murmur3 hash.
type Filter struct {
	mu   sync.RWMutex
	bits *bitset.BitSet
	k    uint
}

// New creates a filter with m bits and k probes per key.
func New(m, k uint) *Filter {
	if m == 0 {
		m = 1 << 16
	}
	if k == 0 {
		k = 4
	}
	return &Filter{
		bits: bitset.New(m),
		k:    k,
	}
}

// Add inserts a key.
func (f *Filter) Add(key string) {
	h1, h2 := murmur3.StringSum128(key)

	f.mu.Lock()
	defer f.mu.Unlock()
	m := uint64(f.bits.Len())
	for i := uint(0); i < f.k; i++ {
		f.bits.Set(uint((h1 + uint64(i)*h2) % m))
	}
}

// MayContain reports whether the key might have been added.
func (f *Filter) MayContain(key string) bool {
	h1, h2 := murmur3.StringSum128(key)

	f.mu.RLock()
	defer f.mu.RUnlock()
	m := uint64(f.bits.Len())
	for i := uint(0); i < f.k; i++ {
		if !f.bits.Test(uint((h1 + uint64(i)*h2) % m)) {
			return false
		}
	}
	return true
}
