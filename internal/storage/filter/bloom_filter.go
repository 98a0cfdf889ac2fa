// Package filter provides the bloom filter attached to each SSTable so point
// reads can skip tables that cannot contain a key.
package filter

import (
	"errors"

	"github.com/twmb/murmur3"
)

const (
	minHashes = 1
	maxHashes = 30
)

// BloomFilter is a fixed-size bloom filter over string keys. It is built once
// while writing an SSTable and immutable afterwards.
type BloomFilter struct {
	bits    []byte
	numBits uint64
	numHash uint32
}

// New sizes a filter for the expected key count. bitsPerKey trades space for
// false-positive rate; 10 gives roughly 1%.
func New(numKeys, bitsPerKey int) *BloomFilter {
	if numKeys < 1 {
		numKeys = 1
	}
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	// Round up to a whole number of 64-bit words so numBits survives an
	// Encode/Decode round trip.
	numBits := (uint64(numKeys*bitsPerKey) + 63) / 64 * 64
	if numBits < 64 {
		numBits = 64
	}
	// k = bitsPerKey * ln2
	numHash := uint32(float64(bitsPerKey) * 0.69)
	if numHash < minHashes {
		numHash = minHashes
	}
	if numHash > maxHashes {
		numHash = maxHashes
	}
	return &BloomFilter{
		bits:    make([]byte, (numBits+7)/8),
		numBits: numBits,
		numHash: numHash,
	}
}

// Add records key in the filter.
func (f *BloomFilter) Add(key string) {
	h1, h2 := murmur3.StringSum128(key)
	for i := uint32(0); i < f.numHash; i++ {
		pos := (h1 + uint64(i)*h2) % f.numBits
		f.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MayContain reports whether key may be in the filter. False means the key
// is definitely absent.
func (f *BloomFilter) MayContain(key string) bool {
	h1, h2 := murmur3.StringSum128(key)
	for i := uint32(0); i < f.numHash; i++ {
		pos := (h1 + uint64(i)*h2) % f.numBits
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Encode serializes the filter as [numHash byte][bitmap].
func (f *BloomFilter) Encode() []byte {
	out := make([]byte, 1+len(f.bits))
	out[0] = byte(f.numHash)
	copy(out[1:], f.bits)
	return out
}

// Decode reconstructs a filter produced by Encode.
func Decode(data []byte) (*BloomFilter, error) {
	if len(data) < 2 {
		return nil, errors.New("bloom filter data too short")
	}
	numHash := uint32(data[0])
	if numHash < minHashes || numHash > maxHashes {
		return nil, errors.New("bloom filter hash count out of range")
	}
	bits := make([]byte, len(data)-1)
	copy(bits, data[1:])
	return &BloomFilter{
		bits:    bits,
		numBits: uint64(len(bits)) * 8,
		numHash: numHash,
	}, nil
}
