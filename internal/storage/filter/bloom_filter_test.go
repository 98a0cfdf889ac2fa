package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(1000, 10)
	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("key_%d", i))
	}
	for i := 0; i < 1000; i++ {
		assert.True(t, f.MayContain(fmt.Sprintf("key_%d", i)))
	}
}

func TestFalsePositiveRateIsReasonable(t *testing.T) {
	f := New(1000, 10)
	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("key_%d", i))
	}
	hits := 0
	for i := 0; i < 10000; i++ {
		if f.MayContain(fmt.Sprintf("absent_%d", i)) {
			hits++
		}
	}
	// 10 bits/key targets ~1%; leave generous headroom
	assert.Less(t, hits, 500)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := New(100, 10)
	for i := 0; i < 100; i++ {
		f.Add(fmt.Sprintf("key_%d", i))
	}

	decoded, err := Decode(f.Encode())
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.True(t, decoded.MayContain(fmt.Sprintf("key_%d", i)))
	}
	assert.Equal(t, f.numBits, decoded.numBits)
	assert.Equal(t, f.numHash, decoded.numHash)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
	_, err = Decode([]byte{0xFF, 0x01, 0x02})
	assert.Error(t, err)
}
