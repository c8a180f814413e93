// Package codec packs timestamp arrays into compact blobs for evicted level tables.
//
// Encoding runs in three steps:
//  1. running delta: w[i] becomes w[i]-w[i-1] (wrapping), turning slowly
//     increasing timestamps into runs of small repeated numbers;
//  2. little-endian serialization;
//  3. LZ4 block compression, falling back to the raw bytes when compression
//     does not shrink the payload.
//
// Every blob starts with a header:
//
//	[0:4]  murmur3 Sum32 of the payload (big endian)
//	[4]    mode (modeRaw or modeLZ4)
//	[5:]   payload
//
// A checksum mismatch or a short decode is fatal to the caller: a corrupted
// blob cannot be trusted to reproduce profiling data.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/spaolacci/murmur3"
)

// ErrCorrupt is returned when a blob fails verification or decodes short.
var ErrCorrupt = errors.New("codec: corrupt blob")

const (
	headerLen = 5

	modeRaw byte = 0
	modeLZ4 byte = 1
)

// Codec holds reusable scratch buffers and the LZ4 compressor state.
//
// The zero value is ready to use. Not safe for concurrent use.
type Codec struct {
	lz  lz4.Compressor
	raw []byte
	out []byte

	srcBytes  uint64
	destBytes uint64
}

// Encode compresses words and returns a freshly allocated blob.
func (c *Codec) Encode(words []uint64) []byte {
	n := len(words) * 8
	c.raw = grow(c.raw, n)
	var prev uint64
	for i, w := range words {
		binary.LittleEndian.PutUint64(c.raw[i*8:], w-prev)
		prev = w
	}

	c.out = grow(c.out, lz4.CompressBlockBound(n))
	m, err := c.lz.CompressBlock(c.raw, c.out)

	var blob []byte
	if err != nil || m == 0 || m >= n {
		blob = make([]byte, headerLen+n)
		blob[4] = modeRaw
		copy(blob[headerLen:], c.raw)
	} else {
		blob = make([]byte, headerLen+m)
		blob[4] = modeLZ4
		copy(blob[headerLen:], c.out[:m])
	}
	binary.BigEndian.PutUint32(blob, murmur3.Sum32(blob[headerLen:]))

	c.srcBytes += uint64(n)
	c.destBytes += uint64(len(blob))
	return blob
}

// Decode restores the words encoded in blob into dst. len(dst) must equal the
// length passed to Encode.
func (c *Codec) Decode(blob []byte, dst []uint64) error {
	if len(blob) < headerLen {
		return fmt.Errorf("%w: %d byte blob", ErrCorrupt, len(blob))
	}
	payload := blob[headerLen:]
	if murmur3.Sum32(payload) != binary.BigEndian.Uint32(blob) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	n := len(dst) * 8
	var raw []byte
	switch blob[4] {
	case modeRaw:
		if len(payload) != n {
			return fmt.Errorf("%w: raw payload %d bytes, want %d", ErrCorrupt, len(payload), n)
		}
		raw = payload
	case modeLZ4:
		c.raw = grow(c.raw, n)
		m, err := lz4.UncompressBlock(payload, c.raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if m != n {
			return fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorrupt, m, n)
		}
		raw = c.raw
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrCorrupt, blob[4])
	}

	var prev uint64
	for i := range dst {
		prev += binary.LittleEndian.Uint64(raw[i*8:])
		dst[i] = prev
	}
	return nil
}

// Ratio returns lifetime input and output byte counts of Encode.
func (c *Codec) Ratio() (src, dest uint64) {
	return c.srcBytes, c.destBytes
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
