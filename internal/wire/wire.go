// Package wire frames cached values for byte stores.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("livecache: corrupt frame")
	magic4     = [...]byte{'L', 'V', 'C', 'F'}
)

// Frame is one stored value: the codec it was written with, the time the
// value was observed and the encoded payload.
type Frame struct {
	Codec   string
	Stamp   time.Time
	Payload []byte
}

// magic(4) | ver(1) | clen(u8) | codec(clen) | stamp(i64 be, unix nanos) | vlen(u32 be) | payload(vlen)
const fixed = 4 + 1 + 1 + 8 + 4

// Encode frames f. Codec names longer than 255 bytes are rejected.
func Encode(f Frame) ([]byte, error) {
	if len(f.Codec) > 0xFF {
		return nil, errors.New("livecache: codec name too long")
	}
	var buf bytes.Buffer
	buf.Grow(fixed + len(f.Codec) + len(f.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(len(f.Codec)))
	buf.WriteString(f.Codec)

	var u8 [8]byte
	var u4 [4]byte

	var nanos int64
	if !f.Stamp.IsZero() {
		nanos = f.Stamp.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(nanos))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])

	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// Decode parses a frame. The payload aliases b. Trailing bytes are corruption.
func Decode(b []byte) (Frame, error) {
	if len(b) < fixed || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Frame{}, ErrCorrupt
	}
	off := 5

	clen := int(b[off])
	off++
	if clen > len(b)-off-8-4 {
		return Frame{}, ErrCorrupt
	}
	codec := string(b[off : off+clen])
	off += clen

	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Frame{}, ErrCorrupt
	}

	f := Frame{Codec: codec, Payload: b[off : off+vlen]}
	if nanos != 0 {
		f.Stamp = time.Unix(0, nanos).UTC()
	}
	return f, nil
}
