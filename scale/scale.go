// Package scale implements the compact length encoding used for QSB
// operation payloads.
//
// The encoding is the SCALE compact-u32 format restricted to the three
// size classes below. It is a wire contract: every client implementation
// must produce bit-identical output for the same input, so this package
// must never be "improved" in a way that changes emitted bytes.
package scale

import (
	"encoding/binary"
	"errors"
)

// MaxLength is the largest value EncodeLength accepts. Larger lengths are
// deliberately unsupported; all payload arguments are bounded well below it.
const MaxLength = 1<<30 - 1

var (
	// ErrOverflow is returned for lengths >= 2^30.
	ErrOverflow = errors.New("scale: length exceeds compact-u32 range")

	// ErrTruncated is returned by DecodeLength when the input ends before
	// the size class it announces.
	ErrTruncated = errors.New("scale: truncated compact length")

	// ErrUnsupported is returned by DecodeLength for the big-integer mode
	// (low bits 0b11), which this profile never emits.
	ErrUnsupported = errors.New("scale: unsupported compact mode")
)

// EncodeLength returns the compact encoding of n.
//
// Size classes:
//   - n < 2^6:  1 byte, n<<2 (mode bits 00)
//   - n < 2^14: 2 bytes little-endian, n<<2 | 0b01
//   - n < 2^30: 4 bytes little-endian, n<<2 | 0b10
func EncodeLength(n uint32) ([]byte, error) {
	switch {
	case n < 1<<6:
		return []byte{byte(n << 2)}, nil
	case n < 1<<14:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(n<<2|0b01))
		return out, nil
	case n < 1<<30:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, n<<2|0b10)
		return out, nil
	default:
		return nil, ErrOverflow
	}
}

// AppendLength appends the compact encoding of n to dst.
func AppendLength(dst []byte, n uint32) ([]byte, error) {
	enc, err := EncodeLength(n)
	if err != nil {
		return nil, err
	}
	return append(dst, enc...), nil
}

// EncodeBytes returns EncodeLength(len(b)) || b.
func EncodeBytes(b []byte) ([]byte, error) {
	if len(b) > MaxLength {
		return nil, ErrOverflow
	}
	prefix, err := EncodeLength(uint32(len(b)))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(b))
	out = append(out, prefix...)
	return append(out, b...), nil
}

// AppendBytes appends EncodeLength(len(b)) || b to dst.
func AppendBytes(dst, b []byte) ([]byte, error) {
	if len(b) > MaxLength {
		return nil, ErrOverflow
	}
	dst, err := AppendLength(dst, uint32(len(b)))
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// DecodeLength decodes a compact length from the front of b and reports how
// many bytes it consumed. It accepts exactly the encodings EncodeLength
// produces; non-minimal encodings of small values are still decoded (the
// ledger runtime behaves the same way), but EncodeLength never emits them.
func DecodeLength(b []byte) (n uint32, read int, err error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	switch b[0] & 0b11 {
	case 0b00:
		return uint32(b[0] >> 2), 1, nil
	case 0b01:
		if len(b) < 2 {
			return 0, 0, ErrTruncated
		}
		return uint32(binary.LittleEndian.Uint16(b[:2]) >> 2), 2, nil
	case 0b10:
		if len(b) < 4 {
			return 0, 0, ErrTruncated
		}
		return binary.LittleEndian.Uint32(b[:4]) >> 2, 4, nil
	default:
		return 0, 0, ErrUnsupported
	}
}
