// Package encoding implements the value encodings carried by a ZVT field
// once its length envelope has been stripped: how raw bytes become an
// integer, string or nested struct, and back.
package encoding

import (
	"encoding/hex"
	"reflect"

	"github.com/EVerest/zvt/zvterr"
)

// Kind names a value-encoding scheme applied to a scalar field. Struct and
// slice-of-struct fields bypass Kind entirely and recurse through the
// packet package instead; Kind only ever applies to leaf scalars.
type Kind int

const (
	// Default encodes integers little-endian and strings as raw bytes.
	Default Kind = iota
	// BigEndian encodes integers big-endian; strings as raw bytes.
	BigEndian
	// Bcd packs an unsigned integer as packed binary-coded decimal, high
	// nibble first.
	Bcd
	// Hex renders/parses a byte slice as a lowercase hex string.
	Hex
	// Utf8 treats the bytes as a UTF-8 string (identical wire behavior to
	// Default for strings; kept distinct for readability at call sites).
	Utf8
	// Custom passes an arbitrary-length byte blob straight through.
	Custom
)

// Codec is a value encoding bound to a scalar reflect.Value.
type Codec interface {
	// Encode returns the wire bytes for v.
	Encode(v reflect.Value) ([]byte, error)
	// Decode consumes as many leading bytes of data as this encoding
	// naturally needs, sets v, and returns the unconsumed remainder.
	Decode(data []byte, v reflect.Value) (rest []byte, err error)
}

// ForKind returns the standard Codec for one of the built-in Kinds.
func ForKind(k Kind) Codec { return kindCodec{k} }

type kindCodec struct{ kind Kind }

func (c kindCodec) Encode(v reflect.Value) ([]byte, error) {
	switch c.kind {
	case Default, BigEndian:
		switch v.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
			return encodeUint(v, c.kind == BigEndian), nil
		case reflect.String:
			return []byte(v.String()), nil
		}
	case Bcd:
		return EncodeBcd(v.Uint()), nil
	case Hex:
		return hex.DecodeString(v.String())
	case Utf8:
		return []byte(v.String()), nil
	case Custom:
		return append([]byte(nil), v.Bytes()...), nil
	}
	return nil, zvterr.New(zvterr.NonImplemented)
}

func (c kindCodec) Decode(data []byte, v reflect.Value) ([]byte, error) {
	switch c.kind {
	case Default, BigEndian:
		switch v.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
			width := uintWidth(v)
			if len(data) < width {
				return nil, zvterr.New(zvterr.IncompleteData)
			}
			v.SetUint(decodeUint(data[:width], c.kind == BigEndian))
			return data[width:], nil
		case reflect.String:
			v.SetString(string(data))
			return nil, nil
		}
	case Bcd:
		v.SetUint(DecodeBcd(data))
		return nil, nil
	case Hex:
		v.SetString(hex.EncodeToString(data))
		return nil, nil
	case Utf8:
		v.SetString(string(data))
		return nil, nil
	case Custom:
		v.SetBytes(append([]byte(nil), data...))
		return nil, nil
	}
	return nil, zvterr.New(zvterr.NonImplemented)
}

func uintWidth(v reflect.Value) int {
	if v.Kind() == reflect.Uint {
		return 8
	}
	return int(v.Type().Bits() / 8)
}

func encodeUint(v reflect.Value, big bool) []byte {
	n := v.Uint()
	width := uintWidth(v)
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		shift := i * 8
		if big {
			shift = (width - 1 - i) * 8
		}
		buf[i] = byte(n >> shift)
	}
	return buf
}

func decodeUint(data []byte, big bool) uint64 {
	var n uint64
	width := len(data)
	for i := 0; i < width; i++ {
		shift := i * 8
		if big {
			shift = (width - 1 - i) * 8
		}
		n |= uint64(data[i]) << shift
	}
	return n
}

// EncodeBcd packs n into the fewest packed-BCD bytes that hold its digits,
// most significant digit first, padding an odd digit count with a leading
// zero nibble (e.g. 2500 -> 0x25, 0x00; 978 -> 0x09, 0x78).
func EncodeBcd(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	var digits []byte
	for k := n; k > 0; k /= 10 {
		digits = append(digits, byte(k%10))
	}
	if len(digits)%2 != 0 {
		digits = append(digits, 0)
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		out[i] = digits[2*i]<<4 | digits[2*i+1]
	}
	return out
}

// DecodeBcd reads packed BCD bytes, high nibble first, multiplying the
// accumulator by 10 for every nibble as the spec requires. It does not
// validate that nibbles are in 0-9.
func DecodeBcd(data []byte) uint64 {
	var n uint64
	for _, b := range data {
		n = n*10 + uint64(b>>4)
		n = n*10 + uint64(b&0xf)
	}
	return n
}

// EncodeTag renders a field tag using the shared BMP/TLV convention:
// values below 0x100 take one byte; otherwise two bytes, big-endian.
func EncodeTag(tag uint16) []byte {
	if tag < 0x100 {
		return []byte{byte(tag)}
	}
	return []byte{byte(tag >> 8), byte(tag)}
}

// DecodeTag reads a tag from the front of data. A two-byte tag is
// recognized by the low 5 bits of the first byte being all ones (the
// 0x1F BER-continuation marker); all other first bytes are one-byte BMP
// tags.
func DecodeTag(data []byte) (tag uint16, rest []byte, err error) {
	if len(data) == 0 {
		return 0, nil, zvterr.New(zvterr.IncompleteData)
	}
	first := data[0]
	if first&0x1f == 0x1f {
		if len(data) < 2 {
			return 0, nil, zvterr.New(zvterr.IncompleteData)
		}
		return uint16(first)<<8 | uint16(data[1]), data[2:], nil
	}
	return uint16(first), data[1:], nil
}
