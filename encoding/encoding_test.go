package encoding

import (
	"bytes"
	"reflect"
	"testing"
)

func TestBcdRoundTrip(t *testing.T) {
	cases := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{123456, []byte{0x12, 0x34, 0x56}},
		{2500, []byte{0x25, 0x00}},
		{978, []byte{0x09, 0x78}},
	}
	for _, c := range cases {
		got := EncodeBcd(c.n)
		if !bytes.Equal(got, c.want) {
			t.Fatalf("EncodeBcd(%d) = %x, want %x", c.n, got, c.want)
		}
		if back := DecodeBcd(got); back != c.n {
			t.Fatalf("DecodeBcd(%x) = %d, want %d", got, back, c.n)
		}
	}
}

func TestTagOneAndTwoByte(t *testing.T) {
	if got := EncodeTag(0x1a); !bytes.Equal(got, []byte{0x1a}) {
		t.Fatalf("EncodeTag(0x1a) = %x", got)
	}
	if got := EncodeTag(0x1f0b); !bytes.Equal(got, []byte{0x1f, 0x0b}) {
		t.Fatalf("EncodeTag(0x1f0b) = %x", got)
	}
	tag, rest, err := DecodeTag([]byte{0x1f, 0x0b, 0xaa})
	if err != nil || tag != 0x1f0b || !bytes.Equal(rest, []byte{0xaa}) {
		t.Fatalf("DecodeTag two-byte: tag=%x rest=%x err=%v", tag, rest, err)
	}
	tag, rest, err = DecodeTag([]byte{0x1a, 0xbb})
	if err != nil || tag != 0x1a || !bytes.Equal(rest, []byte{0xbb}) {
		t.Fatalf("DecodeTag one-byte: tag=%x rest=%x err=%v", tag, rest, err)
	}
}

func TestDefaultUintLittleEndian(t *testing.T) {
	var n uint16
	v := reflect.ValueOf(&n).Elem()
	rest, err := ForKind(Default).Decode([]byte{0x34, 0x12, 0xff}, v)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x1234 {
		t.Fatalf("got %x", n)
	}
	if !bytes.Equal(rest, []byte{0xff}) {
		t.Fatalf("rest = %x", rest)
	}
	enc, err := ForKind(Default).Encode(v)
	if err != nil || !bytes.Equal(enc, []byte{0x34, 0x12}) {
		t.Fatalf("enc = %x, err = %v", enc, err)
	}
}

func TestBigEndianUint32(t *testing.T) {
	var n uint32
	v := reflect.ValueOf(&n).Elem()
	n = 65000
	enc, err := ForKind(BigEndian).Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, []byte{0x00, 0x00, 0xfd, 0xe8}) {
		t.Fatalf("enc = %x", enc)
	}
	var back uint32
	bv := reflect.ValueOf(&back).Elem()
	if _, err := ForKind(BigEndian).Decode(enc, bv); err != nil || back != 65000 {
		t.Fatalf("back = %d, err = %v", back, err)
	}
}

func TestHexEncoding(t *testing.T) {
	var s string
	v := reflect.ValueOf(&s).Elem()
	if _, err := ForKind(Hex).Decode([]byte{0xa0, 0x01}, v); err != nil {
		t.Fatal(err)
	}
	if s != "a001" {
		t.Fatalf("got %q", s)
	}
	enc, err := ForKind(Hex).Encode(v)
	if err != nil || !bytes.Equal(enc, []byte{0xa0, 0x01}) {
		t.Fatalf("enc = %x, err = %v", enc, err)
	}
}
