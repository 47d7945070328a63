package transport

import (
	"bytes"
	"testing"
)

// loopback pairs a read buffer with a write buffer so a test can feed bytes
// in and inspect what gets written out independently.
type loopback struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func TestReadPacketShortForm(t *testing.T) {
	lb := &loopback{in: bytes.NewBuffer([]byte{0x06, 0x00, 0x02, 0xaa, 0xbb}), out: &bytes.Buffer{}}
	s := New(lb)
	frame, err := s.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x06, 0x00, 0x02, 0xaa, 0xbb}
	if !bytes.Equal(frame, want) {
		t.Fatalf("got % x, want % x", frame, want)
	}
}

func TestReadPacketExtendedForm(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 300)
	in := append([]byte{0x06, 0x00, 0xff, 0x2c, 0x01}, payload...)
	lb := &loopback{in: bytes.NewBuffer(in), out: &bytes.Buffer{}}
	s := New(lb)
	frame, err := s.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame, in) {
		t.Fatalf("got % x, want % x", frame, in)
	}
}

func TestReadPacketWithAckSendsAck(t *testing.T) {
	lb := &loopback{in: bytes.NewBuffer([]byte{0x06, 0x00, 0x00}), out: &bytes.Buffer{}}
	s := New(lb)
	if _, err := s.ReadPacketWithAck(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(lb.out.Bytes(), ack) {
		t.Fatalf("got % x, want % x", lb.out.Bytes(), ack)
	}
}

func TestWritePacketWithAckConsumesAck(t *testing.T) {
	lb := &loopback{in: bytes.NewBuffer([]byte{0x80, 0x00, 0x00}), out: &bytes.Buffer{}}
	s := New(lb)
	frame := []byte{0x06, 0x00, 0x00}
	if err := s.WritePacketWithAck(frame); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(lb.out.Bytes(), frame) {
		t.Fatalf("got % x, want % x", lb.out.Bytes(), frame)
	}
}

func TestWritePacketWithAckRejectsNonAck(t *testing.T) {
	lb := &loopback{in: bytes.NewBuffer([]byte{0x84, 0x9c, 0x00}), out: &bytes.Buffer{}}
	s := New(lb)
	if err := s.WritePacketWithAck([]byte{0x06, 0x00, 0x00}); err == nil {
		t.Fatal("expected an error for a non-ack reply")
	}
}
