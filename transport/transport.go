// Package transport implements the ADPU frame read/write primitives over a
// byte stream (usually a net.Conn to the PT) and the mandatory
// ack-interleaving contract: every read is answered with an Ack and every
// write expects one back before the next frame goes out.
package transport

import (
	"bufio"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/zvterr"
)

var (
	framesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zvt_frames_sent_total",
		Help: "ADPU frames written to the PT.",
	})
	framesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zvt_frames_received_total",
		Help: "ADPU frames read from the PT.",
	})
)

func init() {
	prometheus.MustRegister(framesSent, framesReceived)
}

// Stream is a buffered ADPU transport over an underlying byte stream. It is
// not safe for concurrent use by multiple goroutines.
type Stream struct {
	r *bufio.Reader
	w io.Writer
}

// New wraps rw as an ADPU transport.
func New(rw io.ReadWriter) *Stream {
	return &Stream{r: bufio.NewReader(rw), w: rw}
}

// ReadPacket reads one raw ADPU frame (class, instr, length, payload) and
// returns its bytes, header included.
func (s *Stream) ReadPacket() (frame []byte, err error) {
	header := make([]byte, 3)
	if _, err = io.ReadFull(s.r, header); err != nil {
		return
	}
	frame = header

	ln := int(header[2])
	if header[2] == 0xff {
		ext := make([]byte, 2)
		if _, err = io.ReadFull(s.r, ext); err != nil {
			return
		}
		frame = append(frame, ext...)
		ln = int(ext[0]) | int(ext[1])<<8
	}

	payload := make([]byte, ln)
	if ln > 0 {
		if _, err = io.ReadFull(s.r, payload); err != nil {
			return
		}
	}
	frame = append(frame, payload...)
	framesReceived.Inc()
	return
}

// WritePacket writes a raw, already-framed ADPU (as produced by
// packet.Serialize) to the stream.
func (s *Stream) WritePacket(frame []byte) (err error) {
	_, err = s.w.Write(frame)
	if err != nil {
		return
	}
	framesSent.Inc()
	return
}

// ack is the three-byte ADPU ("class 0x80, instr 0x00, length 0") sent after
// every received frame and expected after every sent one.
var ack = []byte{0x80, 0x00, 0x00}

// ReadPacketWithAck reads a frame, acknowledges it, and returns it.
func (s *Stream) ReadPacketWithAck() (frame []byte, err error) {
	frame, err = s.ReadPacket()
	if err != nil {
		return
	}
	err = s.WritePacket(ack)
	return
}

// WritePacketWithAck writes frame and blocks until the PT's Ack comes back.
// It returns zvterr.WrongTag if the reply is not an Ack.
func (s *Stream) WritePacketWithAck(frame []byte) (err error) {
	if err = s.WritePacket(frame); err != nil {
		return
	}
	reply, err := s.ReadPacket()
	if err != nil {
		return
	}
	if len(reply) < 2 || reply[0] != 0x80 || reply[1] != 0x00 {
		err = zvterr.NewWrongTag(uint16(reply[0])<<8 | uint16(reply[1]))
	}
	return
}

// SendCommand serializes cmd and writes it with ack-interleaving.
func SendCommand(s *Stream, cmd packet.Command) (err error) {
	frame, err := packet.Serialize(cmd)
	if err != nil {
		return
	}
	err = s.WritePacketWithAck(frame)
	return
}
