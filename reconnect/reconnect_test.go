package reconnect

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	feig "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/sequence"
	"github.com/EVerest/zvt/transport"
)

// servePT plays the PT side of one connect handshake: read+ack a
// Registration, reply with a CompletionData, read+ack a CVendFunctions,
// then reply with an enhanced system information completion reporting
// deviceID.
func servePT(t *testing.T, conn net.Conn, deviceID string) {
	t.Helper()
	stream := transport.New(conn)

	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("servePT: reading registration: %v", err)
		return
	}
	status := uint8(0x00)
	completion, err := packet.Serialize(&packets.CompletionData{StatusByte: &status})
	if err != nil {
		t.Errorf("servePT: %v", err)
		return
	}
	if err := stream.WritePacketWithAck(completion); err != nil {
		t.Errorf("servePT: writing completion: %v", err)
		return
	}

	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("servePT: reading cvend functions: %v", err)
		return
	}
	info, err := packet.Serialize(&feig.CVendFunctionsEnhancedSystemInformationCompletion{
		DeviceID:    deviceID,
		SwVersion:   "GER-APP-v2.0.12  ",
		TerminalID:  "12345678",
		Temperature: "8.0",
	})
	if err != nil {
		t.Errorf("servePT: %v", err)
		return
	}
	if err := stream.WritePacketWithAck(info); err != nil {
		t.Errorf("servePT: writing system info: %v", err)
		return
	}
}

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address type %T", ln.Addr())
	}
	return addr.Port
}

func TestRunConnectsAndRunsDialogOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		servePT(t, conn, "feig0001")
	}()

	s := New(Config{
		IPAddress:  net.ParseIP("127.0.0.1"),
		FeigSerial: "feig0001",
		Port:       listenerPort(t, ln),
		FeigConfig: FeigConfig{Password: 123456, Currency: 978},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ran := false
	fn := func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		ran = true
		events := make(chan sequence.Event)
		close(events)
		return events, nil
	}

	var got []sequence.Event
	for ev := range s.Run(ctx, fn) {
		got = append(got, ev)
	}
	if !ran {
		t.Fatal("dialog function was never invoked")
	}
	if len(got) != 0 {
		t.Fatalf("got %d events, want 0", len(got))
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateConnected {
		t.Fatalf("state = %v, want StateConnected", state)
	}
}

func TestRunFailsFastWhenNoListener(t *testing.T) {
	s := New(Config{
		IPAddress: net.ParseIP("127.0.0.1"),
		Port:      1, // nothing listens on port 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	fn := func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		t.Fatal("dialog function should not run without a connection")
		return nil, nil
	}

	var sawErr bool
	for ev := range s.Run(ctx, fn) {
		if ev.Err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("expected at least one connection-failure event")
	}
}
