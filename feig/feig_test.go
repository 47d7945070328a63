package feig

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	feigpackets "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/reconnect"
	"github.com/EVerest/zvt/transport"
)

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address type %T", ln.Addr())
	}
	return addr.Port
}

func send(t *testing.T, stream *transport.Stream, cmd packet.Command) {
	t.Helper()
	data, err := packet.Serialize(cmd)
	if err != nil {
		t.Fatalf("serializing %T: %v", cmd, err)
	}
	if err := stream.WritePacketWithAck(data); err != nil {
		t.Fatalf("writing %T: %v", cmd, err)
	}
}

// serveConfigure plays the PT side of a full Configure() run where the
// terminal id already matches configuration: connect handshake
// (Registration, GetSystemInfo), the explicit GetSystemInfo from
// setTerminalID, Initialization, and the end-of-day sequence (a
// query-all PartialReversal reporting nothing pending, then EndOfDay).
func serveConfigure(t *testing.T, conn net.Conn, deviceID, terminalID string) {
	t.Helper()
	stream := transport.New(conn)
	status := uint8(0x00)

	// Registration.
	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("serveConfigure: reading registration: %v", err)
		return
	}
	send(t, stream, &packets.CompletionData{StatusByte: &status})

	// GetSystemInfo (connect handshake).
	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("serveConfigure: reading system info (handshake): %v", err)
		return
	}
	send(t, stream, &feigpackets.CVendFunctionsEnhancedSystemInformationCompletion{
		DeviceID:    deviceID,
		SwVersion:   "GER-APP-v2.0.12  ",
		TerminalID:  terminalID,
		Temperature: "8.0",
	})

	// GetSystemInfo (explicit, from setTerminalID).
	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("serveConfigure: reading system info (explicit): %v", err)
		return
	}
	send(t, stream, &feigpackets.CVendFunctionsEnhancedSystemInformationCompletion{
		DeviceID:    deviceID,
		SwVersion:   "GER-APP-v2.0.12  ",
		TerminalID:  terminalID,
		Temperature: "8.0",
	})

	// Initialization.
	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("serveConfigure: reading initialization: %v", err)
		return
	}
	send(t, stream, &packets.CompletionData{StatusByte: &status})

	// PartialReversal query-all (cancelPending/getPending): nothing pending.
	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("serveConfigure: reading partial reversal query: %v", err)
		return
	}
	sentinel := uint64(0xffff)
	send(t, stream, &packets.PartialReversalAbort{Error: 0, ReceiptNo: &sentinel})

	// EndOfDay.
	if _, err := stream.ReadPacketWithAck(); err != nil {
		t.Errorf("serveConfigure: reading end of day: %v", err)
		return
	}
	send(t, stream, &packets.CompletionData{StatusByte: &status})
}

func newTestController(t *testing.T, port int, terminalID, serial string) *Controller {
	t.Helper()
	return New(Config{
		IPAddress:  net.ParseIP("127.0.0.1"),
		TerminalID: terminalID,
		FeigSerial: serial,
		Port:       port,
		FeigConfig: reconnect.FeigConfig{
			Password:            123456,
			Currency:            Currencies["EUR"],
			PreAuthorizationAmount: 2500,
			ReadCardTimeout:     1,
			EndOfDayMaxInterval: time.Hour,
		},
	})
}

func TestConfigureIsIdempotentAndRunsTheFullHandshake(t *testing.T) {
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
		serveConfigure(t, conn, "feig0001", "00000001")
	}()

	c := newTestController(t, listenerPort(t, ln), "00000001", "feig0001")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Configure(ctx); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if !c.configured {
		t.Fatal("controller not marked configured after a successful Configure")
	}

	// A second call must be a no-op: no further reads are served, so if
	// Configure tried to run the dialogs again it would hang until ctx
	// expires.
	if err := c.Configure(ctx); err != nil {
		t.Fatalf("second Configure: %v", err)
	}
}

func TestBeginCancelTransactionRoundTrip(t *testing.T) {
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
		stream := transport.New(conn)

		// Registration + GetSystemInfo (connect handshake).
		if _, err := stream.ReadPacketWithAck(); err != nil {
			return
		}
		status := uint8(0x00)
		send(t, stream, &packets.CompletionData{StatusByte: &status})
		if _, err := stream.ReadPacketWithAck(); err != nil {
			return
		}
		send(t, stream, &feigpackets.CVendFunctionsEnhancedSystemInformationCompletion{
			DeviceID:    "feig0001",
			SwVersion:   "GER-APP-v2.0.12  ",
			TerminalID:  "00000001",
			Temperature: "8.0",
		})

		// Reservation.
		if _, err := stream.ReadPacketWithAck(); err != nil {
			return
		}
		receiptNo := uint64(42)
		send(t, stream, &packets.StatusInformation{ReceiptNo: &receiptNo})
		send(t, stream, &packets.CompletionData{StatusByte: &status})

		// PreAuthReversal (CancelTransaction).
		if _, err := stream.ReadPacketWithAck(); err != nil {
			return
		}
		send(t, stream, &packets.CompletionData{StatusByte: &status})

		// PartialReversal query-all (end of day after the map empties).
		if _, err := stream.ReadPacketWithAck(); err != nil {
			return
		}
		sentinel := uint64(0xffff)
		send(t, stream, &packets.PartialReversalAbort{Error: 0, ReceiptNo: &sentinel})

		// EndOfDay.
		if _, err := stream.ReadPacketWithAck(); err != nil {
			return
		}
		send(t, stream, &packets.CompletionData{StatusByte: &status})
	}()

	c := newTestController(t, listenerPort(t, ln), "00000001", "feig0001")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.BeginTransaction(ctx, "tok-1", 2500); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	c.mu.Lock()
	tx, ok := c.transactions["tok-1"]
	c.mu.Unlock()
	if !ok || tx.receiptNo != 42 {
		t.Fatalf("transaction not recorded as expected: %+v, ok=%v", tx, ok)
	}

	if err := c.CancelTransaction(ctx, "tok-1"); err != nil {
		t.Fatalf("CancelTransaction: %v", err)
	}
	c.mu.Lock()
	_, stillThere := c.transactions["tok-1"]
	c.mu.Unlock()
	if stillThere {
		t.Fatal("token still present after a successful cancel")
	}
}

func TestCancelTransactionUnknownToken(t *testing.T) {
	c := newTestController(t, 1, "00000001", "feig-0001")
	ctx := context.Background()
	err := c.CancelTransaction(ctx, "nope")
	if err == nil {
		t.Fatal("expected an error for an unknown token")
	}
}

func TestCommitTransactionKeepsTokenOnFailure(t *testing.T) {
	// No listener: the dialog fails immediately, before any terminal event.
	c := newTestController(t, 1, "00000001", "feig-0001")
	c.transactions["tok-1"] = transaction{receiptNo: 42, preauthAmount: 2500}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if _, err := c.CommitTransaction(ctx, "tok-1", 1000); err == nil {
		t.Fatal("expected an error when the terminal is unreachable")
	}

	c.mu.Lock()
	_, stillThere := c.transactions["tok-1"]
	c.mu.Unlock()
	if !stillThere {
		t.Fatal("token removed despite the dialog never reaching a terminal event")
	}
}

func TestNormalizeUUID(t *testing.T) {
	cases := map[string]string{
		"abc123":                 "ABC123",
		"0000001234567890abcdef": "34567890ABCDEF",
		"00000012345678":         "12345678",
	}
	for in, want := range cases {
		if got := normalizeUUID(in); got != want {
			t.Errorf("normalizeUUID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := saturatingSub(2500, 1000); got != 1500 {
		t.Errorf("saturatingSub(2500, 1000) = %d, want 1500", got)
	}
	if got := saturatingSub(1000, 2500); got != 0 {
		t.Errorf("saturatingSub(1000, 2500) = %d, want 0", got)
	}
}
