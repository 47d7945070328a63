// Package sequence implements the per-command async dialogs the ECR runs
// against the PT: send a command, then read zero or more intermediate
// replies until a terminal one arrives. Each dialog is exposed as a
// goroutine producing a channel of Events, closed once a terminal message
// or an error ends the exchange, mirroring the original's async-stream
// shape without pulling in an async runtime.
//
// Dialogs decode replies against their own small, collision-free set of
// expected response types rather than the global command registry: two of
// the registry's control fields are shared by more than one command (see
// registry.Parse), and which one a given dialog actually expects is
// determined by context, not by the wire bytes alone.
package sequence

import (
	"context"

	"github.com/google/uuid"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/transport"
	"github.com/EVerest/zvt/zvterr"
	"github.com/EVerest/zvt/zvtlog"
)

// Event carries one decoded reply. Err is set, and Command left nil, when
// the dialog ends abnormally; the channel is closed right after.
type Event struct {
	ID      uuid.UUID
	Command packet.Command
	Err     error
}

// terminalFunc reports whether cmd ends the dialog.
type terminalFunc func(packet.Command) bool

// candidate is one possible reply a dialog is prepared to decode, matched
// by its exact (class, instr) control field.
type candidate struct {
	class, instr byte
	new          func() packet.Command
}

// decodeOneOf matches data's control field against candidates, in order,
// and fully decodes the first match. Candidates within one dialog never
// share a control field, so, unlike in the registry table, no reply a
// dialog expects is shadowed by another command with the same control
// field.
func decodeOneOf(data []byte, candidates []candidate) (packet.Command, []byte, error) {
	if len(data) < 2 {
		return nil, nil, zvterr.New(zvterr.IncompleteData)
	}
	for _, c := range candidates {
		if data[0] == c.class && data[1] == c.instr {
			cmd := c.new()
			rest, err := packet.Deserialize(cmd, data)
			return cmd, rest, err
		}
	}
	return nil, nil, zvterr.NewWrongTag(uint16(data[0])<<8 | uint16(data[1]))
}

// run sends input with ack-interleaving, then reads replies (each acked in
// turn), decoding each against candidates, until terminal reports true or
// single is set, in which case a single reply ends the dialog regardless
// of its type.
func run(ctx context.Context, stream *transport.Stream, input packet.Command, candidates []candidate, single bool, terminal terminalFunc) (<-chan Event, error) {
	if err := transport.SendCommand(stream, input); err != nil {
		return nil, err
	}

	id := uuid.New()
	events := make(chan Event, 1)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				events <- Event{ID: id, Err: ctx.Err()}
				return
			default:
			}

			frame, err := stream.ReadPacketWithAck()
			if err != nil {
				events <- Event{ID: id, Err: err}
				return
			}
			cmd, _, err := decodeOneOf(frame, candidates)
			if err != nil {
				events <- Event{ID: id, Err: err}
				return
			}
			zvtlog.Log.Debugf("sequence %s: received %T", id, cmd)
			events <- Event{ID: id, Command: cmd}

			if single || terminal(cmd) {
				return
			}
		}
	}()
	return events, nil
}
