package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var readCardCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x04, 0x0f, func() packet.Command { return &packets.StatusInformation{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

// ReadCard runs the 2.21 dialog: the PT reads a chip- or magnet-card and
// streams IntermediateStatusInformation updates until it settles on a
// StatusInformation (card read) or an Abort (read failed or cancelled).
func ReadCard(ctx context.Context, stream *transport.Stream, input *packets.ReadCard) (<-chan Event, error) {
	return run(ctx, stream, input, readCardCandidates, false, func(cmd packet.Command) bool {
		switch cmd.(type) {
		case *packets.StatusInformation, *packets.Abort:
			return true
		}
		return false
	})
}
