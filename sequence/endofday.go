package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var endOfDayCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x04, 0x0f, func() packet.Command { return &packets.StatusInformation{} }},
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.PartialReversalAbort{} }},
}

// EndOfDay runs the 2.16 dialog that transfers the stored turnover to the
// host. If a pre-authorized transaction is still pending, the PT answers
// with a PartialReversalAbort rather than a plain Abort; it is therefore
// this dialog's only 0x06/0x1e candidate.
func EndOfDay(ctx context.Context, stream *transport.Stream, input *packets.EndOfDay) (<-chan Event, error) {
	return run(ctx, stream, input, endOfDayCandidates, false, func(cmd packet.Command) bool {
		switch cmd.(type) {
		case *packets.CompletionData, *packets.PartialReversalAbort:
			return true
		}
		return false
	})
}
