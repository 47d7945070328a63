package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var initializationCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

// Initialization runs the 2.18 dialog that forces the PT to send its
// initialization message, terminating on CompletionData or Abort.
func Initialization(ctx context.Context, stream *transport.Stream, input *packets.Initialization) (<-chan Event, error) {
	return run(ctx, stream, input, initializationCandidates, false, func(cmd packet.Command) bool {
		switch cmd.(type) {
		case *packets.CompletionData, *packets.Abort:
			return true
		}
		return false
	})
}
