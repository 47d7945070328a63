package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var diagnosisCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x04, 0x01, func() packet.Command { return &packets.SetTimeAndDate{} }},
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

// Diagnosis runs the 2.17 dialog, forcing the PT to run a diagnostic
// routine and report its result. Along the way it may also send a
// SetTimeAndDate, asking the ECR to adjust its clock to the PT's.
func Diagnosis(ctx context.Context, stream *transport.Stream, input *packets.Diagnosis) (<-chan Event, error) {
	return run(ctx, stream, input, diagnosisCandidates, false, func(cmd packet.Command) bool {
		switch cmd.(type) {
		case *packets.CompletionData, *packets.Abort:
			return true
		}
		return false
	})
}
