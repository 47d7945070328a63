package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var printSystemConfigurationCandidates = []candidate{
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
}

var statusEnquiryCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
}

func completionDataTerminal(cmd packet.Command) bool {
	_, ok := cmd.(*packets.CompletionData)
	return ok
}

// PrintSystemConfiguration runs the 2.44 dialog, terminating on the
// CompletionData that follows the printed lines.
func PrintSystemConfiguration(ctx context.Context, stream *transport.Stream, input *packets.PrintSystemConfiguration) (<-chan Event, error) {
	return run(ctx, stream, input, printSystemConfigurationCandidates, false, completionDataTerminal)
}

// StatusEnquiry runs the 2.55 dialog. The ECR should send this as often as
// once a minute so the PT can carry out any time-controlled events.
func StatusEnquiry(ctx context.Context, stream *transport.Stream, input *packets.StatusEnquiry) (<-chan Event, error) {
	return run(ctx, stream, input, statusEnquiryCandidates, false, completionDataTerminal)
}
