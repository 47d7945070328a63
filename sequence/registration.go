package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var completionDataOnly = []candidate{
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
}

var completionDataOrAbort = []candidate{
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

// Registration runs the 2.1 registration dialog: the PT answers with a
// single CompletionData and the exchange ends, whatever its contents.
func Registration(ctx context.Context, stream *transport.Stream, input *packets.Registration) (<-chan Event, error) {
	return run(ctx, stream, input, completionDataOnly, true, nil)
}

// SetTerminalId runs the 2.45 set/reset terminal id dialog. It only
// succeeds while the turnover storage is empty, e.g. right after EndOfDay.
func SetTerminalId(ctx context.Context, stream *transport.Stream, input *packets.SetTerminalId) (<-chan Event, error) {
	return run(ctx, stream, input, completionDataOrAbort, true, nil)
}

// ResetTerminal runs the 2.43 dialog that causes the PT to restart.
func ResetTerminal(ctx context.Context, stream *transport.Stream, input *packets.ResetTerminal) (<-chan Event, error) {
	return run(ctx, stream, input, completionDataOnly, true, nil)
}

// SelectLanguage runs the 2.36 dialog that sets the PT's display language.
func SelectLanguage(ctx context.Context, stream *transport.Stream, input *packets.SelectLanguage) (<-chan Event, error) {
	return run(ctx, stream, input, completionDataOnly, true, nil)
}
