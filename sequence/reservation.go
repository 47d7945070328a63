package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/transport"
)

var authorizationCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x04, 0x0f, func() packet.Command { return &packets.StatusInformation{} }},
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

var partialReversalCandidates = []candidate{
	{0x04, 0xff, func() packet.Command { return &packets.IntermediateStatusInformation{} }},
	{0x04, 0x0f, func() packet.Command { return &packets.StatusInformation{} }},
	{0x06, 0xd1, func() packet.Command { return &packets.PrintLine{} }},
	{0x06, 0xd3, func() packet.Command { return &packets.PrintTextBlock{} }},
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.PartialReversalAbort{} }},
}

func authorizationTerminal(cmd packet.Command) bool {
	switch cmd.(type) {
	case *packets.CompletionData, *packets.Abort:
		return true
	}
	return false
}

func partialReversalTerminal(cmd packet.Command) bool {
	switch cmd.(type) {
	case *packets.CompletionData, *packets.PartialReversalAbort:
		return true
	}
	return false
}

// Authorization runs the 2.1 payment dialog, terminating on CompletionData
// or Abort.
func Authorization(ctx context.Context, stream *transport.Stream, input *packets.Authorization) (<-chan Event, error) {
	return run(ctx, stream, input, authorizationCandidates, false, authorizationTerminal)
}

// Reservation runs the 2.8 dialog that reserves a maximal payment amount
// ahead of the final sales total, sharing its reply shape with
// Authorization.
func Reservation(ctx context.Context, stream *transport.Stream, input *packets.Reservation) (<-chan Event, error) {
	return run(ctx, stream, input, authorizationCandidates, false, authorizationTerminal)
}

// PartialReversal runs the 2.10 dialog releasing the unused part of a
// prior Reservation, identified by its receipt number.
func PartialReversal(ctx context.Context, stream *transport.Stream, input *packets.PartialReversal) (<-chan Event, error) {
	return run(ctx, stream, input, partialReversalCandidates, false, partialReversalTerminal)
}

// PreAuthReversal runs the 2.14 dialog reversing a Reservation entirely
// (a null-fill), identical in shape to PartialReversal.
func PreAuthReversal(ctx context.Context, stream *transport.Stream, input *packets.PreAuthReversal) (<-chan Event, error) {
	return run(ctx, stream, input, partialReversalCandidates, false, partialReversalTerminal)
}
