// Package registry implements the generic (class, instr) -> command
// lookup used for raw frame inspection (e.g. diagnostic dumps); the
// firmware dialog decodes its replies with its own candidate list instead
// of this table. It mirrors the literal generated-match-arm
// behavior of the command enum it is grounded on: two control fields are
// claimed by more than one command (0x06/0x0f by CompletionData and
// ReceiptPrintoutCompletion; 0x06/0x1e by Abort, ReservationAbort and
// PartialReversalAbort), and in both cases only the first-declared command
// is ever reachable through this table — the others are legitimate replies
// a caller can still decode directly once it knows, from its own dialog
// context, which one it actually expects (see the sequence package).
//
// Vendor (Feig cVEND) commands never appear in the original's equivalent
// table and are omitted here too; they are only ever constructed and
// parsed directly by the feig dialogs that know to expect them.
package registry

import (
	"github.com/EVerest/zvt/length"
	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	"github.com/EVerest/zvt/zvterr"
)

type controlField struct{ class, instr byte }

var table = map[controlField]func() packet.Command{
	{0x04, 0x01}: func() packet.Command { return &packets.SetTimeAndDate{} },
	{0x04, 0x0f}: func() packet.Command { return &packets.StatusInformation{} },
	{0x04, 0xff}: func() packet.Command { return &packets.IntermediateStatusInformation{} },
	{0x05, 0x01}: func() packet.Command { return &packets.StatusEnquiry{} },
	{0x06, 0x00}: func() packet.Command { return &packets.Registration{} },
	{0x06, 0x01}: func() packet.Command { return &packets.Authorization{} },
	{0x06, 0x0f}: func() packet.Command { return &packets.CompletionData{} },
	{0x06, 0x18}: func() packet.Command { return &packets.ResetTerminal{} },
	{0x06, 0x1a}: func() packet.Command { return &packets.PrintSystemConfiguration{} },
	{0x06, 0x1b}: func() packet.Command { return &packets.SetTerminalId{} },
	{0x06, 0x1e}: func() packet.Command { return &packets.Abort{} },
	{0x06, 0x22}: func() packet.Command { return &packets.Reservation{} },
	{0x06, 0x23}: func() packet.Command { return &packets.PartialReversal{} },
	{0x06, 0x25}: func() packet.Command { return &packets.PreAuthReversal{} },
	{0x06, 0x50}: func() packet.Command { return &packets.EndOfDay{} },
	{0x06, 0x70}: func() packet.Command { return &packets.Diagnosis{} },
	{0x06, 0x93}: func() packet.Command { return &packets.Initialization{} },
	{0x06, 0xc0}: func() packet.Command { return &packets.ReadCard{} },
	{0x06, 0xd1}: func() packet.Command { return &packets.PrintLine{} },
	{0x06, 0xd3}: func() packet.Command { return &packets.PrintTextBlock{} },
	{0x08, 0x30}: func() packet.Command { return &packets.SelectLanguage{} },
	{0x80, 0x00}: func() packet.Command { return &packets.Ack{} },
}

// Parse decodes the single ADPU frame at the front of data and returns the
// decoded command along with the bytes following the frame.
func Parse(data []byte) (packet.Command, []byte, error) {
	if len(data) < 2 {
		return nil, nil, zvterr.New(zvterr.IncompleteData)
	}
	if data[0] == 0x84 {
		return parseNack(data)
	}

	newCmd, ok := table[controlField{data[0], data[1]}]
	if !ok {
		return nil, nil, zvterr.NewWrongTag(uint16(data[0])<<8 | uint16(data[1]))
	}
	cmd := newCmd()
	rest, err := packet.Deserialize(cmd, data)
	if err != nil {
		return nil, nil, err
	}
	return cmd, rest, nil
}

// parseNack builds a Nack from the raw frame header without going through
// the generic field engine, since Nack's instr byte is the error code
// itself rather than a fixed control-field value.
func parseNack(data []byte) (packet.Command, []byte, error) {
	if len(data) < 3 {
		return nil, nil, zvterr.New(zvterr.IncompleteData)
	}
	ln, payload, err := (length.Adpu{}).Deserialize(data[2:])
	if err != nil {
		return nil, nil, err
	}
	if ln > len(payload) {
		return nil, nil, zvterr.New(zvterr.IncompleteData)
	}
	return &packets.Nack{ErrorCode: data[1]}, payload[ln:], nil
}
