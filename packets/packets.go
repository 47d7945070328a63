// Package packets defines the core (non-vendor) ZVT command structs: the
// ECR<->PT dialogue described in chapters 4-7 of the protocol. Every
// struct implements packet.Command via a pointer-receiver ControlField
// method and is serialized/deserialized through the packet package's
// reflective engine using the `zvt` struct tags below.
package packets

import (
	"reflect"

	"github.com/EVerest/zvt/encoding"
	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets/tlv"
)

func init() {
	packet.RegisterValue("partialReversalReceiptNo", partialReversalReceiptNoCodec{})
}

// partialReversalReceiptNoCodec implements the receipt-number field used
// by PartialReversal/PartialReversalAbort: the sentinel 0xFFFF ("all
// pending transactions") is carried as a raw little-endian uint16 rather
// than as packed BCD, since 0xFFFF isn't a valid two-byte BCD value.
type partialReversalReceiptNoCodec struct{}

func (partialReversalReceiptNoCodec) Encode(v reflect.Value) ([]byte, error) {
	n := v.Uint()
	if n == 0xffff {
		return []byte{0xff, 0xff}, nil
	}
	return encoding.EncodeBcd(n), nil
}

func (partialReversalReceiptNoCodec) Decode(data []byte, v reflect.Value) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0xff && data[1] == 0xff {
		v.SetUint(0xffff)
		return data[2:], nil
	}
	v.SetUint(encoding.DecodeBcd(data))
	return nil, nil
}

// Ack is the empty acknowledgement frame sent after every received
// command.
type Ack struct{}

func (*Ack) ControlField() (byte, byte) { return 0x80, 0x00 }

// SetTimeAndDate (0x04 0x01) lets the PT push its current date/time to
// the ECR.
type SetTimeAndDate struct {
	Date uint64 `zvt:"tag=0xaa,length=fixed:3,encoding=bcd,required"`
	Time uint64 `zvt:"tag=0x0c,length=fixed:3,encoding=bcd,required"`
}

func (*SetTimeAndDate) ControlField() (byte, byte) { return 0x04, 0x01 }

// Nack (0x84 any) rejects the previous command with a chapter-10 error
// code carried directly in the instr byte rather than the payload; the
// registry populates ErrorCode itself from the raw frame header instead
// of going through the generic field engine.
type Nack struct {
	ErrorCode uint8
}

func (*Nack) ControlField() (byte, byte) { return 0x84, 0x00 }

// NumAndTotal is the per-card-scheme count/amount pair nested inside
// SingleAmounts.
type NumAndTotal struct {
	Num   uint8  `zvt:""`
	Total uint64 `zvt:"length=fixed:6,encoding=bcd"`
}

// SingleAmounts breaks an end-of-day total down per card scheme.
type SingleAmounts struct {
	ReceiptNoStart uint64      `zvt:"length=fixed:2,encoding=bcd"`
	ReceiptNoEnd   uint64      `zvt:"length=fixed:2,encoding=bcd"`
	Girocard       NumAndTotal `zvt:""`
	Jcb            NumAndTotal `zvt:""`
	Eurocard       NumAndTotal `zvt:""`
	Amex           NumAndTotal `zvt:""`
	Visa           NumAndTotal `zvt:""`
	Diners         NumAndTotal `zvt:""`
	Others         NumAndTotal `zvt:""`
}

// StatusInformation (0x04 0x0f) reports the outcome of a card presentment
// or transaction step; almost every field is optional.
type StatusInformation struct {
	Amount                  *uint64            `zvt:"tag=0x04,length=fixed:6,encoding=bcd"`
	TraceNumber              *uint64            `zvt:"tag=0x0b,length=fixed:3,encoding=bcd"`
	Time                     *uint64            `zvt:"tag=0x0c,length=fixed:3,encoding=bcd"`
	Date                     *uint64            `zvt:"tag=0x0d,length=fixed:2,encoding=bcd"`
	ExpiryDate               *uint64            `zvt:"tag=0x0e,length=fixed:2,encoding=bcd"`
	CardSequenceNumber       *uint64            `zvt:"tag=0x17,length=fixed:2,encoding=bcd"`
	CardType                 *uint8             `zvt:"tag=0x19"`
	CardNumber               *uint64            `zvt:"tag=0x22,length=llv,encoding=bcd"`
	Track2Data               *string            `zvt:"tag=0x23,length=llv,encoding=hex"`
	ResultCode               *uint8             `zvt:"tag=0x27,length=fixed:1"`
	TerminalID               *uint64            `zvt:"tag=0x29,length=fixed:4,encoding=bcd"`
	VuNumber                 *string            `zvt:"tag=0x2a,length=fixed:15,encoding=utf8"`
	AidAuthorizationAttribute *string           `zvt:"tag=0x3b,length=fixed:8,encoding=hex"`
	AdditionalText           *string            `zvt:"tag=0x3c,length=lllv,encoding=utf8"`
	SingleAmounts            *SingleAmounts     `zvt:"tag=0x60,length=lllv"`
	ReceiptNo                *uint64            `zvt:"tag=0x87,length=fixed:2,encoding=bcd"`
	Currency                 *uint64            `zvt:"tag=0x49,length=fixed:2,encoding=bcd"`
	ZvtCardType              *uint8             `zvt:"tag=0x8a"`
	CardName                 *string            `zvt:"tag=0x8b,length=llv,encoding=utf8"`
	ZvtCardTypeID            *uint8             `zvt:"tag=0x8c"`
	Tlv                      *tlv.StatusInformation `zvt:"tag=0x06,length=tlv"`
}

func (*StatusInformation) ControlField() (byte, byte) { return 0x04, 0x0f }

// IntermediateStatusInformation (0x04 0xff) signals dialog progress
// (e.g. "please wait", "insert card") before a terminal StatusInformation
// or Abort arrives.
type IntermediateStatusInformation struct {
	Status  uint8   `zvt:""`
	Timeout *uint64 `zvt:"encoding=bcd"`
}

func (*IntermediateStatusInformation) ControlField() (byte, byte) { return 0x04, 0xff }

// StatusEnquiry (0x05 0x01) polls the PT for its current status.
type StatusEnquiry struct {
	Password    *uint64            `zvt:"length=fixed:3,encoding=bcd"`
	ServiceByte *uint8             `zvt:"tag=0x03"`
	Tlv         *tlv.StatusEnquiry `zvt:"tag=0x06,length=tlv"`
}

func (*StatusEnquiry) ControlField() (byte, byte) { return 0x05, 0x01 }

// Registration (0x06 0x00) is the ECR's first command, establishing the
// dialog's password, feature config byte and currency.
type Registration struct {
	Password   uint64        `zvt:"length=fixed:3,encoding=bcd,required"`
	ConfigByte uint8         `zvt:""`
	Currency   *uint64       `zvt:"length=fixed:2,encoding=bcd"`
	Tlv        *tlv.Registration `zvt:"tag=0x06,length=tlv"`
}

func (*Registration) ControlField() (byte, byte) { return 0x06, 0x00 }

// Authorization (0x06 0x01) requests an immediate (non-reservation)
// payment.
type Authorization struct {
	Amount                *uint64 `zvt:"tag=0x04,length=fixed:6,encoding=bcd"`
	Currency              *uint64 `zvt:"tag=0x49,length=fixed:2,encoding=bcd"`
	PaymentType           *uint8  `zvt:"tag=0x19"`
	ExpiryDate            *uint64 `zvt:"tag=0x0e,length=fixed:2,encoding=bcd"`
	CardNumber            *uint64 `zvt:"tag=0x22,length=llv,encoding=bcd"`
	Track2Data            *string `zvt:"tag=0x23,length=llv,encoding=hex"`
	Timeout               *uint8  `zvt:"tag=0x01"`
	MaximumNoOfStatusInfo *uint8  `zvt:"tag=0x02"`
	PumpNo                *uint8  `zvt:"tag=0x05"`
	AdditionalText        *string `zvt:"tag=0x3c,length=lllv,encoding=utf8"`
	ZvtCardType           *uint8  `zvt:"tag=0x8a"`
}

func (*Authorization) ControlField() (byte, byte) { return 0x06, 0x01 }

// CompletionData (0x06 0x0f) is the common "transaction completed"
// terminal event shared by most dialogs.
type CompletionData struct {
	ResultCode *uint8  `zvt:"tag=0x27"`
	StatusByte *uint8  `zvt:"tag=0x19"`
	TerminalID *uint64 `zvt:"tag=0x29,length=fixed:4,encoding=bcd"`
	Currency   *uint64 `zvt:"tag=0x49,length=fixed:2,encoding=bcd"`
}

func (*CompletionData) ControlField() (byte, byte) { return 0x06, 0x0f }

// ReceiptPrintoutCompletion (0x06 0x0f) shares its control field with
// CompletionData. No dialog expects both at once, so callers that know
// which one they want decode directly; the generic registry always
// resolves this control field to CompletionData.
type ReceiptPrintoutCompletion struct {
	SwVersion          string                     `zvt:"length=lllv,encoding=utf8,required"`
	TerminalStatusCode uint8                      `zvt:""`
	Tlv                *tlv.ReceiptPrintoutCompletion `zvt:"tag=0x06,length=tlv"`
}

func (*ReceiptPrintoutCompletion) ControlField() (byte, byte) { return 0x06, 0x0f }

// ResetTerminal (0x06 0x18) asks the PT to perform a full reset.
type ResetTerminal struct{}

func (*ResetTerminal) ControlField() (byte, byte) { return 0x06, 0x18 }

// PrintSystemConfiguration (0x06 0x1a) asks the PT to print its current
// configuration for diagnostics.
type PrintSystemConfiguration struct{}

func (*PrintSystemConfiguration) ControlField() (byte, byte) { return 0x06, 0x1a }

// SetTerminalId (0x06 0x1b) reconfigures the PT's stored terminal id.
type SetTerminalId struct {
	Password   uint64  `zvt:"length=fixed:3,encoding=bcd,required"`
	TerminalID *uint64 `zvt:"tag=0x29,length=fixed:4,encoding=bcd"`
}

func (*SetTerminalId) ControlField() (byte, byte) { return 0x06, 0x1b }

// Abort (0x06 0x1e) is the plain abort, carrying only a chapter-10 error
// code.
type Abort struct {
	Error uint8 `zvt:""`
}

func (*Abort) ControlField() (byte, byte) { return 0x06, 0x1e }

// ReservationAbort (0x06 0x1e) shares its control field with Abort; it
// additionally carries the currency used and vendor diagnostic text.
type ReservationAbort struct {
	Error    uint8                  `zvt:""`
	Currency *uint64                `zvt:"length=fixed:2,encoding=bcd"`
	Tlv      *tlv.ReservationAbort  `zvt:"tag=0x06,length=tlv"`
}

func (*ReservationAbort) ControlField() (byte, byte) { return 0x06, 0x1e }

// PartialReversalAbort (0x06 0x1e) shares its control field with Abort
// and ReservationAbort; it carries the receipt number being reversed,
// which may be the 0xFFFF "all pending" sentinel.
type PartialReversalAbort struct {
	Error     uint8   `zvt:""`
	ReceiptNo *uint64 `zvt:"tag=0x87,length=fixed:2,encoding=custom:partialReversalReceiptNo"`
}

func (*PartialReversalAbort) ControlField() (byte, byte) { return 0x06, 0x1e }

// Reservation (0x06 0x22) pre-authorizes an amount, to be captured later
// with PartialReversal.
type Reservation struct {
	Amount                    *uint64            `zvt:"tag=0x04,length=fixed:6,encoding=bcd"`
	Currency                  *uint64            `zvt:"tag=0x49,length=fixed:2,encoding=bcd"`
	PaymentType               *uint8             `zvt:"tag=0x19"`
	ExpiryDate                *uint64            `zvt:"tag=0x0e,length=fixed:2,encoding=bcd"`
	CardNumber                *uint64            `zvt:"tag=0x22,length=llv,encoding=bcd"`
	Track2Data                *string            `zvt:"tag=0x23,length=llv,encoding=hex"`
	Timeout                   *uint8             `zvt:"tag=0x01"`
	MaximumNoOfStatusInfo     *uint8             `zvt:"tag=0x02"`
	PumpNo                    *uint8             `zvt:"tag=0x05"`
	TraceNumber               *uint64            `zvt:"tag=0x0b,length=fixed:3,encoding=bcd"`
	AidAuthorizationAttribute *string            `zvt:"tag=0x3b,length=fixed:8,encoding=hex"`
	AdditionalText            *string            `zvt:"tag=0x3c,length=lllv,encoding=utf8"`
	ZvtCardType               *uint8             `zvt:"tag=0x8a"`
	Tlv                       *tlv.PreAuthData   `zvt:"tag=0x06,length=tlv"`
}

func (*Reservation) ControlField() (byte, byte) { return 0x06, 0x22 }

// PartialReversal (0x06 0x23) captures (or queries, via the 0xFFFF
// sentinel receipt number) a previously reserved amount.
type PartialReversal struct {
	ReceiptNo   *uint64          `zvt:"tag=0x87,length=fixed:2,encoding=custom:partialReversalReceiptNo"`
	Amount      *uint64          `zvt:"tag=0x04,length=fixed:6,encoding=bcd"`
	PaymentType *uint8           `zvt:"tag=0x19"`
	Currency    *uint64          `zvt:"tag=0x49,length=fixed:2,encoding=bcd"`
	Tlv         *tlv.PreAuthData `zvt:"tag=0x06,length=tlv"`
}

func (*PartialReversal) ControlField() (byte, byte) { return 0x06, 0x23 }

// PreAuthReversal (0x06 0x25) cancels a reservation outright instead of
// capturing it.
type PreAuthReversal struct {
	PaymentType *uint8  `zvt:"tag=0x19"`
	Currency    *uint64 `zvt:"tag=0x49,length=fixed:2,encoding=bcd"`
	ReceiptNo   *uint64 `zvt:"tag=0x87,length=fixed:2,encoding=bcd"`
}

func (*PreAuthReversal) ControlField() (byte, byte) { return 0x06, 0x25 }

// EndOfDay (0x06 0x50) closes the current business day's batch.
type EndOfDay struct {
	Password uint64 `zvt:"length=fixed:3,encoding=bcd,required"`
}

func (*EndOfDay) ControlField() (byte, byte) { return 0x06, 0x50 }

// DiagnosisType selects which diagnostic report a Diagnosis command
// requests.
type DiagnosisType uint8

const (
	DiagnosisLine             DiagnosisType = 1
	DiagnosisExtended         DiagnosisType = 2
	DiagnosisConfiguration    DiagnosisType = 3
	DiagnosisEmvConfiguration DiagnosisType = 4
	DiagnosisEp2Configuration DiagnosisType = 5
)

// Diagnosis (0x06 0x70) asks the PT to run and print a diagnostic report.
type Diagnosis struct {
	Tlv *tlv.Diagnosis `zvt:"tag=0x06,length=tlv"`
}

func (*Diagnosis) ControlField() (byte, byte) { return 0x06, 0x70 }

// Initialization (0x06 0x93) runs the PT's full EMV/config initialization.
type Initialization struct {
	Password uint64 `zvt:"length=fixed:3,encoding=bcd,required"`
}

func (*Initialization) ControlField() (byte, byte) { return 0x06, 0x93 }

// ReadCard (0x06 0xc0) asks the PT to read a presented card.
type ReadCard struct {
	TimeoutSec     uint8          `zvt:""`
	CardType       *uint8         `zvt:"tag=0x19"`
	DialogControl  *uint8         `zvt:"tag=0xfc"`
	Tlv            *tlv.ReadCard  `zvt:"tag=0x06,length=tlv"`
}

func (*ReadCard) ControlField() (byte, byte) { return 0x06, 0xc0 }

// PrintLine (0x06 0xd1) is a single line of receipt text.
type PrintLine struct {
	Attribute uint8  `zvt:""`
	Text      string `zvt:"encoding=utf8"`
}

func (*PrintLine) ControlField() (byte, byte) { return 0x06, 0xd1 }

// PrintTextBlock (0x06 0xd3) is a multi-line receipt block.
type PrintTextBlock struct {
	Tlv *tlv.PrintTextBlock `zvt:"tag=0x06,length=tlv"`
}

func (*PrintTextBlock) ControlField() (byte, byte) { return 0x06, 0xd3 }

// SelectLanguage (0x08 0x30) picks the PT's display/receipt language.
type SelectLanguage struct {
	Language uint8 `zvt:""`
}

func (*SelectLanguage) ControlField() (byte, byte) { return 0x08, 0x30 }
