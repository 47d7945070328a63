// Package tlv defines the nested TLV sub-structures carried inside a
// command's 0x06 (or vendor-specific) TLV container field. Every field
// here is itself tag+length+value framed exactly like a top-level
// command's own fields — the packet engine recurses into these the same
// way it recurses into anything else.
package tlv

// Subs describes one application entry inside a StatusInformation's
// nested card-application list (tag 0x60).
type Subs struct {
	CardType      *string `zvt:"tag=0x41,length=tlv,encoding=hex"`
	ApplicationID *string `zvt:"tag=0x43,length=tlv,encoding=hex"`
}

// SubsOnCard wraps the full application list read from a multi-application
// card (tag 0x62 of StatusInformation).
type SubsOnCard struct {
	Subs []Subs `zvt:"tag=0x60,length=tlv"`
}

// StatusInformation is the TLV extension of the core StatusInformation
// packet (its own tag 0x06).
type StatusInformation struct {
	UUID                     *string     `zvt:"tag=0x4c,length=tlv,encoding=hex"`
	MaximumPreAuthorisation  *uint64     `zvt:"tag=0x1f0b,length=tlv,encoding=bcd"`
	CardIdentificationItem   *string     `zvt:"tag=0x1f14,length=tlv,encoding=hex"`
	Ats                      *string     `zvt:"tag=0x1f45,length=tlv,encoding=hex"`
	CardType                 *uint8      `zvt:"tag=0x1f4c,length=tlv"`
	SubType                  *string     `zvt:"tag=0x1f4d,length=tlv,encoding=hex"`
	Atqa                     *string     `zvt:"tag=0x1f4f,length=tlv,encoding=hex"`
	Sak                      *uint8      `zvt:"tag=0x1f50,length=tlv"`
	Subs                     []Subs      `zvt:"tag=0x60,length=tlv"`
	SubsOnCard               *SubsOnCard `zvt:"tag=0x62,length=tlv"`
}

// StatusEnquiry is the TLV extension of the StatusEnquiry command.
type StatusEnquiry struct {
	EnableExtendedContactlessCardDetection *uint8 `zvt:"tag=0x1ff2,length=tlv"`
}

// DeviceInformation carries the PT's reported identity inside a receipt
// printout completion.
type DeviceInformation struct {
	DeviceName      *string `zvt:"tag=0x1f40,length=tlv,encoding=utf8"`
	SoftwareVersion *string `zvt:"tag=0x1f41,length=tlv,encoding=utf8"`
	SerialNumber    *uint64 `zvt:"tag=0x1f42,length=tlv,encoding=bcd"`
	DeviceState     *uint8  `zvt:"tag=0x1f43,length=tlv"`
}

// ReceiptPrintoutCompletion is the TLV extension of the
// ReceiptPrintoutCompletion command. DateTime is kept as the raw hex
// rendering of its payload: the original's packed date/time layout was
// not recoverable from the retrieved source, so callers that need it
// parsed can decode the hex themselves once the exact layout is known.
type ReceiptPrintoutCompletion struct {
	TerminalID        *uint64            `zvt:"tag=0x1f44,length=tlv,encoding=bcd"`
	DeviceInformation *DeviceInformation `zvt:"tag=0xe4,length=tlv"`
	DateTime          *string            `zvt:"tag=0x34,length=tlv,encoding=hex"`
}

// ReservationAbort is the TLV extension of ReservationAbort.
type ReservationAbort struct {
	ExtendedErrorCode *uint64 `zvt:"tag=0x1f16,length=tlv,encoding=bcd"`
	ExtendedErrorText *string `zvt:"tag=0x1f17,length=tlv,encoding=utf8"`
}

// Bmp60 carries an ECR-supplied opaque token (e.g. a loyalty/membership
// identifier) alongside a two-letter prefix that names its scheme.
type Bmp60 struct {
	BmpPrefix string `zvt:"tag=0x1f62,length=tlv,encoding=utf8,required"`
	BmpData   string `zvt:"tag=0x1f63,length=tlv,encoding=utf8,required"`
}

// PreAuthData wraps the Bmp60 token attached to a reservation or partial
// reversal.
type PreAuthData struct {
	BmpData *Bmp60 `zvt:"tag=0xe9,length=tlv"`
}

// Diagnosis is the TLV extension of the Diagnosis command.
type Diagnosis struct {
	DiagnosisType *uint8 `zvt:"tag=0x1b,length=tlv"`
}

// ReadCard is the TLV extension of the ReadCard command.
type ReadCard struct {
	CardReadingControl *uint8 `zvt:"tag=0x1f15,length=tlv"`
	CardType           *uint8 `zvt:"tag=0x1f60,length=tlv"`
}

// TextLines carries the repeated text lines of a PrintTextBlock.
type TextLines struct {
	Lines []string `zvt:"tag=0x07,length=tlv,encoding=utf8"`
	Eol   *uint8   `zvt:"tag=0x09,length=tlv"`
}

// PrintTextBlock is the TLV extension of the PrintTextBlock command.
type PrintTextBlock struct {
	ReceiptType *uint8     `zvt:"tag=0x1f07,length=tlv"`
	Lines       *TextLines `zvt:"tag=0x25,length=tlv"`
}

// Registration is the TLV extension of the Registration command.
type Registration struct {
	MaxLenAdpu *uint16 `zvt:"tag=0x1a,length=tlv,encoding=bigendian"`
}
