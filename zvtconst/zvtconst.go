// Package zvtconst holds the flat chapter-10 error-message table and a
// few protocol-wide constants shared by the registry, sequence and feig
// packages.
package zvtconst

// ErrorMessage returns the chapter-10 description for a result code as
// carried by Abort/ReservationAbort/PartialReversalAbort and the
// CompletionData.ResultCode field. The Lavego-specific low-range codes
// (0x02-0x41) are feature-gated in the original and are not surfaced here;
// an unknown code returns ok=false.
func ErrorMessage(code uint8) (string, bool) {
	msg, ok := errorMessages[code]
	return msg, ok
}

var errorMessages = map[uint8]string{
	0x64: "card not readable (LRC-/parity-error)",
	0x65: "card-data not present (neither track-data nor chip found)",
	0x66: "processing-error (also for problems with card-reader mechanism)",
	0x67: "function not permitted for ec- and Maestro-cards",
	0x68: "function not permitted for credit- and tank-cards",
	0x6a: "turnover-file full",
	0x6b: "function deactivated (PT not registered)",
	0x6c: "abort via timeout or abort-key",
	0x6e: "card in blocked-list (response to command 06 E4)",
	0x6f: "wrong currency",
	0x71: "credit not sufficient (chip-card)",
	0x72: "chip error",
	0x73: "card-data incorrect (e.g. country-key check, checksum-error)",
	0x74: "DUKPT engine exhausted",
	0x75: "text not authentic",
	0x76: "PAN not in white list",
	0x77: "end-of-day batch not possible",
	0x78: "card expired",
	0x79: "card not yet valid",
	0x7a: "card unknown",
	0x7b: "fallback to magnetic stripe for girocard not possible",
	0x7c: "fallback to magnetic stripe not possible (used for non girocard cards)",
	0x7d: "communication error (communication module does not answer or is not present)",
	0x7e: "fallback to magnetic stripe not possible, debit advice possible (used only for giro-card)",
	0x83: "function not possible",
	0x85: "key missing",
	0x89: "PIN-pad defective",
	0x9a: "ZVT protocol error. e. g. parsing error, mandatory message element missing",
	0x9b: "error from dial-up/communication fault",
	0x9c: "please wait",
	0xa0: "receiver not ready",
	0xa1: "remote station does not respond",
	0xa3: "no connection",
	0xa4: "submission of Geldkarte not possible",
	0xa5: "function not allowed due to PCI-DSS/P2PE rules",
	0xb1: "memory full",
	0xb2: "merchant-journal full",
	0xb4: "already reversed",
	0xb5: "reversal not possible",
	0xb7: "pre-authorization incorrect (amount too high) or amount wrong",
	0xb8: "error pre-authorization",
	0xbf: "voltage supply to low (external power supply)",
	0xc0: "card locking mechanism defective",
	0xc1: "merchant-card locked",
	0xc2: "diagnosis required",
	0xc3: "maximum amount exceeded",
	0xc4: "card-profile invalid. New card-profiles must be loaded.",
	0xc5: "payment method not supported",
	0xc6: "currency not applicable",
	0xc8: "amount too small",
	0xc9: "max. transaction-amount too small",
	0xcb: "function only allowed in EURO",
	0xcc: "printer not ready",
	0xcd: "Cashback not possible",
	0xd2: "function not permitted for service-cards/bank-customer-cards",
	0xdc: "card inserted",
	0xdd: "error during card-eject (for motor-insertion reader)",
	0xde: "error during card-insertion (for motor-insertion reader)",
	0xe0: "remote-maintenance activated",
	0xe2: "card-reader does not answer / card-reader defective",
	0xe3: "shutter closed",
	0xe4: "Terminal activation required",
	0xe7: "min. one goods-group not found",
	0xe8: "no goods-groups-table loaded",
	0xe9: "restriction-code not permitted",
	0xea: "card-code not permitted (e.g. card not activated via Diagnosis)",
	0xeb: "function not executable (PIN-algorithm unknown)",
	0xec: "PIN-processing not possible",
	0xed: "PIN-pad defective",
	0xf0: "open end-of-day batch present",
	0xf1: "ec-cash/Maestro offline error",
	0xf5: "OPT-error",
	0xf6: "OPT-data not available (= OPT personalization required)",
	0xfa: "error transmitting offline-transactions (clearing error)",
	0xfb: "turnover data-set defective",
	0xfc: "necessary device not present or defective",
	0xfd: "baudrate not supported",
	0xfe: "register unknown",
	0xff: "system error (= other/unknown error), See TLV tags 1F16 and 1F17",
}

// ResultSuccess is the ResultCode/Abort-code value meaning the operation
// completed without error.
const ResultSuccess uint8 = 0x00

// MaxAdpuPayload is the largest payload an Adpu length prefix can encode.
const MaxAdpuPayload = 0xffff

// A handful of chapter-10 codes the feig controller branches on by name
// rather than by raw value.
const (
	// ErrAbortViaTimeoutOrAbortKey (0x6c) is what ReadCard aborts with
	// when no card was presented before its timeout elapsed.
	ErrAbortViaTimeoutOrAbortKey uint8 = 0x6c
	// ErrReceiverNotReady (0xa0) is what EndOfDay aborts with when the PT
	// hasn't been set up with its host yet; the controller treats this
	// as a successful no-op rather than a failure.
	ErrReceiverNotReady uint8 = 0xa0
	// ErrNecessaryDeviceNotPresentOrDefective (0xfc) is what a
	// Reservation aborts with when the card needs a PIN pad the
	// terminal doesn't have, or has one that isn't working.
	ErrNecessaryDeviceNotPresentOrDefective uint8 = 0xfc
)
