// Package feig implements the high-level terminal controller: a
// reconnecting transport plus a token-to-transaction map, driving the
// sequence dialogs needed to configure a terminal, read a card, run a
// reservation/capture cycle, settle the day's turnover and push a firmware
// update.
package feig

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/EVerest/zvt/firmware"
	"github.com/EVerest/zvt/packets"
	feigpackets "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/packets/tlv"
	"github.com/EVerest/zvt/reconnect"
	"github.com/EVerest/zvt/sequence"
	"github.com/EVerest/zvt/transport"
	"github.com/EVerest/zvt/zvtconst"
	"github.com/EVerest/zvt/zvterr"
	"github.com/EVerest/zvt/zvtlog"
)

// Default card-reading and payment parameters, fixed rather than
// configurable: the individual-reference-number prefix used in BMP60 so
// payments can be traced on the host side, the card type (chip card,
// Table 6), the short card-reading control (Tlv 0x1f15), the allowed card
// types (Tlv 0x1f60), the dialog control silencing PT beeps (Table 7) and
// the payment type left to the PT's own decision excluding Geldkarte
// (Table 4).
const (
	cardType                = 0x10
	shortCardReadingControl = 0xd0
	allowedCards            = 0x07
	dialogControl           = 0x02
	paymentType             = 0x40
	bmpPrefix               = "AC"
)

// Currencies maps the ISO-4217 currency names named in the configuration
// surface to their numeric codes. Callers may always supply a raw
// numeric code instead.
var Currencies = map[string]uint64{
	"EUR": 978,
	"GBP": 826,
	"SEK": 752,
	"PLN": 985,
}

// Domain errors surfaced by the controller, mapped from chapter-10 abort
// codes or from local bookkeeping checks.
var (
	ErrUnexpectedPacket  = errors.New("feig: unexpected packet")
	ErrActiveTransaction = errors.New("feig: transaction capacity or token conflict")
	ErrNoCardPresented   = errors.New("feig: no card presented")
	ErrUnknownToken      = errors.New("feig: unknown token")
	ErrNeedsPinEntry     = errors.New("feig: the presented card requires pin entry")
	ErrTidMismatch       = errors.New("feig: configured terminal id is not numeric")
)

var activeTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "zvt_feig_active_transactions",
	Help: "Number of transactions currently open on the terminal controller.",
})

func init() {
	prometheus.MustRegister(activeTransactions)
}

// CardKind distinguishes the two card shapes read_card can report.
type CardKind int

const (
	CardKindBank CardKind = iota
	CardKindMembership
)

// CardInfo is what ReadCard returns on a successful card presentation.
type CardInfo struct {
	Kind CardKind
	// MembershipUUID is set only when Kind is CardKindMembership: the
	// card's UUID, uppercased and trimmed to its last 14 characters with
	// any leading "000000" stripped.
	MembershipUUID string
}

// TransactionSummary is built from the StatusInformation a successful
// CommitTransaction observed on the wire.
type TransactionSummary struct {
	TerminalID  string
	Amount      uint64
	TraceNumber uint64
	Date        string
	Time        string
}

type transaction struct {
	receiptNo     uint64
	preauthAmount uint64
}

// Config is the controller-level configuration: the connection address
// and credentials, plus the capacity of the transaction map.
type Config struct {
	IPAddress  net.IP
	TerminalID string
	FeigSerial string
	FeigConfig reconnect.FeigConfig
	// TransactionsMaxNum caps the number of concurrently open
	// transactions; zero defaults to 1.
	TransactionsMaxNum int
	// Port overrides the default ZVT port 22000; used by tests.
	Port int
}

// Controller owns a reconnecting transport and the mapping from
// application-supplied tokens to in-flight transactions.
type Controller struct {
	stream    *reconnect.Stream
	specCache *lru.Cache

	mu                 sync.Mutex
	transactions       map[string]transaction
	transactionsMaxNum int
	configured         bool
	lastEndOfDay       time.Time
}

// New builds a Controller. It does not connect; the first dialog it runs
// establishes the connection.
func New(config Config) *Controller {
	maxNum := config.TransactionsMaxNum
	if maxNum == 0 {
		maxNum = 1
	}
	cache, err := firmware.NewSpecCache()
	if err != nil {
		panic(err)
	}
	return &Controller{
		stream: reconnect.New(reconnect.Config{
			IPAddress:  config.IPAddress,
			TerminalID: config.TerminalID,
			FeigSerial: config.FeigSerial,
			FeigConfig: config.FeigConfig,
			Port:       config.Port,
		}),
		specCache:          cache,
		transactions:       make(map[string]transaction),
		transactionsMaxNum: maxNum,
	}
}

// drain collects the events of the most recent attempt a reconnect.Run
// channel carried: evs holds that attempt's events and err its outcome.
// Earlier, failed attempts are discarded as the retry loop moves past
// them, mirroring a caller who only cares whether the dialog eventually
// succeeded.
func drain(ch <-chan sequence.Event) ([]sequence.Event, error) {
	var evs []sequence.Event
	var err error
	for ev := range ch {
		if ev.Err != nil {
			err = ev.Err
			evs = nil
			continue
		}
		err = nil
		evs = append(evs, ev)
	}
	return evs, err
}

func terminalOutcome(evs []sequence.Event) error {
	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *packets.CompletionData:
			return nil
		case *packets.Abort:
			return zvterr.NewAborted(cmd.Error)
		}
	}
	return zvterr.New(zvterr.IncompleteData)
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func normalizeUUID(raw string) string {
	u := strings.ToUpper(raw)
	if len(u) > 14 {
		u = u[len(u)-14:]
	}
	return strings.TrimPrefix(u, "000000")
}

// Configure is an idempotent startup: it fetches the terminal's system
// info, sets the terminal id if it differs from configuration (running an
// EMV-configuration diagnosis afterwards), initializes the terminal, and
// settles any outstanding turnover. Repeated calls after a success are
// no-ops; call Reconnect to force it to run again.
func (c *Controller) Configure(ctx context.Context) error {
	c.mu.Lock()
	if c.configured {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	tidChanged, err := c.setTerminalID(ctx)
	if err != nil {
		return err
	}
	if tidChanged {
		if err := c.runDiagnosis(ctx, packets.DiagnosisEmvConfiguration); err != nil {
			return err
		}
	}
	if err := c.initialize(ctx); err != nil {
		return err
	}
	if err := c.endOfDay(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.configured = true
	c.mu.Unlock()
	return nil
}

// Reconnect points the controller at a new address, clears the configured
// flag, and runs Configure again.
func (c *Controller) Reconnect(ctx context.Context, ip net.IP) error {
	c.mu.Lock()
	c.configured = false
	c.mu.Unlock()
	c.stream.Reconnect(ip)
	return c.Configure(ctx)
}

func (c *Controller) getSystemInfo(ctx context.Context) (*feigpackets.CVendFunctionsEnhancedSystemInformationCompletion, error) {
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.GetSystemInfo(ctx, stream, &feigpackets.CVendFunctions{Instr: 1})
	}))
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *feigpackets.CVendFunctionsEnhancedSystemInformationCompletion:
			return cmd, nil
		case *packets.Abort:
			return nil, zvterr.NewAborted(cmd.Error)
		}
	}
	return nil, zvterr.New(zvterr.IncompleteData)
}

// setTerminalID sets the terminal id if the terminal's reported id
// differs from configuration, reporting whether it actually changed it.
func (c *Controller) setTerminalID(ctx context.Context) (bool, error) {
	info, err := c.getSystemInfo(ctx)
	if err != nil {
		return false, err
	}

	cfg := c.stream.Config()
	if info.TerminalID == cfg.TerminalID {
		zvtlog.Log.Debug("feig: terminal id already up-to-date")
		return false, nil
	}

	terminalID, err := strconv.ParseUint(cfg.TerminalID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTidMismatch, err)
	}

	zvtlog.Log.Infof("feig: updating the terminal id to %d", terminalID)
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.SetTerminalId(ctx, stream, &packets.SetTerminalId{
			Password:   cfg.FeigConfig.Password,
			TerminalID: &terminalID,
		})
	}))
	if err != nil {
		return false, err
	}
	if err := terminalOutcome(evs); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) runDiagnosis(ctx context.Context, kind packets.DiagnosisType) error {
	diagnosisType := uint8(kind)
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.Diagnosis(ctx, stream, &packets.Diagnosis{
			Tlv: &tlv.Diagnosis{DiagnosisType: &diagnosisType},
		})
	}))
	if err != nil {
		return err
	}
	return terminalOutcome(evs)
}

func (c *Controller) initialize(ctx context.Context) error {
	password := c.stream.Config().FeigConfig.Password
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.Initialization(ctx, stream, &packets.Initialization{Password: password})
	}))
	if err != nil {
		return err
	}
	return terminalOutcome(evs)
}

// getPending asks the terminal for a single pending pre-authorization via
// the 0xFFFF query-all sentinel, returning ok=false once none remain.
func (c *Controller) getPending(ctx context.Context) (receiptNo uint64, ok bool, err error) {
	sentinel := uint64(0xffff)
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.PartialReversal(ctx, stream, &packets.PartialReversal{ReceiptNo: &sentinel})
	}))
	if err != nil {
		return 0, false, err
	}
	for _, ev := range evs {
		if cmd, matched := ev.Command.(*packets.PartialReversalAbort); matched {
			if cmd.ReceiptNo == nil || *cmd.ReceiptNo == 0xffff {
				return 0, false, nil
			}
			return *cmd.ReceiptNo, true, nil
		}
	}
	return 0, false, zvterr.New(zvterr.IncompleteData)
}

// cancelPending drops the local transaction map and cancels every
// transaction the terminal still has open, used before settling the day.
func (c *Controller) cancelPending(ctx context.Context) error {
	c.mu.Lock()
	for token := range c.transactions {
		delete(c.transactions, token)
	}
	c.mu.Unlock()
	activeTransactions.Set(0)

	for {
		receiptNo, ok, err := c.getPending(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.cancelByReceiptNo(ctx, receiptNo); err != nil {
			return err
		}
	}
}

func (c *Controller) endOfDay(ctx context.Context) error {
	if err := c.cancelPending(ctx); err != nil {
		return err
	}

	password := c.stream.Config().FeigConfig.Password
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.EndOfDay(ctx, stream, &packets.EndOfDay{Password: password})
	}))
	if err != nil {
		return err
	}

	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *packets.CompletionData:
			c.mu.Lock()
			c.lastEndOfDay = time.Now()
			c.mu.Unlock()
			return nil
		case *packets.PartialReversalAbort:
			if cmd.Error == zvtconst.ErrReceiverNotReady {
				zvtlog.Log.Warning("feig: end of day: terminal not ready")
				c.mu.Lock()
				c.lastEndOfDay = time.Now()
				c.mu.Unlock()
				return nil
			}
			return zvterr.NewAborted(cmd.Error)
		}
	}
	return zvterr.New(zvterr.IncompleteData)
}

// ReadCard runs the terminal's card-reading dialog. If no transactions are
// open and the configured end-of-day interval has elapsed since the last
// settlement, it settles the day first. A timeout on the wire (the PT's
// own abort-key/timeout abort) is reported as ErrNoCardPresented rather
// than as a generic Aborted error.
func (c *Controller) ReadCard(ctx context.Context) (*CardInfo, error) {
	c.mu.Lock()
	cfg := c.stream.Config().FeigConfig
	idle := len(c.transactions) == 0 &&
		(c.lastEndOfDay.IsZero() || time.Since(c.lastEndOfDay) >= cfg.EndOfDayMaxInterval)
	c.mu.Unlock()

	if idle {
		if err := c.endOfDay(ctx); err != nil {
			return nil, err
		}
	}

	ct := uint8(cardType)
	dc := uint8(dialogControl)
	readingControl := uint8(shortCardReadingControl)
	allowed := uint8(allowedCards)
	readTimeout := time.Duration(cfg.ReadCardTimeout+2) * time.Second

	evs, err := drain(c.stream.RunWithTimeout(ctx, readTimeout, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.ReadCard(ctx, stream, &packets.ReadCard{
			TimeoutSec:    cfg.ReadCardTimeout,
			CardType:      &ct,
			DialogControl: &dc,
			Tlv: &tlv.ReadCard{
				CardReadingControl: &readingControl,
				CardType:           &allowed,
			},
		})
	}))
	if err != nil {
		return nil, err
	}

	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *packets.Abort:
			if cmd.Error == zvtconst.ErrAbortViaTimeoutOrAbortKey {
				return nil, ErrNoCardPresented
			}
			return nil, zvterr.NewAborted(cmd.Error)
		case *packets.StatusInformation:
			return cardInfoFromStatus(cmd)
		}
	}
	return nil, zvterr.New(zvterr.IncompleteData)
}

func cardInfoFromStatus(s *packets.StatusInformation) (*CardInfo, error) {
	if s.Tlv == nil {
		return nil, zvterr.New(zvterr.IncompleteData)
	}
	if len(s.Tlv.Subs) > 0 {
		if s.Tlv.Subs[0].ApplicationID != nil {
			return &CardInfo{Kind: CardKindBank}, nil
		}
		return nil, fmt.Errorf("feig: unrecognized card type")
	}
	if s.Tlv.UUID != nil {
		return &CardInfo{Kind: CardKindMembership, MembershipUUID: normalizeUUID(*s.Tlv.UUID)}, nil
	}
	return nil, zvterr.New(zvterr.IncompleteData)
}

// BeginTransaction reserves preauthAmount against token. It fails if the
// controller is already at capacity or token is already open.
func (c *Controller) BeginTransaction(ctx context.Context, token string, preauthAmount uint64) error {
	c.mu.Lock()
	if len(c.transactions) >= c.transactionsMaxNum {
		c.mu.Unlock()
		return fmt.Errorf("%w: maximum number of transactions reached: %d", ErrActiveTransaction, c.transactionsMaxNum)
	}
	if _, exists := c.transactions[token]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: token %q already in use", ErrActiveTransaction, token)
	}
	c.mu.Unlock()

	currency := c.stream.Config().FeigConfig.Currency
	amount := preauthAmount
	pt := uint8(paymentType)
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.Reservation(ctx, stream, &packets.Reservation{
			Currency:    &currency,
			Amount:      &amount,
			PaymentType: &pt,
			Tlv: &tlv.PreAuthData{
				BmpData: &tlv.Bmp60{BmpPrefix: bmpPrefix, BmpData: token},
			},
		})
	}))
	if err != nil {
		return err
	}

	var receiptNo uint64
	var have bool
	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *packets.Abort:
			if cmd.Error == zvtconst.ErrNecessaryDeviceNotPresentOrDefective {
				return ErrNeedsPinEntry
			}
			return zvterr.NewAborted(cmd.Error)
		case *packets.StatusInformation:
			if cmd.ReceiptNo != nil {
				receiptNo = *cmd.ReceiptNo
				have = true
			}
		}
	}
	if !have {
		return zvterr.New(zvterr.IncompleteData)
	}

	c.mu.Lock()
	c.transactions[token] = transaction{receiptNo: receiptNo, preauthAmount: preauthAmount}
	activeTransactions.Set(float64(len(c.transactions)))
	c.mu.Unlock()
	return nil
}

func (c *Controller) cancelByReceiptNo(ctx context.Context, receiptNo uint64) error {
	currency := c.stream.Config().FeigConfig.Currency
	pt := uint8(paymentType)
	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.PreAuthReversal(ctx, stream, &packets.PreAuthReversal{
			PaymentType: &pt,
			Currency:    &currency,
			ReceiptNo:   &receiptNo,
		})
	}))
	if err != nil {
		return err
	}
	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *packets.CompletionData:
			return nil
		case *packets.PartialReversalAbort:
			return zvterr.NewAborted(cmd.Error)
		}
	}
	return zvterr.New(zvterr.IncompleteData)
}

// CancelTransaction reverses token's reservation in full. The token is
// removed from the map only if the cancellation succeeded on the wire;
// a failed attempt leaves it in place so the caller may retry.
func (c *Controller) CancelTransaction(ctx context.Context, token string) error {
	c.mu.Lock()
	tx, ok := c.transactions[token]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}

	if err := c.cancelByReceiptNo(ctx, tx.receiptNo); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.transactions, token)
	empty := len(c.transactions) == 0
	activeTransactions.Set(float64(len(c.transactions)))
	c.mu.Unlock()

	if empty {
		return c.endOfDay(ctx)
	}
	return nil
}

// CommitTransaction settles token for amount, reversing the unused
// portion of its reservation (preauthAmount - amount, saturating at
// zero). On failure before the dialog reaches a terminal event the token
// stays in the map so the caller may retry; it is only removed once the
// PT has confirmed the reversal.
func (c *Controller) CommitTransaction(ctx context.Context, token string, amount uint64) (*TransactionSummary, error) {
	c.mu.Lock()
	tx, ok := c.transactions[token]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}

	currency := c.stream.Config().FeigConfig.Currency
	reversal := saturatingSub(tx.preauthAmount, amount)
	pt := uint8(paymentType)
	receiptNo := tx.receiptNo

	evs, err := drain(c.stream.Run(ctx, func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error) {
		return sequence.PartialReversal(ctx, stream, &packets.PartialReversal{
			ReceiptNo:   &receiptNo,
			Currency:    &currency,
			Amount:      &reversal,
			PaymentType: &pt,
			Tlv: &tlv.PreAuthData{
				BmpData: &tlv.Bmp60{BmpPrefix: bmpPrefix, BmpData: token},
			},
		})
	}))
	if err != nil {
		// Failure before any terminal event: the token stays put.
		return nil, err
	}

	var status *packets.StatusInformation
	var terminalReached bool
	for _, ev := range evs {
		switch cmd := ev.Command.(type) {
		case *packets.StatusInformation:
			status = cmd
		case *packets.PartialReversalAbort:
			return nil, zvterr.NewAborted(cmd.Error)
		case *packets.CompletionData:
			terminalReached = true
		}
	}
	if !terminalReached {
		return nil, zvterr.New(zvterr.IncompleteData)
	}

	c.mu.Lock()
	delete(c.transactions, token)
	empty := len(c.transactions) == 0
	activeTransactions.Set(float64(len(c.transactions)))
	c.mu.Unlock()

	if empty {
		if err := c.endOfDay(ctx); err != nil {
			return nil, err
		}
	}

	if status == nil {
		return nil, zvterr.New(zvterr.IncompleteData)
	}
	return summaryFromStatus(status), nil
}

func summaryFromStatus(s *packets.StatusInformation) *TransactionSummary {
	sum := &TransactionSummary{}
	if s.TerminalID != nil {
		sum.TerminalID = strconv.FormatUint(*s.TerminalID, 10)
	}
	if s.Amount != nil {
		sum.Amount = *s.Amount
	}
	if s.TraceNumber != nil {
		sum.TraceNumber = *s.TraceNumber
	}
	if s.Date != nil {
		sum.Date = fmt.Sprintf("%04d", *s.Date)
	}
	if s.Time != nil {
		sum.Time = fmt.Sprintf("%06d", *s.Time)
	}
	return sum
}

// UpdateFirmware pushes the files under dir to the terminal. Unless
// force is set, it first compares the terminal's reported software
// version against the desired version named in dir's "app1/update.spec"
// (substring containment); if the current version already contains the
// desired one, it returns without doing any work. Otherwise it settles
// the day and runs the firmware transfer dialog.
func (c *Controller) UpdateFirmware(ctx context.Context, dir string, force bool) error {
	if !force {
		info, err := c.getSystemInfo(ctx)
		if err != nil {
			return err
		}
		desired, err := firmware.DesiredVersion(c.specCache, dir)
		if err != nil {
			return err
		}
		if strings.Contains(info.SwVersion, desired) {
			zvtlog.Log.Infof("feig: firmware already at %s", desired)
			return nil
		}
	}

	if err := c.endOfDay(ctx); err != nil {
		return err
	}

	password := c.stream.Config().FeigConfig.Password
	return c.stream.RunBlocking(ctx, func(ctx context.Context, stream *transport.Stream) error {
		return firmware.Update(ctx, stream, dir, password, firmware.DefaultChunkSize)
	})
}
