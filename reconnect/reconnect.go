// Package reconnect wraps a sequence dialog in the reconnecting/retrying
// transport the controller runs every dialog through: up to 20 connection
// attempts spaced by a 2-second throttle, a 60-second per-response read
// timeout, and a connect handshake (Registration + GetSystemInfo, with a
// device-id check) performed once per fresh connection.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	feig "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/sequence"
	"github.com/EVerest/zvt/transport"
	"github.com/EVerest/zvt/zvterr"
	"github.com/EVerest/zvt/zvtlog"
)

// MaxAttempts and RetryDelay bound the reconnect loop: 20 attempts spaced
// two seconds apart before the caller's dialog gives up entirely.
const (
	MaxAttempts = 20
	RetryDelay  = 2 * time.Second
	// ResponseTimeout is the default per-response read timeout applied
	// while a dialog is in progress over a live connection.
	ResponseTimeout = 60 * time.Second
	// configByte is the fixed Registration config byte the controller
	// always registers with.
	configByte = 0xde
	// Port is the fixed TCP port ZVT terminals listen on.
	Port = 22000
)

// FeigConfig carries the controller-level configuration fields threaded
// into the Registration/GetSystemInfo handshake performed on every fresh
// connection.
type FeigConfig struct {
	Password               uint64
	Currency               uint64
	PreAuthorizationAmount int64
	ReadCardTimeout        uint8
	EndOfDayMaxInterval    time.Duration
}

// Config is the connection-level configuration of a reconnecting stream.
type Config struct {
	IPAddress  net.IP
	TerminalID string
	FeigSerial string
	FeigConfig FeigConfig
	// Port overrides the default ZVT port 22000; used by tests to dial a
	// local listener instead of a real terminal.
	Port int
}

func (c Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	return Port
}

// IncorrectDeviceIDError is returned by a connect attempt whose terminal
// answered GetSystemInfo with a device id that doesn't match the
// configured FeigSerial — almost always the sign of a misconfigured IP
// address pointing at the wrong terminal.
var IncorrectDeviceIDError = errors.New("reconnect: incorrect device id")

// State reports whether a Stream currently holds a live connection.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

var (
	reconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zvt_reconnect_attempts_total",
		Help: "Attempts made to (re-)establish the PT connection.",
	})
	connectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zvt_connection_state",
		Help: "1 if the reconnecting stream currently holds a live connection, 0 otherwise.",
	})
)

func init() {
	prometheus.MustRegister(reconnectAttempts, connectionState)
}

// Stream is a reconnecting wrapper around a transport.Stream: it dials,
// performs the connect handshake, and exposes Run to drive one dialog at
// a time across however many reconnects it takes.
type Stream struct {
	mu     sync.Mutex
	config Config
	conn   net.Conn
	inner  *transport.Stream
	state  State
}

// New builds a Stream for config. It does not dial; the first call to Run
// establishes the connection.
func New(config Config) *Stream {
	if config.TerminalID == "" {
		zvtlog.Log.Warning("no terminal id configured, using the 00000000 sentinel")
		config.TerminalID = "00000000"
	}
	return &Stream{config: config}
}

// Config returns the configuration the Stream was built with.
func (s *Stream) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Reconnect replaces the configured IP address and drops any live
// connection, forcing the next Run call to dial afresh.
func (s *Stream) Reconnect(ip net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.IPAddress = ip
	s.drop()
}

func (s *Stream) drop() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.inner = nil
	s.state = StateDisconnected
	connectionState.Set(0)
}

// connect dials the PT, registers, and verifies its device id matches the
// configured serial. The returned transport.Stream is ready for dialog
// use; the caller owns closing conn.
func connect(ctx context.Context, config Config) (*transport.Stream, net.Conn, error) {
	addr := net.JoinHostPort(config.IPAddress.String(), strconv.Itoa(config.port()))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	stream := transport.New(conn)
	currency := config.FeigConfig.Currency
	registration := &packets.Registration{
		Password:   config.FeigConfig.Password,
		ConfigByte: configByte,
		Currency:   &currency,
	}
	events, err := sequence.Registration(ctx, stream, registration)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	for ev := range events {
		if ev.Err != nil {
			conn.Close()
			return nil, nil, ev.Err
		}
		zvtlog.Log.Debugf("reconnect: registered to the terminal: %+v", ev.Command)
	}

	info := &feig.CVendFunctions{Instr: 1}
	events, err = sequence.GetSystemInfo(ctx, stream, info)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	var last packet.Command
	for ev := range events {
		if ev.Err != nil {
			conn.Close()
			return nil, nil, ev.Err
		}
		last = ev.Command
	}

	switch reply := last.(type) {
	case *feig.CVendFunctionsEnhancedSystemInformationCompletion:
		if !strings.EqualFold(reply.DeviceID, config.FeigSerial) {
			conn.Close()
			return nil, nil, fmt.Errorf("%w: expected %s, got %s", IncorrectDeviceIDError, config.FeigSerial, reply.DeviceID)
		}
		return stream, conn, nil
	case *packets.Abort:
		conn.Close()
		return nil, nil, zvterr.NewAborted(reply.Error)
	default:
		conn.Close()
		return nil, nil, zvterr.New(zvterr.IncompleteData)
	}
}

// DialFunc runs one dialog over an established transport.Stream, the same
// shape every function in the sequence package has.
type DialFunc func(ctx context.Context, stream *transport.Stream) (<-chan sequence.Event, error)

// Run drives fn to completion, reconnecting and retrying up to MaxAttempts
// times on any per-frame error or read timeout, using the default
// ResponseTimeout. It returns a channel of the events fn itself produced,
// forwarded as they arrive; the channel closes once fn completes cleanly
// or every attempt is exhausted.
func (s *Stream) Run(ctx context.Context, fn DialFunc) <-chan sequence.Event {
	return s.RunWithTimeout(ctx, ResponseTimeout, fn)
}

// RunWithTimeout is Run with a caller-chosen per-response timeout,
// letting a dialog like ReadCard (whose own wait time is driven by a
// configured read-card timeout rather than the default) use the same
// reconnect/retry machinery.
func (s *Stream) RunWithTimeout(ctx context.Context, timeout time.Duration, fn DialFunc) <-chan sequence.Event {
	out := make(chan sequence.Event, 1)
	go func() {
		defer close(out)
		for attempt := 0; attempt < MaxAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			s.mu.Lock()
			inner := s.inner
			config := s.config
			s.mu.Unlock()

			if inner == nil {
				zvtlog.Log.Warning("reconnect: reconnecting")
				reconnectAttempts.Inc()
				stream, conn, err := connect(ctx, config)
				if err != nil {
					zvtlog.Log.Warningf("reconnect: failed to reconnect: %v", err)
					out <- sequence.Event{Err: err}
					select {
					case <-time.After(RetryDelay):
					case <-ctx.Done():
						return
					}
					continue
				}
				s.mu.Lock()
				s.conn, s.inner, s.state = conn, stream, StateConnected
				s.mu.Unlock()
				connectionState.Set(1)
				inner = stream
			}

			events, err := fn(ctx, inner)
			if err != nil {
				out <- sequence.Event{Err: err}
				s.mu.Lock()
				s.drop()
				s.mu.Unlock()
				continue
			}

			if s.forward(ctx, events, out, timeout) {
				return
			}
			select {
			case <-time.After(RetryDelay):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// RunBlocking is Run's counterpart for dialogs that drive their own
// blocking read/write loop instead of producing an Event channel (the
// firmware transfer is the one example): it reconnects and retries up to
// MaxAttempts times on any error fn returns, same as Run, but simply
// returns fn's own result once it succeeds or every attempt is spent.
func (s *Stream) RunBlocking(ctx context.Context, fn func(ctx context.Context, stream *transport.Stream) error) error {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		inner := s.inner
		config := s.config
		s.mu.Unlock()

		if inner == nil {
			zvtlog.Log.Warning("reconnect: reconnecting")
			reconnectAttempts.Inc()
			stream, conn, err := connect(ctx, config)
			if err != nil {
				lastErr = err
				zvtlog.Log.Warningf("reconnect: failed to reconnect: %v", err)
				select {
				case <-time.After(RetryDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			s.mu.Lock()
			s.conn, s.inner, s.state = conn, stream, StateConnected
			s.mu.Unlock()
			connectionState.Set(1)
			inner = stream
		}

		err := fn(ctx, inner)
		if err == nil {
			return nil
		}
		lastErr = err
		s.mu.Lock()
		s.drop()
		s.mu.Unlock()
		select {
		case <-time.After(RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// forward relays events from a single dialog run to out, racing a
// read-loop goroutine against a timeout goroutine via errgroup — the
// read loop pings the watchdog on every event and returns the dialog's
// own error (if any); the watchdog fires timeout after the last
// ping and cancels the group. It returns true once the dialog finished
// without error (the caller is done and should not retry) and false if
// the connection must be dropped and a fresh attempt started.
func (s *Stream) forward(ctx context.Context, events <-chan sequence.Event, out chan<- sequence.Event, timeout time.Duration) bool {
	g, gctx := errgroup.WithContext(ctx)
	ping := make(chan struct{}, 1)
	done := make(chan struct{})
	var timedOut bool

	g.Go(func() error {
		defer close(done)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				select {
				case ping <- struct{}{}:
				default:
				}
				out <- ev
				if ev.Err != nil {
					return ev.Err
				}
			}
		}
	})

	g.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-ping:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(timeout)
			case <-timer.C:
				timedOut = true
				return context.DeadlineExceeded
			}
		}
	})

	err := g.Wait()
	if err != nil {
		if timedOut {
			zvtlog.Log.Warning("reconnect: timeout waiting for a response")
			out <- sequence.Event{Err: context.DeadlineExceeded}
		}
		s.mu.Lock()
		s.drop()
		s.mu.Unlock()
		return false
	}
	return true
}
