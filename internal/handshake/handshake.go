// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package handshake asks a controller on a serial line for its
// firmware parameters.
//
// The exchange is:
//
//	reset (only for boards that reboot on DTR/RTS), wait for boot,
//	write the magic token until anything comes back, then read until
//	"\r\n" or the receive window closes.
//
// Start by
//
//	port, err := handshake.Open("/dev/ttyUSB0", handshake.Arduino, 0)
//	res, err := handshake.Run(ctx, port, handshake.DefaultConfig(handshake.Arduino))
//
// Run always closes the port.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tillitis/gccverify/internal/data"
)

var le = log.New(os.Stderr, "", 0)

// SilenceLogging stops progress output from this package.
func SilenceLogging() {
	le.SetOutput(io.Discard)
}

// Port is what the handshake needs from a serial line.
// go.bug.st/serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	SetReadTimeout(t time.Duration) error
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

var SystemClock Clock = systemClock{}

type Timing struct {
	ResetToggles  int
	ToggleDelay   time.Duration
	SettleDelay   time.Duration
	PollAttempts  int
	PollInterval  time.Duration
	ReceiveWindow time.Duration

	// Upper bound on a single read, so the loops above get to look
	// at the clock.
	ReadTimeout time.Duration
}

var DefaultTiming = Timing{
	ResetToggles:  2,
	ToggleDelay:   250 * time.Millisecond,
	SettleDelay:   1000 * time.Millisecond,
	PollAttempts:  4,
	PollInterval:  250 * time.Millisecond,
	ReceiveWindow: 2000 * time.Millisecond,
	ReadTimeout:   50 * time.Millisecond,
}

type Config struct {
	Token      string
	Terminator string
	Reset      bool
	Timing     Timing
	Clock      Clock
	Verbose    bool
}

func DefaultConfig(p Platform) Config {
	return Config{
		Token:      data.MagicToken,
		Terminator: "\r\n",
		Reset:      p.NeedsReset(),
		Timing:     DefaultTiming,
		Clock:      SystemClock,
	}
}

type State int

const (
	Idle State = iota
	Resetting
	AwaitingAck
	Requesting
	Receiving
	Terminated
)

func (s State) String() string {
	names := [...]string{"idle", "resetting", "awaiting ack", "requesting", "receiving", "terminated"}
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return names[s]
}

type Outcome int

const (
	Success Outcome = iota
	Timeout
	ChannelFailure
)

func (o Outcome) String() string {
	names := [...]string{"success", "timeout", "channel error"}
	if o < 0 || int(o) >= len(names) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return names[o]
}

type Result struct {
	// Payload after framing, ready for parsing.
	Text string
	// Everything that was received.
	Raw     string
	Outcome Outcome
	// State the exchange was in when it ended.
	Last State
	// Set if the port couldn't be closed. Not fatal, but the port may
	// stay busy.
	CloseErr error
}

type handshake struct {
	port  Port
	cfg   Config
	state State
	buf   strings.Builder
}

// Run performs the whole exchange on port and closes it. A timeout
// waiting for the terminator is not an error, whatever arrived is
// returned in the result and left for the parser to judge.
func Run(ctx context.Context, port Port, cfg Config) (Result, error) {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}

	h := handshake{port: port, cfg: cfg, state: Idle}

	res, err := h.run(ctx)
	res.Last = h.state

	if cerr := port.Close(); cerr != nil {
		le.Printf("Warning: could not close serial port. Restart may be required if port remains busy.\n")
		res.CloseErr = ChannelError{op: "close", err: cerr}
	}

	if err != nil {
		res.Outcome = ChannelFailure
		return res, err
	}

	return res, nil
}

func (h *handshake) run(ctx context.Context) (Result, error) {
	var res Result

	if err := h.port.SetReadTimeout(h.cfg.Timing.ReadTimeout); err != nil {
		return res, ChannelError{op: "set read timeout", err: err}
	}

	if h.cfg.Reset {
		if err := h.reset(ctx); err != nil {
			return res, err
		}
	}

	if err := h.request(ctx); err != nil {
		return res, err
	}

	found, err := h.receive(ctx)
	res.Raw = h.buf.String()
	if err != nil {
		return res, err
	}

	le.Printf("Received %d bytes.\n", len(res.Raw))

	res.Text = Frame(res.Raw, h.cfg.Terminator)
	res.Outcome = Success
	if !found {
		res.Outcome = Timeout
	}
	h.state = Terminated

	return res, nil
}

// reset toggles DTR and RTS, which reboots boards with an
// auto-reset circuit, then gives the bootloader time to hand over.
func (h *handshake) reset(ctx context.Context) error {
	h.state = Resetting
	le.Printf("Waiting for boot...\n")

	for i := 0; i < h.cfg.Timing.ResetToggles; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, set := range []func(bool) error{h.port.SetDTR, h.port.SetRTS} {
			if err := set(false); err != nil {
				return ChannelError{op: "reset", err: err}
			}
			if err := set(true); err != nil {
				return ChannelError{op: "reset", err: err}
			}
		}
		h.cfg.Clock.Sleep(h.cfg.Timing.ToggleDelay)
	}

	h.state = AwaitingAck
	h.cfg.Clock.Sleep(h.cfg.Timing.SettleDelay)

	return nil
}

// request writes the token until the controller starts talking. The
// firmware only listens for a short while after boot.
func (h *handshake) request(ctx context.Context) error {
	h.state = Requesting
	le.Printf("Requesting firmware parameters...\n")

	for i := 0; i < h.cfg.Timing.PollAttempts; i++ {
		if _, err := h.port.Write([]byte(h.cfg.Token)); err != nil {
			return ChannelError{op: "write", err: err}
		}

		n, err := h.readFor(ctx, h.cfg.Timing.PollInterval)
		if err != nil {
			return err
		}
		if n > 0 {
			break
		}
	}

	return nil
}

// receive collects bytes until the terminator shows up or the
// receive window closes. It reports whether the terminator was seen.
func (h *handshake) receive(ctx context.Context) (bool, error) {
	h.state = Receiving

	deadline := h.cfg.Clock.Now().Add(h.cfg.Timing.ReceiveWindow)
	for {
		if h.terminated() {
			return true, nil
		}

		if !h.cfg.Clock.Now().Before(deadline) {
			return false, nil
		}

		if _, err := h.readFor(ctx, deadline.Sub(h.cfg.Clock.Now())); err != nil {
			return false, err
		}
	}
}

// readFor reads until some bytes arrive or d has passed, whichever
// comes first.
func (h *handshake) readFor(ctx context.Context, d time.Duration) (int, error) {
	buf := make([]byte, 256)

	deadline := h.cfg.Clock.Now().Add(d)
	for h.cfg.Clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := h.port.Read(buf)
		if n > 0 {
			h.buf.Write(buf[:n])
			if h.cfg.Verbose {
				le.Printf("< %q\n", buf[:n])
			}
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, ChannelError{op: "read", err: err}
		}
	}

	return 0, nil
}

// terminated reports whether a terminator follows the start of the
// payload. Line ends in boot noise don't count.
func (h *handshake) terminated() bool {
	s := h.buf.String()

	start := strings.Index(s, "{")
	return start > -1 && strings.Contains(s[start:], h.cfg.Terminator)
}

// Frame cuts boot noise before the first '{' and anything from the
// terminator on. Text without '{' is returned as is.
func Frame(text string, terminator string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	text = text[start:]

	if end := strings.Index(text, terminator); end > -1 {
		text = text[:end]
	}

	return text
}
