// Package console implements a line-oriented control console on a serial port.
//
// Accepted lines:
//
//	start low|high|manual|leak
//	stop
//	status
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/injector-bench/internal/logic"
	"github.com/sweeney/injector-bench/internal/status"
)

// ErrUnknownCommand is wrapped by every parse failure.
var ErrUnknownCommand = errors.New("unknown command")

// Request is one parsed console line.
type Request struct {
	Command logic.Command
	Status  bool // status query, Command is unset
}

// ParseLine parses a console line. Case and surrounding whitespace are ignored.
func ParseLine(line string) (Request, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	switch fields[0] {
	case "stop":
		if len(fields) != 1 {
			return Request{}, fmt.Errorf("%w: stop takes no arguments", ErrUnknownCommand)
		}
		return Request{Command: logic.Command{Stop: true, Source: "console"}}, nil
	case "status":
		return Request{Status: true}, nil
	case "start":
		if len(fields) != 2 {
			return Request{}, fmt.Errorf("%w: usage: start low|high|manual|leak", ErrUnknownCommand)
		}
		kind, err := logic.ParseProfileKind(fields[1])
		if err != nil {
			return Request{}, fmt.Errorf("%w: %w", ErrUnknownCommand, err)
		}
		return Request{Command: logic.Command{Profile: kind, Source: "console"}}, nil
	}
	return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
}

// StatusLine renders a one-line summary of the snapshot.
func StatusLine(snap status.Snapshot) string {
	sess := snap.Session
	if !sess.Running {
		return "STOPPED"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "RUNNING %s %s ch", sess.Profile, status.FormatCountdown(sess.Countdown))
	for i, en := range sess.Enabled {
		if en {
			fmt.Fprintf(&b, " %d", i)
		}
	}
	return b.String()
}

// StatusSource provides daemon snapshots.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// Console reads requests from a serial line and writes one reply per line.
type Console struct {
	rw       io.ReadWriteCloser
	tracker  StatusSource
	commands chan<- logic.Command
}

// New creates a Console over an already open stream.
func New(rw io.ReadWriteCloser, tracker StatusSource, commands chan<- logic.Command) *Console {
	return &Console{rw: rw, tracker: tracker, commands: commands}
}

// Open opens the serial port at 8N1.
func Open(portPath string, baud int, tracker StatusSource, commands chan<- logic.Command) (*Console, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portPath, mode)
	if err != nil {
		return nil, fmt.Errorf("console: failed to open %s: %w", portPath, err)
	}
	log.Printf("[console] listening on %s at %d baud", portPath, baud)
	return New(port, tracker, commands), nil
}

// Run serves requests until ctx is cancelled or the stream ends.
// Cancelling ctx closes the stream to unblock the pending read.
func (c *Console) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.rw.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(c.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.reply(c.handle(line))
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("console read: %w", err)
	}
	return nil
}

func (c *Console) handle(line string) string {
	req, err := ParseLine(line)
	if err != nil {
		return "error: " + err.Error()
	}
	if req.Status {
		return StatusLine(c.tracker.Snapshot())
	}
	if !req.Command.Stop && c.tracker.Snapshot().Session.Running {
		return "error: " + logic.ErrAlreadyRunning.Error()
	}

	select {
	case c.commands <- req.Command:
		log.Printf("[console] %s", req.Command)
		return "ok " + req.Command.String()
	case <-time.After(time.Second):
		return "error: control loop busy"
	}
}

func (c *Console) reply(msg string) {
	if _, err := io.WriteString(c.rw, msg+"\r\n"); err != nil {
		log.Printf("[console] write: %v", err)
	}
}

// Close closes the underlying port.
func (c *Console) Close() error {
	return c.rw.Close()
}
