package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lineecho/lineecho-go/pkg/log"
	"github.com/lineecho/lineecho-go/pkg/transport"
)

// ErrInterrupted is returned by a LineSource when the user interrupts input
// (Ctrl-C). Interactive treats it as a clean end.
var ErrInterrupted = errors.New("interrupted")

// LineSource supplies local input lines. ReadLine returns io.EOF when input
// is exhausted.
type LineSource interface {
	ReadLine() (string, error)
}

// Interactive drives the client role: one local line out, one response
// line back, until quit, EOF or interrupt.
type Interactive struct {
	// Input supplies the lines to send.
	Input LineSource

	// Output receives the user-facing transcript (default: io.Discard).
	Output io.Writer

	// Logger for operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives line events (optional).
	ProtocolLogger log.Logger
}

// Run exchanges lines over conn. Quit, end of input, an interrupt or the
// server closing the stream all return nil. Cancelling ctx counts as an
// interrupt: Run closes conn to unblock a pending read and returns nil.
// Otherwise Run does not close conn.
func (i *Interactive) Run(ctx context.Context, conn transport.Conn) error {
	out := i.Output
	if out == nil {
		out = io.Discard
	}
	logger := i.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trace := log.OrNoop(i.ProtocolLogger)
	connID := uuid.New().String()
	peer := peerString(conn)

	emit := func(dir log.Direction, size int, text string) {
		trace.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  connID,
			Direction:  dir,
			Layer:      log.LayerProtocol,
			Category:   log.CategoryLine,
			LocalRole:  log.RoleClient,
			RemoteAddr: peer,
			Line:       log.NewLineEvent(size, text),
		})
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	interrupted := func() error {
		fmt.Fprintln(out, "interrupted")
		logger.Info("session interrupted", "peer", peer)
		return nil
	}

	fmt.Fprintln(out, "enter lines to send. type 'quit' to exit.")
	for {
		line, err := i.readInput(ctx)
		if errors.Is(err, ErrInterrupted) {
			return interrupted()
		}
		if errors.Is(err, io.EOF) && line == "" {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read input: %w", err)
		}

		data := Terminate(line)
		if _, werr := conn.Write([]byte(data)); werr != nil {
			if ctx.Err() != nil {
				return interrupted()
			}
			return fmt.Errorf("send: %w", werr)
		}
		if ferr := conn.Flush(); ferr != nil {
			if ctx.Err() != nil {
				return interrupted()
			}
			return fmt.Errorf("send: %w", ferr)
		}
		emit(log.DirectionOut, len(data), DecodeLine([]byte(data)))

		resp, rerr := conn.ReadLine()
		if rerr != nil && ctx.Err() != nil {
			return interrupted()
		}
		if errors.Is(rerr, io.EOF) {
			fmt.Fprintln(out, "server closed connection")
			logger.Info("server closed connection", "peer", peer)
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("receive: %w", rerr)
		}

		text := DecodeLine(resp)
		emit(log.DirectionIn, len(resp), text)
		fmt.Fprintln(out, "response:", text)

		if IsQuit(line) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			// Final unterminated input line has been sent
			return nil
		}
	}
}

type inputResult struct {
	line string
	err  error
}

// readInput returns the next input line, or ErrInterrupted once ctx is
// done. A read still blocked at that point is abandoned.
func (i *Interactive) readInput(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInterrupted
	}
	ch := make(chan inputResult, 1)
	go func() {
		line, err := i.Input.ReadLine()
		ch <- inputResult{line, err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ErrInterrupted
	}
}
