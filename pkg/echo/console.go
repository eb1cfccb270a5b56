package echo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// ConsoleConfig configures a Console.
type ConsoleConfig struct {
	// Prompt shown before each line (default: "> ").
	Prompt string

	// HistoryFile persists input history when set.
	HistoryFile string

	// Stdin and Stdout override the terminal (tests, pipes).
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// Console is a readline-backed LineSource with prompt and history.
type Console struct {
	rl *readline.Instance
}

// NewConsole creates a Console.
func NewConsole(cfg ConsoleConfig) (*Console, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = "> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           cfg.Stdin,
		Stdout:          cfg.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// ReadLine returns the next input line. Ctrl-C yields ErrInterrupted and
// Ctrl-D io.EOF.
func (c *Console) ReadLine() (string, error) {
	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Close restores the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// ReaderSource is a LineSource over any reader, for piped input. Lines
// have no length limit.
type ReaderSource struct {
	reader *bufio.Reader
}

// NewReaderSource creates a ReaderSource.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator. A final line
// without terminator is returned with a nil error.
func (s *ReaderSource) ReadLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var (
	_ LineSource = (*Console)(nil)
	_ LineSource = (*ReaderSource)(nil)
)
