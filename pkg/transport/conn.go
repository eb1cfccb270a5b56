package transport

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
)

// Conn is a newline-oriented byte stream. The line protocol only sees this
// interface, so it cannot tell a raw TCP stream from a TLS one.
type Conn interface {
	// ReadLine returns the next line including its terminator. A final line
	// without terminator is returned as is. io.EOF means the peer closed the
	// stream and nothing was read.
	ReadLine() ([]byte, error)

	// Write buffers p for sending.
	Write(p []byte) (int, error)

	// Flush sends everything buffered by Write.
	Flush() error

	// Close closes the stream. Safe to call more than once.
	Close() error

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// LocalAddr returns the local address.
	LocalAddr() net.Addr

	// TLSInfo returns the negotiated parameters, or false for plain streams.
	TLSInfo() (TLSInfo, bool)
}

// NewConn wraps an established connection. A *tls.Conn yields the TLS
// variant; anything else the plain one. maxLine bounds a single line,
// terminator included; 0 or less means no limit.
func NewConn(c net.Conn, maxLine int) Conn {
	stream := &lineStream{
		conn:    c,
		reader:  bufio.NewReader(c),
		writer:  bufio.NewWriter(c),
		maxLine: maxLine,
	}
	if tc, ok := c.(*tls.Conn); ok {
		return &tlsConn{lineStream: stream, tls: tc}
	}
	return &plainConn{lineStream: stream}
}

// lineStream holds the framing shared by both variants.
type lineStream struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	maxLine int

	closeOnce sync.Once
	closeErr  error
}

func (s *lineStream) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if s.maxLine > 0 && len(line)+len(chunk) > s.maxLine {
			return nil, ErrLineTooLong
		}
		line = append(line, chunk...)

		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

func (s *lineStream) Write(p []byte) (int, error) {
	return s.writer.Write(p)
}

func (s *lineStream) Flush() error {
	return s.writer.Flush()
}

func (s *lineStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *lineStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *lineStream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// plainConn is a raw TCP stream.
type plainConn struct {
	*lineStream
}

func (c *plainConn) TLSInfo() (TLSInfo, bool) {
	return TLSInfo{}, false
}

// tlsConn is a TLS-wrapped stream.
type tlsConn struct {
	*lineStream
	tls *tls.Conn
}

func (c *tlsConn) TLSInfo() (TLSInfo, bool) {
	return NegotiatedParams(c.tls.ConnectionState())
}

// ConnectionState returns the full TLS state.
func (c *tlsConn) ConnectionState() tls.ConnectionState {
	return c.tls.ConnectionState()
}
