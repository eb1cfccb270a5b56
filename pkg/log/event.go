package log

import (
	"time"
	"unicode/utf8"
)

// MaxTracedText caps the line text stored in a LineEvent.
const MaxTracedText = 1024

// Event is one trace record. Exactly one payload pointer is set.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the connection (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction of the line, for line events.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the payload.
	Category Category `cbor:"5,keyasint"`

	// LocalRole is the role of the process that recorded the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	Line        *LineEvent        `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Handshake   *HandshakeEvent   `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates line flow relative to the local endpoint.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport covers sockets and TLS.
	LayerTransport Layer = 0
	// LayerProtocol covers the line-echo exchange.
	LayerProtocol Layer = 1
)

func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event payload.
type Category uint8

const (
	CategoryLine      Category = 0
	CategoryState     Category = 1
	CategoryHandshake Category = 2
	CategoryError     Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryLine:
		return "LINE"
	case CategoryState:
		return "STATE"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the local endpoint role.
type Role uint8

const (
	RoleServer Role = 0
	RoleClient Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// LineEvent captures one protocol line.
type LineEvent struct {
	// Size is the raw line size in bytes, terminator included.
	Size int `cbor:"1,keyasint"`

	// Text is the decoded line without terminator, possibly truncated.
	Text string `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Text was cut at MaxTracedText.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewLineEvent builds a LineEvent, truncating text on a rune boundary.
func NewLineEvent(size int, text string) *LineEvent {
	ev := &LineEvent{Size: size, Text: text}
	if len(text) > MaxTracedText {
		cut := MaxTracedText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		ev.Text = text[:cut]
		ev.Truncated = true
	}
	return ev
}

// StateChangeEvent captures listener, connection and session transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityListener   StateEntity = 0
	StateEntityConnection StateEntity = 1
	StateEntitySession    StateEntity = 2
)

func (s StateEntity) String() string {
	switch s {
	case StateEntityListener:
		return "LISTENER"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// HandshakeEvent captures the outcome of a TLS handshake.
type HandshakeEvent struct {
	Version          string `cbor:"1,keyasint,omitempty"`
	CipherSuite      string `cbor:"2,keyasint,omitempty"`
	KeyBits          int    `cbor:"3,keyasint,omitempty"`
	ServerName       string `cbor:"4,keyasint,omitempty"`
	PeerCertificates int    `cbor:"5,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
