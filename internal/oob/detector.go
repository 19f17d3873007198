// Package oob detects the rz/sz ZMODEM sub-protocol inside an otherwise
// opaque interactive byte stream, without altering the stream.
package oob

import (
	"bytes"
	"strings"
)

// Kind identifies the direction of a detected transfer.
type Kind int

const (
	// Upload — the user typed "rz": a file will be sent from the local
	// machine to the remote side.
	Upload Kind = iota

	// Download — the remote side is about to send a file, either because
	// the user typed "sz <file>" or because a ZMODEM header arrived on
	// the inbound stream.
	Download
)

// String returns a human-readable name for logs.
func (k Kind) String() string {
	switch k {
	case Upload:
		return "upload"
	case Download:
		return "download"
	default:
		return "unknown"
	}
}

// Event describes a single detection. It does not outlive the chunk that
// produced it — the Name field is copied, the offset refers to the chunk.
type Event struct {
	Kind   Kind
	Offset int

	// Name holds the trimmed remainder of an outbound "sz " chunk —
	// the candidate remote file name/arguments. Empty for other events.
	Name string
}

// Byte signatures of the rz/sz protocol family.
var (
	rzCommand    = []byte{0x72, 0x7a, 0x0d}       // "rz\r"
	szPrefix     = []byte{0x73, 0x7a, 0x20}       // "sz "
	zmodemHeader = []byte{0x2a, 0x2a, 0x18, 0x42} // "**\x18B"
)

// Detector scans byte chunks for transfer signatures. Detection is
// non-destructive: the caller still forwards the bytes normally unless a
// helper takes over.
//
// A Detector examines each chunk as a unit. A signature split across two
// reads is not detected — known limitation, kept to match the observed
// protocol convention rather than silently widened.
type Detector struct{}

// NewDetector returns a ready Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// ScanOutbound inspects a chunk the user just typed.
//
// Yields Upload when the first three bytes are exactly "rz\r", and
// Download carrying the trimmed remainder when they are exactly "sz ".
// At most one event per chunk.
func (d *Detector) ScanOutbound(chunk []byte) *Event {
	if len(chunk) >= 3 && bytes.Equal(chunk[:3], rzCommand) {
		return &Event{Kind: Upload, Offset: 0}
	}
	if len(chunk) >= 3 && bytes.Equal(chunk[:3], szPrefix) {
		name := strings.TrimSpace(string(chunk[3:]))
		return &Event{Kind: Download, Offset: 0, Name: name}
	}
	return nil
}

// ScanInbound inspects a chunk just read from the remote side.
//
// Yields Download when the four-byte ZMODEM header "**\x18B" appears at
// any offset — the remote is initiating a send.
func (d *Detector) ScanInbound(chunk []byte) *Event {
	if i := bytes.Index(chunk, zmodemHeader); i >= 0 {
		return &Event{Kind: Download, Offset: i}
	}
	return nil
}
