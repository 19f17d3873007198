// Package record writes interactive session output to asciinema v2
// .cast files for later replay.
package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder is the common interface for CastRecorder and NopRecorder.
// The bridge depends on this interface, never on a concrete type.
type Recorder interface {
	io.Writer
	Close() error
}

// NopRecorder discards everything — used when recording is disabled so
// the bridge needs no nil checks.
type NopRecorder struct{}

func (NopRecorder) Write(p []byte) (int, error) { return len(p), nil }
func (NopRecorder) Close() error                { return nil }

// castHeader is the asciinema v2 header (first line, JSON).
type castHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// castEvent is one asciinema v2 event: [time, type, data].
type castEvent [3]interface{}

// CastRecorder appends remote output frames to a .cast file.
// Safe for concurrent use.
type CastRecorder struct {
	mu      sync.Mutex
	f       *os.File
	enc     *json.Encoder
	started time.Time
	closed  bool
}

// NewCast creates dir/<session-id>.cast and writes the header. The
// session ID is generated here and returned via Path.
func NewCast(dir, title string, width, height int) (*CastRecorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("record: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create dir: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+".cast")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: create %s: %w", path, err)
	}

	r := &CastRecorder{
		f:       f,
		enc:     json.NewEncoder(f),
		started: time.Now(),
	}

	h := castHeader{
		Version:   2,
		Width:     width,
		Height:    height,
		Timestamp: r.started.Unix(),
		Title:     title,
		Env:       map[string]string{"TERM": "xterm-256color"},
	}
	if err := r.enc.Encode(h); err != nil {
		f.Close()
		return nil, fmt.Errorf("record: write header: %w", err)
	}
	return r, nil
}

// Write appends p as an output ("o") event with a relative timestamp.
func (r *CastRecorder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("record: recorder already closed")
	}
	elapsed := time.Since(r.started).Seconds()
	if err := r.enc.Encode(castEvent{elapsed, "o", string(p)}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes and closes the cast file. Idempotent.
func (r *CastRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// Path returns the .cast file location.
func (r *CastRecorder) Path() string { return r.f.Name() }
