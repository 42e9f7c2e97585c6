// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gymlink/gymlink/lib/codec"
)

// FormatVersion is the preamble version written by this package.
const FormatVersion = 1

var magic = [8]byte{'G', 'Y', 'M', 'T', 'R', 'A', 'C', 'E'}

// Header describes the session a trace belongs to.
type Header struct {
	SessionID        string    `cbor:"session_id"`
	CreatedAt        time.Time `cbor:"created_at"`
	Target           string    `cbor:"target,omitempty"`
	Command          string    `cbor:"command,omitempty"`
	Digest           string    `cbor:"digest,omitempty"`
	ActionSpace      string    `cbor:"action_space,omitempty"`
	ObservationSpace string    `cbor:"observation_space,omitempty"`
}

// Kind distinguishes trace records.
type Kind string

const (
	// KindReset is the first observation of an episode.
	KindReset Kind = "reset"
	// KindStep is one action and the observation that followed it.
	KindStep Kind = "step"
	// KindClose marks the end of the session.
	KindClose Kind = "close"
)

// Record is one event of a session. Action and Observation hold the
// native values of their spaces; after a round trip through a trace
// they decode as generic CBOR values ([]any, uint64, float64 and so
// on).
type Record struct {
	Kind        Kind           `cbor:"kind"`
	Episode     int            `cbor:"episode"`
	Step        int            `cbor:"step"`
	Time        time.Time      `cbor:"time"`
	Action      any            `cbor:"action,omitempty"`
	Observation any            `cbor:"observation,omitempty"`
	Reward      float32        `cbor:"reward"`
	Terminated  bool           `cbor:"terminated,omitempty"`
	Reason      string         `cbor:"reason,omitempty"`
	Info        map[string]any `cbor:"info,omitempty"`
}

// Writer appends records to a trace. It is safe for concurrent use.
type Writer struct {
	mu         sync.Mutex
	file       *os.File
	buffered   *bufio.Writer
	compressor flushWriteCloser
	encoder    *codec.Encoder
	records    int
	closed     bool
}

// Create creates (or truncates) the trace file at path.
func Create(path string, header Header, compression Compression) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating trace: %w", err)
	}
	writer, err := newWriter(file, header, compression)
	if err != nil {
		file.Close()
		return nil, err
	}
	writer.file = file
	return writer, nil
}

// NewWriter writes a trace to w. Closing the Writer does not close w.
func NewWriter(w io.Writer, header Header, compression Compression) (*Writer, error) {
	return newWriter(w, header, compression)
}

func newWriter(w io.Writer, header Header, compression Compression) (*Writer, error) {
	buffered := bufio.NewWriter(w)
	preamble := append(magic[:], FormatVersion, byte(compression))
	if _, err := buffered.Write(preamble); err != nil {
		return nil, fmt.Errorf("writing trace preamble: %w", err)
	}
	compressor, err := newCompressor(buffered, compression)
	if err != nil {
		return nil, err
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now()
	}
	writer := &Writer{
		buffered:   buffered,
		compressor: compressor,
		encoder:    codec.NewEncoder(compressor),
	}
	if err := writer.encoder.Encode(header); err != nil {
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	return writer, nil
}

// Write appends record.
func (w *Writer) Write(record Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("trace writer is closed")
	}
	if record.Time.IsZero() {
		record.Time = time.Now()
	}
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("writing trace record: %w", err)
	}
	w.records++
	return nil
}

// Flush pushes buffered records to the underlying file, ending the
// current compressed block.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if err := w.compressor.Flush(); err != nil {
		return fmt.Errorf("flushing trace compressor: %w", err)
	}
	if err := w.buffered.Flush(); err != nil {
		return fmt.Errorf("flushing trace: %w", err)
	}
	return nil
}

// Records returns how many records have been written.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Close ends the compressed stream and closes the file opened by
// Create. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.compressor.Close()
	if flushErr := w.buffered.Flush(); err == nil {
		err = flushErr
	}
	if w.file != nil {
		if closeErr := w.file.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return fmt.Errorf("closing trace: %w", err)
	}
	return nil
}

// Reader reads a trace written by Writer.
type Reader struct {
	header      Header
	compression Compression
	decoder     *codec.Decoder
	release     func()
	file        *os.File
}

// Open opens the trace file at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading trace %s: %w", path, err)
	}
	reader.file = file
	return reader, nil
}

// NewReader reads the preamble and header from r.
func NewReader(r io.Reader) (*Reader, error) {
	buffered := bufio.NewReader(r)
	var preamble [len(magic) + 2]byte
	if _, err := io.ReadFull(buffered, preamble[:]); err != nil {
		return nil, fmt.Errorf("reading trace preamble: %w", err)
	}
	if !bytes.Equal(preamble[:len(magic)], magic[:]) {
		return nil, errors.New("not a gymlink trace")
	}
	if version := preamble[len(magic)]; version != FormatVersion {
		return nil, fmt.Errorf("trace format version %d, want %d", version, FormatVersion)
	}
	compression := Compression(preamble[len(magic)+1])
	stream, release, err := newDecompressor(buffered, compression)
	if err != nil {
		return nil, err
	}
	reader := &Reader{
		compression: compression,
		decoder:     codec.NewDecoder(stream),
		release:     release,
	}
	if err := reader.decoder.Decode(&reader.header); err != nil {
		release()
		return nil, fmt.Errorf("reading trace header: %w", err)
	}
	return reader, nil
}

// Header returns the trace header.
func (r *Reader) Header() Header { return r.header }

// Compression returns the stream compression named in the preamble.
func (r *Reader) Compression() Compression { return r.compression }

// Next returns the next record, or io.EOF after the last one. A trace
// cut short by a crash ends with io.ErrUnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Close releases the decompressor and closes the file opened by Open.
func (r *Reader) Close() error {
	r.release()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
