// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bytes"
	"io"
	"sync"
)

// DefaultOutputSize is how much simulator output a handle keeps.
const DefaultOutputSize = 64 * 1024

// outputBuffer keeps the most recent bytes written to it, overwriting
// the oldest once full. It is safe for concurrent use.
type outputBuffer struct {
	mu       sync.Mutex
	data     []byte
	position int
	full     bool
}

func newOutputBuffer(capacity int) *outputBuffer {
	return &outputBuffer{data: make([]byte, capacity)}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := len(p)
	if len(p) >= len(b.data) {
		copy(b.data, p[len(p)-len(b.data):])
		b.position = 0
		b.full = true
		return written, nil
	}
	for len(p) > 0 {
		n := copy(b.data[b.position:], p)
		p = p[n:]
		b.position += n
		if b.position == len(b.data) {
			b.position = 0
			b.full = true
		}
	}
	return written, nil
}

// Bytes returns a copy of the retained output, oldest first.
func (b *outputBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return bytes.Clone(b.data[:b.position])
	}
	out := make([]byte, 0, len(b.data))
	out = append(out, b.data[b.position:]...)
	return append(out, b.data[:b.position]...)
}

// tail returns at most the last n lines of output.
func tail(output []byte, n int) string {
	output = bytes.TrimRight(output, "\n")
	end := len(output)
	for i := len(output) - 1; i >= 0; i-- {
		if output[i] == '\n' {
			n--
			if n == 0 {
				return string(output[i+1 : end])
			}
		}
	}
	return string(output)
}
var _ io.Writer = (*outputBuffer)(nil)
