// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

// Package shm implements lib/channel over a memory-mapped file, by
// default under /dev/shm, so the controller and a separately launched
// simulator can exchange messages without sockets.
//
// The segment is a fixed header followed by two mailboxes of equal
// capacity:
//
//	header   magic "GYMLINK1", capacity, mailbox names
//	mailbox  state (empty|full), length, payload[capacity]   simulator → controller
//	mailbox  state (empty|full), length, payload[capacity]   controller → simulator
//
// Each state word is only ever flipped from empty to full by the
// sender and from full to empty by the receiver, so polling it with
// atomic loads and stores is enough. The controller creates and
// initializes the segment and holds an exclusive advisory lock on the
// lock file for as long as it is open; a second controller fails fast.
package shm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/clock"
)

// DefaultDir is where segments and lock files live unless overridden.
const DefaultDir = "/dev/shm"

const (
	magic          = "GYMLINK1"
	nameSize       = 32
	headerSize     = 128
	mailboxHeader  = 8
	stateEmpty     = 0
	stateFull      = 1
	offsetCapacity = 8
	offsetNames    = 16
)

// Role selects which side of the channel this process is.
type Role int

const (
	// Controller creates the segment and receives on the controller
	// mailbox.
	Controller Role = iota
	// Simulator attaches to an existing segment and receives on the
	// simulator mailbox.
	Simulator
)

func (r Role) String() string {
	switch r {
	case Controller:
		return "controller"
	case Simulator:
		return "simulator"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ErrLocked is returned when another controller holds the segment.
var ErrLocked = errors.New("shm: segment is locked by another controller")

// Options tune a segment. The zero value uses DefaultDir, the real
// clock and a 50µs to 5ms polling backoff.
type Options struct {
	Dir          string
	Clock        clock.Clock
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

// Segment is one end of a shared-memory channel.
type Segment struct {
	role     Role
	config   channel.Config
	path     string
	file     *os.File
	lock     *os.File
	data     []byte
	capacity int
	incoming int
	outgoing int

	clock        clock.Clock
	pollInterval time.Duration
	maxBackoff   time.Duration

	mu        sync.Mutex
	window    int
	closeOnce sync.Once
	closed    chan struct{}
}

const (
	noWindow = iota
	receiveWindow
	sendWindow
)

// Path returns the file that backs the segment for config in dir.
func Path(dir string, config channel.Config) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, config.SegmentName)
}

// Open maps the segment named by config. The controller creates (or
// reinitializes) it; the simulator requires it to exist with a
// matching capacity and mailbox names.
func Open(config channel.Config, role Role, options Options) (*Segment, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.ControllerMailbox) > nameSize || len(config.SimulatorMailbox) > nameSize {
		return nil, fmt.Errorf("shm: mailbox names are limited to %d bytes", nameSize)
	}
	if options.Dir == "" {
		options.Dir = DefaultDir
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = 50 * time.Microsecond
	}
	if options.MaxBackoff <= 0 {
		options.MaxBackoff = 5 * time.Millisecond
	}

	segment := &Segment{
		role:         role,
		config:       config,
		path:         Path(options.Dir, config),
		capacity:     config.BufferSize,
		clock:        options.Clock,
		pollInterval: options.PollInterval,
		maxBackoff:   options.MaxBackoff,
		closed:       make(chan struct{}),
	}
	controllerMailbox := headerSize
	simulatorMailbox := headerSize + mailboxHeader + roundUp8(config.BufferSize)
	size := simulatorMailbox + mailboxHeader + roundUp8(config.BufferSize)

	switch role {
	case Controller:
		segment.incoming, segment.outgoing = controllerMailbox, simulatorMailbox
		if err := segment.create(options.Dir, size); err != nil {
			return nil, err
		}
	case Simulator:
		segment.incoming, segment.outgoing = simulatorMailbox, controllerMailbox
		if err := segment.attach(size); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("shm: unknown role %v", role)
	}
	return segment, nil
}

func roundUp8(n int) int { return (n + 7) &^ 7 }

func (s *Segment) create(dir string, size int) error {
	lockPath := filepath.Join(dir, s.config.LockName)
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", lockPath, err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		return fmt.Errorf("locking %s: %w", lockPath, err)
	}
	s.lock = lock

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		s.unlock()
		return fmt.Errorf("creating segment %s: %w", s.path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		s.unlock()
		return fmt.Errorf("sizing segment %s to %d bytes: %w", s.path, size, err)
	}
	if err := s.mmap(file, size); err != nil {
		s.unlock()
		return err
	}

	clear(s.data)
	copy(s.data, magic)
	binary.LittleEndian.PutUint32(s.data[offsetCapacity:], uint32(s.capacity))
	copy(s.data[offsetNames:offsetNames+nameSize], s.config.ControllerMailbox)
	copy(s.data[offsetNames+nameSize:offsetNames+2*nameSize], s.config.SimulatorMailbox)
	return nil
}

func (s *Segment) attach(size int) error {
	file, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening segment %s: %w", s.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stating segment %s: %w", s.path, err)
	}
	if info.Size() != int64(size) {
		file.Close()
		return fmt.Errorf("segment %s is %d bytes, want %d for buffer size %d", s.path, info.Size(), size, s.capacity)
	}
	if err := s.mmap(file, size); err != nil {
		return err
	}

	if !bytes.Equal(s.data[:len(magic)], []byte(magic)) {
		s.unmap()
		return fmt.Errorf("segment %s has no gymlink header", s.path)
	}
	if capacity := binary.LittleEndian.Uint32(s.data[offsetCapacity:]); int(capacity) != s.capacity {
		s.unmap()
		return fmt.Errorf("segment %s capacity is %d, want %d", s.path, capacity, s.capacity)
	}
	controllerName := string(bytes.TrimRight(s.data[offsetNames:offsetNames+nameSize], "\x00"))
	simulatorName := string(bytes.TrimRight(s.data[offsetNames+nameSize:offsetNames+2*nameSize], "\x00"))
	if controllerName != s.config.ControllerMailbox || simulatorName != s.config.SimulatorMailbox {
		s.unmap()
		return fmt.Errorf("segment %s mailboxes are %q/%q, want %q/%q",
			s.path, controllerName, simulatorName, s.config.ControllerMailbox, s.config.SimulatorMailbox)
	}
	return nil
}

func (s *Segment) mmap(file *os.File, size int) error {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return fmt.Errorf("mapping segment %s: %w", s.path, err)
	}
	s.file = file
	s.data = data
	return nil
}

func (s *Segment) unmap() {
	if s.data != nil {
		unix.Munmap(s.data)
		s.data = nil
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

func (s *Segment) unlock() {
	if s.lock != nil {
		unix.Flock(int(s.lock.Fd()), unix.LOCK_UN)
		s.lock.Close()
		s.lock = nil
	}
}

func (s *Segment) state(mailbox int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[mailbox]))
}

func (s *Segment) length(mailbox int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[mailbox+4]))
}

func (s *Segment) payload(mailbox int) []byte {
	start := mailbox + mailboxHeader
	return s.data[start : start+s.capacity]
}

func (s *Segment) open(window int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return channel.ErrClosed
	default:
	}
	if s.window != noWindow {
		return channel.ErrWindowOpen
	}
	s.window = window
	return nil
}

func (s *Segment) close(window int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window != window {
		return channel.ErrNoWindow
	}
	s.window = noWindow
	return nil
}

// poll waits until the state word of mailbox equals want, backing off
// exponentially between checks.
func (s *Segment) poll(ctx context.Context, mailbox int, want uint32) error {
	delay := s.pollInterval
	for {
		if atomic.LoadUint32(s.state(mailbox)) == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return channel.ErrClosed
		case <-s.clock.After(delay):
		}
		delay = min(delay*2, s.maxBackoff)
	}
}

func (s *Segment) AcquireReceive(ctx context.Context) error {
	if err := s.open(receiveWindow); err != nil {
		return err
	}
	if err := s.poll(ctx, s.incoming, stateFull); err != nil {
		s.close(receiveWindow)
		return err
	}
	return nil
}

func (s *Segment) ReleaseReceive() error {
	if err := s.close(receiveWindow); err != nil {
		return err
	}
	atomic.StoreUint32(s.state(s.incoming), stateEmpty)
	return nil
}

func (s *Segment) AcquireSend(ctx context.Context) error {
	if err := s.open(sendWindow); err != nil {
		return err
	}
	if err := s.poll(ctx, s.outgoing, stateEmpty); err != nil {
		s.close(sendWindow)
		return err
	}
	return nil
}

func (s *Segment) ReleaseSend(n int) error {
	if n < 0 || n > s.capacity {
		return fmt.Errorf("shm: message of %d bytes exceeds capacity %d", n, s.capacity)
	}
	if err := s.close(sendWindow); err != nil {
		return err
	}
	atomic.StoreUint32(s.length(s.outgoing), uint32(n))
	atomic.StoreUint32(s.state(s.outgoing), stateFull)
	return nil
}

// ReceiveBuffer returns the incoming message. The length word is
// clamped to the capacity so a corrupt peer cannot make it overrun.
func (s *Segment) ReceiveBuffer() []byte {
	n := min(int(atomic.LoadUint32(s.length(s.incoming))), s.capacity)
	return s.payload(s.incoming)[:n]
}

func (s *Segment) SendBuffer() []byte { return s.payload(s.outgoing) }

func (s *Segment) Capacity() int { return s.capacity }

// Role reports which side this segment was opened as.
func (s *Segment) Role() Role { return s.role }

// Reset empties both mailboxes. Only the controller may reset.
func (s *Segment) Reset() error {
	if s.role != Controller {
		return errors.New("shm: only the controller can reset a segment")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return channel.ErrClosed
	default:
	}
	s.window = noWindow
	for _, mailbox := range []int{s.incoming, s.outgoing} {
		atomic.StoreUint32(s.length(mailbox), 0)
		atomic.StoreUint32(s.state(mailbox), stateEmpty)
	}
	return nil
}

// Close unmaps the segment. The controller also removes the backing
// file and releases the lock.
func (s *Segment) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unmap()
		if s.role == Controller {
			if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				closeErr = fmt.Errorf("removing segment %s: %w", s.path, err)
			}
			s.unlock()
		}
	})
	return closeErr
}

var (
	_ channel.Channel  = (*Segment)(nil)
	_ channel.Resetter = (*Segment)(nil)
)
