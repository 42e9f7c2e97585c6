// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gymlink/gymlink/lib/codec"
)

// FormatVersion is written into every record. Read rejects records
// with a different version.
const FormatVersion = 1

// Record describes one supervised simulator.
type Record struct {
	Version int `cbor:"version"`

	// SessionID correlates the record with log lines and traces.
	SessionID string `cbor:"session_id"`

	// ControllerPID is the process that launched the simulator. A
	// record whose controller is still running belongs to a live
	// session and is never reaped.
	ControllerPID int `cbor:"controller_pid"`

	// SimulatorPID is also the simulator's process group id.
	SimulatorPID int `cbor:"simulator_pid"`

	// Command is the absolute executable path. Reap only kills a
	// process whose command line still contains it, which guards
	// against pid reuse.
	Command    string   `cbor:"command"`
	Args       []string `cbor:"args,omitempty"`
	WorkingDir string   `cbor:"working_dir,omitempty"`

	// Digest is the hex BLAKE3 digest of Command at launch, when it
	// could be computed.
	Digest string `cbor:"digest,omitempty"`

	StartedAt time.Time `cbor:"started_at"`
}

// Path returns the state file for a channel segment inside dir. Each
// segment has its own file because at most one controller owns a
// segment at a time.
func Path(dir, segmentName string) string {
	return filepath.Join(dir, "gymlink-"+segmentName+".state")
}

// Write atomically replaces the state file at path with record,
// creating the parent directory when needed. Version is filled in.
func Write(path string, record Record) error {
	record.Version = FormatVersion
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding state record: %w", err)
	}
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	temporary, err := os.CreateTemp(directory, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	temporaryPath := temporary.Name()
	fail := func(step string, err error) error {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("%s temporary state file: %w", step, err)
	}
	if _, err := temporary.Write(data); err != nil {
		return fail("writing", err)
	}
	if err := temporary.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	if parent, err := os.Open(directory); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read parses the state file at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	if record.Version != FormatVersion {
		return Record{}, fmt.Errorf("state file %s has version %d, want %d", path, record.Version, FormatVersion)
	}
	return record, nil
}

// Clear removes the state file. Removing a missing file succeeds.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
