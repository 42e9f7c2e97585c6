// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gymlink/gymlink/lib/clock"
)

// DefaultProcRoot is the procfs mount used to enumerate processes.
const DefaultProcRoot = "/proc"

const terminatePollInterval = 10 * time.Millisecond

// TerminateResult reports which members of a process tree are known to
// be gone and which were still running when the timeout expired.
type TerminateResult struct {
	Gone  []int
	Alive []int
}

// procStat is the part of /proc/<pid>/stat the supervisor reads.
type procStat struct {
	pid   int
	state byte
	ppid  int
	pgrp  int
}

// readProcStat parses /proc/<pid>/stat. The command name is wrapped in
// parentheses and may itself contain spaces or parentheses, so fields
// are located from the last closing parenthesis.
func readProcStat(procRoot string, pid int) (procStat, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStat{}, err
	}
	return parseProcStat(data)
}

func parseProcStat(data []byte) (procStat, error) {
	open := bytes.IndexByte(data, '(')
	closing := bytes.LastIndexByte(data, ')')
	if open < 0 || closing < open {
		return procStat{}, fmt.Errorf("malformed stat line %q", data)
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(data[:open])))
	if err != nil {
		return procStat{}, fmt.Errorf("malformed pid in stat line: %w", err)
	}
	fields := bytes.Fields(data[closing+1:])
	if len(fields) < 3 || len(fields[0]) != 1 {
		return procStat{}, fmt.Errorf("malformed stat line %q", data)
	}
	ppid, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return procStat{}, fmt.Errorf("malformed ppid in stat line: %w", err)
	}
	pgrp, err := strconv.Atoi(string(fields[2]))
	if err != nil {
		return procStat{}, fmt.Errorf("malformed pgrp in stat line: %w", err)
	}
	return procStat{pid: pid, state: fields[0][0], ppid: ppid, pgrp: pgrp}, nil
}

// listProcesses reads the stat line of every process under procRoot.
// Processes that exit while being read are skipped.
func listProcesses(procRoot string) ([]procStat, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", procRoot, err)
	}
	var processes []procStat
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		stat, err := readProcStat(procRoot, pid)
		if err != nil {
			continue
		}
		processes = append(processes, stat)
	}
	return processes, nil
}

// descendantsFrom returns root followed by every descendant,
// breadth-first. When root leads its own process group, members of the
// group that were reparented away from the tree are included too.
func descendantsFrom(procRoot string, root int) ([]int, error) {
	processes, err := listProcesses(procRoot)
	if err != nil {
		return nil, err
	}
	children := make(map[int][]int)
	rootLeadsGroup := false
	for _, process := range processes {
		children[process.ppid] = append(children[process.ppid], process.pid)
		if process.pid == root && process.pgrp == root {
			rootLeadsGroup = true
		}
	}
	for _, siblings := range children {
		slices.Sort(siblings)
	}

	seen := map[int]bool{root: true}
	order := []int{root}
	for i := 0; i < len(order); i++ {
		for _, child := range children[order[i]] {
			if !seen[child] {
				seen[child] = true
				order = append(order, child)
			}
		}
	}
	if rootLeadsGroup {
		for _, process := range processes {
			if process.pgrp == root && !seen[process.pid] {
				seen[process.pid] = true
				order = append(order, process.pid)
			}
		}
	}
	return order, nil
}

// processGone reports whether pid has exited. Zombies count as gone:
// they hold no resources beyond a process table slot, and reaping them
// is their parent's job.
func processGone(procRoot string, pid int) bool {
	stat, err := readProcStat(procRoot, pid)
	if err != nil {
		return true
	}
	return stat.state == 'Z' || stat.state == 'X'
}

// Running reports whether pid exists under procRoot and has not
// exited. An empty procRoot means DefaultProcRoot.
func Running(procRoot string, pid int) bool {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	return pid > 0 && !processGone(procRoot, pid)
}

// Cmdline returns the argument vector of pid as recorded in
// procRoot/<pid>/cmdline.
func Cmdline(procRoot string, pid int) ([]string, error) {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return nil, err
	}
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return nil, nil
	}
	var args []string
	for _, arg := range bytes.Split(data, []byte{0}) {
		args = append(args, string(arg))
	}
	return args, nil
}

// TerminateTree kills pid and all of its descendants with SIGKILL and
// waits up to timeout for them to be gone.
func TerminateTree(pid int, timeout time.Duration) (TerminateResult, error) {
	return terminateTree(DefaultProcRoot, pid, timeout, clock.Real(), slog.Default())
}

// TerminateTreeIn is TerminateTree with an explicit procfs root and
// logger, for callers that do not hold a Handle.
func TerminateTreeIn(procRoot string, pid int, timeout time.Duration, logger *slog.Logger) (TerminateResult, error) {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return terminateTree(procRoot, pid, timeout, clock.Real(), logger)
}

func terminateTree(procRoot string, pid int, timeout time.Duration, clk clock.Clock, logger *slog.Logger) (TerminateResult, error) {
	if pid <= 0 {
		return TerminateResult{}, fmt.Errorf("invalid pid %d", pid)
	}
	members, err := descendantsFrom(procRoot, pid)
	if err != nil {
		// Without /proc the tree is unknown; fall back to the process
		// group, which covers everything that did not call setsid.
		logger.Warn("process enumeration failed, killing process group", "pid", pid, "error", err)
		members = []int{pid}
		if killErr := unix.Kill(-pid, unix.SIGKILL); killErr != nil && !errors.Is(killErr, unix.ESRCH) {
			logger.Warn("killing process group failed", "pgid", pid, "error", killErr)
		}
	}

	for _, member := range members {
		if err := unix.Kill(member, unix.SIGKILL); err != nil {
			if !errors.Is(err, unix.ESRCH) {
				logger.Warn("killing process failed", "pid", member, "error", err)
			}
			continue
		}
		logger.Debug("sent SIGKILL", "pid", member)
	}

	deadline := clk.Now().Add(timeout)
	remaining := members
	var gone []int
	for {
		var stillAlive []int
		for _, member := range remaining {
			if processGone(procRoot, member) {
				gone = append(gone, member)
			} else {
				stillAlive = append(stillAlive, member)
			}
		}
		remaining = stillAlive
		if len(remaining) == 0 || !clk.Now().Before(deadline) {
			break
		}
		<-clk.After(terminatePollInterval)
	}

	if len(remaining) > 0 {
		logger.Warn("processes survived termination", "pids", remaining, "timeout", timeout)
	}
	return TerminateResult{Gone: gone, Alive: remaining}, nil
}
