// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gymlink/gymlink/lib/clock"
)

// DefaultLaunchGrace is how long Launch waits before its liveness
// check.
const DefaultLaunchGrace = 500 * time.Millisecond

// outputWaitDelay bounds how long a handle waits for the output pipes
// to drain after the simulator exits, in case a grandchild still holds
// them open.
const outputWaitDelay = time.Second

// Spec describes one simulator launch.
type Spec struct {
	WorkingDir  string
	Executable  string
	Target      string
	Settings    Settings
	Environment map[string]string

	// ShowOutput passes the simulator's stdout and stderr through to
	// ours. Otherwise output is captured and available from
	// Handle.Output.
	ShowOutput bool
}

// Args returns the simulator's arguments after the executable.
func (s Spec) Args() []string {
	return append([]string{"run", s.Target}, s.Settings.Args()...)
}

// Command returns the absolute executable path and its arguments.
func (s Spec) Command() (string, []string, error) {
	if s.Executable == "" {
		return "", nil, errors.New("no simulator executable configured")
	}
	if s.Target == "" {
		return "", nil, errors.New("no simulation target configured")
	}
	workingDir, err := s.workingDir()
	if err != nil {
		return "", nil, err
	}
	return filepath.Join(workingDir, s.Executable), s.Args(), nil
}

func (s Spec) workingDir() (string, error) {
	workingDir, err := filepath.Abs(s.WorkingDir)
	if err != nil {
		return "", fmt.Errorf("resolving working directory %q: %w", s.WorkingDir, err)
	}
	return workingDir, nil
}

// Environ returns base followed by the spec's overrides in key order
// and LD_LIBRARY_PATH. Later entries win when the process reads its
// environment.
func (s Spec) Environ(base []string) ([]string, error) {
	workingDir, err := s.workingDir()
	if err != nil {
		return nil, err
	}
	environ := slices.Clone(base)
	for _, key := range slices.Sorted(maps.Keys(s.Environment)) {
		environ = append(environ, key+"="+s.Environment[key])
	}
	return append(environ, "LD_LIBRARY_PATH="+filepath.Join(workingDir, "build", "lib")), nil
}

// EarlyExitError is returned by Launch when the simulator exits
// before the grace interval elapses.
type EarlyExitError struct {
	Command  string
	ExitCode int
	Output   []byte
}

func (e *EarlyExitError) Error() string {
	message := fmt.Sprintf("simulator %s exited during launch with code %d", e.Command, e.ExitCode)
	if last := tail(e.Output, 10); last != "" {
		message += ":\n" + last
	}
	return message
}

// Options configure a Supervisor. Zero values select defaults.
type Options struct {
	Clock       clock.Clock
	Logger      *slog.Logger
	LaunchGrace time.Duration
	OutputSize  int
	ProcRoot    string
}

// Supervisor starts simulator processes.
type Supervisor struct {
	clock       clock.Clock
	logger      *slog.Logger
	launchGrace time.Duration
	outputSize  int
	procRoot    string
}

// New returns a Supervisor.
func New(options Options) *Supervisor {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.LaunchGrace <= 0 {
		options.LaunchGrace = DefaultLaunchGrace
	}
	if options.OutputSize <= 0 {
		options.OutputSize = DefaultOutputSize
	}
	if options.ProcRoot == "" {
		options.ProcRoot = DefaultProcRoot
	}
	return &Supervisor{
		clock:       options.Clock,
		logger:      options.Logger,
		launchGrace: options.LaunchGrace,
		outputSize:  options.OutputSize,
		procRoot:    options.ProcRoot,
	}
}

// Spawn starts the simulator described by spec without waiting.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, args, err := spec.Command()
	if err != nil {
		return nil, err
	}
	environ, err := spec.Environ(os.Environ())
	if err != nil {
		return nil, err
	}
	workingDir, err := spec.workingDir()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = workingDir
	cmd.Env = environ
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = outputWaitDelay

	handle := &Handle{
		command:  path,
		done:     make(chan struct{}),
		exitCode: -1,
		clock:    s.clock,
		logger:   s.logger,
		procRoot: s.procRoot,
	}
	if spec.ShowOutput {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		handle.output = newOutputBuffer(s.outputSize)
		cmd.Stdout = handle.output
		cmd.Stderr = handle.output
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting simulator %s: %w", path, err)
	}
	handle.pid = cmd.Process.Pid
	handle.logger = s.logger.With("pid", handle.pid)
	handle.logger.Info("simulator started", "command", path, "args", args)

	go handle.wait(cmd)
	return handle, nil
}

// Launch spawns the simulator, waits the grace interval and checks it
// is still running. A simulator that has already exited yields an
// *EarlyExitError carrying its exit code and output.
func (s *Supervisor) Launch(ctx context.Context, spec Spec) (*Handle, error) {
	handle, err := s.Spawn(ctx, spec)
	if err != nil {
		return nil, err
	}

	select {
	case <-s.clock.After(s.launchGrace):
	case <-ctx.Done():
		if result, err := handle.Terminate(s.launchGrace); err != nil {
			handle.logger.Warn("terminating cancelled launch", "error", err)
		} else if len(result.Alive) > 0 {
			handle.logger.Warn("processes survived cancelled launch", "alive", result.Alive)
		}
		return nil, ctx.Err()
	}

	if !handle.Alive() {
		return nil, &EarlyExitError{Command: handle.command, ExitCode: handle.ExitCode(), Output: handle.Output()}
	}
	return handle, nil
}

// Handle is a running (or exited) simulator process.
type Handle struct {
	pid      int
	command  string
	output   *outputBuffer
	done     chan struct{}
	exitCode int
	clock    clock.Clock
	logger   *slog.Logger
	procRoot string
}

func (h *Handle) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	h.exitCode = cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		h.logger.Info("simulator exited", "code", h.exitCode)
	case errors.As(err, &exitErr):
		h.logger.Info("simulator exited", "code", h.exitCode, "status", exitErr.String())
	default:
		h.logger.Warn("waiting for simulator", "error", err)
	}
	close(h.done)
}

// Pid returns the simulator's process id, which is also its process
// group id.
func (h *Handle) Pid() int { return h.pid }

// Command returns the executable path.
func (h *Handle) Command() string { return h.command }

// Alive reports whether the process is still running. It never
// blocks. A nil handle is not alive.
func (h *Handle) Alive() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode returns the exit code, or -1 while the process runs or if
// it was killed by a signal.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Output returns the captured stdout and stderr, or nil when output
// was shown.
func (h *Handle) Output() []byte {
	if h.output == nil {
		return nil
	}
	return h.output.Bytes()
}

// Terminate kills the process and every descendant, then waits up to
// timeout for them to be gone and for the process to be reaped.
// Terminating an exited process succeeds with nothing left alive; any
// members still in its process group are killed.
func (h *Handle) Terminate(timeout time.Duration) (TerminateResult, error) {
	if h == nil {
		return TerminateResult{}, nil
	}
	if !h.Alive() {
		h.killGroup()
		return TerminateResult{}, nil
	}
	start := h.clock.Now()
	result, err := terminateTree(h.procRoot, h.pid, timeout, h.clock, h.logger)
	if err != nil {
		return result, err
	}
	remaining := timeout - h.clock.Now().Sub(start)
	select {
	case <-h.done:
	case <-h.clock.After(remaining):
		h.logger.Warn("simulator not reaped after termination", "timeout", timeout)
	}
	h.logger.Info("simulator terminated", "gone", len(result.Gone), "alive", len(result.Alive))
	return result, nil
}

// killGroup kills whatever is left in the process group after the
// root has exited, such as a scenario the launcher script forked.
func (h *Handle) killGroup() {
	err := unix.Kill(-h.pid, unix.SIGKILL)
	switch {
	case err == nil:
		h.logger.Info("killed processes left in the simulator's process group")
	case !errors.Is(err, unix.ESRCH):
		h.logger.Warn("killing process group failed", "pgid", h.pid, "error", err)
	}
}

// OutputTail returns the last n lines of captured output.
func (h *Handle) OutputTail(n int) string { return tail(h.Output(), n) }

// String identifies the handle in logs.
func (h *Handle) String() string {
	return fmt.Sprintf("%s[%d]", filepath.Base(h.command), h.pid)
}
