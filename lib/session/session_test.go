// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/peer"
	"github.com/gymlink/gymlink/lib/space"
	"github.com/gymlink/gymlink/lib/statefile"
	"github.com/gymlink/gymlink/lib/supervisor"
	"github.com/gymlink/gymlink/lib/testutil"
	"github.com/gymlink/gymlink/lib/trace"
	"github.com/gymlink/gymlink/lib/wire"
)

// fakeProcess runs a simulator goroutine in place of a process.
type fakeProcess struct {
	pid        int
	done       chan struct{}
	cancel     context.CancelFunc
	err        error
	terminated int
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Command() string       { return "/sim/ns3" }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *fakeProcess) ExitCode() int {
	if p.Alive() {
		return -1
	}
	if p.err != nil {
		return 1
	}
	return 0
}

func (p *fakeProcess) Terminate(timeout time.Duration) (supervisor.TerminateResult, error) {
	p.terminated++
	p.cancel()
	select {
	case <-p.done:
		return supervisor.TerminateResult{Gone: []int{p.pid}}, nil
	case <-time.After(timeout):
		return supervisor.TerminateResult{Alive: []int{p.pid}}, nil
	}
}

// fakeLauncher starts a simulator goroutine on the simulator end of a
// pipe for every launch. By default the goroutine is a peer driving a
// MockEnvironment.
type fakeLauncher struct {
	simulator channel.Channel
	newEnv    func(launch int) peer.Environment
	run       func(ctx context.Context, ch channel.Channel) error

	mu        sync.Mutex
	err       error
	processes []*fakeProcess
	envs      []peer.Environment
}

func (l *fakeLauncher) Launch(ctx context.Context, spec supervisor.Spec) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	process := &fakeProcess{pid: 1000 + len(l.processes), done: make(chan struct{}), cancel: cancel}
	run := l.run
	if run == nil {
		env := l.newEnv(len(l.processes))
		l.envs = append(l.envs, env)
		run = func(ctx context.Context, ch channel.Channel) error { return peer.Run(ctx, ch, env) }
	}
	go func() {
		defer close(process.done)
		process.err = run(runCtx, l.simulator)
	}()
	l.processes = append(l.processes, process)
	return process, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processes)
}

func (l *fakeLauncher) process(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processes[i]
}

// recordingChannel keeps a copy of every message the controller sends.
type recordingChannel struct {
	*channel.PipeEnd

	mu   sync.Mutex
	sent [][]byte
}

func (r *recordingChannel) ReleaseSend(n int) error {
	if n >= 0 && n <= len(r.SendBuffer()) {
		r.mu.Lock()
		r.sent = append(r.sent, bytes.Clone(r.SendBuffer()[:n]))
		r.mu.Unlock()
	}
	return r.PipeEnd.ReleaseSend(n)
}

func (r *recordingChannel) messages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingChannel) closeRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, message := range r.sent {
		if bytes.Equal(message, closeRequest) {
			count++
		}
	}
	return count
}

var (
	testActionSpace      = &space.Discrete{N: 3}
	testObservationSpace = &space.Box{Low: []float64{-1, -1}, High: []float64{1, 1}, Shape: []int{2}, Kind: space.Float32}
)

type fixture struct {
	manager  *Manager
	options  Options
	channel  *recordingChannel
	launcher *fakeLauncher
}

// newFixture wires a manager to mock simulators that end every episode
// after maxSteps steps (never when zero).
func newFixture(t *testing.T, maxSteps int) *fixture {
	t.Helper()
	return newFixtureWith(t, 4096, testActionSpace, maxSteps)
}

func newFixtureWith(t *testing.T, capacity int, actionSpace space.Space, maxSteps int) *fixture {
	t.Helper()
	controller, simulator := channel.NewPipe(capacity)
	recording := &recordingChannel{PipeEnd: controller}
	launcher := &fakeLauncher{
		simulator: simulator,
		newEnv: func(launch int) peer.Environment {
			return peer.NewMockEnvironment(actionSpace, testObservationSpace, maxSteps, uint64(launch+1))
		},
	}
	return &fixture{
		manager:  &Manager{},
		channel:  recording,
		launcher: launcher,
		options: Options{
			Spec:             supervisor.Spec{WorkingDir: t.TempDir(), Executable: "ns3", Target: "test"},
			Channel:          recording,
			Launcher:         launcher,
			TerminateTimeout: 5 * time.Second,
		},
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := f.manager.Open(testContext(t), f.options)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestOpenStepClose(t *testing.T) {
	f := newFixture(t, 0)
	s := f.open(t)

	if s.State() != StateReady {
		t.Errorf("State = %s, want ready", s.State())
	}
	if !space.Equal(s.ActionSpace(), testActionSpace) {
		t.Errorf("ActionSpace = %s, want %s", s.ActionSpace(), testActionSpace)
	}
	if !space.Equal(s.ObservationSpace(), testObservationSpace) {
		t.Errorf("ObservationSpace = %s, want %s", s.ObservationSpace(), testObservationSpace)
	}
	if s.Episode() != 1 {
		t.Errorf("Episode = %d, want 1", s.Episode())
	}
	if s.Pid() != 1000 {
		t.Errorf("Pid = %d, want 1000", s.Pid())
	}

	result, err := s.Step(testContext(t), 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if result.Terminated || result.Truncated {
		t.Errorf("Terminated/Truncated = %v/%v, want false/false", result.Terminated, result.Truncated)
	}
	if result.Reward != 1 {
		t.Errorf("Reward = %v, want 1", result.Reward)
	}
	if result.Info["step"] != float64(1) {
		t.Errorf("Info = %v, want step 1", result.Info)
	}
	if !testObservationSpace.Contains(result.Observation.Value()) {
		t.Errorf("observation %v outside %s", result.Observation.Value(), testObservationSpace)
	}
	if result.Observation.Space() != s.ObservationSpace() {
		t.Error("observation not annotated with the observation space")
	}

	if _, err := s.Step(testContext(t), 2); err != nil {
		t.Fatalf("Step: %v", err)
	}
	env := f.launcher.envs[0].(*peer.MockEnvironment)
	if got := env.Actions(); !reflect.DeepEqual(got, []any{1, 2}) {
		t.Errorf("simulator executed %v, want [1 2]", got)
	}

	if err := s.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.channel.closeRequests() != 1 {
		t.Errorf("close requests = %d, want 1", f.channel.closeRequests())
	}
	process := f.launcher.process(0)
	testutil.RequireClosed(t, process.Done(), 5*time.Second, "simulator exit")
	if process.err != nil {
		t.Errorf("simulator returned %v, want a clean stop", process.err)
	}
	if process.terminated != 1 {
		t.Errorf("Terminate called %d times, want 1", process.terminated)
	}
	if f.manager.Active() != nil {
		t.Error("manager still holds the closed session")
	}

	if err := s.Close(testContext(t)); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.Step(testContext(t), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Step after Close = %v, want ErrClosed", err)
	}
	if _, _, err := s.Reset(testContext(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset after Close = %v, want ErrClosed", err)
	}
}

func TestSecondOpenFailsWhileLive(t *testing.T) {
	f := newFixture(t, 0)
	first := f.open(t)

	if _, err := f.manager.Open(testContext(t), f.options); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Open = %v, want ErrSessionActive", err)
	}
	if f.launcher.launches() != 1 {
		t.Errorf("launches = %d, want 1", f.launcher.launches())
	}
	if f.manager.Active() != first {
		t.Error("the failed Open replaced the live session")
	}

	if err := first.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second := f.open(t)
	if second.ID() == first.ID() {
		t.Error("sessions share an id")
	}
	if _, err := f.manager.Open(testContext(t), f.options); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Open while the second session is live = %v, want ErrSessionActive", err)
	}
	// Closing the old session again must not free the slot.
	if err := first.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.manager.Active() != second {
		t.Error("closing a stale session released the live one")
	}
}

func TestConcurrentOpenClaimsOneSlot(t *testing.T) {
	f := newFixture(t, 0)
	const attempts = 4
	results := make(chan error, attempts)
	sessions := make(chan *Session, attempts)
	for range attempts {
		go func() {
			s, err := f.manager.Open(testContext(t), f.options)
			if err == nil {
				sessions <- s
			}
			results <- err
		}()
	}
	succeeded := 0
	for range attempts {
		err := testutil.RequireReceive(t, results, 10*time.Second, "Open result")
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrSessionActive):
			t.Errorf("Open = %v, want nil or ErrSessionActive", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d Opens succeeded, want 1", succeeded)
	}
	s := <-sessions
	if err := s.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestResetWithoutStepIsFree(t *testing.T) {
	f := newFixture(t, 0)
	s := f.open(t)
	initial, _ := s.Observation()
	before := f.channel.Stats()

	first, info, err := s.Reset(testContext(t))
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	second, _, err := s.Reset(testContext(t))
	if err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if first != initial || second != initial {
		t.Error("Reset without a step returned a different observation")
	}
	if !reflect.DeepEqual(first.Value(), second.Value()) {
		t.Errorf("observations differ: %v vs %v", first.Value(), second.Value())
	}
	if info == nil {
		t.Error("Reset returned a nil info mapping")
	}
	if after := f.channel.Stats(); after != before {
		t.Errorf("channel traffic changed from %+v to %+v", before, after)
	}
	if f.launcher.launches() != 1 {
		t.Errorf("launches = %d, want 1", f.launcher.launches())
	}
}

func TestTerminalObservationSendsOneCloseRequest(t *testing.T) {
	f := newFixture(t, 1)
	s := f.open(t)

	result, err := s.Step(testContext(t), 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !result.Terminated || result.Reason != wire.ReasonGameOver {
		t.Errorf("Terminated/Reason = %v/%s, want true/GameOver", result.Terminated, result.Reason)
	}
	if got := f.channel.closeRequests(); got != 1 {
		t.Fatalf("close requests after the terminal step = %d, want 1", got)
	}
	if s.State() != StateGameOver {
		t.Errorf("State = %s, want game-over", s.State())
	}
	if _, err := s.Step(testContext(t), 0); !errors.Is(err, ErrEpisodeOver) {
		t.Errorf("Step after game over = %v, want ErrEpisodeOver", err)
	}
	testutil.RequireClosed(t, f.launcher.process(0).Done(), 5*time.Second, "simulator stops after the close request")

	observation, _, err := s.Reset(testContext(t))
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if observation == nil {
		t.Fatal("Reset returned no observation")
	}
	if got := f.channel.closeRequests(); got != 1 {
		t.Errorf("close requests after Reset = %d, want still 1", got)
	}
	if f.launcher.launches() != 2 {
		t.Errorf("launches = %d, want 2", f.launcher.launches())
	}
	if s.Episode() != 2 || s.State() != StateReady {
		t.Errorf("Episode/State = %d/%s, want 2/ready", s.Episode(), s.State())
	}
	if _, err := s.Step(testContext(t), 2); err != nil {
		t.Fatalf("Step in the second episode: %v", err)
	}
}

func TestResetMidEpisode(t *testing.T) {
	f := newFixture(t, 0)
	s := f.open(t)
	if _, err := s.Step(testContext(t), 1); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if _, _, err := s.Reset(testContext(t)); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := f.channel.closeRequests(); got != 1 {
		t.Errorf("close requests = %d, want 1", got)
	}
	first := f.launcher.process(0)
	testutil.RequireClosed(t, first.Done(), 5*time.Second, "first simulator exit")
	if first.err != nil {
		t.Errorf("first simulator returned %v, want a clean stop", first.err)
	}
	if f.launcher.launches() != 2 {
		t.Errorf("launches = %d, want 2", f.launcher.launches())
	}
	if _, err := s.Step(testContext(t), 1); err != nil {
		t.Fatalf("Step after Reset: %v", err)
	}
}

// crashingEnvironment fails its first Execute, which makes the peer
// return as a crashing simulator would.
type crashingEnvironment struct {
	*peer.MockEnvironment
}

func (crashingEnvironment) Execute(space.Data) error { return errors.New("segmentation fault") }

func TestSimulatorExitMidEpisode(t *testing.T) {
	f := newFixture(t, 0)
	f.launcher.newEnv = func(launch int) peer.Environment {
		mock := peer.NewMockEnvironment(testActionSpace, testObservationSpace, 0, uint64(launch+1))
		if launch == 0 {
			return crashingEnvironment{mock}
		}
		return mock
	}
	s := f.open(t)

	_, err := s.Step(testContext(t), 1)
	if !errors.Is(err, ErrSimulatorExited) {
		t.Fatalf("Step = %v, want ErrSimulatorExited", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State = %s, want failed", s.State())
	}
	if _, err := s.Step(testContext(t), 1); !errors.Is(err, ErrFailed) {
		t.Errorf("Step after the crash = %v, want ErrFailed", err)
	}

	if _, _, err := s.Reset(testContext(t)); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := s.Step(testContext(t), 1); err != nil {
		t.Fatalf("Step after Reset: %v", err)
	}
}

func TestEncodeErrorLeavesSessionUsable(t *testing.T) {
	f := newFixture(t, 0)
	s := f.open(t)
	sent := f.channel.messages()

	_, err := s.Step(testContext(t), 7)
	var encodeErr *space.EncodeError
	if !errors.As(err, &encodeErr) {
		t.Fatalf("Step(7) = %v, want *space.EncodeError", err)
	}
	if f.channel.messages() != sent {
		t.Error("a rejected action reached the channel")
	}
	if s.State() != StateReady {
		t.Errorf("State = %s, want ready", s.State())
	}
	if _, err := s.Step(testContext(t), 2); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestOversizeActionIsProtocolError(t *testing.T) {
	actionSpace := &space.Box{Low: make([]float64, 64), High: make([]float64, 64), Shape: []int{64}, Kind: space.Float32}
	for i := range actionSpace.High {
		actionSpace.High[i] = 1
	}
	f := newFixtureWith(t, 128, actionSpace, 0)
	s := f.open(t)

	_, err := s.Step(testContext(t), make([]float32, 64))
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("Step = %v, want *ProtocolError", err)
	}
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Step = %v, want ErrMessageTooLarge", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State = %s, want failed", s.State())
	}
}

func TestOpenLaunchFailureFreesManager(t *testing.T) {
	f := newFixture(t, 0)
	launchErr := errors.New("no such target")
	f.launcher.err = launchErr

	if _, err := f.manager.Open(testContext(t), f.options); !errors.Is(err, launchErr) {
		t.Fatalf("Open = %v, want the launch error", err)
	}
	if f.manager.Active() != nil {
		t.Fatal("failed Open left the manager occupied")
	}

	f.launcher.err = nil
	f.open(t)
}

func TestOpenMalformedInitIsProtocolError(t *testing.T) {
	f := newFixture(t, 0)
	f.launcher.run = func(ctx context.Context, ch channel.Channel) error {
		if err := channel.Send(ctx, ch, []byte{0x0a, 0x05, 0x01}); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}

	_, err := f.manager.Open(testContext(t), f.options)
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Fatalf("Open = %v, want *ProtocolError", err)
	}
	process := f.launcher.process(0)
	if process.terminated != 1 {
		t.Errorf("Terminate called %d times, want 1", process.terminated)
	}
	if f.manager.Active() != nil {
		t.Error("failed Open left the manager occupied")
	}
}

func TestOpenHonoursContext(t *testing.T) {
	f := newFixture(t, 0)
	// A simulator that completes the handshake but never publishes an
	// observation.
	f.launcher.run = func(ctx context.Context, ch channel.Channel) error {
		init := &wire.SimInitMsg{
			ActionSpace:      space.EncodeSpace(testActionSpace),
			ObservationSpace: space.EncodeSpace(testObservationSpace),
		}
		if err := channel.Send(ctx, ch, init.Marshal()); err != nil {
			return err
		}
		if err := channel.Receive(ctx, ch, func([]byte) error { return nil }); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.manager.Open(ctx, f.options); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Open = %v, want DeadlineExceeded", err)
	}
	if f.launcher.process(0).terminated != 1 {
		t.Error("simulator not terminated after a cancelled Open")
	}
}

func TestStateFileTracksSimulator(t *testing.T) {
	f := newFixture(t, 0)
	f.options.StateFile = statefile.Path(t.TempDir(), "seg0")
	s := f.open(t)

	record, err := statefile.Read(f.options.StateFile)
	if err != nil {
		t.Fatalf("statefile.Read: %v", err)
	}
	if record.SessionID != s.ID() || record.SimulatorPID != 1000 || record.ControllerPID != os.Getpid() {
		t.Errorf("record = %+v", record)
	}
	if record.Command != "/sim/ns3" {
		t.Errorf("Command = %q, want /sim/ns3", record.Command)
	}
	if want := []string{"run", "test"}; !reflect.DeepEqual(record.Args, want) {
		t.Errorf("Args = %v, want %v", record.Args, want)
	}

	if err := s.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(f.options.StateFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("state file not removed by Close: %v", err)
	}
}

func TestOpenHashesExecutable(t *testing.T) {
	f := newFixture(t, 0)
	dir := testutil.FakeSimulator(t, "exit 0")
	f.options.Spec.WorkingDir = dir
	f.options.StateFile = filepath.Join(t.TempDir(), "gymlink.state")
	f.open(t)

	record, err := statefile.Read(f.options.StateFile)
	if err != nil {
		t.Fatalf("statefile.Read: %v", err)
	}
	if len(record.Digest) != 64 {
		t.Errorf("Digest = %q, want a hex BLAKE3 digest", record.Digest)
	}
}

func TestTraceRecordsEpisode(t *testing.T) {
	f := newFixture(t, 2)
	var buffer bytes.Buffer
	writer, err := trace.NewWriter(&buffer, trace.Header{SessionID: "traced"}, trace.CompressionZstd)
	if err != nil {
		t.Fatalf("trace.NewWriter: %v", err)
	}
	f.options.Trace = writer
	f.options.ID = "traced"
	s := f.open(t)

	for _, action := range []int{0, 2} {
		if _, err := s.Step(testContext(t), action); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if err := s.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("trace Close: %v", err)
	}

	reader, err := trace.NewReader(&buffer)
	if err != nil {
		t.Fatalf("trace.NewReader: %v", err)
	}
	defer reader.Close()
	var kinds []trace.Kind
	var last trace.Record
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if record.Kind == trace.KindStep {
			last = record
		}
		kinds = append(kinds, record.Kind)
	}
	want := []trace.Kind{trace.KindReset, trace.KindStep, trace.KindStep, trace.KindClose}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
	if !last.Terminated || last.Reason != "GameOver" || last.Step != 2 || last.Episode != 1 {
		t.Errorf("last step record = %+v", last)
	}
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]any
	}{
		{"", map[string]any{}},
		{"  ", map[string]any{}},
		{`{"throughput": 12.5, "flows": [1, 2]}`, map[string]any{"throughput": 12.5, "flows": []any{1.0, 2.0}}},
		{"{\n  // per-flow stats\n  \"queue\": 3,\n}", map[string]any{"queue": 3.0}},
		{"step 4 done", map[string]any{"info": "step 4 done"}},
		{"[1, 2]", map[string]any{"info": "[1, 2]"}},
		{"null", map[string]any{"info": "null"}},
	}
	for _, test := range tests {
		if got := parseInfo(test.raw); !reflect.DeepEqual(got, test.want) {
			t.Errorf("parseInfo(%q) = %v, want %v", test.raw, got, test.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	f := newFixture(t, 0)
	options := f.options
	options.Channel = nil
	if _, err := f.manager.Open(testContext(t), options); err == nil {
		t.Error("Open without a channel succeeded")
	}
	options = f.options
	options.Launcher = nil
	if _, err := f.manager.Open(testContext(t), options); err == nil {
		t.Error("Open without a launcher succeeded")
	}
	if f.manager.Active() != nil {
		t.Error("invalid options claimed the manager")
	}
}
