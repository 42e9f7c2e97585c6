// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gymlink/gymlink/lib/testutil"
)

func newTestSupervisor() *Supervisor {
	return New(Options{LaunchGrace: 100 * time.Millisecond})
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	testutil.RequireEventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, "waiting for %s", path)
}

func TestSettingsArgsKeepOrder(t *testing.T) {
	var settings Settings
	settings.Set("simTime", "10")
	settings.Set("envStepTime", "0.1")
	settings.Set("seed", "7")
	settings.Set("simTime", "20")

	want := []string{"--simTime=20", "--envStepTime=0.1", "--seed=7"}
	if got := settings.Args(); !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %v, want %v", got, want)
	}
}

func TestSettingsYAMLKeepsDocumentOrder(t *testing.T) {
	document := "zeta: 1\nalpha: two\nmid: 0.5\n"
	var settings Settings
	if err := yaml.Unmarshal([]byte(document), &settings); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Settings{{"zeta", "1"}, {"alpha", "two"}, {"mid", "0.5"}}
	if !reflect.DeepEqual(settings, want) {
		t.Errorf("settings = %v, want %v", settings, want)
	}

	encoded, err := yaml.Marshal(settings)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(encoded) != document {
		t.Errorf("Marshal = %q, want %q", encoded, document)
	}

	if err := yaml.Unmarshal([]byte("nested: {a: 1}\n"), &settings); err == nil {
		t.Error("Unmarshal accepted a non-scalar setting")
	}
}

func TestLaunchCommandLine(t *testing.T) {
	dir := testutil.FakeSimulator(t, "exec sleep 60")
	settings := Settings{{"simTime", "10"}, {"stepTime", "0.5"}, {"seed", "3"}}

	handle, err := newTestSupervisor().Launch(context.Background(), Spec{
		WorkingDir: dir,
		Executable: "ns3",
		Target:     "opengym",
		Settings:   settings,
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer handle.Terminate(5 * time.Second)

	waitForFile(t, filepath.Join(dir, "env.txt"))
	args := readLines(t, filepath.Join(dir, "args.txt"))
	want := []string{"run", "opengym", "--simTime=10", "--stepTime=0.5", "--seed=3"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
	if got := readLines(t, filepath.Join(dir, "env.txt")); got[0] != filepath.Join(dir, "build", "lib") {
		t.Errorf("LD_LIBRARY_PATH = %q, want %q", got[0], filepath.Join(dir, "build", "lib"))
	}
	if !handle.Alive() {
		t.Error("Alive = false after a successful launch")
	}
}

func TestSpecEnvironOverridesWin(t *testing.T) {
	spec := Spec{WorkingDir: "/sim", Environment: map[string]string{"NS_LOG": "debug", "HOME": "/override"}}
	environ, err := spec.Environ([]string{"HOME=/home/user", "PATH=/bin"})
	if err != nil {
		t.Fatalf("Environ: %v", err)
	}
	want := []string{"HOME=/home/user", "PATH=/bin", "HOME=/override", "NS_LOG=debug", "LD_LIBRARY_PATH=/sim/build/lib"}
	if !reflect.DeepEqual(environ, want) {
		t.Errorf("Environ = %v, want %v", environ, want)
	}
}

func TestLaunchEarlyExit(t *testing.T) {
	dir := testutil.FakeSimulator(t, `echo "no such program: $2" >&2
exit 3`)

	start := time.Now()
	_, err := New(Options{LaunchGrace: time.Second}).Launch(context.Background(), Spec{
		WorkingDir: dir,
		Executable: "ns3",
		Target:     "does-not-exist",
	})
	var early *EarlyExitError
	if !errors.As(err, &early) {
		t.Fatalf("Launch error = %v, want *EarlyExitError", err)
	}
	if early.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", early.ExitCode)
	}
	if !strings.Contains(err.Error(), "no such program: does-not-exist") {
		t.Errorf("error %q does not include the simulator's output", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Launch took %v", elapsed)
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	_, err := newTestSupervisor().Launch(context.Background(), Spec{
		WorkingDir: t.TempDir(),
		Executable: "ns3",
		Target:     "opengym",
	})
	if err == nil {
		t.Fatal("Launch succeeded without an executable")
	}
}

func TestLaunchCancelled(t *testing.T) {
	dir := testutil.FakeSimulator(t, "exec sleep 60")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestSupervisor().Launch(ctx, Spec{WorkingDir: dir, Executable: "ns3", Target: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Launch = %v, want context.Canceled", err)
	}
}

func TestTerminateKillsDescendants(t *testing.T) {
	// The simulator forks a grandchild that records its pid, then
	// waits on it.
	dir := testutil.FakeSimulator(t, `sleep 60 &
echo $! > "$(dirname "$0")/child.pid"
wait`)

	handle, err := newTestSupervisor().Launch(context.Background(), Spec{WorkingDir: dir, Executable: "ns3", Target: "x"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	child := readPidFile(t, filepath.Join(dir, "child.pid"))

	members, err := descendantsFrom(DefaultProcRoot, handle.Pid())
	if err != nil {
		t.Fatalf("descendantsFrom: %v", err)
	}
	if members[0] != handle.Pid() {
		t.Errorf("members[0] = %d, want root %d", members[0], handle.Pid())
	}
	found := false
	for _, member := range members {
		if member == child {
			found = true
		}
	}
	if !found {
		t.Errorf("grandchild %d not among %v", child, members)
	}

	result, err := handle.Terminate(5 * time.Second)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if len(result.Alive) != 0 {
		t.Errorf("Alive = %v, want none", result.Alive)
	}
	if !processGone(DefaultProcRoot, child) {
		t.Errorf("grandchild %d survived", child)
	}
	testutil.RequireClosed(t, handle.Done(), 5*time.Second, "simulator reaped")
	if handle.Alive() {
		t.Error("Alive = true after Terminate")
	}
}

func TestTerminateExitedProcess(t *testing.T) {
	dir := testutil.FakeSimulator(t, "exit 0")
	handle, err := New(Options{}).Spawn(context.Background(), Spec{WorkingDir: dir, Executable: "ns3", Target: "x"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	testutil.RequireClosed(t, handle.Done(), 5*time.Second, "simulator exit")

	result, err := handle.Terminate(time.Second)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if len(result.Alive) != 0 {
		t.Errorf("Alive = %v, want empty", result.Alive)
	}
	if handle.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", handle.ExitCode())
	}
}

func TestNilHandleIsNotAlive(t *testing.T) {
	var handle *Handle
	if handle.Alive() {
		t.Error("nil handle reports alive")
	}
}

func TestDescendantsFromFakeProc(t *testing.T) {
	procRoot := t.TempDir()
	write := func(pid int, stat string) {
		dir := filepath.Join(procRoot, strconv.Itoa(pid))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(1, "1 (init) S 0 1 1 0")
	write(100, "100 (ns3) S 1 100 100 0")
	write(101, "101 (worker (a)) S 100 100 100 0")
	write(102, "102 (worker b) S 100 100 100 0")
	write(103, "103 (helper) Z 101 100 100 0")
	write(200, "200 (orphan) S 1 100 100 0")
	write(300, "300 (unrelated) S 1 300 300 0")

	members, err := descendantsFrom(procRoot, 100)
	if err != nil {
		t.Fatalf("descendantsFrom: %v", err)
	}
	want := []int{100, 101, 102, 103, 200}
	if !reflect.DeepEqual(members, want) {
		t.Errorf("members = %v, want %v", members, want)
	}
	if !processGone(procRoot, 103) {
		t.Error("zombie 103 not reported gone")
	}
	if processGone(procRoot, 101) {
		t.Error("sleeping 101 reported gone")
	}
	if !processGone(procRoot, 999) {
		t.Error("absent 999 not reported gone")
	}
}

func TestOutputBufferKeepsTail(t *testing.T) {
	buffer := newOutputBuffer(8)
	buffer.Write([]byte("abc"))
	if got := string(buffer.Bytes()); got != "abc" {
		t.Errorf("Bytes = %q, want %q", got, "abc")
	}
	buffer.Write([]byte("defghij"))
	if got := string(buffer.Bytes()); got != "cdefghij" {
		t.Errorf("Bytes = %q, want %q", got, "cdefghij")
	}
	buffer.Write([]byte("0123456789"))
	if got := string(buffer.Bytes()); got != "23456789" {
		t.Errorf("Bytes = %q, want %q", got, "23456789")
	}

	if got := tail([]byte("one\ntwo\nthree\n"), 2); got != "two\nthree" {
		t.Errorf("tail = %q, want %q", got, "two\nthree")
	}
}

func TestRunningAndCmdline(t *testing.T) {
	procRoot := t.TempDir()
	dir := filepath.Join(procRoot, "100")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte("100 (sh) S 1 100 100 0"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte("/bin/sh\x00/sim/ns3\x00run\x00opengym\x00"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !Running(procRoot, 100) {
		t.Error("Running(100) = false")
	}
	if Running(procRoot, 101) {
		t.Error("Running(101) = true for an absent process")
	}
	if Running(procRoot, 0) {
		t.Error("Running(0) = true")
	}

	args, err := Cmdline(procRoot, 100)
	if err != nil {
		t.Fatalf("Cmdline: %v", err)
	}
	want := []string{"/bin/sh", "/sim/ns3", "run", "opengym"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("Cmdline = %v, want %v", args, want)
	}
}

func readPidFile(t *testing.T, path string) int {
	t.Helper()
	testutil.RequireEventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.HasSuffix(string(data), "\n")
	}, 5*time.Second, "waiting for %s", path)
	pid, err := strconv.Atoi(readLines(t, path)[0])
	if err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	return pid
}

func TestTerminateExitedRootKillsProcessGroup(t *testing.T) {
	// The launcher forks the scenario and exits without waiting for it,
	// leaving the scenario in the simulator's process group.
	dir := testutil.FakeSimulator(t, `sleep 60 &
echo $! > "$(dirname "$0")/child.pid"
exit 0`)
	handle, err := New(Options{}).Spawn(context.Background(), Spec{WorkingDir: dir, Executable: "ns3", Target: "x"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	child := readPidFile(t, filepath.Join(dir, "child.pid"))
	testutil.RequireClosed(t, handle.Done(), 10*time.Second, "launcher exit")
	if processGone(DefaultProcRoot, child) {
		t.Fatalf("scenario %d exited on its own", child)
	}

	result, err := handle.Terminate(time.Second)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if len(result.Alive) != 0 {
		t.Errorf("Alive = %v, want empty", result.Alive)
	}
	testutil.RequireEventually(t, func() bool { return processGone(DefaultProcRoot, child) }, 5*time.Second,
		"scenario %d still running after Terminate", child)
}

func TestLaunchCancelledDuringGraceTerminates(t *testing.T) {
	dir := testutil.FakeSimulator(t, `echo $$ > "$(dirname "$0")/root.pid"
exec sleep 60`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() {
		_, err := New(Options{LaunchGrace: time.Minute}).Launch(ctx, Spec{WorkingDir: dir, Executable: "ns3", Target: "x"})
		result <- err
	}()
	pid := readPidFile(t, filepath.Join(dir, "root.pid"))
	cancel()

	err := testutil.RequireReceive(t, result, 10*time.Second, "Launch did not return after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Launch = %v, want context.Canceled", err)
	}
	testutil.RequireEventually(t, func() bool { return processGone(DefaultProcRoot, pid) }, 5*time.Second,
		"simulator %d still running after a cancelled launch", pid)
}
