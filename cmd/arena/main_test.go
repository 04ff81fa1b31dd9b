package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/arenalab/arena/internal/replay"
	"github.com/arenalab/arena/internal/supervisor"
)

// chtemp runs the rest of the test from a fresh directory so the match log
// directory and any artifacts land in disposable space.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func TestDryRunExitsZero(t *testing.T) {
	chtemp(t)
	if code := run([]string{"-dry-run", "stopping", "eager"}); code != 0 {
		t.Fatalf("dry run exited %d", code)
	}
}

func TestStandaloneMatchExitsZero(t *testing.T) {
	chtemp(t)
	if code := run([]string{"-standalone", "-rounds", "3", "stopping", "eager"}); code != 0 {
		t.Fatalf("standalone match exited %d", code)
	}
}

func TestBadTeamSpecExitsOne(t *testing.T) {
	chtemp(t)
	if code := run([]string{"-standalone", "-no-broadcast", "zigzag", "eager"}); code != 1 {
		t.Fatalf("bad spec exited %d, want 1", code)
	}
}

func TestInvalidConfigComboExitsOne(t *testing.T) {
	chtemp(t)
	if code := run([]string{"-viewers", "1", "-no-broadcast", "stopping", "eager"}); code != 1 {
		t.Fatalf("viewers without broadcast exited %d, want 1", code)
	}
}

func TestOccupiedBindExitsOne(t *testing.T) {
	chtemp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	addr := fmt.Sprintf("ws://127.0.0.1:%d", ln.Addr().(*net.TCPAddr).Port)
	if code := run([]string{"-standalone", "-publish-to", addr, "stopping", "eager"}); code != 1 {
		t.Fatalf("occupied bind exited %d, want 1", code)
	}
}

func TestUsageErrorsExitTwo(t *testing.T) {
	chtemp(t)
	if code := run([]string{"-standalone", "stopping"}); code != 2 {
		t.Fatalf("one team spec exited %d, want 2", code)
	}
	if code := run([]string{"-definitely-not-a-flag"}); code != 2 {
		t.Fatalf("unknown flag exited %d, want 2", code)
	}
}

func TestRecordWithoutBroadcast(t *testing.T) {
	dir := chtemp(t)
	logPath := filepath.Join(dir, "match.log")
	code := run([]string{"-standalone", "-no-broadcast", "-rounds", "2", "-record", logPath, "stopping", "eager"})
	if code != 0 {
		t.Fatalf("recorded match exited %d", code)
	}
	log, err := replay.Load(logPath)
	if err != nil {
		t.Fatalf("load recorded log: %v", err)
	}
	// Two observed rounds plus the closing match-over frame.
	if log.Len() != 3 {
		t.Fatalf("recorded %d snapshots, want 3", log.Len())
	}
}

func TestInterruptReapsSpawnedPlayers(t *testing.T) {
	dir := chtemp(t)
	pidFile := filepath.Join(dir, "pids")
	argsFile := filepath.Join(dir, "args")
	script := filepath.Join(dir, "fakeplayer")
	body := fmt.Sprintf("#!/bin/sh\necho $$ >> %q\necho \"$@\" >> %q\nexec sleep 60\n", pidFile, argsFile)
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatalf("write player stub: %v", err)
	}

	// Swallow the interrupt here too, in case it lands before run has
	// registered its own handler.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	done := make(chan int, 1)
	go func() {
		done <- run([]string{"-no-broadcast", "-seed", "7", "-player-cmd", script, "stopping", "eager"})
	}()

	// Both players are spawned before the host blocks accepting them; the
	// stub never dials, so the match stays in setup until interrupted.
	var pids []int
	deadline := time.Now().Add(5 * time.Second)
	for len(pids) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("players never spawned (saw %d)", len(pids))
		}
		time.Sleep(20 * time.Millisecond)
		data, err := os.ReadFile(pidFile)
		if err != nil {
			continue
		}
		pids = pids[:0]
		for _, field := range strings.Fields(string(data)) {
			pid, err := strconv.Atoi(field)
			if err != nil {
				t.Fatalf("bad pid line %q", field)
			}
			pids = append(pids, pid)
		}
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("send interrupt: %v", err)
	}
	select {
	case code := <-done:
		if code != 1 {
			t.Fatalf("interrupted match exited %d, want 1", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("interrupted match never exited")
	}

	for _, pid := range pids {
		// Signal 0 probes existence; an error means the process is gone.
		if err := syscall.Kill(pid, 0); err == nil {
			t.Fatalf("player pid %d still alive after interrupt", pid)
		}
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read player args: %v", err)
	}
	for _, flagName := range []string{"-spec", "-dial", "-seed"} {
		if !strings.Contains(string(args), flagName+" ") {
			t.Fatalf("player args missing %s: %s", flagName, args)
		}
	}
}

func TestViewerGraceReapsPromptViewer(t *testing.T) {
	sup := supervisor.New(nil)
	h, err := sup.Spawn("viewer", supervisor.KindViewer, "true")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	start := time.Now()
	viewerGrace(context.Background(), sup, 5*time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("grace took %s for a viewer that exits immediately", elapsed)
	}
	if h.State() != supervisor.StateReaped {
		t.Fatalf("prompt viewer not reaped during grace")
	}
	sup.Shutdown()
}

func TestViewerGraceGivesUpOnLingerer(t *testing.T) {
	sup := supervisor.New(nil)
	h, err := sup.Spawn("viewer", supervisor.KindViewer, "sleep", "60")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	viewerGrace(context.Background(), sup, 100*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown hung after an expired grace")
	}
	if h.State() != supervisor.StateReaped {
		t.Fatalf("lingering viewer not reaped by shutdown")
	}
}
