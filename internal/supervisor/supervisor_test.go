package supervisor

import (
	"syscall"
	"testing"
	"time"
)

func TestSpawnTerminateReap(t *testing.T) {
	sup := New(nil)
	h, err := sup.Spawn("sleeper", KindPlayer, "sleep", "60")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if h.State() != StateRunning {
		t.Fatalf("state = %v, want running", h.State())
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	h.Reap()
	if h.State() != StateReaped {
		t.Fatalf("state = %v, want reaped", h.State())
	}
	if !h.Exited() {
		t.Fatalf("process still running after reap")
	}
}

func TestReapIsIdempotent(t *testing.T) {
	sup := New(nil)
	h, err := sup.Spawn("short", KindPlayer, "true")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	first := h.Reap()
	second := h.Reap()
	if first != second {
		t.Fatalf("second reap diverged: %v vs %v", first, second)
	}
	// Signalling a reaped handle is a no-op, not an error.
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate after reap: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("kill after reap: %v", err)
	}
}

func TestShutdownLeavesNothingRunning(t *testing.T) {
	sup := New(nil)
	var pids []int
	for i := 0; i < 2; i++ {
		h, err := sup.Spawn("viewer", KindViewer, "sleep", "60")
		if err != nil {
			t.Fatalf("spawn viewer: %v", err)
		}
		pids = append(pids, h.cmd.Process.Pid)
	}
	for i := 0; i < 2; i++ {
		h, err := sup.Spawn("player", KindPlayer, "sleep", "60")
		if err != nil {
			t.Fatalf("spawn player: %v", err)
		}
		pids = append(pids, h.cmd.Process.Pid)
	}

	done := make(chan struct{})
	go func() {
		sup.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("shutdown hung")
	}

	for _, h := range sup.Handles() {
		if h.State() != StateReaped {
			t.Fatalf("%s not reaped", h.Name())
		}
	}
	for _, pid := range pids {
		// Signal 0 probes existence; ESRCH means the process is gone.
		if err := syscall.Kill(pid, 0); err == nil {
			t.Fatalf("pid %d still alive after shutdown", pid)
		}
	}
	// A second shutdown must be a harmless no-op.
	sup.Shutdown()
}

func TestShutdownReapsAlreadyExited(t *testing.T) {
	sup := New(nil)
	if _, err := sup.Spawn("oneshot", KindPlayer, "true"); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // let it exit on its own
	sup.Shutdown()
	for _, h := range sup.Handles() {
		if h.State() != StateReaped {
			t.Fatalf("%s not reaped", h.Name())
		}
	}
}
