package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arenalab/arena/internal/broadcast"
)

type collectSink struct {
	snaps []broadcast.Snapshot
}

func (c *collectSink) Publish(s broadcast.Snapshot) error {
	c.snaps = append(c.snaps, s)
	return nil
}

func sampleSnapshots(n int) []broadcast.Snapshot {
	snaps := make([]broadcast.Snapshot, 0, n+1)
	for i := 0; i < n; i++ {
		payload, _ := json.Marshal(map[string]int{"round": i, "score": i * 2})
		snaps = append(snaps, broadcast.Snapshot{
			Action:  broadcast.ActionObserve,
			Round:   i,
			Payload: payload,
		})
	}
	snaps = append(snaps, broadcast.Snapshot{
		Action: broadcast.ActionMatchOver,
		Round:  n,
	})
	return snaps
}

func writeLog(t *testing.T, snaps []broadcast.Snapshot) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "match.log")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	for _, s := range snaps {
		frame, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := rec.Append(frame); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close recorder: %v", err)
	}
	return path
}

func TestRoundTrip(t *testing.T) {
	want := sampleSnapshots(10)
	path := writeLog(t, want)

	log, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if log.Len() != len(want) {
		t.Fatalf("decoded %d snapshots, want %d", log.Len(), len(want))
	}
	sink := &collectSink{}
	if err := Run(log, sink); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, got := range sink.snaps {
		if got.Action != want[i].Action || got.Round != want[i].Round {
			t.Fatalf("frame %d: got %s/%d, want %s/%d",
				i, got.Action, got.Round, want[i].Action, want[i].Round)
		}
		if !bytes.Equal(got.Payload, want[i].Payload) {
			t.Fatalf("frame %d payload diverged: %s vs %s", i, got.Payload, want[i].Payload)
		}
	}
}

func TestRunIsSingleUse(t *testing.T) {
	path := writeLog(t, sampleSnapshots(2))
	log, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Run(log, &collectSink{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Run(log, &collectSink{}); !errors.Is(err, ErrConsumed) {
		t.Fatalf("second run = %v, want ErrConsumed", err)
	}
	// Reloading starts fresh.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := Run(reloaded, &collectSink{}); err != nil {
		t.Fatalf("run after reload: %v", err)
	}
}

func TestEmptyFramesSkipped(t *testing.T) {
	frame, _ := json.Marshal(broadcast.Snapshot{Action: broadcast.ActionObserve, Round: 0})
	data := append([]byte{Sentinel}, frame...)
	data = append(data, Sentinel, Sentinel) // adjacent sentinels and a trailing one
	path := filepath.Join(t.TempDir(), "gaps.log")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	log, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if log.Len() != 1 {
		t.Fatalf("decoded %d snapshots, want 1", log.Len())
	}
}

func TestUnterminatedFinalFrame(t *testing.T) {
	a, _ := json.Marshal(broadcast.Snapshot{Action: broadcast.ActionObserve, Round: 0})
	b, _ := json.Marshal(broadcast.Snapshot{Action: broadcast.ActionObserve, Round: 1})
	data := append(append(a, Sentinel), b...) // no trailing sentinel
	path := filepath.Join(t.TempDir(), "tail.log")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	log, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("decoded %d snapshots, want 2", log.Len())
	}
}

func TestCorruptedFrameAbortsWholeLoad(t *testing.T) {
	snaps := sampleSnapshots(5)
	path := writeLog(t, snaps)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Inject the sentinel inside the third frame, splitting it into two
	// undecodable halves.
	frames := bytes.Split(data, []byte{Sentinel})
	mid := len(frames[2]) / 2
	frames[2] = append(append(append([]byte{}, frames[2][:mid]...), Sentinel), frames[2][mid:]...)
	if err := os.WriteFile(path, bytes.Join(frames, []byte{Sentinel}), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	_, err = Load(path)
	if err == nil {
		t.Fatalf("corrupted log loaded")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
	if decodeErr.Frame != 2 {
		t.Fatalf("bad frame index %d, want 2", decodeErr.Frame)
	}
}

func TestNonDecodableFrame(t *testing.T) {
	data := []byte("not json at all")
	data = append(data, Sentinel)
	path := filepath.Join(t.TempDir(), "garbage.log")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decodeErr *DecodeError
	if _, err := Load(path); !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
}

func TestUntaggedFrameRejected(t *testing.T) {
	data := append([]byte(`{"round":3}`), Sentinel)
	path := filepath.Join(t.TempDir(), "untagged.log")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decodeErr *DecodeError
	if _, err := Load(path); !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
}

func TestRecorderRejectsSentinelInFrame(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "bad.log"))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	defer rec.Close()
	if err := rec.Append([]byte{'a', Sentinel, 'b'}); err == nil {
		t.Fatalf("sentinel-bearing frame accepted")
	}
}
