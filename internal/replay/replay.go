// internal/replay/replay.go
//
// A replay log is a flat byte stream of serialized snapshots, each frame
// terminated by a single 0x1E record separator. Compact JSON can never
// contain a raw 0x1E, so the sentinel is unambiguous. Loading is
// all-or-nothing: one malformed frame fails the whole log with its index.

package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/arenalab/arena/internal/broadcast"
)

// Sentinel terminates every frame in a replay log.
const Sentinel byte = 0x1E

// ErrConsumed reports a second Run over the same loaded log; replaying again
// requires reloading from disk.
var ErrConsumed = errors.New("replay: log already replayed")

// DecodeError reports a malformed frame by index.
type DecodeError struct {
	Frame int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("replay: frame %d: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Log is a fully decoded replay log.
type Log struct {
	snapshots []broadcast.Snapshot
	consumed  bool
}

// Len reports the number of decoded snapshots.
func (l *Log) Len() int { return len(l.snapshots) }

// Snapshots exposes the decoded sequence in recorded order.
func (l *Log) Snapshots() []broadcast.Snapshot { return l.snapshots }

// Load reads and decodes an entire replay log. Empty frames (two adjacent
// sentinels, or a trailing sentinel) are skipped; any frame that does not
// decode to a tagged snapshot aborts the load with a DecodeError.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", path, err)
	}
	frames := bytes.Split(data, []byte{Sentinel})
	log := &Log{}
	for i, frame := range frames {
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		var snap broadcast.Snapshot
		if err := json.Unmarshal(frame, &snap); err != nil {
			return nil, &DecodeError{Frame: i, Err: err}
		}
		if snap.Action == "" {
			return nil, &DecodeError{Frame: i, Err: errors.New("missing action tag")}
		}
		log.snapshots = append(log.snapshots, snap)
	}
	return log, nil
}

// Run re-emits the decoded snapshots in recorded order, as fast as the sink
// accepts them. A log can only be run once.
func Run(log *Log, sink broadcast.Sink) error {
	if log.consumed {
		return ErrConsumed
	}
	log.consumed = true
	for i, snap := range log.snapshots {
		if err := sink.Publish(snap); err != nil {
			return fmt.Errorf("replay: publish frame %d: %w", i, err)
		}
	}
	return nil
}

// Recorder appends sentinel-terminated frames to a log file as a match runs.
type Recorder struct {
	mu sync.Mutex
	f  *os.File
}

// NewRecorder creates (or truncates) the log file at path.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("replay: create %s: %w", path, err)
	}
	return &Recorder{f: f}, nil
}

// Append writes one frame followed by the sentinel.
func (r *Recorder) Append(frame []byte) error {
	if bytes.IndexByte(frame, Sentinel) >= 0 {
		return fmt.Errorf("replay: frame contains sentinel byte")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.f.Write(frame); err != nil {
		return fmt.Errorf("replay: append: %w", err)
	}
	if _, err := r.f.Write([]byte{Sentinel}); err != nil {
		return fmt.Errorf("replay: append: %w", err)
	}
	return nil
}

// Close flushes and releases the log file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
