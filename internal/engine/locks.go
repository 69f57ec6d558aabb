package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tfgate/tfgate/internal/toolerr"
)

// busyMarkerName is written into a workspace while a mutating operation
// runs. It survives a crash so a restarted server can tell a live apply
// from a stale one.
const busyMarkerName = ".tfgate.busy"

type busyMarker struct {
	PID       int       `json:"pid"`
	Operation string    `json:"operation"`
	Started   time.Time `json:"started"`
}

// lockTable enforces per-workspace exclusion: one mutating operation at a
// time, read-only operations may share with each other but not with a
// mutating one. Contention is rejected, never queued.
type lockTable struct {
	mu     sync.Mutex
	states map[string]*wsState
	grace  time.Duration
}

type wsState struct {
	mutating bool
	readers  int
}

func newLockTable(grace time.Duration) *lockTable {
	return &lockTable{states: make(map[string]*wsState), grace: grace}
}

// acquire takes the in-memory lock for path. For mutating operations it
// also checks and writes the on-disk busy marker. The returned release
// must be called exactly once.
func (lt *lockTable) acquire(path string, op Operation) (func(), error) {
	lt.mu.Lock()
	st, ok := lt.states[path]
	if !ok {
		st = &wsState{}
		lt.states[path] = st
	}

	if op.Mutating() {
		if st.mutating || st.readers > 0 {
			lt.mu.Unlock()
			return nil, toolerr.New(toolerr.KindWorkspaceBusy, "another operation is running on this workspace")
		}
		st.mutating = true
	} else {
		if st.mutating {
			lt.mu.Unlock()
			return nil, toolerr.New(toolerr.KindWorkspaceBusy, "a mutating operation is running on this workspace")
		}
		st.readers++
	}
	lt.mu.Unlock()

	release := func() {
		lt.mu.Lock()
		if op.Mutating() {
			st.mutating = false
		} else {
			st.readers--
		}
		if !st.mutating && st.readers == 0 {
			delete(lt.states, path)
		}
		lt.mu.Unlock()
	}

	if !op.Mutating() {
		return release, nil
	}

	// Mutating path: reconcile the on-disk marker left by a previous
	// process before claiming the workspace.
	if err := lt.claimMarker(path, op); err != nil {
		release()
		return nil, err
	}

	return func() {
		_ = os.Remove(filepath.Join(path, busyMarkerName))
		release()
	}, nil
}

// claimMarker rejects the acquire when a live marker from another process
// is inside the grace period; otherwise it expires the stale marker and
// writes a fresh one.
func (lt *lockTable) claimMarker(path string, op Operation) error {
	markerPath := filepath.Join(path, busyMarkerName)

	if data, err := os.ReadFile(markerPath); err == nil {
		var m busyMarker
		if jerr := json.Unmarshal(data, &m); jerr == nil {
			fresh := time.Since(m.Started) < lt.grace
			if m.PID != os.Getpid() && pidAlive(m.PID) && fresh {
				return toolerr.New(toolerr.KindWorkspaceBusy, "workspace is held by another process (pid %d)", m.PID)
			}
		}
		// Stale, corrupt, or our own leftover: expire it.
		_ = os.Remove(markerPath)
	}

	m := busyMarker{PID: os.Getpid(), Operation: op.String(), Started: time.Now()}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling busy marker: %w", err)
	}
	if err := os.WriteFile(markerPath, data, 0600); err != nil {
		return fmt.Errorf("writing busy marker: %w", err)
	}
	return nil
}
