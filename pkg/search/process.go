package search

import (
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// processTracker is the active-process map of §4.8's process-hygiene
// requirement: every spawned subprocess registers here for the duration of
// its run, and Shutdown guarantees every tracked process has exited or been
// killed before returning.
type processTracker struct {
	mu        sync.Mutex
	processes map[string]*exec.Cmd
}

func newProcessTracker() *processTracker {
	return &processTracker{processes: make(map[string]*exec.Cmd)}
}

// register tracks cmd under a fresh execution id and returns an unregister
// func the caller must invoke (typically via defer) once the process exits.
func (t *processTracker) register(cmd *exec.Cmd) (id string, unregister func()) {
	id = uuid.NewString()
	t.mu.Lock()
	t.processes[id] = cmd
	t.mu.Unlock()
	return id, func() {
		t.mu.Lock()
		delete(t.processes, id)
		t.mu.Unlock()
	}
}

// Shutdown kills every still-tracked process. Safe to call repeatedly.
func (t *processTracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cmd := range t.processes {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		delete(t.processes, id)
	}
}

// Active reports the number of currently tracked processes, for tests and
// health diagnostics.
func (t *processTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processes)
}
