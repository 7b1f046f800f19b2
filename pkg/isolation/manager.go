package isolation

import (
	"sync"
	"time"
)

// Report is the final summary handed back when a Session is torn down.
type Report struct {
	SessionID    string
	Level        Level
	Duration     time.Duration
	CPUTimeUsed  time.Duration
	MemorySample int64
	Violations   []Violation
}

// Manager is the process-wide, sessioned map of active isolation Sessions
// (§4.9: "Isolation state is process-wide but sessioned").
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts a new Session under id at the given Level. Lifecycle:
// created on request entry for any component performing tool execution.
func (m *Manager) Create(id string, level Level) *Session {
	s := &Session{
		id:          id,
		level:       level,
		budget:      budgets[level],
		startTime:   time.Now(),
		baselineCPU: processCPUTime(),
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get looks up an active session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Terminate releases id from the session map and returns its final report.
// Torn down on terminal state, per §4.9.
func (m *Manager) Terminate(id string) (Report, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return Report{}, false
	}

	s.mu.Lock()
	s.terminated = true
	s.sampleLocked()
	report := Report{
		SessionID:    s.id,
		Level:        s.level,
		Duration:     time.Since(s.startTime),
		CPUTimeUsed:  s.cpuUsed,
		MemorySample: s.memSample,
		Violations:   append([]Violation(nil), s.violations...),
	}
	s.mu.Unlock()
	return report, true
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
