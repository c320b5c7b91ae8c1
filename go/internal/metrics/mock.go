package metrics

import "sync"

var _ Metrics = (*Mock)(nil)

// Mock is a mock implementation of the Metrics interface for testing.
// It is safe for concurrent use.
type Mock struct {
	mu                sync.Mutex
	planesRegistered  int
	matchesCreated    int
	matchesStarted    int
	matchesEnded      map[string]int
	hits              int
	planesRemoved     map[bool]int
	graceExpired      int
	rejected          map[string]int
	handshakeFailures int
	connections       map[string]int
}

// NewMock creates a new mock instance.
func NewMock() *Mock {
	return &Mock{
		matchesEnded:  make(map[string]int),
		planesRemoved: make(map[bool]int),
		rejected:      make(map[string]int),
		connections:   make(map[string]int),
	}
}

func (m *Mock) IncPlanesRegistered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planesRegistered++
}

func (m *Mock) IncMatchesCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesCreated++
}

func (m *Mock) IncMatchesStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesStarted++
}

func (m *Mock) IncMatchesEnded(trigger string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesEnded[trigger]++
}

func (m *Mock) IncHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *Mock) IncPlanesRemoved(disqualified bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planesRemoved[disqualified]++
}

func (m *Mock) IncGraceExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graceExpired++
}

func (m *Mock) IncRejected(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[kind]++
}

func (m *Mock) IncHandshakeFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshakeFailures++
}

func (m *Mock) SetConnections(role string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[role] = n
}

// PlanesRegistered returns the number of times IncPlanesRegistered was called.
func (m *Mock) PlanesRegistered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planesRegistered
}

// MatchesCreated returns the number of times IncMatchesCreated was called.
func (m *Mock) MatchesCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesCreated
}

// MatchesStarted returns the number of times IncMatchesStarted was called.
func (m *Mock) MatchesStarted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesStarted
}

// MatchesEnded returns how many matches ended with the given trigger.
func (m *Mock) MatchesEnded(trigger string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesEnded[trigger]
}

// Hits returns the number of times IncHits was called.
func (m *Mock) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// PlanesRemoved returns how many planes were removed with the given flag.
func (m *Mock) PlanesRemoved(disqualified bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planesRemoved[disqualified]
}

// GraceExpired returns the number of times IncGraceExpired was called.
func (m *Mock) GraceExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graceExpired
}

// Rejected returns how many actions were rejected with the given kind.
func (m *Mock) Rejected(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[kind]
}

// HandshakeFailures returns the number of times IncHandshakeFailures was called.
func (m *Mock) HandshakeFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handshakeFailures
}

// Connections returns the last gauge value set for role.
func (m *Mock) Connections(role string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections[role]
}
