package metrics

// Metrics defines the counters the arena and gateway report. It decouples
// them from the Prometheus implementation.
type Metrics interface {
	IncPlanesRegistered()
	IncMatchesCreated()
	IncMatchesStarted()
	IncMatchesEnded(trigger string)
	IncHits()
	IncPlanesRemoved(disqualified bool)
	IncGraceExpired()
	IncRejected(kind string)
	IncHandshakeFailures()
	SetConnections(role string, n int)
}
