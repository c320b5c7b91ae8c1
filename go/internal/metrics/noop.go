package metrics

// Noop discards every measurement.
type Noop struct{}

func (Noop) IncPlanesRegistered()               {}
func (Noop) IncMatchesCreated()                 {}
func (Noop) IncMatchesStarted()                 {}
func (Noop) IncMatchesEnded(trigger string)     {}
func (Noop) IncHits()                           {}
func (Noop) IncPlanesRemoved(disqualified bool) {}
func (Noop) IncGraceExpired()                   {}
func (Noop) IncRejected(kind string)            {}
func (Noop) IncHandshakeFailures()              {}
func (Noop) SetConnections(role string, n int)  {}
