package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Metrics = (*Service)(nil)

// Service holds the Prometheus collectors.
type Service struct {
	PlanesRegistered  prometheus.Counter
	MatchesCreated    prometheus.Counter
	MatchesStarted    prometheus.Counter
	MatchesEnded      *prometheus.CounterVec
	Hits              prometheus.Counter
	PlanesRemoved     *prometheus.CounterVec
	GraceExpired      prometheus.Counter
	Rejected          *prometheus.CounterVec
	HandshakeFailures prometheus.Counter
	Connections       *prometheus.GaugeVec
}

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the Prometheus metrics.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		PlanesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeroduel_planes_registered_total",
			Help: "The total number of plane registrations, including re-registrations.",
		}),
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeroduel_matches_created_total",
			Help: "The total number of matches created.",
		}),
		MatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeroduel_matches_started_total",
			Help: "The total number of matches started.",
		}),
		MatchesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeroduel_matches_ended_total",
			Help: "The total number of matches ended, by trigger.",
		}, []string{"trigger"}),
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeroduel_hits_total",
			Help: "The total number of hits recorded.",
		}),
		PlanesRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeroduel_planes_removed_total",
			Help: "The total number of planes removed from a match by the referee.",
		}, []string{"disqualified"}),
		GraceExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeroduel_disconnect_grace_expired_total",
			Help: "The total number of planes that did not reconnect within the grace period.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aeroduel_requests_rejected_total",
			Help: "The total number of rejected actions, by failure kind.",
		}, []string{"kind"}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aeroduel_ws_handshake_failures_total",
			Help: "The total number of WebSocket connections closed during the hello handshake.",
		}),
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aeroduel_ws_connections",
			Help: "The number of authenticated WebSocket connections, by role.",
		}, []string{"role"}),
	}

	reg.MustRegister(
		s.PlanesRegistered,
		s.MatchesCreated,
		s.MatchesStarted,
		s.MatchesEnded,
		s.Hits,
		s.PlanesRemoved,
		s.GraceExpired,
		s.Rejected,
		s.HandshakeFailures,
		s.Connections,
	)
	return s
}

func (s *Service) IncPlanesRegistered()  { s.PlanesRegistered.Inc() }
func (s *Service) IncMatchesCreated()    { s.MatchesCreated.Inc() }
func (s *Service) IncMatchesStarted()    { s.MatchesStarted.Inc() }
func (s *Service) IncHits()              { s.Hits.Inc() }
func (s *Service) IncGraceExpired()      { s.GraceExpired.Inc() }
func (s *Service) IncHandshakeFailures() { s.HandshakeFailures.Inc() }

func (s *Service) IncMatchesEnded(trigger string) {
	s.MatchesEnded.WithLabelValues(trigger).Inc()
}

func (s *Service) IncPlanesRemoved(disqualified bool) {
	s.PlanesRemoved.WithLabelValues(strconv.FormatBool(disqualified)).Inc()
}

func (s *Service) IncRejected(kind string) {
	s.Rejected.WithLabelValues(kind).Inc()
}

func (s *Service) SetConnections(role string, n int) {
	s.Connections.WithLabelValues(role).Set(float64(n))
}
