package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/arena"
	"github.com/aeroduel/arena/go/internal/models"
)

// Event types mirrored to the bus. Subjects are "<prefix>.<event type>".
const (
	EventMatchCreated = "match.created"
	EventMatchUpdated = "match.updated"
	EventMatchState   = "match.state"
	EventMatchEnded   = "match.ended"
	EventPlaneHit     = "plane.hit"
	EventPlaneFlash   = "plane.flash"
	EventPlanePowerOn = "plane.poweron"
	EventPlaneRemoved = "plane.removed"
)

// Publisher sends one message. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds configuration for the NATS mirror.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int
}

// DefaultConfig returns default mirror configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "aeroduel.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		BufferSize:    512,
	}
}

// Connect dials NATS with reconnect logging.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("aeroduel-arena"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}

// Envelope wraps every mirrored event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	MatchID   string          `json:"matchId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type outgoing struct {
	subject string
	data    []byte
}

// Bus mirrors arena notifications onto NATS subjects for external
// consumers such as scoreboards and loggers. Notifications are queued and
// published from Start so arena callers never wait on the network.
type Bus struct {
	pub    Publisher
	prefix string
	clock  clockwork.Clock
	queue  chan outgoing
}

var _ arena.Notifier = (*Bus)(nil)

// New creates a bus publishing through pub.
func New(pub Publisher, cfg Config, clock clockwork.Clock) *Bus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}
	return &Bus{
		pub:    pub,
		prefix: cfg.SubjectPrefix,
		clock:  clock,
		queue:  make(chan outgoing, size),
	}
}

// Start publishes queued events until ctx is done, then flushes what is
// left in the queue.
func (b *Bus) Start(ctx context.Context) {
	log.Info().Str("prefix", b.prefix).Msg("event bus started")
	for {
		select {
		case <-ctx.Done():
			b.drain()
			log.Info().Msg("event bus stopped")
			return
		case msg := <-b.queue:
			b.publish(msg)
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case msg := <-b.queue:
			b.publish(msg)
		default:
			return
		}
	}
}

func (b *Bus) publish(msg outgoing) {
	if err := b.pub.Publish(msg.subject, msg.data); err != nil {
		log.Error().Err(err).Str("subject", msg.subject).Msg("failed to publish event")
		return
	}
	log.Debug().Str("subject", msg.subject).Int("size", len(msg.data)).Msg("event published")
}

// Subject returns the subject events of eventType are published on.
func (b *Bus) Subject(eventType string) string {
	return b.prefix + "." + eventType
}

func (b *Bus) emit(eventType, matchID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}
	data, err := json.Marshal(Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		MatchID:   matchID,
		Timestamp: b.clock.Now(),
		Payload:   raw,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event")
		return
	}

	select {
	case b.queue <- outgoing{subject: b.Subject(eventType), data: data}:
	default:
		log.Warn().Str("event_type", eventType).Msg("event bus queue full, dropping event")
	}
}

func (b *Bus) MatchCreated(m *models.Match) {
	b.emit(EventMatchCreated, m.ID, m)
}

func (b *Bus) MatchUpdated(u arena.MatchUpdate) {
	payload := struct {
		Status           models.MatchStatus `json:"status"`
		TimeRemainingSec *float64           `json:"timeRemainingSec,omitempty"`
		Scores           []models.Score     `json:"scores"`
	}{Status: u.Status, Scores: u.Scores}
	if u.TimeRemaining != nil {
		secs := u.TimeRemaining.Seconds()
		payload.TimeRemainingSec = &secs
	}
	b.emit(EventMatchUpdated, u.MatchID, payload)
}

func (b *Bus) MatchStateChanged(status models.MatchStatus) {
	b.emit(EventMatchState, "", map[string]models.MatchStatus{"status": status})
}

func (b *Bus) MatchEnded(matchID string, results arena.Results) {
	b.emit(EventMatchEnded, matchID, results)
}

func (b *Bus) PlaneHit(matchID string, hit models.HitEvent) {
	b.emit(EventPlaneHit, matchID, hit)
}

func (b *Bus) PlaneFlash(f arena.Flash) {
	b.emit(EventPlaneFlash, f.MatchID, map[string]any{
		"planeId":   f.PlaneID,
		"byPlaneId": f.ByPlaneID,
		"timestamp": f.At,
	})
}

func (b *Bus) PlanePoweredOn(matchID, planeID, userID string) {
	b.emit(EventPlanePowerOn, matchID, map[string]string{"planeId": planeID, "userId": userID})
}

func (b *Bus) PlaneRemoved(r arena.Removal) {
	b.emit(EventPlaneRemoved, r.MatchID, map[string]any{
		"planeId":        r.PlaneID,
		"userId":         r.OwnerUserID,
		"isDisqualified": r.Disqualified,
		"reason":         r.Reason,
	})
}
