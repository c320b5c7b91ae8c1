package arena

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/aeroduel/arena/go/internal/metrics"
	"github.com/aeroduel/arena/go/internal/models"
	"github.com/aeroduel/arena/go/internal/netinfo"
	"github.com/aeroduel/arena/go/internal/scheduler"
	"github.com/aeroduel/arena/go/internal/tokens"
)

// DefaultGracePeriod is how long a dropped plane has to reconnect.
const DefaultGracePeriod = 20 * time.Second

const (
	endTriggerManual   = "manual"
	endTriggerDeadline = "deadline"
)

// Locator reports how clients on the network reach this process.
type Locator interface {
	Locate() (netinfo.Endpoint, error)
}

// Arena is the process-scoped context that owns every piece of match state:
// the plane registry, the current match, the token maps and the timers.
// Every exported method is safe for concurrent use. Each one runs its
// check-then-write sequence under a single lock.
type Arena struct {
	mu sync.Mutex

	clock       clockwork.Clock
	timers      *scheduler.Scheduler
	tokens      *tokens.Store
	privileged  tokens.Privileged
	notifiers   Notifiers
	metrics     metrics.Metrics
	locator     Locator
	gracePeriod time.Duration

	session  *Session
	registry *Registry
}

// Option configures an Arena.
type Option func(*Arena)

// WithClock drives timers and timestamps from clock.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Arena) { a.clock = clock }
}

// WithNotifier adds a receiver of push notifications.
func WithNotifier(n Notifier) Option {
	return func(a *Arena) { a.notifiers = append(a.notifiers, n) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(a *Arena) { a.metrics = m }
}

// WithGracePeriod overrides the reconnect window after a link drop.
func WithGracePeriod(d time.Duration) Option {
	return func(a *Arena) { a.gracePeriod = d }
}

// WithLocator sets how match descriptors learn the server address.
func WithLocator(l Locator) Option {
	return func(a *Arena) { a.locator = l }
}

// New creates an arena with no match and no planes. hostSecret authorizes
// the privileged actions.
func New(hostSecret string, opts ...Option) (*Arena, error) {
	store, err := tokens.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	a := &Arena{
		clock:       clockwork.NewRealClock(),
		tokens:      store,
		privileged:  tokens.NewPrivileged(hostSecret),
		metrics:     metrics.Noop{},
		locator:     netinfo.NewLocator("", "", 0),
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.timers = scheduler.New(a.clock)
	a.session = NewSession(a.matchIdentityChanged)
	a.registry = NewRegistry(a.session)

	log.Info().
		Str("session_id", store.SessionID()[:8]).
		Dur("grace_period", a.gracePeriod).
		Msg("arena initialized")
	return a, nil
}

// AddNotifier subscribes n to every later state change. It is used when the
// receiver itself depends on the arena.
func (a *Arena) AddNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, n)
}

// Close cancels every pending timer.
func (a *Arena) Close() {
	a.timers.Stop()
}

func (a *Arena) matchIdentityChanged(previous, next *models.Match) {
	purged := a.tokens.PurgeUserTokens()
	ev := log.Info().Int("purged_user_tokens", purged)
	if previous != nil {
		ev = ev.Str("previous_match_id", previous.ID)
	}
	if next != nil {
		ev = ev.Str("match_id", next.ID)
	}
	ev.Msg("match identity changed")
}

// RegisterRequest is sent by a plane when it powers on.
type RegisterRequest struct {
	PlaneID string
	UserID  string
	Address string
}

// RegisterResult carries the device token for the plane.
type RegisterResult struct {
	Token   string
	MatchID string
	Plane   models.Plane
}

// Register upserts a plane and issues it a fresh device token.
func (a *Arena) Register(req RegisterRequest) (RegisterResult, error) {
	planeID := strings.TrimSpace(req.PlaneID)
	if planeID == "" {
		return RegisterResult{}, invalid("planeId is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	token, err := a.tokens.IssueDeviceToken(planeID)
	if err != nil {
		return RegisterResult{}, fail(KindInternal, err)
	}
	p := a.registry.Register(planeID, req.UserID, req.Address, a.clock.Now())
	a.metrics.IncPlanesRegistered()

	res := RegisterResult{Token: token, Plane: *p}
	if m := a.session.Current(); m != nil {
		res.MatchID = m.ID
		a.notifiers.PlanePoweredOn(m.ID, p.PlaneID, p.UserID)
	}

	log.Info().
		Str("plane_id", planeID).
		Str("user_id", p.UserID).
		Str("address", p.Address).
		Msg("plane registered")
	return res, nil
}

// JoinRequest enrolls a plane in the waiting match on behalf of its owner.
type JoinRequest struct {
	PIN        string
	PlaneID    string
	UserID     string
	PlayerName string
}

// JoinResult carries the user token scoped to the joined match.
type JoinResult struct {
	Token   string
	MatchID string
}

// Join adds a plane to the current match roster.
func (a *Arena) Join(req JoinRequest) (JoinResult, error) {
	if req.PIN == "" || req.PlaneID == "" || req.UserID == "" || strings.TrimSpace(req.PlayerName) == "" {
		return JoinResult{}, invalid("gamePin, planeId, userId and playerName are required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.session.Current()
	if m == nil || !tokens.Equal(m.PIN, req.PIN) {
		return JoinResult{}, fail(KindNotFound, ErrInvalidPIN)
	}
	p, ok := a.registry.Get(req.PlaneID)
	if !ok {
		return JoinResult{}, fail(KindNotFound, ErrPlaneNotRegistered)
	}
	if p.UserID != req.UserID {
		return JoinResult{}, fail(KindAuth, ErrUnauthorized)
	}
	if m.Status != models.MatchStatusWaiting {
		return JoinResult{}, fail(KindConflict, ErrMatchNotWaiting)
	}
	if p.Disqualified {
		return JoinResult{}, fail(KindConflict, ErrPlaneDisqualified)
	}
	if !p.Online {
		return JoinResult{}, fail(KindConflict, ErrPlaneOffline)
	}
	rejoin := m.InRoster(p.PlaneID)
	if !rejoin && len(m.Roster) >= m.MaxPlayers {
		return JoinResult{}, fail(KindConflict, ErrMatchFull)
	}

	token, err := a.tokens.IssueUserToken(m.ID, req.UserID)
	if err != nil {
		return JoinResult{}, fail(KindInternal, err)
	}
	if rejoin {
		p.PlayerName = strings.TrimSpace(req.PlayerName)
		return JoinResult{Token: token, MatchID: m.ID}, nil
	}
	if !a.registry.Join(p.PlaneID, strings.TrimSpace(req.PlayerName), a.clock.Now()) {
		log.Error().Str("plane_id", p.PlaneID).Str("match_id", m.ID).Msg("join failed after validation")
		return JoinResult{}, fail(KindInternal, ErrInconsistentState)
	}
	a.notifiers.MatchUpdated(a.updateLocked())

	log.Info().
		Str("match_id", m.ID).
		Str("plane_id", p.PlaneID).
		Str("player_name", p.PlayerName).
		Int("roster_size", len(m.Roster)).
		Msg("plane joined match")
	return JoinResult{Token: token, MatchID: m.ID}, nil
}

// HitRequest is a hit reported by an attacking plane.
type HitRequest struct {
	Token    string
	PlaneID  string
	TargetID string
	// ReportedAt is the hardware's own clock reading, if it sent one.
	ReportedAt *time.Time
}

// Hit credits the attacker with a hit on the target.
func (a *Arena) Hit(req HitRequest) (models.HitEvent, error) {
	if req.Token == "" || req.PlaneID == "" || req.TargetID == "" {
		return models.HitEvent{}, invalid("authToken, planeId and targetId are required")
	}
	if req.PlaneID == req.TargetID {
		return models.HitEvent{}, fail(KindValidation, ErrSelfHit)
	}
	if !a.tokens.ValidateDevice(req.PlaneID, req.Token) {
		return models.HitEvent{}, fail(KindAuth, ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.session.Current()
	if m == nil {
		return models.HitEvent{}, fail(KindNotFound, ErrNoMatch)
	}
	attacker, ok := a.registry.Get(req.PlaneID)
	if !ok {
		return models.HitEvent{}, fail(KindNotFound, ErrPlaneNotRegistered)
	}
	target, ok := a.registry.Get(req.TargetID)
	if !ok {
		return models.HitEvent{}, fail(KindNotFound, ErrTargetNotFound)
	}
	if m.Status != models.MatchStatusActive {
		return models.HitEvent{}, fail(KindConflict, ErrMatchNotActive)
	}
	if !m.InRoster(attacker.PlaneID) {
		return models.HitEvent{}, fail(KindNotFound, ErrPlaneNotJoined)
	}
	if !m.InRoster(target.PlaneID) {
		return models.HitEvent{}, fail(KindNotFound, ErrTargetNotFound)
	}

	hit, ok := a.registry.RecordHit(attacker.PlaneID, target.PlaneID, a.clock.Now(), req.ReportedAt)
	if !ok {
		log.Error().
			Str("match_id", m.ID).
			Str("plane_id", attacker.PlaneID).
			Str("target_id", target.PlaneID).
			Msg("hit rejected by registry after validation")
		return models.HitEvent{}, fail(KindInternal, ErrInconsistentState)
	}
	a.metrics.IncHits()

	a.notifiers.PlaneHit(m.ID, hit)
	a.notifiers.PlaneFlash(Flash{
		MatchID:     m.ID,
		PlaneID:     target.PlaneID,
		OwnerUserID: target.UserID,
		ByPlaneID:   attacker.PlaneID,
		At:          hit.Timestamp,
	})
	a.notifiers.MatchUpdated(a.updateLocked())

	log.Info().
		Str("match_id", m.ID).
		Str("plane_id", attacker.PlaneID).
		Str("target_id", target.PlaneID).
		Int("hits", attacker.Hits).
		Int("target_hits_taken", target.HitsTaken).
		Msg("hit recorded")
	return hit, nil
}

// CreateMatchRequest configures a new match. Nil fields take the defaults.
type CreateMatchRequest struct {
	Secret          string
	DurationSeconds *int
	MaxPlayers      *int
}

// CreateMatchResult describes the new match and how to join it.
type CreateMatchResult struct {
	Match    *models.Match
	JoinLink string
}

// CreateMatch replaces an ended match, or the absence of one, with a new
// waiting match. Every plane's per-match statistics are reset.
func (a *Arena) CreateMatch(req CreateMatchRequest) (CreateMatchResult, error) {
	if !a.privileged.Allow(req.Secret) {
		return CreateMatchResult{}, fail(KindAuth, ErrUnauthorized)
	}

	duration := models.DefaultDuration
	if req.DurationSeconds != nil {
		// bounds are checked in seconds so the conversion below cannot overflow
		minSecs, maxSecs := int(models.MinDuration/time.Second), int(models.MaxDuration/time.Second)
		if secs := *req.DurationSeconds; secs < minSecs || secs > maxSecs {
			return CreateMatchResult{}, invalid("duration must be between %d and %d seconds", minSecs, maxSecs)
		}
		duration = time.Duration(*req.DurationSeconds) * time.Second
	}
	maxPlayers := models.DefaultMaxPlayers
	if req.MaxPlayers != nil {
		maxPlayers = *req.MaxPlayers
		if maxPlayers < models.MinPlayers || maxPlayers > models.MaxPlayers {
			return CreateMatchResult{}, invalid("maxPlayers must be between %d and %d",
				models.MinPlayers, models.MaxPlayers)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if m := a.session.Current(); m != nil && m.Status != models.MatchStatusEnded {
		return CreateMatchResult{}, fail(KindConflict, ErrMatchInProgress)
	}

	endpoint, err := a.locator.Locate()
	if err != nil {
		log.Error().Err(err).Msg("failed to locate server endpoint")
		return CreateMatchResult{}, fail(KindInternal, fmt.Errorf("failed to locate server endpoint: %w", err))
	}
	pin, err := generatePIN()
	if err != nil {
		return CreateMatchResult{}, fail(KindInternal, err)
	}

	m := &models.Match{
		ID:         uuid.New().String(),
		PIN:        pin,
		Type:       models.MatchTypeTimed,
		CreatedAt:  a.clock.Now(),
		Duration:   duration,
		MaxPlayers: maxPlayers,
		ServerURL:  endpoint.ServerURL(),
		WSURL:      endpoint.WSURL(),
		LocalIP:    endpoint.LocalIP,
	}
	if err := a.session.Create(m); err != nil {
		return CreateMatchResult{}, err
	}
	a.registry.ResetMatchStats()
	a.metrics.IncMatchesCreated()

	a.notifiers.MatchCreated(m.Clone())
	a.notifiers.MatchStateChanged(m.Status)

	log.Info().
		Str("match_id", m.ID).
		Dur("duration", duration).
		Int("max_players", maxPlayers).
		Str("server_url", m.ServerURL).
		Msg("match created")
	return CreateMatchResult{Match: m.Clone(), JoinLink: endpoint.JoinLink(pin)}, nil
}

// StartMatch activates the waiting match and arms its deadline.
func (a *Arena) StartMatch(secret string) (time.Time, error) {
	if !a.privileged.Allow(secret) {
		return time.Time{}, fail(KindAuth, ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	endsAt, err := a.session.Start(a.clock.Now())
	if err != nil {
		return time.Time{}, err
	}
	m := a.session.Current()
	matchID := m.ID
	a.timers.Schedule(deadlineKey(matchID), m.Duration, func() { a.deadlineExpired(matchID) })
	a.metrics.IncMatchesStarted()

	a.notifiers.MatchUpdated(a.updateLocked())
	a.notifiers.MatchStateChanged(m.Status)

	log.Info().
		Str("match_id", matchID).
		Time("ends_at", endsAt).
		Int("roster_size", len(m.Roster)).
		Msg("match started")
	return endsAt, nil
}

// EndMatchResult is the final state of an ended match.
type EndMatchResult struct {
	Match   *models.Match
	Results Results
}

// EndMatch ends the active match before its deadline.
func (a *Arena) EndMatch(secret string) (EndMatchResult, error) {
	if !a.privileged.Allow(secret) {
		return EndMatchResult{}, fail(KindAuth, ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.session.CanEnd(); err != nil {
		return EndMatchResult{}, err
	}
	results := a.endLocked(endTriggerManual)
	return EndMatchResult{Match: a.session.Current().Clone(), Results: results}, nil
}

// deadlineExpired ends the match when its timer fires. A timer that outlived
// its match is ignored.
func (a *Arena) deadlineExpired(matchID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.session.Current()
	if m == nil || m.ID != matchID || m.Status != models.MatchStatusActive {
		log.Debug().Str("match_id", matchID).Msg("stale match deadline ignored")
		return
	}
	a.endLocked(endTriggerDeadline)
}

func (a *Arena) endLocked(trigger string) Results {
	m := a.session.Current()
	a.timers.Cancel(deadlineKey(m.ID))

	results := Rank(a.registry.Joined())
	a.session.finish(a.clock.Now())
	a.metrics.IncMatchesEnded(trigger)

	a.notifiers.MatchEnded(m.ID, results)
	a.notifiers.MatchStateChanged(m.Status)

	log.Info().
		Str("match_id", m.ID).
		Str("trigger", trigger).
		Strs("winners", results.Winners).
		Msg("match ended")
	return results
}

// Kick removes a joined plane. While the match is active the plane is also
// disqualified for the rest of it.
func (a *Arena) Kick(secret, planeID string) error {
	if !a.privileged.Allow(secret) {
		return fail(KindAuth, ErrUnauthorized)
	}
	if planeID == "" {
		return invalid("planeId is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.session.Current()
	if m == nil {
		return fail(KindNotFound, ErrNoMatch)
	}
	if m.Status == models.MatchStatusEnded {
		return fail(KindGone, ErrMatchEnded)
	}
	p, ok := a.registry.Get(planeID)
	if !ok {
		return fail(KindNotFound, ErrPlaneNotRegistered)
	}
	if !p.Joined || !m.InRoster(planeID) {
		return fail(KindNotFound, ErrPlaneNotJoined)
	}

	disqualify := m.Status == models.MatchStatusActive
	if !a.registry.Remove(planeID, disqualify, a.clock.Now()) {
		log.Error().Str("plane_id", planeID).Str("match_id", m.ID).Msg("kick failed after validation")
		return fail(KindInternal, ErrInconsistentState)
	}
	a.metrics.IncPlanesRemoved(disqualify)

	a.notifiers.PlaneRemoved(Removal{
		MatchID:      m.ID,
		PlaneID:      planeID,
		OwnerUserID:  p.UserID,
		Disqualified: disqualify,
		Reason:       RemovalReasonKick,
	})
	a.notifiers.MatchUpdated(a.updateLocked())

	log.Info().
		Str("match_id", m.ID).
		Str("plane_id", planeID).
		Bool("disqualified", disqualify).
		Msg("plane kicked")
	return nil
}

// ClearMatch discards an ended match so that no match exists.
func (a *Arena) ClearMatch(secret string) error {
	if !a.privileged.Allow(secret) {
		return fail(KindAuth, ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.session.Current()
	if err := a.session.Clear(); err != nil {
		return err
	}
	log.Info().Str("match_id", prev.ID).Msg("match cleared")
	return nil
}

// AuthenticateDevice checks a hardware credential.
func (a *Arena) AuthenticateDevice(planeID, token string) error {
	if planeID == "" || token == "" {
		return invalid("planeId and authToken are required")
	}
	if !a.tokens.ValidateDevice(planeID, token) {
		return fail(KindAuth, ErrUnauthorized)
	}
	return nil
}

// AuthenticateUser checks a mobile credential for matchID.
func (a *Arena) AuthenticateUser(matchID, userID, token string) error {
	if matchID == "" || userID == "" || token == "" {
		return invalid("matchId, userId and authToken are required")
	}
	if !a.tokens.ValidateUser(matchID, userID, token) {
		return fail(KindAuth, ErrUnauthorized)
	}
	return nil
}

// PlaneConnected records a completed hardware handshake. It cancels any
// pending reconnect window but never re-joins the plane.
func (a *Arena) PlaneConnected(planeID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.registry.MarkOnline(planeID) {
		return false
	}
	if a.timers.Cancel(graceKey(planeID)) {
		log.Info().Str("plane_id", planeID).Msg("plane reconnected within grace period")
	}
	return true
}

// PlaneDisconnected records a hardware link drop. The plane goes offline
// and leaves the roster at once, then has the grace period to reconnect.
func (a *Arena) PlaneDisconnected(planeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.registry.Get(planeID)
	if !ok {
		log.Warn().Str("plane_id", planeID).Msg("disconnect for unknown plane")
		return
	}
	left := a.registry.MarkOffline(planeID, a.clock.Now())
	a.timers.Schedule(graceKey(planeID), a.gracePeriod, func() { a.graceExpired(planeID) })

	if !left {
		return
	}
	m := a.session.Current()
	a.metrics.IncPlanesRemoved(false)
	a.notifiers.PlaneRemoved(Removal{
		MatchID:     m.ID,
		PlaneID:     planeID,
		OwnerUserID: p.UserID,
		Reason:      RemovalReasonDisconnect,
	})
	a.notifiers.MatchUpdated(a.updateLocked())

	log.Info().
		Str("match_id", m.ID).
		Str("plane_id", planeID).
		Msg("disconnected plane left match")
}

// graceExpired runs when a dropped plane failed to reconnect in time. The
// plane already left the roster on disconnect, so nothing else changes.
func (a *Arena) graceExpired(planeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.registry.Get(planeID)
	if !ok || p.Online {
		return
	}
	a.metrics.IncGraceExpired()
	log.Warn().
		Str("plane_id", planeID).
		Dur("grace_period", a.gracePeriod).
		Msg("plane did not reconnect within grace period")
}

// Snapshot is a poll-friendly view of the current match.
type Snapshot struct {
	Match         *models.Match
	TimeRemaining *time.Duration
	Planes        []models.Plane
	Scores        []models.Score
}

// CurrentMatch returns a copy of the current match, or nil.
func (a *Arena) CurrentMatch() *models.Match {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Current().Clone()
}

// Snapshot returns the current match with its joined planes and live scores.
// Match is nil when no match exists.
func (a *Arena) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.session.Current()
	if m == nil {
		return Snapshot{}
	}
	joined := a.registry.Joined()
	return Snapshot{
		Match:         m.Clone(),
		TimeRemaining: a.timeRemainingLocked(),
		Planes:        joined,
		Scores:        Scoreboard(joined),
	}
}

// Plane returns a copy of a registered plane.
func (a *Arena) Plane(planeID string) (models.Plane, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.registry.Get(planeID)
	if !ok {
		return models.Plane{}, false
	}
	return *p, true
}

// Planes returns every registered plane.
func (a *Arena) Planes() []models.Plane {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.All()
}

// OnlinePlanes returns the planes whose link is up.
func (a *Arena) OnlinePlanes() []models.Plane {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Online()
}

// JoinedPlanes returns the planes in the current roster.
func (a *Arena) JoinedPlanes() []models.Plane {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Joined()
}

func (a *Arena) updateLocked() MatchUpdate {
	m := a.session.Current()
	return MatchUpdate{
		MatchID:       m.ID,
		Status:        m.Status,
		TimeRemaining: a.timeRemainingLocked(),
		Scores:        Scoreboard(a.registry.Joined()),
	}
}

func (a *Arena) timeRemainingLocked() *time.Duration {
	m := a.session.Current()
	if m == nil || m.Status != models.MatchStatusActive || m.EndsAt == nil {
		return nil
	}
	remaining := m.EndsAt.Sub(a.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func deadlineKey(matchID string) string { return "match:" + matchID }
func graceKey(planeID string) string    { return "grace:" + planeID }

// generatePIN returns a uniformly random six digit PIN.
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate PIN: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
