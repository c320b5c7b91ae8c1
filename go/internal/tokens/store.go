package tokens

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
)

// tokenBytes is the entropy of every issued token.
const tokenBytes = 32

// Store holds the two independent credential maps.
//
// Device tokens are keyed by the process session id, so a plane registered
// once stays authenticated for the whole server run regardless of how many
// matches come and go. User tokens are keyed by match id and are purged
// whenever the match identity changes.
type Store struct {
	sessionID string

	mu           sync.RWMutex
	deviceTokens map[string]string
	userTokens   map[string]string
}

// NewStore creates a store bound to a fresh process session id.
func NewStore() (*Store, error) {
	sessionID, err := Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	return &Store{
		sessionID:    sessionID,
		deviceTokens: make(map[string]string),
		userTokens:   make(map[string]string),
	}, nil
}

// SessionID returns the id of this process run.
func (s *Store) SessionID() string {
	return s.sessionID
}

// IssueDeviceToken creates a new device token for planeID, replacing any
// token issued earlier in this session.
func (s *Store) IssueDeviceToken(planeID string) (string, error) {
	token, err := Generate()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.deviceTokens[deviceKey(s.sessionID, planeID)] = token
	s.mu.Unlock()
	return token, nil
}

// IssueUserToken creates a new user token for userID within matchID.
func (s *Store) IssueUserToken(matchID, userID string) (string, error) {
	token, err := Generate()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.userTokens[userKey(matchID, userID)] = token
	s.mu.Unlock()
	return token, nil
}

// ValidateDevice reports whether token is the current device token for planeID.
func (s *Store) ValidateDevice(planeID, token string) bool {
	s.mu.RLock()
	stored, ok := s.deviceTokens[deviceKey(s.sessionID, planeID)]
	s.mu.RUnlock()
	return ok && Equal(stored, token)
}

// ValidateUser reports whether token is the current user token for userID in matchID.
func (s *Store) ValidateUser(matchID, userID, token string) bool {
	s.mu.RLock()
	stored, ok := s.userTokens[userKey(matchID, userID)]
	s.mu.RUnlock()
	return ok && Equal(stored, token)
}

// PurgeUserTokens drops every user token. Device tokens are untouched.
func (s *Store) PurgeUserTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.userTokens)
	s.userTokens = make(map[string]string)
	return n
}

// Generate returns a hex encoded random secret.
func Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// keys use a NUL separator so that ids containing ':' cannot collide.
func deviceKey(sessionID, planeID string) string {
	return sessionID + "\x00" + planeID
}

func userKey(matchID, userID string) string {
	return matchID + "\x00" + userID
}
