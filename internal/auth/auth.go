package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultSessionTTL = 12 * time.Hour
	SessionCookie     = "boxterm_session"
	BcryptCost        = 12
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Credentials is the single configured operator account.
type Credentials struct {
	Username string
	// Password is plaintext or a bcrypt hash.
	Password string
}

// Verify reports whether username and password match. Both comparisons
// always run so timing does not reveal which one failed.
func (c Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	var passOK bool
	if isBcryptHash(c.Password) {
		passOK = CheckPassword(password, c.Password)
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}
	return userOK && passOK
}

// Session is a resolved authentication session.
type Session struct {
	ID        string
	Username  string
	ExpiresAt time.Time
}

type sessionEntry struct {
	Username  string
	ExpiresAt time.Time
}

// SessionStore holds authentication sessions in memory with a sliding TTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]sessionEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the sliding session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

func (s *SessionStore) Create(username string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)
	s.mu.Lock()
	s.sessions[id] = sessionEntry{
		Username:  username,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return id, nil
}

// Resolve returns the live session for id and extends its expiry. Expired
// sessions are pruned first.
func (s *SessionStore) Resolve(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	entry, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	entry.ExpiresAt = now.Add(s.ttl)
	s.sessions[id] = entry
	return Session{ID: id, Username: entry.Username, ExpiresAt: entry.ExpiresAt}, true
}

// Invalidate deletes id. Unknown ids are ignored.
func (s *SessionStore) Invalidate(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Cleanup drops expired sessions and returns how many were removed.
func (s *SessionStore) Cleanup() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) pruneLocked(now time.Time) int {
	n := 0
	for id, entry := range s.sessions {
		if !now.Before(entry.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
