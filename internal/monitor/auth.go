package monitor

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
)

// Session is an elevated-access grant returned by Authenticate.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authorizer exchanges the shared passcode for short-lived session tokens.
type Authorizer struct {
	passcode string
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewAuthorizer creates an Authorizer. An empty passcode disables elevation.
func NewAuthorizer(passcode string, ttl time.Duration) *Authorizer {
	return &Authorizer{passcode: passcode, ttl: ttl, sessions: make(map[string]time.Time)}
}

// Login returns a new session when passcode matches.
func (a *Authorizer) Login(passcode string) (Session, error) {
	if a.passcode == "" {
		return Session{}, domain.Forbiddenf("administrator access is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(passcode), []byte(a.passcode)) != 1 {
		return Session{}, domain.Forbiddenf("incorrect passcode")
	}

	s := Session{Token: uuid.NewString(), ExpiresAt: domain.Now().Add(a.ttl)}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prune()
	a.sessions[s.Token] = s.ExpiresAt
	return s, nil
}

// Actor resolves a bearer token. Unknown or expired tokens are non-elevated.
func (a *Authorizer) Actor(token string) domain.Actor {
	if token == "" {
		return domain.Actor{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	exp, ok := a.sessions[token]
	if !ok {
		return domain.Actor{}
	}
	if !domain.Now().Before(exp) {
		delete(a.sessions, token)
		return domain.Actor{}
	}
	return domain.Actor{Admin: true}
}

// Logout revokes token.
func (a *Authorizer) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

func (a *Authorizer) prune() {
	now := domain.Now()
	for tok, exp := range a.sessions {
		if !now.Before(exp) {
			delete(a.sessions, tok)
		}
	}
}

func requireAdmin(actor domain.Actor, action string) error {
	if !actor.Admin {
		return domain.Forbiddenf("%s requires administrator access", action)
	}
	return nil
}
