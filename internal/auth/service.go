// Package auth verifies credentials, issues and verifies bearer tokens, and watches
// for repeated failed logins.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"schoolreg/internal/audit"
	"schoolreg/internal/logging"
	"schoolreg/internal/metrics"
	"schoolreg/internal/users"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("insufficient permissions")
)

// UserLookup finds stored credentials.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (users.User, error)
}

// FailedLoginStore is the append-only log of failed attempts.
type FailedLoginStore interface {
	InsertFailedLogin(ctx context.Context, username, ip string, at time.Time) error
	CountFailedLogins(ctx context.Context, username, ip string, since time.Time) (int, error)
}

// Alert is raised when failed attempts for a username or address reach the threshold.
type Alert struct {
	Username string
	IP       string
	Attempts int
}

// Options configures a Service.
type Options struct {
	Issuer     string
	SigningKey string
	TokenTTL   time.Duration
	// Threshold and Window define the failed-login alert: Threshold attempts for the same
	// username or address inside the trailing Window.
	Threshold int
	Window    time.Duration
	// OnAlert is called once per threshold crossing, after the alert is logged. A pair stays
	// alerted while its count remains at or above Threshold, however long the attempts continue.
	OnAlert func(Alert)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      Identity
}

// Service authenticates users.
type Service struct {
	users    UserLookup
	failures FailedLoginStore
	audit    audit.Sink
	opts     Options
	now      func() time.Time

	mu sync.Mutex
	// alerted maps username+ip to the last attempt seen while the pair was over the threshold.
	alerted map[string]time.Time
}

// NewService builds a Service. Zero options fall back to a 24h token, 5 attempts and 15 minutes.
func NewService(u UserLookup, f FailedLoginStore, sink audit.Sink, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.Window <= 0 {
		opts.Window = 15 * time.Minute
	}
	return &Service{users: u, failures: f, audit: sink, opts: opts, now: time.Now, alerted: map[string]time.Time{}}
}

// Authenticate checks username and password and issues a token.
// Both an unknown user and a wrong password record a failed attempt and return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password, ip, userAgent string) (Session, error) {
	u, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, users.ErrNotFound):
		burnCompare(password)
		s.recordFailure(ctx, username, ip)
		return Session{}, ErrInvalidCredentials
	case err != nil:
		s.recordFailure(ctx, username, ip)
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if !CheckPassword(u.PasswordHash, password) {
		s.recordFailure(ctx, username, ip)
		return Session{}, ErrInvalidCredentials
	}

	id := Identity{ID: u.ID, Username: u.Username, Role: u.Role}
	token, exp, err := Issue(id, s.opts.Issuer, s.opts.SigningKey, s.opts.TokenTTL, s.now())
	if err != nil {
		return Session{}, err
	}

	uid := u.ID
	s.audit.Record(audit.Entry{
		Action:     audit.ActionLoginSuccess,
		UserID:     &uid,
		Username:   u.Username,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Method:     "POST",
		Path:       "/api/auth/login",
		StatusCode: 200,
	})
	return Session{Token: token, ExpiresAt: exp, User: id}, nil
}

// TrackFailedLogin appends a failed attempt and counts attempts for the username or the
// address inside the window. The alert fires when the count first reaches the threshold and
// re-arms only after an attempt sees the count below it again. Login is never blocked.
func (s *Service) TrackFailedLogin(ctx context.Context, username, ip string) (int, error) {
	now := s.now().UTC()
	metrics.FailedLogins.Inc()
	if err := s.failures.InsertFailedLogin(ctx, username, ip, now); err != nil {
		return 0, err
	}
	n, err := s.failures.CountFailedLogins(ctx, username, ip, now.Add(-s.opts.Window))
	if err != nil {
		return 0, err
	}
	if s.crossed(username+"\x00"+ip, n, now) {
		metrics.SecurityAlerts.Inc()
		logging.Warn().
			Str("username", username).
			Str("ip", ip).
			Int("attempts", n).
			Dur("window", s.opts.Window).
			Msg("security alert: repeated failed logins")
		if s.opts.OnAlert != nil {
			s.opts.OnAlert(Alert{Username: username, IP: ip, Attempts: n})
		}
	}
	return n, nil
}

// crossed records n for key and reports whether this attempt moved the pair over the threshold.
func (s *Service) crossed(key string, n int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < s.opts.Threshold {
		delete(s.alerted, key)
		return false
	}
	last, ok := s.alerted[key]
	s.alerted[key] = now
	if len(s.alerted) > 1024 {
		for k, t := range s.alerted {
			if now.Sub(t) > s.opts.Window {
				delete(s.alerted, k)
			}
		}
	}
	// A pair quiet for a whole window has necessarily dropped below the threshold.
	return !ok || now.Sub(last) > s.opts.Window
}

func (s *Service) recordFailure(ctx context.Context, username, ip string) {
	if _, err := s.TrackFailedLogin(ctx, username, ip); err != nil {
		logging.Error().Err(err).Str("username", username).Str("ip", ip).Msg("track failed login")
	}
}

// VerifyToken returns the identity asserted by a bearer token.
func (s *Service) VerifyToken(token string) (Identity, error) {
	claims, err := Parse(token, s.opts.SigningKey, s.opts.Issuer, s.now())
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

// CheckRole returns ErrForbidden unless id has one of roles. Roles are compared by equality.
func CheckRole(id Identity, roles ...string) error {
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
