package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	DefaultMaxSessionAge  = 24 * time.Hour
	DefaultRenewThreshold = 2 * time.Hour
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrRenewalFailed  = errors.New("session renewal failed")
	ErrInvalidSession = errors.New("invalid session")
)

// Refresher renews the upstream credentials behind a session
type Refresher interface {
	Refresh(ctx context.Context, userID string) error
}

// SessionConfig tunes session aging
type SessionConfig struct {
	Secret         []byte
	MaxAge         time.Duration
	RenewThreshold time.Duration
	Issuer         string
}

// Session is a decoded session token
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Renewed   bool      `json:"renewed"`
}

// SessionClaims are the JWT claims of a session token. IssuedAt is the
// session creation time.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionManager issues session tokens and enforces their maximum age,
// renewing sessions that are close to expiry
type SessionManager struct {
	secret         []byte
	maxAge         time.Duration
	renewThreshold time.Duration
	issuer         string

	clock     clock.Clock
	audit     AuditSink
	refresher Refresher
	log       *logger.FieldLogger
}

// NewSessionManager creates a session manager; audit and refresher may be nil
func NewSessionManager(cfg SessionConfig, clk clock.Clock, audit AuditSink, refresher Refresher) *SessionManager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxSessionAge
	}
	if cfg.RenewThreshold <= 0 {
		cfg.RenewThreshold = DefaultRenewThreshold
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "depositdigest"
	}

	return &SessionManager{
		secret:         cfg.Secret,
		maxAge:         cfg.MaxAge,
		renewThreshold: cfg.RenewThreshold,
		issuer:         cfg.Issuer,
		clock:          clk,
		audit:          audit,
		refresher:      refresher,
		log:            logger.ForComponent("sessions"),
	}
}

// Issue creates a new session for userID starting now
func (s *SessionManager) Issue(userID string) (Session, error) {
	createdAt := s.clock.Now().Truncate(time.Second)
	expiresAt := createdAt.Add(s.maxAge)

	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(createdAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}

	return Session{Token: token, UserID: userID, CreatedAt: createdAt, ExpiresAt: expiresAt}, nil
}

// Validate decodes token and checks its age. A session older than the
// maximum age fails with ErrSessionExpired. A session whose remaining life is
// below the renew threshold is renewed; if renewal fails the user is logged
// out and ErrRenewalFailed is returned.
func (s *SessionManager) Validate(ctx context.Context, token string) (Session, error) {
	now := s.clock.Now()

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.expired(claims.UserID, claims.IssuedAt)
			return Session{}, ErrSessionExpired
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.IssuedAt == nil {
		return Session{}, fmt.Errorf("%w: missing issued-at", ErrInvalidSession)
	}

	createdAt := claims.IssuedAt.Time
	age := now.Sub(createdAt)
	if age >= s.maxAge {
		s.expired(claims.UserID, claims.IssuedAt)
		return Session{}, ErrSessionExpired
	}

	session := Session{
		Token:     token,
		UserID:    claims.UserID,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(s.maxAge),
	}

	if s.maxAge-age >= s.renewThreshold {
		return session, nil
	}
	return s.renew(ctx, session)
}

func (s *SessionManager) renew(ctx context.Context, session Session) (Session, error) {
	if s.refresher != nil {
		if err := s.refresher.Refresh(ctx, session.UserID); err != nil {
			return Session{}, s.forceLogout(session, err)
		}
	}

	renewed, err := s.Issue(session.UserID)
	if err != nil {
		return Session{}, s.forceLogout(session, err)
	}
	renewed.Renewed = true

	s.emit(models.SecurityEvent{
		UserID:      session.UserID,
		EventType:   models.EventSessionRenewed,
		Description: "Session renewed before expiry",
		Severity:    models.SeverityLow,
		Metadata: map[string]interface{}{
			"previous_created_at": session.CreatedAt.Format(time.RFC3339),
		},
	})
	return renewed, nil
}

func (s *SessionManager) forceLogout(session Session, cause error) error {
	s.log.Warn("Session renewal failed, forcing logout", map[string]interface{}{
		"user_id": session.UserID,
		"error":   cause.Error(),
	})
	s.emit(models.SecurityEvent{
		UserID:      session.UserID,
		EventType:   models.EventForcedLogout,
		Description: "Forced logout after session renewal failure",
		Severity:    models.SeverityHigh,
		Metadata:    map[string]interface{}{"error": cause.Error()},
	})
	return fmt.Errorf("%w: %v", ErrRenewalFailed, cause)
}

func (s *SessionManager) expired(userID string, issuedAt *jwt.NumericDate) {
	meta := map[string]interface{}{}
	if issuedAt != nil {
		meta["created_at"] = issuedAt.Time.Format(time.RFC3339)
	}
	s.emit(models.SecurityEvent{
		UserID:      userID,
		EventType:   models.EventSessionExpired,
		Description: "Session exceeded maximum age",
		Severity:    models.SeverityMedium,
		Metadata:    meta,
	})
}

func (s *SessionManager) emit(ev models.SecurityEvent) {
	if s.audit == nil {
		return
	}
	s.audit.LogSecurityEvent(ev)
}
