package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/fdms/services/admin/internal/infrastructure"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthService issues and validates the bearer credentials guarding every
// control-plane operation except login. Sessions are durable rows; Redis
// sits in front of the table as a cache-aside and may be nil.
type AuthService struct {
	store      DataStore
	cache      *infrastructure.Cache
	audit      *AuditRecorder
	logger     *logrus.Logger
	sessionTTL time.Duration
	bcryptCost int
}

func NewAuthService(store DataStore, cache *infrastructure.Cache, audit *AuditRecorder, logger *logrus.Logger, sessionTTL time.Duration, bcryptCost int) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		store:      store,
		cache:      cache,
		audit:      audit,
		logger:     logger,
		sessionTTL: sessionTTL,
		bcryptCost: bcryptCost,
	}
}

// LoginResult is the credential handed to the caller at authentication.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// Login verifies the password and issues a session. A failed lookup and a
// failed password compare produce the same error so usernames cannot be
// probed. Successful logins are audited with the source IP.
func (s *AuthService) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	user, err := s.store.GetAdminUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &AdminSession{
		Token:     hex.EncodeToString(tokenBytes),
		Username:  user.Username,
		Role:      user.Role,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}

	var entry *AuditLog
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx DataStore) error {
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		entry = &AuditLog{
			EntityType: EntityTypeSession,
			Action:     ActionLogin,
			IPAddress:  ip,
			Details:    fmt.Sprintf("user %s logged in", user.Username),
		}
		return s.audit.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Export(entry)
	s.cacheSession(ctx, session)

	s.logger.WithField("username", user.Username).Info("Admin login")

	return &LoginResult{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Username:  session.Username,
		Role:      session.Role,
	}, nil
}

// ValidateToken resolves a bearer token to its session, cache first. An
// expired session forces re-authentication.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*AdminSession, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	if cached := s.getCachedSession(ctx, token); cached != nil {
		if cached.ExpiresAt.Before(time.Now()) {
			return nil, ErrSessionExpired
		}
		return cached, nil
	}

	session, err := s.store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if session.ExpiresAt.Before(time.Now()) {
		return nil, ErrSessionExpired
	}

	s.cacheSession(ctx, session)
	return session, nil
}

// CreateUser registers an admin account. Used by the migrate seed and the
// admin CLI; not exposed over HTTP.
func (s *AuthService) CreateUser(ctx context.Context, username, password, role string) (*AdminUser, error) {
	if username == "" {
		return nil, validationf("username is required")
	}
	if len(password) < 8 {
		return nil, validationf("password must be at least 8 characters")
	}
	if role == "" {
		role = RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &AdminUser{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateAdminUser(ctx, user); err != nil {
		if IsUniqueViolation(err) {
			return nil, conflictf("username %q already exists", username)
		}
		return nil, err
	}
	return user, nil
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) error {
	return s.store.DeleteExpiredSessions(ctx, time.Now())
}

func (s *AuthService) cacheSession(ctx context.Context, session *AdminSession) {
	if s.cache == nil {
		return
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	data, _ := json.Marshal(session)
	if err := s.cache.Set(ctx, sessionCacheKey(session.Token), string(data), ttl); err != nil {
		s.logger.WithError(err).Warn("Failed to cache session")
	}
}

func (s *AuthService) getCachedSession(ctx context.Context, token string) *AdminSession {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, sessionCacheKey(token))
	if err != nil {
		return nil
	}
	var session AdminSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil
	}
	return &session
}

func sessionCacheKey(token string) string {
	return fmt.Sprintf("admin_session:%s", token)
}
