package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("another login is already active, please contact admin to reset")
	ErrSessionInvalidated   = errors.New("session invalidated")
)

// TokenType distinguishes learner vs admin tokens.
type TokenType string

const (
	TokenTypeLearner TokenType = "learner"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int       `json:"user_id"`
}

// LearnerStore looks up learner accounts.
type LearnerStore interface {
	GetByID(ctx context.Context, id int) (*model.Learner, error)
	GetByEmail(ctx context.Context, email string) (*model.Learner, error)
	Create(ctx context.Context, l *model.Learner) error
}

// AuthService handles authentication, JWT, and single-device login tracking.
type AuthService struct {
	cfg      *config.Config
	rdb      *redis.Client
	learners LearnerStore
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, learners LearnerStore) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, learners: learners}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Authenticate resolves an account by email and verifies its password.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.Learner, error) {
	l, err := s.learners.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckPassword(l.PasswordHash, password); err != nil {
		return nil, err
	}
	return l, nil
}

// Register creates a learner account from a self-registration. Registered
// accounts are never admins; the store reports duplicate emails.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.Learner, error) {
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	l := &model.Learner{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
	}
	if err := s.learners.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Profile returns the account behind a token.
func (s *AuthService) Profile(ctx context.Context, claims *Claims) (*model.Learner, error) {
	return s.learners.GetByID(ctx, claims.UserID)
}

// IssueToken creates a JWT for the account. Learner logins are registered in
// Redis and rejected while another login is active; admins are not tracked.
func (s *AuthService) IssueToken(ctx context.Context, l *model.Learner) (string, error) {
	if l.IsAdmin {
		return s.sign(l.ID, TokenTypeAdmin, uuid.New().String())
	}

	loginKey := config.CacheKey.LearnerLoginKey(l.ID)

	existing, err := s.rdb.Get(ctx, loginKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("check login: %w", err)
	}
	if existing != "" {
		return "", ErrSessionAlreadyActive
	}

	jti := uuid.New().String()
	signed, err := s.sign(l.ID, TokenTypeLearner, jti)
	if err != nil {
		return "", err
	}

	// Store the login with the same expiry as the JWT.
	if err := s.rdb.Set(ctx, loginKey, jti, s.cfg.JWTExpiry).Err(); err != nil {
		return "", fmt.Errorf("store login: %w", err)
	}
	return signed, nil
}

func (s *AuthService) sign(userID int, typ TokenType, jti string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: typ,
		UserID:    userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateLearnerLogin checks that the token's JTI matches the active login in Redis.
func (s *AuthService) ValidateLearnerLogin(ctx context.Context, learnerID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.LearnerLoginKey(learnerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionInvalidated
		}
		return fmt.Errorf("check login: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// ResetLearnerLogin removes a learner's login from Redis, allowing a new one.
func (s *AuthService) ResetLearnerLogin(ctx context.Context, learnerID int) error {
	return s.rdb.Del(ctx, config.CacheKey.LearnerLoginKey(learnerID)).Err()
}
