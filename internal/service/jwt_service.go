package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"config-codex/internal/domain"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeBearer  = "Bearer"
)

// JWTService emite y valida tokens JWT firmados con HS256.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AccessClaims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	IsStaff       bool   `json:"is_staff"`
	IsSuperuser   bool   `json:"is_superuser"`
	EmailVerified bool   `json:"email_verified"`
	TokenType     string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims lleva el jti en RegisteredClaims.ID.
type RefreshClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return NewJWTServiceWithClock(secret, accessTTL, refreshTTL, nil)
}

// NewJWTServiceWithClock permite inyectar el reloj usado al emitir y validar.
func NewJWTServiceWithClock(secret string, accessTTL, refreshTTL time.Duration, now func() time.Time) *JWTService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}
}

func (s *JWTService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *JWTService) GeneratePair(user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrTokenInvalid
	}
	now := s.issuedAt()
	access, err := s.signAccessToken(user, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.signRefreshToken(user, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// GenerateAccess emite solo un access token; el refresh token no rota.
func (s *JWTService) GenerateAccess(user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrTokenInvalid
	}
	access, err := s.signAccessToken(user, s.issuedAt())
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken: access,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *JWTService) ValidateAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(token, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return AccessClaims{}, ErrTokenTypeMismatch
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return AccessClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) ValidateRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(token, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return RefreshClaims{}, ErrTokenTypeMismatch
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return RefreshClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) issuedAt() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *JWTService) signAccessToken(user domain.User, now time.Time) (string, error) {
	claims := AccessClaims{
		UserID:        user.ID,
		Email:         user.Email,
		Username:      user.Username,
		IsStaff:       user.IsStaff,
		IsSuperuser:   user.IsSuperuser,
		EmailVerified: user.EmailVerified,
		TokenType:     tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTService) signRefreshToken(user domain.User, now time.Time) (string, error) {
	claims := RefreshClaims{
		UserID:    user.ID,
		Email:     user.Email,
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.refreshJTI(user.ID, now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// refreshJTI identifica el refresh token. No se consulta contra ningún store.
func (s *JWTService) refreshJTI(userID string, issuedAt time.Time) string {
	sum := sha256.Sum256([]byte(userID + ":" + issuedAt.UTC().Format(time.RFC3339) + ":" + string(s.secret)))
	return hex.EncodeToString(sum[:])[:16]
}

func (s *JWTService) parse(token string, claims jwt.Claims) error {
	if len(s.secret) == 0 || strings.TrimSpace(token) == "" {
		return ErrTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return nil
}
