package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	// RoleService is used by the worker and CLI when they call the backend.
	RoleService = "service"
)

// Token is a signed access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an access token for subject with role.
func Issue(subject, role, issuer, key string, ttl time.Duration) (Token, error) {
	if subject == "" || role == "" {
		return Token{}, errors.New("subject and role required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// ServiceTokens mints service-role tokens for outbound calls and re-issues
// them shortly before they expire.
type ServiceTokens struct {
	subject, issuer, key string
	ttl                  time.Duration

	mu      sync.Mutex
	current Token
	now     func() time.Time
}

func NewServiceTokens(subject, issuer, key string, ttl time.Duration) *ServiceTokens {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ServiceTokens{subject: subject, issuer: issuer, key: key, ttl: ttl, now: time.Now}
}

// Token returns a signed token valid for at least a tenth of the ttl.
func (s *ServiceTokens) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Value != "" && s.now().Add(s.ttl/10).Before(s.current.ExpiresAt) {
		return s.current.Value, nil
	}
	tok, err := Issue(s.subject, RoleService, s.issuer, s.key, s.ttl)
	if err != nil {
		return "", err
	}
	s.current = tok
	return tok.Value, nil
}
