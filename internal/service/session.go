package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
)

// Principal is the CRM user behind a management API session.
type Principal struct {
	UserID    int64
	AccountID int64
	Email     string
}

// SessionService verifies the HS256 session tokens the CRM issues to its
// users. Key management is only reachable with a valid session.
type SessionService struct {
	secret []byte
	issuer string
	now    Clock
}

// NewSessionService creates a verifier for tokens signed with secret.
func NewSessionService(secret, issuer string) *SessionService {
	return &SessionService{secret: []byte(secret), issuer: issuer, now: SystemClock}
}

type sessionClaims struct {
	UserID    int64  `json:"user_id"`
	AccountID int64  `json:"account_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Validate verifies a bearer token and returns its principal.
func (s *SessionService) Validate(tokenStr string) (*Principal, error) {
	claims := &sessionClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}
	if !token.Valid || claims.AccountID == 0 {
		return nil, ErrInvalidCredentials
	}

	return &Principal{
		UserID:    claims.UserID,
		AccountID: claims.AccountID,
		Email:     claims.Email,
	}, nil
}

// Issue signs a session token. The CRM login flow owns issuance in
// production; this is used by the CLI and tests.
func (s *SessionService) Issue(p Principal, ttl time.Duration) (string, error) {
	if p.AccountID == 0 {
		return "", errors.New("issue token: account id is required")
	}
	now := s.now()
	claims := sessionClaims{
		UserID:    p.UserID,
		AccountID: p.AccountID,
		Email:     p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(p.UserID, 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
