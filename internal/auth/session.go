// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session token")

type sessionClaims struct {
	Name     string `json:"name,omitempty"`
	DeptCode string `json:"dept_cd,omitempty"`
	DeptName string `json:"dept_nm,omitempty"`
	jwt.RegisteredClaims
}

// Sessions signs and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewSessions(secret, issuer string) *Sessions {
	return &Sessions{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs a token for the principal that expires after ttl.
func (s *Sessions) Issue(p Principal, ttl time.Duration) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidSession)
	}
	if len(s.secret) == 0 {
		return "", errors.New("session secret is not configured")
	}

	now := s.now()
	claims := sessionClaims{
		Name:     p.Name,
		DeptCode: p.DeptCode,
		DeptName: p.DeptName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Resolve verifies a bearer token and returns its principal.
func (s *Sessions) Resolve(token string) (Principal, error) {
	if token == "" || len(s.secret) == 0 {
		return Principal{}, ErrInvalidSession
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims sessionClaims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, fmt.Errorf("%w: empty subject", ErrInvalidSession)
	}

	return Principal{
		UserID:   claims.Subject,
		Name:     claims.Name,
		DeptCode: claims.DeptCode,
		DeptName: claims.DeptName,
	}, nil
}
