package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrNoUser = errors.New("token carries no user id")

type Claims struct {
	UserID   string `json:"id"`
	UserType string `json:"userType,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID.
func IssueToken(userID, userType, name, secret string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:   userID,
		UserType: userType,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ClaimsFromToken decodes a bearer token. With a secret the signature
// and expiry are verified; without one the claims are read as-is, which
// is all a client holding someone else's token can do.
func ClaimsFromToken(token, secret string) (Claims, error) {
	var c Claims
	var err error
	if secret == "" {
		_, _, err = jwt.NewParser().ParseUnverified(token, &c)
	} else {
		_, err = jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if c.UserID == "" {
		return Claims{}, ErrNoUser
	}
	return c, nil
}

// Resolve picks the identity for this run: an explicit user id wins,
// then the token's claims, then the stored identity, and finally a fresh
// id. The result is saved back to the store.
func Resolve(s *Store, userOverride, token, secret string) (Identity, error) {
	saved, ok, err := s.Load()
	if err != nil {
		return Identity{}, err
	}
	id := saved
	if token != "" {
		id.Token = token
		if c, err := ClaimsFromToken(token, secret); err == nil {
			id.UserID = c.UserID
			if c.Name != "" {
				id.Name = c.Name
			}
		} else if secret != "" {
			return Identity{}, err
		}
	}
	if userOverride != "" {
		id.UserID = userOverride
	}
	if id.UserID == "" {
		id.UserID = uuid.NewString()
	}
	if !ok || id != saved {
		if err := s.Save(id); err != nil {
			return Identity{}, err
		}
	}
	return id, nil
}
