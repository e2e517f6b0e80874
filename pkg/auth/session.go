package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"meerchat/pkg/models"
)

const issuerName = "meerchat"

// Session is an issued access token and what it asserts.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	JTI         string    `json:"-"`
}

// Claims is the access token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}
}

func (i *Issuer) Issue(u models.User) (Session, error) {
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	jti := uuid.NewString()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   u.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(i.ttl / time.Second),
		ExpiresAt:   exp,
		UserID:      u.ID,
		Email:       u.Email,
		JTI:         jti,
	}, nil
}

// Parse verifies the signature and expiry. Revocation is checked by Service.
func (i *Issuer) Parse(token string) (Session, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Session{}, errors.Join(ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return Session{}, ErrUnauthorized
	}
	exp := claims.ExpiresAt.Time.UTC()
	return Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(exp.Sub(i.now()) / time.Second),
		ExpiresAt:   exp,
		UserID:      claims.Subject,
		Email:       claims.Email,
		JTI:         claims.ID,
	}, nil
}

// stateClaims protect the oauth round trip.
type stateClaims struct {
	Provider string `json:"provider"`
	Next     string `json:"next,omitempty"`
	jwt.RegisteredClaims
}

const stateTTL = 10 * time.Minute

func (i *Issuer) signState(provider, next string) (string, error) {
	now := i.now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		Provider: provider,
		Next:     next,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Audience:  jwt.ClaimStrings{"oauth-state"},
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}).SignedString(i.secret)
}

func (i *Issuer) parseState(state, provider string) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience("oauth-state"),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || claims.Provider != provider {
		return "", ErrOAuthState
	}
	return claims.Next, nil
}
