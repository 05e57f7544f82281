package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingSub   = errors.New("token has no subject")
)

// Claims are the identity provider's access token claims. Only the subject
// matters here: it is the actor id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies identity provider access tokens.
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, *Claims, error)
}

type jwtValidator struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewJWTValidator returns an HS256 validator for tokens issued by the
// identity provider with the shared secret.
func NewJWTValidator(secret, audience string, leeway time.Duration) TokenValidator {
	return &jwtValidator{
		secret:   []byte(secret),
		audience: audience,
		leeway:   leeway,
	}
}

func (v *jwtValidator) ValidateToken(tokenString string) (uuid.UUID, *Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return uuid.Nil, nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return uuid.Nil, nil, ErrMissingSub
	}
	actorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	return actorID, claims, nil
}

// SignToken issues an HS256 token for actorID. Used by tooling and tests;
// production tokens come from the identity provider.
func SignToken(secret string, actorID uuid.UUID, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
