// Package auth verifies the bearer tokens carried by scanner staff.
//
// Tokens are HS256 JWTs with the staff id in an "id" claim and the staff
// type in "type". Issuing tokens is a dev convenience; in production they
// come from the external staff login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer           = "checkin"
	StaffTypeScanner = "Scanner Staff"
)

var (
	ErrMissingSecret = errors.New("auth secret is not configured")
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	StaffID int64  `json:"id"`
	Type    string `json:"type"`
	jwt.RegisteredClaims
}

// Staff is the authenticated identity attached to a request.
type Staff struct {
	ID   int64
	Type string
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for staffID valid for ttl.
func (v *Verifier) Issue(staffID int64, staffType string, ttl time.Duration) (string, error) {
	if staffID <= 0 {
		return "", errors.New("staff id must be positive")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	if staffType == "" {
		staffType = StaffTypeScanner
	}

	now := v.now().UTC()
	claims := Claims{
		StaffID: staffID,
		Type:    staffType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(staffID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the staff
// identity. Every failure is reported as ErrInvalidToken.
func (v *Verifier) Verify(token string) (Staff, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Staff{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return Staff{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.StaffID <= 0 {
		return Staff{}, ErrInvalidToken
	}
	return Staff{ID: claims.StaffID, Type: claims.Type}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer …" value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type ctxKey struct{}

func ContextWithStaff(ctx context.Context, s Staff) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func StaffFromContext(ctx context.Context) (Staff, bool) {
	s, ok := ctx.Value(ctxKey{}).(Staff)
	return s, ok
}

// StaffIDFromContext returns the staff id for the completion record, or
// nil when the request is anonymous.
func StaffIDFromContext(ctx context.Context) *int64 {
	s, ok := StaffFromContext(ctx)
	if !ok {
		return nil
	}
	id := s.ID
	return &id
}
