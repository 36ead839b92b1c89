package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	jwt "github.com/golang-jwt/jwt/v4"
)

const defaultSessionTTL = 5 * 24 * time.Hour

// SessionClaims is the payload carried by storefront session tokens.
type SessionClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionVerifier validates HS256 session tokens and exposes them in the same decoded shape as Firebase
// ID tokens so one Authenticator serves both providers.
type SessionVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SessionOption customises SessionVerifier instances.
type SessionOption func(*SessionVerifier)

// WithSessionIssuer sets the issuer written to and required from session tokens.
func WithSessionIssuer(issuer string) SessionOption {
	return func(v *SessionVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithSessionTTL overrides the lifetime of issued session tokens.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(v *SessionVerifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithSessionClock overrides the clock used when issuing tokens.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(v *SessionVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewSessionVerifier constructs a verifier for tokens signed with secret.
func NewSessionVerifier(secret string, opts ...SessionOption) (*SessionVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: session secret is required")
	}
	v := &SessionVerifier{
		secret: []byte(secret),
		ttl:    defaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Issue signs a session token for the identity.
func (v *SessionVerifier) Issue(userID, email, role string) (string, error) {
	if v == nil {
		return "", errors.New("auth: session verifier not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: session user id is required")
	}
	now := v.now().UTC()
	claims := SessionClaims{
		UserID: userID,
		Email:  strings.TrimSpace(email),
		Role:   normaliseRole(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return signed, nil
}

// VerifyIDToken validates the signature, expiry, and issuer of a session token.
func (v *SessionVerifier) VerifyIDToken(ctx context.Context, raw string) (*firebaseauth.Token, error) {
	if v == nil {
		return nil, errors.New("auth: session verifier not initialised")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}

	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	decoded := &firebaseauth.Token{
		UID:     uid,
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Claims: map[string]interface{}{
			defaultEmailClaim: claims.Email,
		},
	}
	if claims.Role != "" {
		decoded.Claims[defaultRoleClaim] = claims.Role
	}
	if claims.IssuedAt != nil {
		decoded.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		decoded.Expires = claims.ExpiresAt.Unix()
	}
	return decoded, nil
}
