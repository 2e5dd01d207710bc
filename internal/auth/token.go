package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/roomchat/internal/domain"
)

const tokenIssuer = "roomchat"

// Claims is the JWT payload carrying a session.
type Claims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// TokenProvider reads an HS256 bearer token from the Authorization header
// or, for websocket clients that cannot set headers, the token query parameter.
type TokenProvider struct {
	secret []byte
	now    func() time.Time
}

var _ Provider = (*TokenProvider)(nil)

// NewTokenProvider creates a provider that verifies tokens signed with secret.
func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for s that expires after ttl.
func (p *TokenProvider) Issue(s domain.Session, ttl time.Duration) (string, error) {
	if !s.Valid() {
		return "", domain.ErrNoSession
	}
	now := p.now()
	claims := &Claims{
		Name:   s.DisplayName,
		Avatar: s.AvatarRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ParticipantID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// SessionFromRequest implements Provider.
func (p *TokenProvider) SessionFromRequest(r *http.Request) (*domain.Session, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, absent("token")
	}
	return p.Parse(raw)
}

// Parse verifies a token and returns its session.
func (p *TokenProvider) Parse(raw string) (*domain.Session, error) {
	if len(p.secret) == 0 {
		return nil, invalid("token", errors.New("token signing secret not configured"))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, invalid("token", err)
	}
	if claims.Subject == "" {
		return nil, invalid("token", errors.New("token has no subject"))
	}
	return &domain.Session{ParticipantID: claims.Subject, DisplayName: claims.Name, AvatarRef: claims.Avatar}, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
