package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = domain.Session{ParticipantID: "alice", DisplayName: "Alice", AvatarRef: "https://example.test/a.png"}

func signedInRequest(t *testing.T, p *CookieProvider, s domain.Session) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, p.SignIn(rec, httptest.NewRequest(http.MethodPost, "/", nil), s))

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/general/messages", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestCookieProvider(t *testing.T) {
	p := NewCookieProvider("0123456789abcdef0123456789abcdef")

	t.Run("round trip", func(t *testing.T) {
		got, err := p.SessionFromRequest(signedInRequest(t, p, alice))
		require.NoError(t, err)
		assert.Equal(t, alice, *got)
	})

	t.Run("no cookie", func(t *testing.T) {
		_, err := p.SessionFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, domain.ErrNoSession)
		assert.True(t, isAbsent(err))
	})

	t.Run("cookie signed with another secret", func(t *testing.T) {
		other := NewCookieProvider("another-secret-another-secret-xx")
		_, err := p.SessionFromRequest(signedInRequest(t, other, alice))
		assert.ErrorIs(t, err, domain.ErrNoSession)
		assert.False(t, isAbsent(err))
	})
}

func TestTokenProvider(t *testing.T) {
	p := NewTokenProvider("token-secret")
	token, err := p.Issue(alice, time.Hour)
	require.NoError(t, err)

	t.Run("authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		got, err := p.SessionFromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, alice, *got)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws/rooms/general?token="+token, nil)
		got, err := p.SessionFromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.ParticipantID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := p.SessionFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, domain.ErrNoSession)
		assert.True(t, isAbsent(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenProvider("other").Parse(token)
		assert.ErrorIs(t, err, domain.ErrNoSession)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokenProvider("token-secret")
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unsigned token", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "mallory", Issuer: tokenIssuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = p.Parse(unsigned)
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})

	t.Run("cannot issue without participant", func(t *testing.T) {
		_, err := p.Issue(domain.Session{}, time.Hour)
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})
}

func TestChain(t *testing.T) {
	cookies := NewCookieProvider("0123456789abcdef0123456789abcdef")
	tokens := NewTokenProvider("token-secret")
	chain := Chain{cookies, tokens}

	t.Run("falls through to token", func(t *testing.T) {
		token, err := tokens.Issue(alice, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		got, err := chain.SessionFromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.ParticipantID)
	})

	t.Run("cookie wins", func(t *testing.T) {
		got, err := chain.SessionFromRequest(signedInRequest(t, cookies, domain.Session{ParticipantID: "bob"}))
		require.NoError(t, err)
		assert.Equal(t, "bob", got.ParticipantID)
	})

	t.Run("nothing presented", func(t *testing.T) {
		_, err := chain.SessionFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, errors.Is(err, domain.ErrNoSession))
	})

	t.Run("bad token is reported", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		_, err := chain.SessionFromRequest(req)
		assert.ErrorIs(t, err, domain.ErrNoSession)
		assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
	})
}
