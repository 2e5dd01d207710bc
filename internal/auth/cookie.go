package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/nfrund/roomchat/internal/domain"
)

const (
	// CookieSessionName is the gorilla session holding the participant.
	CookieSessionName = "roomchat-session"

	keyParticipantID = "participant_id"
	keyDisplayName   = "display_name"
	keyAvatarRef     = "avatar_ref"
)

// CookieProvider reads the participant from a signed cookie session.
type CookieProvider struct {
	store sessions.Store
}

var _ Provider = (*CookieProvider)(nil)

// NewCookieProvider creates a provider with a cookie store keyed by secret.
func NewCookieProvider(secret string) *CookieProvider {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieProvider{store: store}
}

// Store exposes the underlying session store, for the echo session middleware.
func (p *CookieProvider) Store() sessions.Store { return p.store }

// SessionFromRequest implements Provider.
func (p *CookieProvider) SessionFromRequest(r *http.Request) (*domain.Session, error) {
	if _, err := r.Cookie(CookieSessionName); err != nil {
		return nil, absent("cookie")
	}
	sess, err := p.store.Get(r, CookieSessionName)
	if err != nil {
		return nil, invalid("cookie", err)
	}

	id, _ := sess.Values[keyParticipantID].(string)
	if id == "" {
		return nil, absent("cookie")
	}
	name, _ := sess.Values[keyDisplayName].(string)
	avatar, _ := sess.Values[keyAvatarRef].(string)
	return &domain.Session{ParticipantID: id, DisplayName: name, AvatarRef: avatar}, nil
}

// SignIn stores s in the cookie session.
func (p *CookieProvider) SignIn(w http.ResponseWriter, r *http.Request, s domain.Session) error {
	sess, err := p.store.Get(r, CookieSessionName)
	if err != nil && sess == nil {
		return err
	}
	sess.Values[keyParticipantID] = s.ParticipantID
	sess.Values[keyDisplayName] = s.DisplayName
	sess.Values[keyAvatarRef] = s.AvatarRef
	return sess.Save(r, w)
}

// SignOut expires the cookie session.
func SignOut(w http.ResponseWriter, r *http.Request, sess *sessions.Session) error {
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
