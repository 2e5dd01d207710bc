// Package auth resolves the participant behind an HTTP request. Issuing
// sessions belongs to an external collaborator; this package only reads them
// (plus the small helpers tests and the CLI need to mint one).
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nfrund/roomchat/internal/domain"
)

// Provider resolves the session of a request. A request without one yields
// an error wrapping domain.ErrNoSession.
type Provider interface {
	SessionFromRequest(r *http.Request) (*domain.Session, error)
}

// Chain tries providers in order and returns the first session found.
type Chain []Provider

var _ Provider = Chain(nil)

// SessionFromRequest implements Provider.
func (c Chain) SessionFromRequest(r *http.Request) (*domain.Session, error) {
	var errs []error
	for _, p := range c {
		s, err := p.SessionFromRequest(r)
		if err == nil {
			return s, nil
		}
		if !isAbsent(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoSession, errors.Join(errs...))
	}
	return nil, domain.ErrNoSession
}

// errAbsent marks "no credentials at all", as opposed to bad credentials.
var errAbsent = errors.New("no credentials")

func absent(source string) error {
	return fmt.Errorf("%s: %w: %w", source, domain.ErrNoSession, errAbsent)
}

func isAbsent(err error) bool { return errors.Is(err, errAbsent) }

func invalid(source string, err error) error {
	return fmt.Errorf("%s: %w: %w", source, domain.ErrNoSession, err)
}
