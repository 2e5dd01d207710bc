// Package store persists chat messages. Every backend assigns message ids,
// a per-room sequence and the creation time at write time.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/metrics"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"
)

// MessageStore is the durable message log.
type MessageStore interface {
	// Append validates and persists a draft, returning the stored message.
	Append(ctx context.Context, draft domain.Draft) (*domain.Message, error)
	// ListByRoom returns every message of room ordered by sequence.
	ListByRoom(ctx context.Context, room string) ([]domain.Message, error)
	// DeleteByID removes a message of room written by requesterID. A message
	// that exists in another room is reported as domain.ErrNotFound.
	DeleteByID(ctx context.Context, room, id, requesterID string) error
	// Close releases backend resources.
	Close() error
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NormalizeDraft trims and NFC-normalises the body and checks the draft.
// Failures wrap domain.ErrValidation.
func NormalizeDraft(d domain.Draft) (domain.Draft, error) {
	d.Body = norm.NFC.String(strings.TrimSpace(d.Body))
	if d.Body == "" {
		return d, fmt.Errorf("%w: message body is empty", domain.ErrValidation)
	}
	if err := draftValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return d, fmt.Errorf("%w: %s failed on %s", domain.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return d, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return d, nil
}

// newMessage builds the stored form of a normalised draft.
func newMessage(d domain.Draft, seq int64, now time.Time) domain.Message {
	return domain.Message{
		ID:           NewID(),
		Room:         d.Room,
		Seq:          seq,
		AuthorID:     d.AuthorID,
		AuthorName:   d.AuthorName,
		AuthorAvatar: d.AuthorAvatar,
		Body:         d.Body,
		CreatedAt:    now.UTC(),
	}
}

// NewID returns a new lexicographically sortable message id.
func NewID() string {
	return ulid.Make().String()
}

// unavailable wraps a backend failure so callers can match domain.ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// observe records latency and failures for one store operation. Domain
// outcomes such as not found or forbidden are not counted as errors.
func observe(backend, op string, start time.Time, err error) {
	metrics.StoreOperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if err != nil && errors.Is(err, domain.ErrStoreUnavailable) {
		metrics.StoreErrors.WithLabelValues(backend, op).Inc()
	}
}
