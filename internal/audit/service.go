package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for standalone audit events.
//
// It MUST be append-only. Events that belong to a larger transaction
// (enrollment) are written by that transaction, not through this interface.
type Repository interface {
	AppendEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, f Filter) ([]Event, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NewEvent builds a validated event stamped with an id and the current time.
func (s *Service) NewEvent(actorID *int64, action Action, details map[string]any) (Event, error) {
	if !action.Valid() {
		return Event{}, fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, action)
	}
	if action.EstablishesIdentity() && actorID == nil {
		return Event{}, fmt.Errorf("%w: %s requires an actor", ErrInvalidEvent, action)
	}
	return Event{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		CreatedAt: s.clock().UTC(),
	}, nil
}

// Append validates and persists e. Missing id/timestamp are filled in.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if !e.Action.Valid() {
		return ErrInvalidEvent
	}
	if e.Action.EstablishesIdentity() && e.ActorID == nil {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.AppendEvent(ctx, e)
}

// Record is NewEvent followed by Append.
func (s *Service) Record(ctx context.Context, actorID *int64, action Action, details map[string]any, ip string) error {
	e, err := s.NewEvent(actorID, action, details)
	if err != nil {
		return err
	}
	e.IPAddress = ip
	return s.Append(ctx, e)
}

// List returns events newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if f.Action != "" && !f.Action.Valid() {
		return nil, ErrInvalidEvent
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListEvents(ctx, f)
}
