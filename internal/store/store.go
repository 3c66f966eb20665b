package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stagehand/internal/domain"
)

var ErrNotFound = errors.New("action not found")

// Persister mirrors the in-memory collection to durable storage. Save always
// receives the entire ordered record set.
type Persister interface {
	LoadActions(ctx context.Context) ([]domain.Action, error)
	SaveActions(ctx context.Context, actions []domain.Action) error
}

// Store owns the action collection. All reads return deep copies so callers
// can edit without touching stored state; mutations validate, then persist the
// whole set before the in-memory collection is replaced.
//
// The single-threaded execution model means mutations are invoked one at a
// time; the store carries no locking of its own.
type Store struct {
	persister Persister
	actions   []domain.Action
}

// Open loads the persisted action set into memory.
func Open(ctx context.Context, p Persister) (*Store, error) {
	actions, err := p.LoadActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	return &Store{persister: p, actions: actions}, nil
}

// List returns all actions in insertion order.
func (s *Store) List() []domain.Action {
	out := make([]domain.Action, len(s.actions))
	for i, a := range s.actions {
		out[i] = a.Clone()
	}
	return out
}

// Get returns one action by id.
func (s *Store) Get(id string) (domain.Action, error) {
	for _, a := range s.actions {
		if a.ID == id {
			return a.Clone(), nil
		}
	}
	return domain.Action{}, ErrNotFound
}

// Create validates and appends a new action, assigning an id if absent.
func (s *Store) Create(ctx context.Context, a domain.Action) (domain.Action, error) {
	if err := a.Validate(); err != nil {
		return domain.Action{}, err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	} else if _, err := s.Get(a.ID); err == nil {
		return domain.Action{}, fmt.Errorf("action %s already exists", a.ID)
	}
	next := append(s.snapshot(), a.Clone())
	if err := s.persister.SaveActions(ctx, next); err != nil {
		return domain.Action{}, fmt.Errorf("save actions: %w", err)
	}
	s.actions = next
	return a, nil
}

// Update replaces an existing action in place. The id is immutable and the
// action keeps its position in the collection.
func (s *Store) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	if a.ID == "" {
		return domain.Action{}, domain.ValidationError{Reason: "id is required for update"}
	}
	if err := a.Validate(); err != nil {
		return domain.Action{}, err
	}
	next := s.snapshot()
	found := false
	for i := range next {
		if next[i].ID == a.ID {
			next[i] = a.Clone()
			found = true
			break
		}
	}
	if !found {
		return domain.Action{}, ErrNotFound
	}
	if err := s.persister.SaveActions(ctx, next); err != nil {
		return domain.Action{}, fmt.Errorf("save actions: %w", err)
	}
	s.actions = next
	return a, nil
}

// Delete removes an action by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	next := s.snapshot()
	idx := -1
	for i := range next {
		if next[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	next = append(next[:idx], next[idx+1:]...)
	if err := s.persister.SaveActions(ctx, next); err != nil {
		return fmt.Errorf("save actions: %w", err)
	}
	s.actions = next
	return nil
}

// Replace overwrites the whole collection, used by bulk import. Every action
// is validated first; ids are assigned where absent.
func (s *Store) Replace(ctx context.Context, actions []domain.Action) error {
	next := make([]domain.Action, len(actions))
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		next[i] = a.Clone()
	}
	if err := s.persister.SaveActions(ctx, next); err != nil {
		return fmt.Errorf("save actions: %w", err)
	}
	s.actions = next
	return nil
}

func (s *Store) snapshot() []domain.Action {
	out := make([]domain.Action, len(s.actions))
	for i, a := range s.actions {
		out[i] = a.Clone()
	}
	return out
}
