package entitlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aura-webinar/livecore/internal/models"
)

// TicketFetcher loads the caller's tickets for an event from the backend.
type TicketFetcher interface {
	ListTickets(ctx context.Context, eventID uuid.UUID) ([]models.Ticket, error)
}

// Store holds Event and Ticket snapshots. Snapshots are replaced wholesale, never patched.
// With a fetcher set, a missing ticket snapshot is loaded on first lookup.
type Store struct {
	mu      sync.RWMutex
	events  map[uuid.UUID]models.Event
	tickets map[uuid.UUID][]models.Ticket // event id -> tickets
	fetcher TicketFetcher
}

// NewStore creates an empty store. fetcher may be nil.
func NewStore(fetcher TicketFetcher) *Store {
	return &Store{
		events:  make(map[uuid.UUID]models.Event),
		tickets: make(map[uuid.UUID][]models.Ticket),
		fetcher: fetcher,
	}
}

// PutEvent replaces the snapshot for e.ID.
func (s *Store) PutEvent(e models.Event) {
	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()
}

// Event returns the snapshot for id.
func (s *Store) Event(id uuid.UUID) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	return e, ok
}

// PutTickets replaces the ticket snapshot for an event.
func (s *Store) PutTickets(eventID uuid.UUID, tickets []models.Ticket) {
	cp := make([]models.Ticket, len(tickets))
	copy(cp, tickets)
	s.mu.Lock()
	s.tickets[eventID] = cp
	s.mu.Unlock()
}

// Ticket finds a ticket by id across all snapshots.
func (s *Store) Ticket(id uuid.UUID) (models.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range s.tickets {
		for _, t := range list {
			if t.ID == id {
				return t, true
			}
		}
	}
	return models.Ticket{}, false
}

// Refresh reloads the ticket snapshot for an event from the fetcher.
func (s *Store) Refresh(ctx context.Context, eventID uuid.UUID) error {
	if s.fetcher == nil {
		return nil
	}
	list, err := s.fetcher.ListTickets(ctx, eventID)
	if err != nil {
		return fmt.Errorf("refresh tickets: %w", err)
	}
	s.PutTickets(eventID, list)
	return nil
}

// TicketsFor returns the tickets for eventID owned by ownerID, loading the snapshot if absent.
func (s *Store) TicketsFor(ctx context.Context, eventID, ownerID uuid.UUID) ([]models.Ticket, error) {
	s.mu.RLock()
	list, ok := s.tickets[eventID]
	s.mu.RUnlock()
	if !ok && s.fetcher != nil {
		if err := s.Refresh(ctx, eventID); err != nil {
			return nil, err
		}
		s.mu.RLock()
		list = s.tickets[eventID]
		s.mu.RUnlock()
	}
	var out []models.Ticket
	for _, t := range list {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}
