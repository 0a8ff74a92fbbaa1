package pms

import (
	"context"
	"sync"
	"time"

	"meridian/internal/shared/otaxml"
)

type storedRecord[T any] struct {
	record    T
	updatedAt time.Time
}

// Store is the in-memory PMS backend used by tests and local runs. Seed the
// master data and changed records, then hand it to the modules.
type Store struct {
	mu           sync.Mutex
	properties   map[string]string // hotel code -> property id
	roomTypes    map[string]map[string]bool
	ratePlans    map[string]map[string]bool
	inventory    map[string][]storedRecord[otaxml.InventoryRecord]
	rates        map[string][]storedRecord[otaxml.RatePlanBlock]
	restrictions map[string][]storedRecord[otaxml.RestrictionRecord]
	reservations map[string]otaxml.Reservation
}

func NewStore() *Store {
	return &Store{
		properties:   make(map[string]string),
		roomTypes:    make(map[string]map[string]bool),
		ratePlans:    make(map[string]map[string]bool),
		inventory:    make(map[string][]storedRecord[otaxml.InventoryRecord]),
		rates:        make(map[string][]storedRecord[otaxml.RatePlanBlock]),
		restrictions: make(map[string][]storedRecord[otaxml.RestrictionRecord]),
		reservations: make(map[string]otaxml.Reservation),
	}
}

func (s *Store) SeedProperty(hotelCode, propertyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[hotelCode] = propertyID
}

func (s *Store) SeedRoomType(hotelCode, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomTypes[hotelCode] == nil {
		s.roomTypes[hotelCode] = make(map[string]bool)
	}
	s.roomTypes[hotelCode][code] = true
}

func (s *Store) SeedRatePlan(hotelCode, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ratePlans[hotelCode] == nil {
		s.ratePlans[hotelCode] = make(map[string]bool)
	}
	s.ratePlans[hotelCode][code] = true
}

func (s *Store) SeedInventory(propertyID string, record otaxml.InventoryRecord, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[propertyID] = append(s.inventory[propertyID], storedRecord[otaxml.InventoryRecord]{record, updatedAt})
}

func (s *Store) SeedRates(propertyID string, block otaxml.RatePlanBlock, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[propertyID] = append(s.rates[propertyID], storedRecord[otaxml.RatePlanBlock]{block, updatedAt})
}

func (s *Store) SeedRestriction(propertyID string, record otaxml.RestrictionRecord, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restrictions[propertyID] = append(s.restrictions[propertyID], storedRecord[otaxml.RestrictionRecord]{record, updatedAt})
}

func (s *Store) ChangedInventory(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.InventoryRecord, error) {
	return changed(s, s.inventory, propertyID, since), nil
}

func (s *Store) ChangedRates(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.RatePlanBlock, error) {
	return changed(s, s.rates, propertyID, since), nil
}

func (s *Store) ChangedRestrictions(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.RestrictionRecord, error) {
	return changed(s, s.restrictions, propertyID, since), nil
}

// The map index happens under the lock so concurrent Seed* appends cannot
// race the read.
func changed[T any](s *Store, records map[string][]storedRecord[T], propertyID string, since *time.Time) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for _, item := range records[propertyID] {
		if since != nil && !item.updatedAt.After(*since) {
			continue
		}
		out = append(out, item.record)
	}
	return out
}

func (s *Store) ApplyReservation(ctx context.Context, propertyID string, res otaxml.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[res.ConfirmationID] = res
	return nil
}

// Reservation reports a stored reservation for assertions.
func (s *Store) Reservation(confirmationID string) (otaxml.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[confirmationID]
	return res, ok
}

func (s *Store) PropertyExists(ctx context.Context, hotelCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.properties[hotelCode]
	return ok, nil
}

func (s *Store) RoomTypeExists(ctx context.Context, hotelCode, roomTypeCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomTypes[hotelCode][roomTypeCode], nil
}

func (s *Store) RatePlanExists(ctx context.Context, hotelCode, ratePlanCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratePlans[hotelCode][ratePlanCode], nil
}
