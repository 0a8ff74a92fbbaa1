package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"

	"github.com/google/uuid"
)

// Store is the in-memory MappingRepository, Clock, and IDGenerator.
type Store struct {
	mu       sync.Mutex
	mappings map[string]entities.PropertyMapping

	NowFunc func() time.Time
}

func NewStore(seed []entities.PropertyMapping) *Store {
	s := &Store{mappings: make(map[string]entities.PropertyMapping)}
	for _, mapping := range seed {
		s.mappings[mapping.ID] = mapping
	}
	return s
}

func (s *Store) Save(_ context.Context, mapping entities.PropertyMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mapping.Active {
		for _, existing := range s.mappings {
			if existing.ID == mapping.ID || !existing.Active {
				continue
			}
			if existing.PropertyID == mapping.PropertyID || existing.HotelCode == mapping.HotelCode {
				return domainerrors.ErrDuplicateMapping
			}
		}
	}
	s.mappings[mapping.ID] = mapping
	return nil
}

func (s *Store) Get(_ context.Context, id string) (entities.PropertyMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[id]
	if !ok {
		return entities.PropertyMapping{}, domainerrors.ErrMappingNotFound
	}
	return mapping, nil
}

func (s *Store) ActiveByProperty(_ context.Context, propertyID string) (entities.PropertyMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.Active && mapping.PropertyID == propertyID {
			return mapping, true, nil
		}
	}
	return entities.PropertyMapping{}, false, nil
}

func (s *Store) ActiveByHotelCode(_ context.Context, hotelCode string) (entities.PropertyMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.Active && mapping.HotelCode == hotelCode {
			return mapping, true, nil
		}
	}
	return entities.PropertyMapping{}, false, nil
}

func (s *Store) List(_ context.Context) ([]entities.PropertyMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.PropertyMapping, 0, len(s.mappings))
	for _, mapping := range s.mappings {
		out = append(out, mapping)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out, nil
}

func (s *Store) Now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
