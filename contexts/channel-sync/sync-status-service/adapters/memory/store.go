package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"

	"github.com/google/uuid"
)

// Store is the in-memory StatusRepository, ChangeLog, Clock, and IDGenerator
// used in tests and local runs. Mutations to one key are serialized with a
// per-key mutex, mirroring the row lock of the postgres adapter.
type Store struct {
	mu       sync.Mutex
	statuses map[string]entities.SyncStatus
	locks    map[string]*sync.Mutex
	log      []entities.ChangeLogEntry

	NowFunc func() time.Time
}

func NewStore(seed []entities.SyncStatus) *Store {
	s := &Store{
		statuses: make(map[string]entities.SyncStatus),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, status := range seed {
		s.statuses[status.Key()] = status
	}
	return s
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *Store) Get(_ context.Context, key string) (entities.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[key]
	if !ok {
		return entities.SyncStatus{}, domainerrors.ErrStatusNotFound
	}
	return status, nil
}

func (s *Store) GetOrCreate(_ context.Context, blank entities.SyncStatus) (entities.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.statuses[blank.Key()]; ok {
		return existing, nil
	}
	s.statuses[blank.Key()] = blank
	return blank, nil
}

func (s *Store) Mutate(_ context.Context, key string, fn func(*entities.SyncStatus) error) (entities.SyncStatus, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	status, ok := s.statuses[key]
	s.mu.Unlock()
	if !ok {
		return entities.SyncStatus{}, domainerrors.ErrStatusNotFound
	}

	if err := fn(&status); err != nil {
		return entities.SyncStatus{}, err
	}

	// A hotel-code change moves the row to a new key, matching the postgres
	// adapter rewriting the status_key column.
	s.mu.Lock()
	if newKey := status.Key(); newKey != key {
		delete(s.statuses, key)
		s.statuses[newKey] = status
	} else {
		s.statuses[key] = status
	}
	s.mu.Unlock()
	return status, nil
}

func (s *Store) ListByProperty(_ context.Context, hotelCode string) ([]entities.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.SyncStatus
	for _, status := range s.statuses {
		if status.HotelCode == hotelCode {
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]entities.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.SyncStatus
	for _, status := range s.statuses {
		if status.State != entities.StateFailed || status.NextRetryAt == nil {
			continue
		}
		if status.NextRetryAt.After(now) {
			continue
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Append(_ context.Context, entry entities.ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

// ChangeLogEntries returns a copy of the appended audit records.
func (s *Store) ChangeLogEntries() []entities.ChangeLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.ChangeLogEntry(nil), s.log...)
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
