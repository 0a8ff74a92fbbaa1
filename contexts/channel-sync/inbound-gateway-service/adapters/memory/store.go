package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"meridian/contexts/channel-sync/inbound-gateway-service/domain/entities"
	"meridian/contexts/channel-sync/inbound-gateway-service/ports"
)

// Store is the in-memory dedup backend used by tests and local runs.
type Store struct {
	mu       sync.Mutex
	messages map[string]entities.ProcessedMessage

	NowFunc func() time.Time
}

func NewStore() *Store {
	return &Store{messages: make(map[string]entities.ProcessedMessage)}
}

func (s *Store) Now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func (s *Store) NewID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) Find(ctx context.Context, fingerprint string) (entities.ProcessedMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[fingerprint]
	return msg, ok, nil
}

func (s *Store) Save(ctx context.Context, msg entities.ProcessedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.Fingerprint] = msg
	return nil
}

var (
	_ ports.DedupStore  = (*Store)(nil)
	_ ports.Clock       = (*Store)(nil)
	_ ports.IDGenerator = (*Store)(nil)
)
