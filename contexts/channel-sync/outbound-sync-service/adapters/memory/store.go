package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/outbound-sync-service/domain/errors"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"
)

// Store is the in-memory queue backend used by tests and local runs. It
// covers jobs, stream leases, message logs, and the error log.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]entities.QueueJob
	leases  map[string]lease
	logs    map[string]entities.MessageLog
	logSeq  []string
	errLogs []entities.ErrorLog

	// NowFunc lets tests pin the clock.
	NowFunc func() time.Time
}

type lease struct {
	owner string
	until time.Time
}

func NewStore() *Store {
	return &Store{
		jobs:   make(map[string]entities.QueueJob),
		leases: make(map[string]lease),
		logs:   make(map[string]entities.MessageLog),
	}
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

func (s *Store) Enqueue(ctx context.Context, job entities.QueueJob) error {
	if job.ID == "" {
		return domainerrors.ErrInvalidJobInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (entities.QueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return entities.QueueJob{}, domainerrors.ErrJobNotFound
	}
	return job, nil
}

// Claim marks due pending jobs running under a lease. Running jobs whose
// lease has lapsed are claimable again.
func (s *Store) Claim(ctx context.Context, queue entities.Queue, now time.Time, limit int, owner string, ttl time.Duration) ([]entities.QueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []entities.QueueJob
	for _, job := range s.jobs {
		if job.Queue != queue {
			continue
		}
		claimable := job.Status == entities.JobPending && !job.RunAt.After(now)
		if job.Status == entities.JobRunning && job.LeasedUntil != nil && job.LeasedUntil.Before(now) {
			claimable = true
		}
		if claimable {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	until := now.Add(ttl)
	for i, job := range due {
		job.Status = entities.JobRunning
		job.LeaseOwner = owner
		job.LeasedUntil = &until
		job.UpdatedAt = now
		s.jobs[job.ID] = job
		due[i] = job
	}
	return due, nil
}

func (s *Store) Complete(ctx context.Context, id string) error {
	return s.update(id, func(job *entities.QueueJob) error {
		job.Status = entities.JobCompleted
		job.LeaseOwner = ""
		job.LeasedUntil = nil
		return nil
	})
}

// Fail consumes one attempt. With a retry time and attempts to spare the job
// goes back to pending; otherwise it lands failed.
func (s *Store) Fail(ctx context.Context, id string, lastError string, retryAt *time.Time) error {
	return s.update(id, func(job *entities.QueueJob) error {
		job.Attempts++
		job.LastError = lastError
		job.LeaseOwner = ""
		job.LeasedUntil = nil
		if retryAt != nil && job.Attempts < job.MaxAttempts {
			job.Status = entities.JobPending
			job.RunAt = *retryAt
		} else {
			job.Status = entities.JobFailed
		}
		return nil
	})
}

// Postpone returns a job to pending without consuming an attempt.
func (s *Store) Postpone(ctx context.Context, id string, runAt time.Time) error {
	return s.update(id, func(job *entities.QueueJob) error {
		job.Status = entities.JobPending
		job.RunAt = runAt
		job.LeaseOwner = ""
		job.LeasedUntil = nil
		return nil
	})
}

func (s *Store) Cancel(ctx context.Context, id string) error {
	return s.update(id, func(job *entities.QueueJob) error {
		if job.Status != entities.JobPending && job.Status != entities.JobFailed {
			return domainerrors.ErrJobNotCancellable
		}
		job.Status = entities.JobCancelled
		return nil
	})
}

func (s *Store) update(id string, fn func(*entities.QueueJob) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domainerrors.ErrJobNotFound
	}
	if err := fn(&job); err != nil {
		return err
	}
	job.UpdatedAt = s.Now()
	s.jobs[id] = job
	return nil
}

func (s *Store) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.leases[key]; ok && held.until.After(now) && held.owner != owner {
		return false, nil
	}
	s.leases[key] = lease{owner: owner, until: now.Add(ttl)}
	return true, nil
}

func (s *Store) Release(ctx context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.leases[key]; ok && held.owner == owner {
		delete(s.leases, key)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, entry entities.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[entry.ID]; !ok {
		s.logSeq = append(s.logSeq, entry.ID)
	}
	s.logs[entry.ID] = entry
	return nil
}

func (s *Store) Close(ctx context.Context, entry entities.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[entry.ID]; !ok {
		return domainerrors.ErrLogNotFound
	}
	s.logs[entry.ID] = entry
	return nil
}

func (s *Store) Resolve(ctx context.Context, id string, status entities.LogStatus, errorKind, errorMessage string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[id]
	if !ok {
		return domainerrors.ErrLogNotFound
	}
	entry.Status = status
	entry.ErrorKind = errorKind
	entry.ErrorMessage = errorMessage
	entry.CompletedAt = &completedAt
	entry.DurationMS = completedAt.Sub(entry.StartedAt).Milliseconds()
	s.logs[id] = entry
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]entities.MessageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.MessageLog, 0, len(s.logSeq))
	for i := len(s.logSeq) - 1; i >= 0; i-- {
		out = append(out, s.logs[s.logSeq[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Record(ctx context.Context, entry entities.ErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errLogs = append(s.errLogs, entry)
	return nil
}

// ErrorLogEntries returns a copy of the recorded failures, oldest first.
func (s *Store) ErrorLogEntries() []entities.ErrorLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.ErrorLog, len(s.errLogs))
	copy(out, s.errLogs)
	return out
}

// JobsByStatus returns the jobs currently in a status, for tests.
func (s *Store) JobsByStatus(status entities.JobStatus) []entities.QueueJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.QueueJob
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var (
	_ ports.JobRepository        = (*Store)(nil)
	_ ports.LeaseStore           = (*Store)(nil)
	_ ports.MessageLogRepository = (*Store)(nil)
	_ ports.ErrorLogRepository   = (*Store)(nil)
	_ ports.Clock                = (*Store)(nil)
	_ ports.IDGenerator          = (*Store)(nil)
)
