package entities

import "time"

// Queue names the four logical job queues.
type Queue string

const (
	QueueHigh        Queue = "high"
	QueueOutbound    Queue = "outbound"
	QueueInboundWork Queue = "inbound-work"
	QueueLow         Queue = "low"
)

// Profile sizes a queue: worker pool width, retry budget, and the transport
// timeout applied to each job.
type Profile struct {
	Concurrency int
	MaxRetries  int
	JobTimeout  time.Duration
}

var profiles = map[Queue]Profile{
	QueueHigh:        {Concurrency: 5, MaxRetries: 3, JobTimeout: 60 * time.Second},
	QueueOutbound:    {Concurrency: 10, MaxRetries: 3, JobTimeout: 120 * time.Second},
	QueueInboundWork: {Concurrency: 8, MaxRetries: 3, JobTimeout: 90 * time.Second},
	QueueLow:         {Concurrency: 3, MaxRetries: 2, JobTimeout: 300 * time.Second},
}

// ProfileFor returns a queue's profile; unknown queues get the low profile.
func ProfileFor(queue Queue) Profile {
	if profile, ok := profiles[queue]; ok {
		return profile
	}
	return profiles[QueueLow]
}

// Queues lists every configured queue.
func Queues() []Queue {
	return []Queue{QueueHigh, QueueOutbound, QueueInboundWork, QueueLow}
}

// JobStatus is the lifecycle position of a queue job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// SyncScope distinguishes delta syncs from full resends.
type SyncScope string

const (
	ScopeDelta    SyncScope = "delta"
	ScopeFullSync SyncScope = "full_sync"
)

// QueueJob is one durable unit of work. Payload is the JSON-encoded job
// body; its shape depends on the kind.
type QueueJob struct {
	ID          string
	Queue       Queue
	PropertyID  string
	HotelCode   string
	Kind        string
	Scope       SyncScope
	Payload     []byte
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LeaseOwner  string
	LeasedUntil *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StreamKey is the per-(property, kind) serialization key.
func (j QueueJob) StreamKey() string {
	return j.PropertyID + "|" + j.Kind
}
