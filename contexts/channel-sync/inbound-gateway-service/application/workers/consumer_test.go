package workers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"meridian/contexts/channel-sync/inbound-gateway-service/application/commands"
	outboundmemory "meridian/contexts/channel-sync/outbound-sync-service/adapters/memory"
	outboundentities "meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	syncstatusservice "meridian/contexts/channel-sync/sync-status-service"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/events"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

type nopBus struct{}

func (nopBus) Publish(ctx context.Context, event events.Envelope) error { return nil }

type fakePMS struct {
	mu      sync.Mutex
	applied []otaxml.Reservation
	err     error
}

func (f *fakePMS) ApplyReservation(ctx context.Context, propertyID string, res otaxml.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, res)
	return nil
}

type consumerEnv struct {
	worker InboundWorker
	store  *outboundmemory.Store
	status syncstatusservice.Module
	pms    *fakePMS
}

func newConsumerEnv(t *testing.T) *consumerEnv {
	t.Helper()
	store := outboundmemory.NewStore()
	store.NowFunc = func() time.Time { return testNow }

	status := syncstatusservice.NewInMemoryModule(nil, nopBus{}, nil)
	status.Store.NowFunc = func() time.Time { return testNow }

	pms := &fakePMS{}
	worker := InboundWorker{
		Owner:    "worker-1",
		Jobs:     store,
		Logs:     store,
		Statuses: status.Statuses,
		PMS:      pms,
		Clock:    store,
		IDGen:    store,
	}
	return &consumerEnv{worker: worker, store: store, status: status, pms: pms}
}

func (env *consumerEnv) enqueueReservation(t *testing.T, logID string) string {
	t.Helper()
	payload, herr := otaxml.BuildReservation(otaxml.Reservation{
		HotelCode:      "12345",
		ConfirmationID: "CONF-1001",
		Status:         otaxml.ReservationConfirmed,
		Guests:         []otaxml.Guest{{FirstName: "Ana", LastName: "Silva"}},
		RoomStays: []otaxml.RoomStay{{
			RoomTypeCode: "KING",
			CheckIn:      testNow.AddDate(0, 0, 1),
			CheckOut:     testNow.AddDate(0, 0, 3),
			Units:        1,
		}},
	}, otaxml.HeaderContext{HotelCode: "12345", EchoToken: "echo-1", Timestamp: testNow})
	if herr != nil {
		t.Fatalf("build reservation payload: %v", herr)
	}

	if err := env.store.Open(context.Background(), outboundentities.MessageLog{
		ID:         logID,
		MessageID:  "msg-1",
		Direction:  outboundentities.DirectionInbound,
		Kind:       string(otaxml.KindReservation),
		PropertyID: "prop-1",
		HotelCode:  "12345",
		Status:     outboundentities.LogPending,
		StartedAt:  testNow,
	}); err != nil {
		t.Fatalf("open history row: %v", err)
	}

	work, err := json.Marshal(commands.InboundWork{
		Kind:       string(otaxml.KindReservation),
		PropertyID: "prop-1",
		HotelCode:  "12345",
		ResStatus:  "Commit",
		LogID:      logID,
		Body:       payload,
	})
	if err != nil {
		t.Fatalf("encode work: %v", err)
	}
	jobID := "job-" + logID
	if err := env.store.Enqueue(context.Background(), outboundentities.QueueJob{
		ID:          jobID,
		Queue:       outboundentities.QueueInboundWork,
		PropertyID:  "prop-1",
		HotelCode:   "12345",
		Kind:        string(otaxml.KindReservation),
		Scope:       outboundentities.ScopeDelta,
		Payload:     work,
		Status:      outboundentities.JobPending,
		MaxAttempts: 3,
		RunAt:       testNow,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}); err != nil {
		t.Fatalf("enqueue work: %v", err)
	}
	return jobID
}

func TestConsumerDeliversReservation(t *testing.T) {
	env := newConsumerEnv(t)
	jobID := env.enqueueReservation(t, "log-1")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(env.pms.applied) != 1 {
		t.Fatalf("applied reservations = %d, want 1", len(env.pms.applied))
	}
	res := env.pms.applied[0]
	if res.ConfirmationID != "CONF-1001" || res.Status != otaxml.ReservationConfirmed {
		t.Fatalf("applied reservation = %+v", res)
	}

	if jobs := env.store.JobsByStatus(outboundentities.JobCompleted); len(jobs) != 1 || jobs[0].ID != jobID {
		t.Fatalf("completed jobs = %+v", jobs)
	}
	logs, _ := env.store.ListRecent(context.Background(), 10)
	if len(logs) != 1 {
		t.Fatalf("history rows = %d", len(logs))
	}
	if logs[0].Status != outboundentities.LogCompleted || logs[0].CompletedAt == nil {
		t.Fatalf("history row = %+v", logs[0])
	}

	status, err := env.status.Query.Get(context.Background(), "12345|reservation|reservation|CONF-1001")
	if err != nil {
		t.Fatalf("status stream missing: %v", err)
	}
	if status.State != statusentities.StateCompleted {
		t.Fatalf("stream state = %s, want completed", status.State)
	}
}

func TestConsumerRetriesTransientFailure(t *testing.T) {
	env := newConsumerEnv(t)
	jobID := env.enqueueReservation(t, "log-1")
	env.pms.err = htngerr.New(htngerr.KindConnection, "CON_PMS_DOWN", "pms connection refused")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	job, err := env.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != outboundentities.JobPending {
		t.Fatalf("job status = %s, want pending retry", job.Status)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}
	if !job.RunAt.After(testNow) {
		t.Fatalf("retry run_at = %v, want after %v", job.RunAt, testNow)
	}

	// The history row stays pending until the outcome is final.
	logs, _ := env.store.ListRecent(context.Background(), 10)
	if logs[0].Status != outboundentities.LogPending {
		t.Fatalf("history row = %+v", logs[0])
	}

	status, err := env.status.Query.Get(context.Background(), "12345|reservation|reservation|CONF-1001")
	if err != nil {
		t.Fatalf("status stream missing: %v", err)
	}
	if status.State != statusentities.StateFailed {
		t.Fatalf("stream state = %s, want failed", status.State)
	}
}

func TestConsumerFailsTerminallyOnValidation(t *testing.T) {
	env := newConsumerEnv(t)
	jobID := env.enqueueReservation(t, "log-1")
	env.pms.err = htngerr.Validation("reservation references unknown room type")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	job, err := env.store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != outboundentities.JobFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	logs, _ := env.store.ListRecent(context.Background(), 10)
	if logs[0].Status != outboundentities.LogFailed || logs[0].ErrorKind != "validation" {
		t.Fatalf("history row = %+v", logs[0])
	}
}

func TestConsumerAuditsNonReservationKinds(t *testing.T) {
	env := newConsumerEnv(t)

	msg, herr := otaxml.BuildInventory(otaxml.InventoryMessage{
		HotelCode: "12345",
		Records: []otaxml.InventoryRecord{{
			RoomTypeCode: "KING",
			Start:        testNow.AddDate(0, 0, 1),
			End:          testNow.AddDate(0, 0, 3),
			Counts:       []otaxml.InventoryCount{{Type: otaxml.CountAvailable, Value: 5}},
		}},
	}, otaxml.HeaderContext{HotelCode: "12345", Timestamp: testNow})
	if herr != nil {
		t.Fatalf("build inventory payload: %v", herr)
	}
	work, _ := json.Marshal(commands.InboundWork{
		Kind:       string(otaxml.KindInventory),
		PropertyID: "prop-1",
		HotelCode:  "12345",
		LogID:      "log-inv",
		Body:       msg,
	})
	if err := env.store.Open(context.Background(), outboundentities.MessageLog{
		ID:        "log-inv",
		Direction: outboundentities.DirectionInbound,
		Kind:      string(otaxml.KindInventory),
		Status:    outboundentities.LogPending,
		StartedAt: testNow,
	}); err != nil {
		t.Fatalf("open history row: %v", err)
	}
	if err := env.store.Enqueue(context.Background(), outboundentities.QueueJob{
		ID:          "job-inv",
		Queue:       outboundentities.QueueInboundWork,
		Kind:        string(otaxml.KindInventory),
		Payload:     work,
		Status:      outboundentities.JobPending,
		MaxAttempts: 3,
		RunAt:       testNow,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(env.pms.applied) != 0 {
		t.Fatalf("inventory must not reach the reservation applier")
	}
	if jobs := env.store.JobsByStatus(outboundentities.JobCompleted); len(jobs) != 1 {
		t.Fatalf("completed jobs = %d, want 1", len(jobs))
	}
	logs, _ := env.store.ListRecent(context.Background(), 10)
	if logs[0].Status != outboundentities.LogCompleted {
		t.Fatalf("history row = %+v", logs[0])
	}
}
