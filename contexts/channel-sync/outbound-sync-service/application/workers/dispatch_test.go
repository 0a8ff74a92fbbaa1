package workers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	application "meridian/contexts/channel-sync/outbound-sync-service/application"
	"meridian/contexts/channel-sync/outbound-sync-service/adapters/memory"
	"meridian/contexts/channel-sync/outbound-sync-service/application/commands"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	mappingentities "meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	syncstatusservice "meridian/contexts/channel-sync/sync-status-service"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/events"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

const successRS = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
	`<OTA_HotelInvCountNotifRS xmlns="http://www.opentravel.org/OTA/2003/05" TimeStamp="2026-08-24T12:00:05Z" Version="1.0"><Success/></OTA_HotelInvCountNotifRS>` +
	`</soap:Body></soap:Envelope>`

const warningsRS = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
	`<OTA_HotelInvCountNotifRS xmlns="http://www.opentravel.org/OTA/2003/05" TimeStamp="2026-08-24T12:00:05Z" Version="1.0"><Success/>` +
	`<Warnings><Warning Code="245" ShortText="Rate plan ignored">Rate plan STAFF ignored</Warning></Warnings>` +
	`</OTA_HotelInvCountNotifRS></soap:Body></soap:Envelope>`

const errorsRS = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
	`<OTA_HotelInvCountNotifRS xmlns="http://www.opentravel.org/OTA/2003/05" TimeStamp="2026-08-24T12:00:05Z" Version="1.0">` +
	`<Errors><Error Code="VAL321" ShortText="Invalid room type">Room type SUITE is not configured</Error></Errors>` +
	`</OTA_HotelInvCountNotifRS></soap:Body></soap:Envelope>`

const authErrorRS = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
	`<OTA_HotelInvCountNotifRS xmlns="http://www.opentravel.org/OTA/2003/05" TimeStamp="2026-08-24T12:00:05Z" Version="1.0">` +
	`<Errors><Error Code="AUT001">Authentication failed for property</Error></Errors>` +
	`</OTA_HotelInvCountNotifRS></soap:Body></soap:Envelope>`

type nopBus struct{}

func (nopBus) Publish(ctx context.Context, event events.Envelope) error { return nil }

type fakeConfigSource struct {
	config mappingentities.PropertyConfig
}

func (f fakeConfigSource) Get(ctx context.Context, propertyID string) (mappingentities.PropertyConfig, error) {
	return f.config, nil
}

type fakeValidator struct {
	err error
}

func (f fakeValidator) Validate(ctx context.Context, kind otaxml.MessageKind, payload []byte) error {
	return f.err
}

type fakeTransport struct {
	mu        sync.Mutex
	calls     int
	envelopes [][]byte
	reply     func(call int) ([]byte, error)
}

func (f *fakeTransport) Send(ctx context.Context, endpoint string, envelope []byte, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.envelopes = append(f.envelopes, envelope)
	return f.reply(f.calls)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type workerEnv struct {
	worker QueueWorker
	store  *memory.Store
	status syncstatusservice.Module
	send   *fakeTransport
}

func newWorkerEnv(t *testing.T, reply func(call int) ([]byte, error)) *workerEnv {
	t.Helper()
	store := memory.NewStore()
	store.NowFunc = func() time.Time { return testNow }

	status := syncstatusservice.NewInMemoryModule(nil, nopBus{}, nil)
	status.Store.NowFunc = func() time.Time { return testNow }

	send := &fakeTransport{reply: reply}
	worker := QueueWorker{
		Queue:    entities.QueueOutbound,
		Owner:    "worker-1",
		Jobs:     store,
		Leases:   store,
		Logs:     store,
		Errors:   store,
		Statuses: status.Statuses,
		Config: fakeConfigSource{config: mappingentities.PropertyConfig{
			PropertyID:    "prop-1",
			HotelCode:     "12345",
			Username:      "meridian",
			Password:      "secret",
			WSSEHotelCode: "12345",
			EndpointURL:   "https://channel.example.com/htng?wsdl",
		}},
		Validate:        fakeValidator{},
		Send:            send,
		Breaker:         application.NewAuthBreaker(0, 0),
		Clock:           store,
		IDGen:           store,
		DefaultEndpoint: "https://channel.example.com/htng",
	}
	return &workerEnv{worker: worker, store: store, status: status, send: send}
}

func (env *workerEnv) enqueueInventory(t *testing.T, roomType string) entities.QueueJob {
	t.Helper()
	enq := commands.EnqueueUseCase{Jobs: env.store, Clock: env.store, IDGen: env.store}
	job, err := enq.Enqueue(context.Background(), commands.EnqueueCommand{
		Queue:      entities.QueueOutbound,
		PropertyID: "prop-1",
		HotelCode:  "12345",
		Kind:       otaxml.KindInventory,
		Payload: commands.OutboundPayload{Inventory: &otaxml.InventoryMessage{
			HotelCode: "12345",
			Records: []otaxml.InventoryRecord{{
				RoomTypeCode: roomType,
				Start:        testNow.AddDate(0, 0, 1),
				End:          testNow.AddDate(0, 0, 3),
				Counts:       []otaxml.InventoryCount{{Type: otaxml.CountAvailable, Value: 12}},
			}},
		}},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func (env *workerEnv) statusOf(t *testing.T, key string) statusentities.SyncStatus {
	t.Helper()
	status, err := env.status.Query.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("status %s: %v", key, err)
	}
	return status
}

func TestDispatchSuccessCompletesJobAndStatus(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return []byte(successRS), nil })
	job := env.enqueueInventory(t, "KING")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, err := env.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != entities.JobCompleted {
		t.Fatalf("job status = %s, want completed", got.Status)
	}

	status := env.statusOf(t, "12345|inventory|room_type|KING")
	if status.State != statusentities.StateCompleted {
		t.Fatalf("stream state = %s, want completed", status.State)
	}
	if status.SuccessRate != 100 {
		t.Fatalf("success rate = %v, want 100", status.SuccessRate)
	}
	if status.LastSuccessAt == nil || !status.LastSuccessAt.Equal(testNow) {
		t.Fatalf("last success = %v, want %v", status.LastSuccessAt, testNow)
	}

	logs, err := env.store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("message logs = %d, want 1", len(logs))
	}
	if logs[0].Status != entities.LogCompleted {
		t.Fatalf("log status = %s, want completed", logs[0].Status)
	}
	if !strings.Contains(logs[0].RequestBody, "OTA_HotelInvCountNotifRQ") {
		t.Fatalf("request body missing payload root:\n%s", logs[0].RequestBody)
	}
	if !strings.Contains(logs[0].RequestBody, "wsse:UsernameToken") {
		t.Fatalf("request body missing wsse token")
	}
}

func TestDispatchWarningsOnlyStillSucceeds(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return []byte(warningsRS), nil })
	job := env.enqueueInventory(t, "KING")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, _ := env.store.Get(context.Background(), job.ID)
	if got.Status != entities.JobCompleted {
		t.Fatalf("job status = %s, want completed", got.Status)
	}
	status := env.statusOf(t, "12345|inventory|room_type|KING")
	if status.State != statusentities.StateCompleted {
		t.Fatalf("stream state = %s, want completed", status.State)
	}
	logs, _ := env.store.ListRecent(context.Background(), 1)
	if logs[0].Metadata["warnings"] == "" {
		t.Fatalf("warnings missing from log metadata: %v", logs[0].Metadata)
	}
}

func TestDispatchTimeoutSchedulesRetry(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return nil, context.DeadlineExceeded })
	job := env.enqueueInventory(t, "KING")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, _ := env.store.Get(context.Background(), job.ID)
	if got.Status != entities.JobPending {
		t.Fatalf("job status = %s, want pending for retry", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	// Timeout retries start from a 60s base with light jitter.
	delay := got.RunAt.Sub(testNow)
	if delay < 50*time.Second || delay > 70*time.Second {
		t.Fatalf("retry delay = %s, want about 60s", delay)
	}
	if !strings.Contains(got.LastError, "timeout") {
		t.Fatalf("last error = %q, want timeout kind", got.LastError)
	}

	status := env.statusOf(t, "12345|inventory|room_type|KING")
	if status.State != statusentities.StateFailed {
		t.Fatalf("stream state = %s, want failed", status.State)
	}
	if status.NextRetryAt == nil {
		t.Fatalf("stream has no retry schedule")
	}

	errLogs := env.store.ErrorLogEntries()
	if len(errLogs) != 1 || errLogs[0].Kind != "timeout" || !errLogs[0].CanRetry {
		t.Fatalf("error log = %+v, want one retryable timeout row", errLogs)
	}
}

func TestDispatchChannelErrorsFailWholeBatch(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return []byte(errorsRS), nil })
	job := env.enqueueInventory(t, "SUITE")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, _ := env.store.Get(context.Background(), job.ID)
	if got.Status != entities.JobFailed {
		t.Fatalf("job status = %s, want failed (validation never retries)", got.Status)
	}

	status := env.statusOf(t, "12345|inventory|room_type|SUITE")
	if status.State != statusentities.StateError {
		t.Fatalf("stream state = %s, want error", status.State)
	}
	if status.LastErrorKind != "validation" {
		t.Fatalf("stream error kind = %s, want validation", status.LastErrorKind)
	}

	logs, _ := env.store.ListRecent(context.Background(), 1)
	if logs[0].Status != entities.LogFailed {
		t.Fatalf("log status = %s, want failed", logs[0].Status)
	}
	if logs[0].ErrorKind != "validation" {
		t.Fatalf("log error kind = %s, want validation", logs[0].ErrorKind)
	}
}

func TestDispatchAuthFailuresTripBreaker(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return []byte(authErrorRS), nil })
	env.worker.Breaker.NowFunc = func() time.Time { return testNow }
	for i := 0; i < 4; i++ {
		env.worker.Breaker.RecordFailure("prop-1")
	}
	first := env.enqueueInventory(t, "KING")

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, _ := env.store.Get(context.Background(), first.ID)
	if got.Status != entities.JobFailed {
		t.Fatalf("auth-failed job status = %s, want failed", got.Status)
	}
	if env.worker.Breaker.Allow("prop-1") {
		t.Fatalf("breaker still allows dispatch after fifth auth failure")
	}

	second := env.enqueueInventory(t, "KING")
	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got, _ = env.store.Get(context.Background(), second.ID)
	if got.Status != entities.JobPending {
		t.Fatalf("suspended job status = %s, want pending", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("suspended job consumed an attempt")
	}
	if env.send.callCount() != 1 {
		t.Fatalf("transport calls = %d, want 1 (breaker open)", env.send.callCount())
	}
}

func TestDispatchHeldLeasePostponesJob(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return []byte(successRS), nil })
	job := env.enqueueInventory(t, "KING")

	held, err := env.store.Acquire(context.Background(), job.StreamKey(), "other-worker", time.Minute)
	if err != nil || !held {
		t.Fatalf("seed lease: held=%v err=%v", held, err)
	}

	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got, _ := env.store.Get(context.Background(), job.ID)
	if got.Status != entities.JobPending {
		t.Fatalf("job status = %s, want pending (lease held)", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("lease wait consumed an attempt")
	}
	if env.send.callCount() != 0 {
		t.Fatalf("transport called while stream lease was held")
	}
}

func TestDispatchRepeatSyncReArmsCompletedStream(t *testing.T) {
	env := newWorkerEnv(t, func(int) ([]byte, error) { return []byte(successRS), nil })
	env.enqueueInventory(t, "KING")
	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	env.enqueueInventory(t, "KING")
	if err := env.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	status := env.statusOf(t, "12345|inventory|room_type|KING")
	if status.State != statusentities.StateCompleted {
		t.Fatalf("stream state = %s, want completed", status.State)
	}
	if status.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", status.AttemptCount)
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	cause := htngerr.New(htngerr.KindTimeout, "CON_TIMEOUT", "channel timed out")
	first := retryDelay(cause, 0)
	if first < 50*time.Second || first > 70*time.Second {
		t.Fatalf("first delay = %s, want about 60s", first)
	}
	capped := retryDelay(cause, 20)
	if capped != 30*time.Minute {
		t.Fatalf("capped delay = %s, want 30m", capped)
	}
}
