package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"meridian/contexts/channel-sync/inbound-gateway-service/adapters/memory"
	outboundmemory "meridian/contexts/channel-sync/outbound-sync-service/adapters/memory"
	outboundentities "meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	mappingentities "meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	"meridian/internal/shared/otaxml"
	"meridian/internal/shared/soapenv"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

type fakeCreds struct {
	config mappingentities.PropertyConfig
	err    error
}

func (f fakeCreds) ByUsername(ctx context.Context, username string) (mappingentities.PropertyConfig, error) {
	if f.err != nil {
		return mappingentities.PropertyConfig{}, f.err
	}
	return f.config, nil
}

type gatewayEnv struct {
	gateway GatewayUseCase
	dedup   *memory.Store
	store   *outboundmemory.Store
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	dedup := memory.NewStore()
	dedup.NowFunc = func() time.Time { return testNow }
	store := outboundmemory.NewStore()
	store.NowFunc = func() time.Time { return testNow }

	gateway := GatewayUseCase{
		Creds: fakeCreds{config: mappingentities.PropertyConfig{
			PropertyID: "prop-1",
			HotelCode:  "12345",
			Username:   "channel",
			Password:   "secret",
		}},
		Dedup:  dedup,
		Jobs:   store,
		Logs:   store,
		Errors: store,
		Clock:  dedup,
		IDGen:  dedup,
	}
	return &gatewayEnv{gateway: gateway, dedup: dedup, store: store}
}

func reservationEnvelope(t *testing.T, password, hotelCode, echoToken string, at time.Time) []byte {
	t.Helper()
	payload, herr := otaxml.BuildReservation(otaxml.Reservation{
		HotelCode:      hotelCode,
		ConfirmationID: "CONF-1001",
		Status:         otaxml.ReservationConfirmed,
		Guests:         []otaxml.Guest{{FirstName: "Ana", LastName: "Silva"}},
		RoomStays: []otaxml.RoomStay{{
			RoomTypeCode: "KING",
			CheckIn:      testNow.AddDate(0, 0, 1),
			CheckOut:     testNow.AddDate(0, 0, 3),
			Units:        1,
		}},
	}, otaxml.HeaderContext{HotelCode: hotelCode, EchoToken: echoToken, Timestamp: at})
	if herr != nil {
		t.Fatalf("build reservation payload: %v", herr)
	}
	return wrapEnvelope(t, password, payload, at)
}

func wrapEnvelope(t *testing.T, password string, payload []byte, at time.Time) []byte {
	t.Helper()
	env, err := soapenv.Build(soapenv.BuildRequest{
		Credentials: soapenv.Credentials{Username: "channel", Password: password, HotelCode: "12345"},
		MessageID:   "channel-msg-1",
		Payload:     payload,
		Now:         at,
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestReceiveAcceptsReservation(t *testing.T) {
	env := newGatewayEnv(t)
	raw := reservationEnvelope(t, "secret", "12345", "echo-1", testNow)

	result := env.gateway.Receive(context.Background(), raw)
	if result.Status != 200 {
		t.Fatalf("status = %d, want 200: %s", result.Status, result.Body)
	}
	ack := string(result.Body)
	if !strings.Contains(ack, "OTA_HotelResNotifRS") {
		t.Fatalf("ack root missing: %s", ack)
	}
	if !strings.Contains(ack, `EchoToken="echo-1"`) {
		t.Fatalf("ack does not echo the request token: %s", ack)
	}
	if !strings.Contains(ack, "<Success") {
		t.Fatalf("ack carries no Success element: %s", ack)
	}

	jobs := env.store.JobsByStatus(outboundentities.JobPending)
	if len(jobs) != 1 {
		t.Fatalf("pending jobs = %d, want 1", len(jobs))
	}
	job := jobs[0]
	if job.Queue != outboundentities.QueueInboundWork {
		t.Fatalf("job queue = %q", job.Queue)
	}
	var work InboundWork
	if err := json.Unmarshal(job.Payload, &work); err != nil {
		t.Fatalf("decode work payload: %v", err)
	}
	if work.Kind != string(otaxml.KindReservation) || work.HotelCode != "12345" {
		t.Fatalf("work = %+v", work)
	}
	if work.LogID == "" || work.ResStatus != "Commit" {
		t.Fatalf("work log/resStatus = %q %q", work.LogID, work.ResStatus)
	}

	logs, err := env.store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("history rows = %d, want 1", len(logs))
	}
	entry := logs[0]
	if entry.Direction != outboundentities.DirectionInbound || entry.Status != outboundentities.LogPending {
		t.Fatalf("history row = %+v", entry)
	}
	if entry.Metadata["root"] != "OTA_HotelResNotifRQ" {
		t.Fatalf("history metadata = %v", entry.Metadata)
	}
}

func TestReceiveReplaysStoredAck(t *testing.T) {
	env := newGatewayEnv(t)
	first := env.gateway.Receive(context.Background(), reservationEnvelope(t, "secret", "12345", "echo-1", testNow))
	if first.Status != 200 {
		t.Fatalf("first status = %d", first.Status)
	}

	// A retransmission carries fresh EchoToken and TimeStamp but the same
	// business content.
	retry := reservationEnvelope(t, "secret", "12345", "echo-2", testNow.Add(time.Minute))
	second := env.gateway.Receive(context.Background(), retry)
	if second.Status != 200 {
		t.Fatalf("replay status = %d", second.Status)
	}
	if !bytes.Equal(first.Body, second.Body) {
		t.Fatalf("replay ack differs from the original")
	}

	if jobs := env.store.JobsByStatus(outboundentities.JobPending); len(jobs) != 1 {
		t.Fatalf("pending jobs after replay = %d, want 1", len(jobs))
	}
	logs, _ := env.store.ListRecent(context.Background(), 10)
	if len(logs) != 1 {
		t.Fatalf("history rows after replay = %d, want 1", len(logs))
	}
}

func TestReceiveRejectsBadCredentials(t *testing.T) {
	env := newGatewayEnv(t)
	result := env.gateway.Receive(context.Background(), reservationEnvelope(t, "wrong", "12345", "echo-1", testNow))
	if result.Status != 401 {
		t.Fatalf("status = %d, want 401", result.Status)
	}
	if !strings.Contains(string(result.Body), "Authentication failed") {
		t.Fatalf("fault body = %s", result.Body)
	}

	if logs, _ := env.store.ListRecent(context.Background(), 10); len(logs) != 0 {
		t.Fatalf("rejected envelope produced %d history rows", len(logs))
	}
	if jobs := env.store.JobsByStatus(outboundentities.JobPending); len(jobs) != 0 {
		t.Fatalf("rejected envelope enqueued %d jobs", len(jobs))
	}
	errs := env.store.ErrorLogEntries()
	if len(errs) != 1 {
		t.Fatalf("error log rows = %d, want 1", len(errs))
	}
	if errs[0].Code != "AUT_BAD_CREDENTIALS" || errs[0].Source != "inbound-gateway-service" {
		t.Fatalf("error log = %+v", errs[0])
	}
	if errs[0].CanRetry {
		t.Fatalf("authentication failures must not be retryable")
	}
}

func TestReceiveRejectsUnknownRoot(t *testing.T) {
	env := newGatewayEnv(t)
	raw := wrapEnvelope(t, "secret", []byte(`<OTA_PingRQ xmlns="http://www.opentravel.org/OTA/2003/05" Version="1.0"/>`), testNow)

	result := env.gateway.Receive(context.Background(), raw)
	if result.Status != 400 {
		t.Fatalf("status = %d, want 400", result.Status)
	}
	if !strings.Contains(string(result.Body), "Unsupported message type") {
		t.Fatalf("fault body = %s", result.Body)
	}
	errs := env.store.ErrorLogEntries()
	if len(errs) != 1 || errs[0].Code != "VAL_UNKNOWN_ROOT" {
		t.Fatalf("error log = %+v", errs)
	}
}

func TestReceiveRejectsHotelMismatch(t *testing.T) {
	env := newGatewayEnv(t)
	result := env.gateway.Receive(context.Background(), reservationEnvelope(t, "secret", "99999", "echo-1", testNow))
	if result.Status != 400 {
		t.Fatalf("status = %d, want 400", result.Status)
	}
	errs := env.store.ErrorLogEntries()
	if len(errs) != 1 || errs[0].Code != "VAL_HOTEL_MISMATCH" {
		t.Fatalf("error log = %+v", errs)
	}
	if logs, _ := env.store.ListRecent(context.Background(), 10); len(logs) != 0 {
		t.Fatalf("mismatched envelope produced %d history rows", len(logs))
	}
}

func TestReceiveRejectsMissingToken(t *testing.T) {
	env := newGatewayEnv(t)
	raw := []byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
		`<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05" Version="1.0"/>` +
		`</soap:Body></soap:Envelope>`)

	result := env.gateway.Receive(context.Background(), raw)
	if result.Status != 401 {
		t.Fatalf("status = %d, want 401", result.Status)
	}
	errs := env.store.ErrorLogEntries()
	if len(errs) != 1 || errs[0].Code != "AUT_NO_TOKEN" {
		t.Fatalf("error log = %+v", errs)
	}
}
