package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

type fakeLookups struct {
	properties map[string]bool
	roomTypes  map[string]bool
	ratePlans  map[string]bool
	calls      int
	fail       error
}

func (f *fakeLookups) PropertyExists(_ context.Context, hotelCode string) (bool, error) {
	f.calls++
	if f.fail != nil {
		return false, f.fail
	}
	return f.properties[hotelCode], nil
}

func (f *fakeLookups) RoomTypeExists(_ context.Context, hotelCode, roomTypeCode string) (bool, error) {
	f.calls++
	if f.fail != nil {
		return false, f.fail
	}
	return f.roomTypes[hotelCode+"/"+roomTypeCode], nil
}

func (f *fakeLookups) RatePlanExists(_ context.Context, hotelCode, ratePlanCode string) (bool, error) {
	f.calls++
	if f.fail != nil {
		return false, f.fail
	}
	return f.ratePlans[hotelCode+"/"+ratePlanCode], nil
}

func configuredLookups() *fakeLookups {
	return &fakeLookups{
		properties: map[string]bool{"001234": true},
		roomTypes:  map[string]bool{"001234/KING": true, "001234/DBLX": true},
		ratePlans:  map[string]bool{"001234/BAR": true},
	}
}

func inventoryPayload(t *testing.T, roomType string) []byte {
	t.Helper()
	msg := otaxml.InventoryMessage{
		HotelCode: "001234",
		Records: []otaxml.InventoryRecord{{
			RoomTypeCode: roomType,
			Start:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			End:          time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
			Counts:       []otaxml.InventoryCount{{Type: otaxml.CountAvailable, Value: 5}},
		}},
	}
	hdr := otaxml.HeaderContext{
		HotelCode: "001234",
		MessageID: "INV_20250601_120000_abc123",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := otaxml.BuildInventory(msg, hdr)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return payload
}

func TestPipelineAcceptsValidPayload(t *testing.T) {
	p := NewPipeline(NewStructuralValidator(0), configuredLookups(), 0, nil)
	if err := p.Validate(context.Background(), otaxml.KindInventory, inventoryPayload(t, "KING")); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestPipelineRejectsUnknownRoomType(t *testing.T) {
	p := NewPipeline(NewStructuralValidator(0), configuredLookups(), 0, nil)
	err := p.Validate(context.Background(), otaxml.KindInventory, inventoryPayload(t, "SUITE"))
	if err == nil {
		t.Fatalf("unknown room type must fail the rule pass")
	}
	var herr *htngerr.Error
	if !errors.As(err, &herr) || herr.Kind != htngerr.KindValidation {
		t.Fatalf("rule failure must classify as validation, got %v", err)
	}
	if !strings.Contains(herr.Message, "SUITE") {
		t.Fatalf("failure message must name the room type: %q", herr.Message)
	}
}

func TestPipelineFoldsFailuresWithCap(t *testing.T) {
	lookups := &fakeLookups{properties: map[string]bool{"001234": true}}
	msg := otaxml.RestrictionMessage{HotelCode: "001234"}
	for i := 0; i < 5; i++ {
		msg.Records = append(msg.Records, otaxml.RestrictionRecord{
			RoomTypeCode: "RT" + string(rune('A'+i)),
			Start:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			End:          time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
			Type:         otaxml.RestrictionMaster,
		})
	}
	hdr := otaxml.HeaderContext{
		HotelCode: "001234",
		MessageID: "RST_20250601_120000_abc123",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, berr := otaxml.BuildRestrictions(msg, hdr)
	if berr != nil {
		t.Fatalf("build failed: %v", berr)
	}

	p := NewPipeline(NewStructuralValidator(0), lookups, 3, nil)
	err := p.Validate(context.Background(), otaxml.KindRestrictions, payload)
	if err == nil {
		t.Fatalf("unknown room types must fail")
	}
	var herr *htngerr.Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected a classified error, got %v", err)
	}
	lines := strings.Split(herr.Message, "\n")
	if len(lines) != 4 {
		t.Fatalf("capped message must carry 3 failures plus the suppression note, got %d lines:\n%s", len(lines), herr.Message)
	}
	if !strings.Contains(lines[3], "2 additional failures suppressed") {
		t.Fatalf("suppression note missing: %q", lines[3])
	}
}

func TestPipelineRepositoryErrorIsNotValidation(t *testing.T) {
	lookups := configuredLookups()
	lookups.fail = context.DeadlineExceeded
	p := NewPipeline(NewStructuralValidator(0), lookups, 0, nil)
	err := p.Validate(context.Background(), otaxml.KindInventory, inventoryPayload(t, "KING"))
	var herr *htngerr.Error
	if !errors.As(err, &herr) || herr.Kind != htngerr.KindTimeout {
		t.Fatalf("repository deadline must classify as timeout, got %v", err)
	}
}

func TestStructuralValidatorRejectsWrongRoot(t *testing.T) {
	v := NewStructuralValidator(0)
	payload := inventoryPayload(t, "KING")
	if err := v.Validate(context.Background(), otaxml.KindRates, payload); err == nil {
		t.Fatalf("inventory root must not satisfy the rates schema")
	}
	if err := v.Validate(context.Background(), otaxml.KindInventory, []byte("<broken")); err == nil {
		t.Fatalf("malformed XML must be rejected")
	}
	if err := v.Validate(context.Background(), otaxml.KindInventory, payload); err != nil {
		t.Fatalf("matching root rejected: %v", err)
	}
}

func TestCachedLookupsReusesAnswers(t *testing.T) {
	inner := configuredLookups()
	cached := NewCachedLookups(inner, time.Minute)
	for i := 0; i < 3; i++ {
		if ok, err := cached.PropertyExists(context.Background(), "001234"); err != nil || !ok {
			t.Fatalf("lookup %d failed: ok=%v err=%v", i, ok, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected one repository hit, got %d", inner.calls)
	}
	cached.Invalidate()
	if _, err := cached.PropertyExists(context.Background(), "001234"); err != nil {
		t.Fatalf("lookup after invalidate failed: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("invalidate must force a fresh repository hit, got %d calls", inner.calls)
	}
}
