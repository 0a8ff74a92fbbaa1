package otaxml

import (
	"reflect"
	"testing"
	"time"
)

var testHeader = HeaderContext{
	HotelCode: "001234",
	MessageID: "INV_20250601_120000_abc123",
	Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInventoryRoundTripNotCalculated(t *testing.T) {
	msg := InventoryMessage{
		HotelCode: "001234",
		Records: []InventoryRecord{{
			RoomTypeCode: "KING",
			Start:        date(2025, 6, 1),
			End:          date(2025, 6, 3),
			Counts:       []InventoryCount{{Type: CountAvailable, Value: 5}},
		}},
	}
	payload, err := BuildInventory(msg, testHeader)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	parsed, err := ParseInventory(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(parsed, msg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, msg)
	}
}

func TestInventoryRoundTripCalculated(t *testing.T) {
	msg := InventoryMessage{
		HotelCode:  "001234",
		Calculated: true,
		Records: []InventoryRecord{{
			Start: date(2025, 6, 1),
			End:   date(2025, 6, 30),
			Counts: []InventoryCount{
				{Type: CountPhysical, Value: 100},
				{Type: CountDefiniteSold, Value: 40},
				{Type: CountTentativeSold, Value: 5},
				{Type: CountOutOfOrder, Value: 2},
			},
		}},
	}
	payload, err := BuildInventory(msg, testHeader)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	parsed, err := ParseInventory(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !parsed.Calculated {
		t.Fatalf("calculated mode lost in round trip")
	}
	if !reflect.DeepEqual(parsed, msg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, msg)
	}
}

func TestNotCalculatedRejectsOtherCountTypes(t *testing.T) {
	msg := InventoryMessage{
		HotelCode: "001234",
		Records: []InventoryRecord{{
			Start: date(2025, 6, 1),
			End:   date(2025, 6, 3),
			Counts: []InventoryCount{
				{Type: CountAvailable, Value: 5},
				{Type: CountPhysical, Value: 10},
			},
		}},
	}
	if _, err := BuildInventory(msg, testHeader); err == nil {
		t.Fatalf("not-calculated mode must reject count types other than 2")
	}
}

func TestCalculatedRequiresTypes4And5(t *testing.T) {
	for _, counts := range [][]InventoryCount{
		{{Type: CountDefiniteSold, Value: 40}},
		{{Type: CountTentativeSold, Value: 5}},
		{{Type: CountPhysical, Value: 100}},
	} {
		msg := InventoryMessage{
			HotelCode:  "001234",
			Calculated: true,
			Records: []InventoryRecord{{
				Start:  date(2025, 6, 1),
				End:    date(2025, 6, 3),
				Counts: counts,
			}},
		}
		if _, err := BuildInventory(msg, testHeader); err == nil {
			t.Fatalf("calculated mode must require both count types 4 and 5, accepted %+v", counts)
		}
	}
}

func TestCalculatedForbidsType2(t *testing.T) {
	msg := InventoryMessage{
		HotelCode:  "001234",
		Calculated: true,
		Records: []InventoryRecord{{
			Start: date(2025, 6, 1),
			End:   date(2025, 6, 3),
			Counts: []InventoryCount{
				{Type: CountDefiniteSold, Value: 40},
				{Type: CountTentativeSold, Value: 5},
				{Type: CountAvailable, Value: 55},
			},
		}},
	}
	if _, err := BuildInventory(msg, testHeader); err == nil {
		t.Fatalf("calculated mode must forbid count type 2")
	}
}

func TestInventoryCountRange(t *testing.T) {
	for _, value := range []int{-1, 10000} {
		msg := InventoryMessage{
			HotelCode: "001234",
			Records: []InventoryRecord{{
				Start:  date(2025, 6, 1),
				End:    date(2025, 6, 3),
				Counts: []InventoryCount{{Type: CountAvailable, Value: value}},
			}},
		}
		if _, err := BuildInventory(msg, testHeader); err == nil {
			t.Fatalf("count %d must be rejected", value)
		}
	}
}

func TestInventoryDateBounds(t *testing.T) {
	// Span over 365 days.
	over := InventoryMessage{
		HotelCode: "001234",
		Records: []InventoryRecord{{
			Start:  date(2025, 6, 1),
			End:    date(2026, 6, 10),
			Counts: []InventoryCount{{Type: CountAvailable, Value: 1}},
		}},
	}
	if _, err := BuildInventory(over, testHeader); err == nil {
		t.Fatalf("spans above 365 days must be rejected")
	}
	// End beyond the 730-day horizon.
	far := InventoryMessage{
		HotelCode: "001234",
		Records: []InventoryRecord{{
			Start:  date(2027, 6, 20),
			End:    date(2027, 6, 25),
			Counts: []InventoryCount{{Type: CountAvailable, Value: 1}},
		}},
	}
	if _, err := BuildInventory(far, testHeader); err == nil {
		t.Fatalf("ranges beyond the 730-day horizon must be rejected")
	}
}

func TestMessageIDFormat(t *testing.T) {
	id := NewMessageID(KindInventory, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if !ValidMessageID(id) {
		t.Fatalf("generated id %q does not match the wire format", id)
	}
	if id[:13] != "INV_20250601_" {
		t.Fatalf("id prefix/date wrong: %q", id)
	}
	if ValidMessageID("inv_20250601_120000_x") {
		t.Fatalf("lowercase prefix must be invalid")
	}
	if ValidMessageID("INV_2025_120000_x") {
		t.Fatalf("short date must be invalid")
	}
}
