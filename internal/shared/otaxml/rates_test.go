package otaxml

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var rateHeader = HeaderContext{
	HotelCode: "001234",
	MessageID: "RAT_20250701_080000_abc123",
	Timestamp: time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC),
}

func barPlan() RatePlanBlock {
	return RatePlanBlock{
		RatePlanCode: "BAR",
		RoomTypeCode: "KING",
		Records: []RateRecord{{
			Start:       date(2025, 7, 1),
			End:         date(2025, 7, 7),
			FirstGuest:  "150.00",
			SecondGuest: "175.00",
		}},
	}
}

func TestRatesRoundTrip(t *testing.T) {
	msg := RateMessage{
		HotelCode: "001234",
		Operation: RateUpdate,
		Plans: []RatePlanBlock{{
			RatePlanCode: "BAR",
			RoomTypeCode: "KING",
			Records: []RateRecord{{
				Start:       date(2025, 7, 1),
				End:         date(2025, 7, 7),
				FirstGuest:  "150.00",
				SecondGuest: "175.00",
				ThirdGuest:  "190.00",
			}},
		}},
	}
	payload, err := BuildRates(msg, rateHeader)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	parsed, err := ParseRates(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// Scope is dispatch metadata and never serialized.
	msg.Scope = ""
	if !reflect.DeepEqual(parsed, msg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, msg)
	}
}

func TestRatesRequireFirstAndSecondGuestAmounts(t *testing.T) {
	cases := []RateRecord{
		{Start: date(2025, 7, 1), End: date(2025, 7, 2), SecondGuest: "175.00"},
		{Start: date(2025, 7, 1), End: date(2025, 7, 2), FirstGuest: "150.00"},
		{Start: date(2025, 7, 1), End: date(2025, 7, 2), ThirdGuest: "120.00", FourthGuest: "110.00"},
	}
	for i, rec := range cases {
		msg := RateMessage{
			HotelCode: "001234",
			Operation: RateUpdate,
			Plans:     []RatePlanBlock{{RatePlanCode: "BAR", Records: []RateRecord{rec}}},
		}
		if _, err := BuildRates(msg, rateHeader); err == nil {
			t.Fatalf("case %d: record without both required guest amounts must be rejected", i)
		}
	}
}

func TestRateAmountFormat(t *testing.T) {
	for _, amount := range []string{"150", "150.0", "150.000", "0.00", "100000.00", "-5.00", "abc"} {
		msg := RateMessage{
			HotelCode: "001234",
			Operation: RateCreate,
			Plans: []RatePlanBlock{{
				RatePlanCode: "BAR",
				Records: []RateRecord{{
					Start:       date(2025, 7, 1),
					End:         date(2025, 7, 2),
					FirstGuest:  amount,
					SecondGuest: "175.00",
				}},
			}},
		}
		if _, err := BuildRates(msg, rateHeader); err == nil {
			t.Fatalf("amount %q must be rejected", amount)
		}
	}
}

func TestRatePlanCodePattern(t *testing.T) {
	for _, code := range []string{"", "THIS_CODE_IS_FAR_TOO_LONG", "BAD CODE", "BAR!"} {
		msg := RateMessage{
			HotelCode: "001234",
			Operation: RateCreate,
			Plans:     []RatePlanBlock{{RatePlanCode: code, Records: barPlan().Records}},
		}
		if _, err := BuildRates(msg, rateHeader); err == nil {
			t.Fatalf("plan code %q must be rejected", code)
		}
	}
}

func TestRatePlanLimit(t *testing.T) {
	msg := RateMessage{HotelCode: "001234", Operation: RateCreate}
	for i := 0; i < maxRatePlansPerEnvelope+1; i++ {
		plan := barPlan()
		plan.RatePlanCode = "P" + strings.Repeat("0", 2) + string(rune('A'+i%26))
		msg.Plans = append(msg.Plans, plan)
	}
	if _, err := BuildRates(msg, rateHeader); err == nil {
		t.Fatalf("more than %d plans must be rejected", maxRatePlansPerEnvelope)
	}
}

func TestRateInactivateNeedsNoRecords(t *testing.T) {
	msg := RateMessage{
		HotelCode: "001234",
		Operation: RateInactivate,
		Plans:     []RatePlanBlock{{RatePlanCode: "BAR"}},
	}
	payload, err := BuildRates(msg, rateHeader)
	if err != nil {
		t.Fatalf("inactivate without records must build: %v", err)
	}
	parsed, err := ParseRates(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Operation != RateInactivate {
		t.Fatalf("operation = %s, want inactivate", parsed.Operation)
	}
}

func TestRateGuestAmountsSortedOnWire(t *testing.T) {
	msg := RateMessage{
		HotelCode: "001234",
		Operation: RateUpdate,
		Plans: []RatePlanBlock{{
			RatePlanCode: "BAR",
			RoomTypeCode: "KING",
			Records: []RateRecord{{
				Start:       date(2025, 7, 1),
				End:         date(2025, 7, 7),
				FirstGuest:  "150.00",
				SecondGuest: "175.00",
				ThirdGuest:  "190.00",
				FourthGuest: "205.00",
			}},
		}},
	}
	payload, err := BuildRates(msg, rateHeader)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	wire := string(payload)
	prev := -1
	for _, attr := range []string{`NumberOfGuests="1"`, `NumberOfGuests="2"`, `NumberOfGuests="3"`, `NumberOfGuests="4"`} {
		pos := strings.Index(wire, attr)
		if pos < 0 {
			t.Fatalf("%s missing from payload:\n%s", attr, wire)
		}
		if pos < prev {
			t.Fatalf("guest amounts must be in ascending guest order:\n%s", wire)
		}
		prev = pos
	}
}
