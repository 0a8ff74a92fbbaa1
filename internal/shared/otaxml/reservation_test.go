package otaxml

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var resHeader = HeaderContext{
	HotelCode: "001234",
	MessageID: "RES_20250601_120000_abc123",
	Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
}

func sampleReservation() Reservation {
	return Reservation{
		HotelCode:      "001234",
		ConfirmationID: "CONF-998877",
		Status:         ReservationConfirmed,
		Guests:         []Guest{{FirstName: "John", LastName: "Doe"}},
		RoomStays: []RoomStay{{
			RoomTypeCode: "KING",
			CheckIn:      date(2025, 6, 10),
			CheckOut:     date(2025, 6, 13),
			Units:        1,
		}},
		SpecialRequests: []string{"late arrival"},
	}
}

func TestReservationRoundTrip(t *testing.T) {
	res := sampleReservation()
	payload, err := BuildReservation(res, resHeader)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	parsed, err := ParseReservation(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(parsed, res) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, res)
	}
}

func TestReservationStatusWire(t *testing.T) {
	cases := map[ReservationStatus]string{
		ReservationConfirmed: `ResStatus="Commit"`,
		ReservationCancelled: `ResStatus="Cancel"`,
		ReservationModified:  `ResStatus="Modify"`,
	}
	for status, want := range cases {
		res := sampleReservation()
		res.Status = status
		payload, err := BuildReservation(res, resHeader)
		if err != nil {
			t.Fatalf("build failed for %s: %v", status, err)
		}
		if !strings.Contains(string(payload), want) {
			t.Fatalf("payload for %s missing %s", status, want)
		}
		parsed, err := ParseReservation(payload)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if parsed.Status != status {
			t.Fatalf("status round trip: got %s, want %s", parsed.Status, status)
		}
	}
}

func TestReservationRequiresGuestNames(t *testing.T) {
	res := sampleReservation()
	res.Guests = []Guest{{FirstName: " ", LastName: "Doe"}}
	if _, err := BuildReservation(res, resHeader); err == nil {
		t.Fatalf("blank first name must be rejected")
	}
	res.Guests = nil
	if _, err := BuildReservation(res, resHeader); err == nil {
		t.Fatalf("reservation without guests must be rejected")
	}
}

func TestReservationNightBounds(t *testing.T) {
	res := sampleReservation()
	res.RoomStays[0].CheckOut = res.RoomStays[0].CheckIn
	if _, err := BuildReservation(res, resHeader); err == nil {
		t.Fatalf("zero-night stay must be rejected")
	}
	res = sampleReservation()
	res.RoomStays[0].CheckOut = res.RoomStays[0].CheckIn.AddDate(0, 0, 400)
	if _, err := BuildReservation(res, resHeader); err == nil {
		t.Fatalf("stays above 365 nights must be rejected")
	}
}

func TestReservationSpecialRequestCap(t *testing.T) {
	res := sampleReservation()
	res.SpecialRequests = make([]string, maxSpecialRequests+1)
	for i := range res.SpecialRequests {
		res.SpecialRequests[i] = "pillow"
	}
	if _, err := BuildReservation(res, resHeader); err == nil {
		t.Fatalf("more than %d special requests must be rejected", maxSpecialRequests)
	}
}

func TestParseReservationRejectsMultiple(t *testing.T) {
	res := sampleReservation()
	payload, err := BuildReservation(res, resHeader)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	// Duplicate the single HotelReservation element.
	inner := strings.SplitN(string(payload), "<HotelReservations>", 2)[1]
	inner = strings.SplitN(inner, "</HotelReservations>", 2)[0]
	two := strings.Replace(string(payload), inner, inner+inner, 1)
	if _, err := ParseReservation([]byte(two)); err == nil {
		t.Fatalf("two reservations per envelope must be rejected")
	}
}

func TestStatusFromResStatus(t *testing.T) {
	if StatusFromResStatus("Cancel") != ReservationCancelled {
		t.Fatalf("Cancel must map to cancelled")
	}
	if StatusFromResStatus("Modify") != ReservationModified {
		t.Fatalf("Modify must map to modified")
	}
	if StatusFromResStatus("Commit") != ReservationConfirmed {
		t.Fatalf("Commit must map to confirmed")
	}
	if StatusFromResStatus("") != ReservationConfirmed {
		t.Fatalf("absent ResStatus must map to confirmed")
	}
}
