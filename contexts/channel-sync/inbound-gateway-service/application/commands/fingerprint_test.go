package commands

import "testing"

func TestFingerprintIgnoresVolatileAttributes(t *testing.T) {
	original := `<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05" EchoToken="echo-1" TimeStamp="2026-08-24T12:00:00Z" Version="1.0" ResStatus="Commit">` +
		`<HotelReservations><HotelReservation><UniqueID Type="14" ID="CONF-1001"/></HotelReservation></HotelReservations>` +
		`</OTA_HotelResNotifRQ>`

	// Fresh EchoToken and TimeStamp, reordered attributes, extra whitespace.
	retransmission := `<OTA_HotelResNotifRQ ResStatus="Commit" Version="1.0" TimeStamp="2026-08-24T12:05:00Z" EchoToken="echo-2" xmlns="http://www.opentravel.org/OTA/2003/05">
	<HotelReservations>
		<HotelReservation><UniqueID ID="CONF-1001" Type="14"/></HotelReservation>
	</HotelReservations>
</OTA_HotelResNotifRQ>`

	if Fingerprint([]byte(original)) != Fingerprint([]byte(retransmission)) {
		t.Fatalf("retransmission fingerprint differs from the original")
	}
}

func TestFingerprintSeesContentChanges(t *testing.T) {
	base := `<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05" ResStatus="Commit">` +
		`<HotelReservations><HotelReservation><UniqueID Type="14" ID="CONF-1001"/></HotelReservation></HotelReservations>` +
		`</OTA_HotelResNotifRQ>`
	changed := `<OTA_HotelResNotifRQ xmlns="http://www.opentravel.org/OTA/2003/05" ResStatus="Commit">` +
		`<HotelReservations><HotelReservation><UniqueID Type="14" ID="CONF-1002"/></HotelReservation></HotelReservations>` +
		`</OTA_HotelResNotifRQ>`

	if Fingerprint([]byte(base)) == Fingerprint([]byte(changed)) {
		t.Fatalf("different confirmation ids must not collide")
	}
}
