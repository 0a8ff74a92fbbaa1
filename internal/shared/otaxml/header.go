package otaxml

import (
	"encoding/xml"
	"time"

	"meridian/internal/shared/soapenv"
)

// HeaderContext carries the envelope-level attributes every payload root
// shares.
type HeaderContext struct {
	HotelCode string
	MessageID string
	EchoToken string
	Timestamp time.Time
}

func (h HeaderContext) timestamp() string {
	ts := h.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func (h HeaderContext) echoToken() string {
	if h.EchoToken != "" {
		return h.EchoToken
	}
	return h.MessageID
}

// RawExtension preserves an unknown element found at a known anchor point.
// The engine never interprets these; they round-trip verbatim.
type RawExtension struct {
	XMLName xml.Name
	Raw     string `xml:",innerxml"`
}

const (
	nsOTA  = soapenv.NSOTA
	nsHTNG = soapenv.NSHTNG

	dateFormat = "2006-01-02"
)

func formatDate(t time.Time) string {
	return t.UTC().Format(dateFormat)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateFormat, s, time.UTC)
}
