package otaxml

import (
	"bytes"
	"encoding/xml"

	"meridian/internal/shared/soapenv"
)

// BuildAckPayload renders the OTA_*RS acknowledgment for an inbound request.
// EchoToken carries the inbound message identifier so the sender can match
// the acknowledgment to its envelope.
func BuildAckPayload(kind MessageKind, hdr HeaderContext, warnings []soapenv.Warning) []byte {
	root, ok := RootFor(kind)
	if !ok {
		root = "OTA_NotifRQ"
	}
	// OTA_HotelXxxNotifRQ acknowledges as OTA_HotelXxxNotifRS.
	root = root[:len(root)-2] + "RS"

	buf := new(bytes.Buffer)
	buf.WriteString(`<` + root +
		` xmlns="` + nsOTA + `"` +
		` EchoToken="` + escapeAttr(hdr.echoToken()) + `"` +
		` TimeStamp="` + hdr.timestamp() + `"` +
		` Version="1.0"><Success/>`)
	if len(warnings) > 0 {
		buf.WriteString(`<Warnings>`)
		for _, w := range warnings {
			buf.WriteString(`<Warning`)
			if w.Code != "" {
				buf.WriteString(` Code="` + escapeAttr(w.Code) + `"`)
			}
			buf.WriteString(` ShortText="` + escapeAttr(w.Text) + `"/>`)
		}
		buf.WriteString(`</Warnings>`)
	}
	buf.WriteString(`</` + root + `>`)
	return buf.Bytes()
}

func escapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// RootName returns the local name of the first element of a payload, used to
// classify inbound bodies.
func RootName(payload []byte) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, true
		}
	}
}
