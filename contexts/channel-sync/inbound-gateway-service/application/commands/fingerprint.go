package commands

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"sort"
	"strings"
)

// volatileAttrs change between retransmissions of the same payload and are
// excluded from the fingerprint.
var volatileAttrs = map[string]bool{
	"EchoToken": true,
	"TimeStamp": true,
}

// Fingerprint hashes the canonical form of an OTA payload: elements and
// attributes in document order, attributes sorted by name, inter-element
// whitespace dropped, volatile header attributes excluded. Two
// retransmissions of the same business content always collide.
func Fingerprint(payload []byte) string {
	var canon bytes.Buffer
	dec := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			canon.WriteByte('<')
			canon.WriteString(t.Name.Local)
			attrs := make([]xml.Attr, 0, len(t.Attr))
			for _, attr := range t.Attr {
				if volatileAttrs[attr.Name.Local] || attr.Name.Local == "xmlns" || attr.Name.Space == "xmlns" {
					continue
				}
				attrs = append(attrs, attr)
			}
			sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name.Local < attrs[j].Name.Local })
			for _, attr := range attrs {
				canon.WriteByte(' ')
				canon.WriteString(attr.Name.Local)
				canon.WriteString(`="`)
				canon.WriteString(attr.Value)
				canon.WriteByte('"')
			}
			canon.WriteByte('>')
		case xml.EndElement:
			canon.WriteString("</")
			canon.WriteString(t.Name.Local)
			canon.WriteByte('>')
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text != "" {
				canon.WriteString(text)
			}
		}
	}
	sum := sha256.Sum256(canon.Bytes())
	return hex.EncodeToString(sum[:])
}
