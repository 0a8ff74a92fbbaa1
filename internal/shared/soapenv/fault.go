package soapenv

import (
	"bytes"
	"encoding/xml"
)

// FaultValue is the closed set of SOAP 1.2 fault code values this service
// emits on the inbound endpoint.
type FaultValue string

const (
	FaultClient FaultValue = "Client"
	FaultServer FaultValue = "Server"
)

type faultEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Body    struct {
		XMLName xml.Name `xml:"soap:Body"`
		Fault   struct {
			XMLName xml.Name `xml:"soap:Fault"`
			Code    struct {
				XMLName xml.Name `xml:"soap:Code"`
				Value   string   `xml:"soap:Value"`
			}
			Reason struct {
				XMLName xml.Name `xml:"soap:Reason"`
				Text    string   `xml:"soap:Text"`
			}
		}
	}
}

// BuildFault renders the SOAP 1.2 fault envelope returned to the channel when
// an inbound request cannot be accepted.
func BuildFault(value FaultValue, reason string) []byte {
	env := faultEnvelope{SoapNS: NSSoap12}
	env.Body.Fault.Code.Value = "soap:" + string(value)
	env.Body.Fault.Reason.Text = reason

	buf := new(bytes.Buffer)
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(buf)
	// Marshalling this fixed shape cannot fail.
	_ = enc.Encode(env)
	_ = enc.Flush()
	return buf.Bytes()
}

// BuildAck wraps an OTA acknowledgment payload (built by otaxml) into a plain
// SOAP 1.2 envelope without security headers; acknowledgments flow on the
// already-authenticated inbound connection.
func BuildAck(payload []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + NSSoap12 + `"><soap:Body>`)
	buf.Write(payload)
	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes()
}

// ExtractToken pulls the WSSE UsernameToken out of an inbound envelope.
type InboundToken struct {
	Username string
	Password string
	Nonce    string
	Created  string
}

type inboundSecurity struct {
	XMLName xml.Name `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd Security"`
	Token   struct {
		Username string `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd Username"`
		Password string `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd Password"`
		Nonce    string `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd Nonce"`
		Created  string `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd Created"`
	} `xml:"http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd UsernameToken"`
}

// ExtractToken returns the UsernameToken from a raw inbound envelope, or
// false when the security header is absent.
func ExtractToken(raw []byte) (InboundToken, bool) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return InboundToken{}, false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space == NSWSSE && start.Name.Local == "Security" {
			var sec inboundSecurity
			if err := dec.DecodeElement(&sec, &start); err != nil {
				return InboundToken{}, false
			}
			return InboundToken{
				Username: sec.Token.Username,
				Password: sec.Token.Password,
				Nonce:    sec.Token.Nonce,
				Created:  sec.Token.Created,
			}, true
		}
	}
}

// ExtractBody returns the inner XML of the soap Body of an inbound envelope.
func ExtractBody(raw []byte) ([]byte, bool) {
	var env parsedEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	body := bytes.TrimSpace(env.Body.Raw)
	if len(body) == 0 {
		return nil, false
	}
	return body, true
}
