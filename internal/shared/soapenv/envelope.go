// Package soapenv builds and parses the SOAP 1.2 envelopes exchanged with the
// HTNG 2011B channel, including the WSSE UsernameToken header the channel
// authenticates with.
package soapenv

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	NSSoap12 = "http://www.w3.org/2003/05/soap-envelope"
	NSOTA    = "http://www.opentravel.org/OTA/2003/05"
	NSHTNG   = "http://htng.org/PWS/2011B/SingleGuestItinerary/Common/Types"
	NSWSSE   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	NSWSU    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	NSWSA    = "http://www.w3.org/2005/08/addressing"

	passwordTextType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"

	// DefaultAction is the HTNG submit action unless a caller overrides it.
	DefaultAction = "HTNG2011B_SubmitRequest"
)

// Credentials is the WSSE UsernameToken material for one property.
type Credentials struct {
	Username  string
	Password  string
	HotelCode string
}

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Header  envelopeHeader
	Body    envelopeBody
}

type envelopeHeader struct {
	XMLName   xml.Name `xml:"soap:Header"`
	Security  wsseSecurity
	MessageID wsaText `xml:"wsa:MessageID"`
	Action    wsaText `xml:"wsa:Action"`
}

type wsaText struct {
	WsaNS string `xml:"xmlns:wsa,attr"`
	Value string `xml:",chardata"`
}

type wsseSecurity struct {
	XMLName        xml.Name `xml:"wsse:Security"`
	WsseNS         string   `xml:"xmlns:wsse,attr"`
	WsuNS          string   `xml:"xmlns:wsu,attr"`
	MustUnderstand string   `xml:"soap:mustUnderstand,attr,omitempty"`
	Token          wsseUsernameToken
}

type wsseUsernameToken struct {
	XMLName  xml.Name     `xml:"wsse:UsernameToken"`
	ID       string       `xml:"wsu:Id,attr,omitempty"`
	Username string       `xml:"wsse:Username"`
	Password wssePassword `xml:"wsse:Password"`
	Nonce    wsseNonce    `xml:"wsse:Nonce"`
	Created  string       `xml:"wsu:Created"`
}

type wssePassword struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

type wsseNonce struct {
	EncodingType string `xml:"EncodingType,attr,omitempty"`
	Value        string `xml:",chardata"`
}

type envelopeBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Payload []byte   `xml:",innerxml"`
}

// BuildRequest wraps one HTNG payload into a signed SOAP 1.2 envelope.
// The payload must be a single well-formed XML root; callers get it from the
// otaxml builders.
type BuildRequest struct {
	Credentials Credentials
	MessageID   string
	Action      string
	Payload     []byte
	Now         time.Time
}

func Build(req BuildRequest) ([]byte, error) {
	if len(bytes.TrimSpace(req.Payload)) == 0 {
		return nil, fmt.Errorf("soap envelope requires a payload body")
	}
	if strings.TrimSpace(req.MessageID) == "" {
		return nil, fmt.Errorf("soap envelope requires a message id")
	}
	action := req.Action
	if action == "" {
		action = DefaultAction
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	nonce := base64.StdEncoding.EncodeToString([]byte(uuid.NewString()))
	env := envelope{
		SoapNS: NSSoap12,
		Header: envelopeHeader{
			Security: wsseSecurity{
				WsseNS:         NSWSSE,
				WsuNS:          NSWSU,
				MustUnderstand: "true",
				Token: wsseUsernameToken{
					ID:       "UsernameToken-" + uuid.NewString(),
					Username: req.Credentials.Username,
					Password: wssePassword{Type: passwordTextType, Value: req.Credentials.Password},
					Nonce:    wsseNonce{Value: nonce},
					Created:  now.UTC().Format(time.RFC3339),
				},
			},
			MessageID: wsaText{WsaNS: NSWSA, Value: req.MessageID},
			Action:    wsaText{WsaNS: NSWSA, Value: action},
		},
		Body: envelopeBody{Payload: req.Payload},
	}

	buf := new(bytes.Buffer)
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(buf)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encode soap envelope: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EndpointFromWSDL derives the POST endpoint from a configured WSDL URL.
func EndpointFromWSDL(wsdlURL string) string {
	trimmed := strings.TrimSpace(wsdlURL)
	if idx := strings.LastIndex(strings.ToLower(trimmed), "?wsdl"); idx >= 0 && idx == len(trimmed)-len("?wsdl") {
		return trimmed[:idx]
	}
	return trimmed
}
