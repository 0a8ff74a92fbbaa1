package soapenv

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"meridian/internal/shared/htngerr"
)

// Warning is a non-fatal OTA warning element.
type Warning struct {
	Code string
	Text string
}

// Response is the structured outcome of one channel exchange.
type Response struct {
	MessageID    string
	Raw          string
	EchoToken    string
	Headers      map[string]string
	DurationMS   int64
	Success      bool
	Warnings     []Warning
	ErrorKind    htngerr.Kind
	ErrorCode    string
	ErrorMessage string
}

// Err converts a failed response into a taxonomy error; nil when successful.
func (r *Response) Err() *htngerr.Error {
	if r.Success {
		return nil
	}
	return htngerr.New(r.ErrorKind, r.ErrorCode, r.ErrorMessage)
}

type parsedEnvelope struct {
	XMLName xml.Name   `xml:"http://www.w3.org/2003/05/soap-envelope Envelope"`
	Header  rawSection `xml:"http://www.w3.org/2003/05/soap-envelope Header"`
	Body    rawSection `xml:"http://www.w3.org/2003/05/soap-envelope Body"`
}

type rawSection struct {
	Raw []byte `xml:",innerxml"`
}

type soap12Fault struct {
	XMLName xml.Name `xml:"http://www.w3.org/2003/05/soap-envelope Fault"`
	Code    struct {
		Value   string `xml:"http://www.w3.org/2003/05/soap-envelope Value"`
		Subcode struct {
			Value string `xml:"http://www.w3.org/2003/05/soap-envelope Value"`
		} `xml:"http://www.w3.org/2003/05/soap-envelope Subcode"`
	} `xml:"http://www.w3.org/2003/05/soap-envelope Code"`
	Reason struct {
		Text []string `xml:"http://www.w3.org/2003/05/soap-envelope Text"`
	} `xml:"http://www.w3.org/2003/05/soap-envelope Reason"`
	// SOAP 1.1 fallback fields; some gateways answer 1.1 faults on a 1.2
	// endpoint.
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

type otaError struct {
	Code      string `xml:"Code,attr"`
	Type      string `xml:"Type,attr"`
	ShortText string `xml:"ShortText,attr"`
	Text      string `xml:",chardata"`
}

type otaPayload struct {
	EchoToken string     `xml:"EchoToken,attr"`
	TimeStamp string     `xml:"TimeStamp,attr"`
	Success   *struct{}  `xml:"http://www.opentravel.org/OTA/2003/05 Success"`
	Errors    []otaError `xml:"http://www.opentravel.org/OTA/2003/05 Errors>Error"`
	Warnings  []otaError `xml:"http://www.opentravel.org/OTA/2003/05 Warnings>Warning"`
}

// ParseResponse interprets the raw bytes returned by the channel for the
// envelope identified by messageID. sentAt drives the recorded duration.
func ParseResponse(messageID string, raw []byte, sentAt time.Time) *Response {
	resp := &Response{
		MessageID: messageID,
		Raw:       string(raw),
		Headers:   map[string]string{},
	}
	if !sentAt.IsZero() {
		resp.DurationMS = time.Since(sentAt).Milliseconds()
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		resp.fail("EMPTY_RESPONSE", "channel returned an empty response body")
		return resp
	}

	var env parsedEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		resp.fail("XML_PARSE_ERROR", "response is not a SOAP 1.2 envelope: "+err.Error())
		return resp
	}
	body := env.Body.Raw
	if len(bytes.TrimSpace(body)) == 0 {
		resp.fail("EMPTY_RESPONSE", "soap body is empty")
		return resp
	}

	if fault, ok := extractFault(body); ok {
		code := fault.Code.Subcode.Value
		if code == "" {
			code = fault.Code.Value
		}
		reason := strings.Join(fault.Reason.Text, "; ")
		if code == "" && fault.FaultCode != "" {
			code = fault.FaultCode
			reason = fault.FaultString
		}
		if code == "" {
			code = "SOAP_FAULT"
		}
		if reason == "" {
			reason = "soap fault without reason text"
		}
		resp.fail(code, reason)
		return resp
	}

	payload, ok := extractOTAPayload(body)
	if !ok {
		resp.fail("XML_PARSE_ERROR", "soap body carries no OTA payload")
		return resp
	}
	resp.EchoToken = payload.EchoToken
	if payload.TimeStamp != "" {
		resp.Headers["TimeStamp"] = payload.TimeStamp
	}

	for _, warning := range payload.Warnings {
		resp.Warnings = append(resp.Warnings, Warning{
			Code: warningCode(warning),
			Text: warningText(warning),
		})
	}

	if len(payload.Errors) > 0 {
		texts := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			texts = append(texts, warningText(e))
		}
		code := warningCode(payload.Errors[0])
		message := strings.Join(texts, "; ")
		resp.ErrorKind = htngerr.Classify(code, message)
		resp.ErrorCode = code
		resp.ErrorMessage = message
		return resp
	}

	// Success element, or an OTA payload with neither errors nor a fault.
	resp.Success = true
	return resp
}

func (r *Response) fail(code, message string) {
	r.Success = false
	r.ErrorKind = htngerr.Classify(code, message)
	r.ErrorCode = code
	r.ErrorMessage = message
}

func extractFault(body []byte) (soap12Fault, bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return soap12Fault{}, false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "Fault" {
			continue
		}
		var fault soap12Fault
		if start.Name.Space == NSSoap12 {
			if err := dec.DecodeElement(&fault, &start); err != nil {
				return soap12Fault{}, false
			}
			return fault, true
		}
		// Unqualified or SOAP 1.1 fault.
		var legacy struct {
			FaultCode   string `xml:"faultcode"`
			FaultString string `xml:"faultstring"`
		}
		if err := dec.DecodeElement(&legacy, &start); err != nil {
			return soap12Fault{}, false
		}
		fault.FaultCode = legacy.FaultCode
		fault.FaultString = legacy.FaultString
		return fault, true
	}
}

func extractOTAPayload(body []byte) (otaPayload, bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return otaPayload{}, false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space != NSOTA {
			continue
		}
		var payload otaPayload
		if err := dec.DecodeElement(&payload, &start); err != nil {
			return otaPayload{}, false
		}
		return payload, true
	}
}

func warningCode(e otaError) string {
	if e.Code != "" {
		return e.Code
	}
	return e.Type
}

func warningText(e otaError) string {
	if strings.TrimSpace(e.ShortText) != "" {
		return strings.TrimSpace(e.ShortText)
	}
	return strings.TrimSpace(e.Text)
}
