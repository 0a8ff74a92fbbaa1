package htngerr

import "strings"

// Classification order: HTNG code prefix, then well-known opaque codes, then
// case-insensitive substring match on the message. The function is pure so the
// retry behaviour of the whole engine can be pinned in tests.

var prefixKinds = map[string]Kind{
	"AUT": KindAuthentication,
	"VAL": KindValidation,
	"SYS": KindSOAPXML,
	"BUS": KindBusinessLogic,
	"CON": KindConnection,
	"LIM": KindRateLimit,
}

var opaqueKinds = map[string]Kind{
	"EMPTY_RESPONSE":  KindConnection,
	"XML_PARSE_ERROR": KindSOAPXML,
	"SOAP_FAULT":      KindSOAPXML,
}

// substringRules are checked in order; first hit wins.
var substringRules = []struct {
	needles []string
	kind    Kind
}{
	{[]string{"authentica", "credential", "access denied"}, KindAuthentication},
	{[]string{"valid", "required field", "format"}, KindValidation},
	{[]string{"timeout"}, KindTimeout},
	{[]string{"connect"}, KindConnection},
	{[]string{"limit", "too many"}, KindRateLimit},
	{[]string{"xml", "soap", "parse"}, KindSOAPXML},
}

// Classify maps a channel error code and message to a taxonomy kind.
func Classify(code, message string) Kind {
	code = strings.TrimSpace(code)
	if len(code) >= 3 {
		if kind, ok := prefixKinds[strings.ToUpper(code[:3])]; ok {
			return kind
		}
	}
	if kind, ok := opaqueKinds[strings.ToUpper(code)]; ok {
		return kind
	}
	lower := strings.ToLower(message)
	for _, rule := range substringRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

// FromChannel classifies and builds in one step; used when a response carries
// an error code and text from the channel.
func FromChannel(code, message string) *Error {
	return New(Classify(code, message), code, message)
}
