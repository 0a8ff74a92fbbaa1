package htngerr

import (
	"testing"
	"time"
)

func TestClassifyCorpus(t *testing.T) {
	cases := []struct {
		code    string
		message string
		want    Kind
	}{
		{"AUT001", "invalid token", KindAuthentication},
		{"VAL205", "rate amount out of range", KindValidation},
		{"SYS500", "internal channel failure", KindSOAPXML},
		{"BUS102", "hotel not mapped", KindBusinessLogic},
		{"CON408", "upstream unreachable", KindConnection},
		{"LIM429", "slow down", KindRateLimit},
		{"EMPTY_RESPONSE", "", KindConnection},
		{"XML_PARSE_ERROR", "", KindSOAPXML},
		{"SOAP_FAULT", "", KindSOAPXML},
		{"", "Authentication failed for user", KindAuthentication},
		{"", "credential mismatch", KindAuthentication},
		{"", "Access Denied", KindAuthentication},
		{"", "invalid date range", KindValidation},
		{"", "required field missing: HotelCode", KindValidation},
		{"", "bad amount format", KindValidation},
		{"", "read timeout after 60s", KindTimeout},
		{"", "could not connect to endpoint", KindConnection},
		{"", "rate limit exceeded", KindRateLimit},
		{"", "too many requests", KindRateLimit},
		{"", "unexpected XML element", KindSOAPXML},
		{"", "SOAP envelope rejected", KindSOAPXML},
		{"", "parse failure at byte 120", KindSOAPXML},
		{"", "something odd happened", KindUnknown},
		{"ZZZ999", "no clue", KindUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.code, tc.message); got != tc.want {
			t.Fatalf("Classify(%q, %q) = %s, want %s", tc.code, tc.message, got, tc.want)
		}
	}
}

func TestPolicyTable(t *testing.T) {
	cases := []struct {
		kind     Kind
		retry    bool
		delay    time.Duration
		severity Severity
	}{
		{KindAuthentication, false, 0, SeverityCritical},
		{KindValidation, false, 0, SeverityHigh},
		{KindBusinessLogic, false, 0, SeverityHigh},
		{KindSOAPXML, false, 0, SeverityMedium},
		{KindConnection, true, 30 * time.Second, SeverityMedium},
		{KindTimeout, true, 60 * time.Second, SeverityMedium},
		{KindRateLimit, true, 120 * time.Second, SeverityMedium},
		{KindWarning, false, 0, SeverityLow},
		{KindUnknown, true, 60 * time.Second, SeverityMedium},
	}
	for _, tc := range cases {
		p := PolicyFor(tc.kind)
		if p.CanRetry != tc.retry || p.RetryDelay != tc.delay || p.Severity != tc.severity {
			t.Fatalf("PolicyFor(%s) = %+v, want retry=%v delay=%s severity=%s",
				tc.kind, p, tc.retry, tc.delay, tc.severity)
		}
	}
}

func TestNewAppliesPolicy(t *testing.T) {
	err := New(KindTimeout, "CON_TIMEOUT", "post timed out")
	if !err.CanRetry {
		t.Fatalf("timeout errors must be retryable")
	}
	if err.RetryDelay != 60*time.Second {
		t.Fatalf("timeout delay = %s, want 60s", err.RetryDelay)
	}
	if err.Severity != SeverityMedium {
		t.Fatalf("timeout severity = %s, want medium", err.Severity)
	}
	if err.Error() != "timeout [CON_TIMEOUT]: post timed out" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestFromChannelUsesClassification(t *testing.T) {
	err := FromChannel("AUT014", "token expired")
	if err.Kind != KindAuthentication {
		t.Fatalf("kind = %s, want authentication", err.Kind)
	}
	if err.CanRetry {
		t.Fatalf("authentication errors must not be retryable")
	}
}
