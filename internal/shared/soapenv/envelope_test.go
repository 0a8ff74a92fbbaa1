package soapenv

import (
	"strings"
	"testing"
	"time"
)

func TestBuildCarriesSecurityAndHeaders(t *testing.T) {
	out, err := Build(BuildRequest{
		Credentials: Credentials{Username: "hotel-user", Password: "secret", HotelCode: "001234"},
		MessageID:   "INV_20250601_120000_abc123",
		Payload:     []byte(`<OTA_HotelInvCountNotifRQ xmlns="` + NSOTA + `"/>`),
		Now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	env := string(out)
	for _, want := range []string{
		`xmlns:soap="` + NSSoap12 + `"`,
		`xmlns:wsse="` + NSWSSE + `"`,
		"<wsse:Username>hotel-user</wsse:Username>",
		"<wsse:Password",
		">secret</wsse:Password>",
		passwordTextType,
		"<wsse:Nonce",
		"<wsu:Created>2025-06-01T12:00:00Z</wsu:Created>",
		"<wsa:MessageID",
		">INV_20250601_120000_abc123</wsa:MessageID>",
		">HTNG2011B_SubmitRequest</wsa:Action>",
		"<OTA_HotelInvCountNotifRQ",
	} {
		if !strings.Contains(env, want) {
			t.Fatalf("envelope missing %q:\n%s", want, env)
		}
	}
}

func TestBuildRejectsEmptyPayload(t *testing.T) {
	_, err := Build(BuildRequest{MessageID: "INV_20250601_120000_x", Payload: []byte("  ")})
	if err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestBuildActionOverride(t *testing.T) {
	out, err := Build(BuildRequest{
		MessageID: "RES_20250601_120000_x",
		Action:    "HTNG2011B_SubmitNotification",
		Payload:   []byte(`<OTA_HotelResNotifRQ xmlns="` + NSOTA + `"/>`),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(string(out), ">HTNG2011B_SubmitNotification</wsa:Action>") {
		t.Fatalf("action override not applied")
	}
}

func TestEndpointFromWSDL(t *testing.T) {
	cases := map[string]string{
		"https://channel.example.com/htng/service?wsdl": "https://channel.example.com/htng/service",
		"https://channel.example.com/htng/service?WSDL": "https://channel.example.com/htng/service",
		"https://channel.example.com/htng/service":      "https://channel.example.com/htng/service",
		" https://host/svc?wsdl ":                       "https://host/svc",
	}
	for in, want := range cases {
		if got := EndpointFromWSDL(in); got != want {
			t.Fatalf("EndpointFromWSDL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTokenRoundTrip(t *testing.T) {
	out, err := Build(BuildRequest{
		Credentials: Credentials{Username: "u1", Password: "p1"},
		MessageID:   "INV_20250601_120000_y",
		Payload:     []byte(`<OTA_HotelInvCountNotifRQ xmlns="` + NSOTA + `"/>`),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	token, ok := ExtractToken(out)
	if !ok {
		t.Fatalf("token not found in built envelope")
	}
	if token.Username != "u1" || token.Password != "p1" {
		t.Fatalf("token mismatch: %+v", token)
	}
	if token.Nonce == "" || token.Created == "" {
		t.Fatalf("nonce and created must be present: %+v", token)
	}
}
