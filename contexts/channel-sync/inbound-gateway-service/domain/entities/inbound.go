package entities

import "time"

// ProcessedMessage is one accepted inbound payload, keyed by its content
// fingerprint. Retransmissions of the same payload replay the stored
// acknowledgment byte for byte.
type ProcessedMessage struct {
	Fingerprint string
	MessageID   string
	Kind        string
	PropertyID  string
	HotelCode   string
	Ack         []byte
	LogID       string
	ReceivedAt  time.Time
}
