// Package otaxml serializes domain DTOs into HTNG payload XML and parses
// incoming HTNG payloads back into DTOs. Builders validate the per-kind
// business limits before serializing; violations surface as validation errors
// from the htngerr taxonomy.
package otaxml

import "meridian/internal/shared/htngerr"

// MessageKind is the closed set of sync streams the engine handles.
type MessageKind string

const (
	KindInventory    MessageKind = "inventory"
	KindRates        MessageKind = "rates"
	KindReservation  MessageKind = "reservation"
	KindRestrictions MessageKind = "restrictions"
	KindGroupBlock   MessageKind = "group_block"

	// Internal kinds emitted on mapping lifecycle changes; they never cross
	// the wire.
	KindMappingCreated MessageKind = "mapping_created"
	KindMappingUpdated MessageKind = "mapping_updated"
	KindMappingDeleted MessageKind = "mapping_deleted"
)

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Root element names per kind, and the message-ID prefix each stream uses.
var kindRoots = map[MessageKind]string{
	KindInventory:    "OTA_HotelInvCountNotifRQ",
	KindRates:        "OTA_HotelRateNotifRQ",
	KindReservation:  "OTA_HotelResNotifRQ",
	KindRestrictions: "OTA_HotelAvailNotifRQ",
	KindGroupBlock:   "OTA_HotelInvBlockNotifRQ",
}

var kindPrefixes = map[MessageKind]string{
	KindInventory:    "INV",
	KindRates:        "RAT",
	KindReservation:  "RES",
	KindRestrictions: "RST",
	KindGroupBlock:   "GRP",
}

var rootKinds = func() map[string]MessageKind {
	m := make(map[string]MessageKind, len(kindRoots))
	for kind, root := range kindRoots {
		m[root] = kind
	}
	return m
}()

// RootFor returns the OTA request root element name for a wire kind.
func RootFor(kind MessageKind) (string, bool) {
	root, ok := kindRoots[kind]
	return root, ok
}

// PrefixFor returns the message-ID prefix for a wire kind.
func PrefixFor(kind MessageKind) string {
	if p, ok := kindPrefixes[kind]; ok {
		return p
	}
	return "MSG"
}

// ClassifyRoot maps an inbound OTA root element to its kind. Unknown roots
// are a hard failure on the inbound path.
func ClassifyRoot(root string) (MessageKind, *htngerr.Error) {
	if kind, ok := rootKinds[root]; ok {
		return kind, nil
	}
	return "", htngerr.New(htngerr.KindValidation, "VAL_UNKNOWN_ROOT", "unsupported message root: "+root)
}

// WireKinds lists the kinds that travel over SOAP, in a stable order.
func WireKinds() []MessageKind {
	return []MessageKind{KindInventory, KindRates, KindReservation, KindRestrictions, KindGroupBlock}
}
