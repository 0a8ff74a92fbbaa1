package otaxml

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message identifiers follow PREFIX_YYYYMMDD_HHMMSS_SUFFIX. They are generated
// here for outbound envelopes and treated as opaque on inbound ones.
var messageIDPattern = regexp.MustCompile(`^[A-Z]+_\d{8}_\d{6}_[A-Za-z0-9]+$`)

// NewMessageID generates an identifier for an outbound envelope of the given
// kind at the given instant.
func NewMessageID(kind MessageKind, now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return PrefixFor(kind) + "_" + now.UTC().Format("20060102_150405") + "_" + suffix
}

// ValidMessageID reports whether an identifier matches the wire format.
func ValidMessageID(id string) bool {
	return messageIDPattern.MatchString(id)
}
