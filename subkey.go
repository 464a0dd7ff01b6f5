package subhub

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coregx/subhub/model"
)

// subKeyPrefix marks subscriber keys allocated by this engine.
const subKeyPrefix = "sk"

// NewSubKey allocates a subscriber key for a subscription of the given
// endpoint type. The key embeds the type tag, the external client ID (when
// present) and a random UUID, making it unique cluster-wide with
// overwhelming probability; the durable store additionally enforces
// uniqueness with an index, and a violation there is treated as a fatal
// KEY_COLLISION rather than a silent overwrite.
//
// Format: sk.<type>.<ext-client-id>.<uuid> or sk.<type>.<uuid>.
func NewSubKey(typ model.EndpointType, extClientID string) string {
	id := uuid.NewString()
	if extClientID == "" {
		return fmt.Sprintf("%s.%s.%s", subKeyPrefix, typ, id)
	}
	return fmt.Sprintf("%s.%s.%s.%s", subKeyPrefix, typ, sanitizeKeyPart(extClientID), id)
}

// sanitizeKeyPart strips characters that would break key parsing or logging
// out of externally supplied client IDs.
func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		}
		return '-'
	}, s)
}
