package fraud

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opensurvey/kestrel/internal/domain"
)

// Fingerprinter derives a stable device fingerprint from client
// attributes. The hash recognizes repeat devices across sessions
// without using the raw attributes as a key. Pluggable so deployments
// can change the attribute set without touching the calculator.
type Fingerprinter interface {
	Fingerprint(attrs domain.DeviceAttributes) string
}

// SHA256Fingerprinter hashes a canonicalized tuple of device
// attributes. Field order is fixed; changing it would rotate every
// fingerprint in the history, so treat the layout as a wire format.
type SHA256Fingerprinter struct{}

func (SHA256Fingerprinter) Fingerprint(attrs domain.DeviceAttributes) string {
	if attrs == (domain.DeviceAttributes{}) {
		return ""
	}

	canonical := strings.Join([]string{
		strings.TrimSpace(attrs.UserAgent),
		fmt.Sprintf("%dx%d", attrs.ScreenWidth, attrs.ScreenHeight),
		strings.TrimSpace(attrs.Timezone),
		strings.ToLower(strings.TrimSpace(attrs.Language)),
		strings.TrimSpace(attrs.Platform),
		fmt.Sprintf("%d", attrs.ColorDepth),
		fmt.Sprintf("%t", attrs.TouchSupport),
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
