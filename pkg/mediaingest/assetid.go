package mediaingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewAssetID generates a client-side asset id: a millisecond timestamp plus
// a short random suffix. The timestamp prefix makes ids sortable by creation
// time for tie-breaking; the suffix makes collisions negligible without
// being cryptographically guaranteed unique, which is acceptable for this
// domain.
func NewAssetID() string {
	return NewAssetIDAt(time.Now())
}

// NewAssetIDAt is NewAssetID with an explicit creation time.
func NewAssetIDAt(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", t.UnixMilli(), suffix)
}

// AssetIDTime extracts the creation timestamp embedded in an asset id.
// Returns false for ids that do not carry one.
func AssetIDTime(id string) (time.Time, bool) {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
