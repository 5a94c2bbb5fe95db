// Package rawpath encodes and decodes raw object keys of the form
// raw/{ownerID}/{assetID}/{fileName}. Both directions are pure functions;
// Resolve is total and never panics on malformed input.
package rawpath

import (
	"fmt"
	"strings"
)

// Prefix is the key prefix under which raw uploads land.
const Prefix = "raw/"

// Ref identifies a raw object by its owner, asset and file name.
type Ref struct {
	OwnerID  string
	AssetID  string
	FileName string
}

// Resolve maps an object key to its Ref. The key must have at least four
// slash-separated segments with the first literally "raw" and none of the
// identifying segments empty. Any other shape returns ok=false.
func Resolve(objectKey string) (Ref, bool) {
	segments := strings.Split(objectKey, "/")
	if len(segments) < 4 || segments[0] != "raw" {
		return Ref{}, false
	}
	ref := Ref{
		OwnerID:  segments[1],
		AssetID:  segments[2],
		FileName: segments[3],
	}
	if ref.OwnerID == "" || ref.AssetID == "" || ref.FileName == "" {
		return Ref{}, false
	}
	return ref, true
}

// Key re-derives the object key from the Ref. Key(Resolve(k)) == k for every
// exactly-four-segment key Resolve accepts; keys with extra segments resolve
// to the first file-name segment and do not round-trip.
func (r Ref) Key() string {
	return fmt.Sprintf("raw/%s/%s/%s", r.OwnerID, r.AssetID, r.FileName)
}
