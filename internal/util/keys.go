package util

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// RawKey joins prefix, an optional resolved namespace and the key segments
// with "/": prefix/[namespace/]seg1/seg2/...
func RawKey(prefix string, namespace string, hasNamespace bool, segments []string) string {
	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, prefix)
	if hasNamespace {
		parts = append(parts, namespace)
	}
	parts = append(parts, segments...)
	return strings.Join(parts, "/")
}

// maxFileName keeps generated names under common 255-byte filesystem limits.
const maxFileName = 200

// fileNameEscaper frees "_" to stand for "/" and reserves "~" for hashed names.
var fileNameEscaper = strings.NewReplacer("%", "%25", "_", "%5F", "~", "%7E", "/", "_")

// FileName maps a raw key to a single flat file name. The mapping is
// injective: "%", "_" and "~" are percent-escaped, then "/" becomes "_", and
// a leading "." is escaped so no key maps to "." or "..", or to a hidden temp
// file. Names that would be too long are replaced by their escaped head plus
// "~" and a hash of the full key; unhashed names never contain "~".
func FileName(rawKey string) string {
	name := fileNameEscaper.Replace(rawKey)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	if name != "" && len(name) <= maxFileName {
		return name
	}
	sum := sha256.Sum256([]byte(rawKey))
	head := name
	if len(head) > 64 {
		head = head[:64]
	}
	return fmt.Sprintf("%s~%x", head, sum[:8])
}
