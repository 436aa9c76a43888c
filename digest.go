package persidict

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const digestDelimiter = "_"

// DigestSuffix computes the collision-safe suffix FileDirBackend appends
// to a rendered path component: an MD5 digest of the component's lowercase
// text, hex-encoded, lowercased, and truncated to digestLen characters.
// Returns "" when digestLen <= 0 (suffixing disabled).
func DigestSuffix(original string, digestLen int) string {
	if digestLen <= 0 {
		return ""
	}
	sum := md5.Sum([]byte(strings.ToLower(original)))
	h := strings.ToLower(hex.EncodeToString(sum[:]))
	if digestLen > len(h) {
		digestLen = len(h)
	}
	return digestDelimiter + h[:digestLen]
}

// AddDigestSuffixIfAbsent appends the digest suffix to original, unless
// original already carries the suffix its own (already-suffixed) prefix
// would produce, avoiding accidental double-suffixing on repeated calls.
func AddDigestSuffixIfAbsent(original string, digestLen int) string {
	suffix := DigestSuffix(original, digestLen)
	if suffix == "" {
		return original
	}
	if idx := strings.LastIndex(original, digestDelimiter); idx > 0 {
		if DigestSuffix(original[:idx], digestLen) == original[idx:] {
			return original
		}
	}
	return original + suffix
}

// StripDigestSuffix reverses AddDigestSuffixIfAbsent when listing existing
// files: it strips a trailing suffix only if that suffix is exactly what
// DigestSuffix would compute for the remaining prefix. Names carrying an
// unrelated trailing "_..." are left untouched (treated as foreign) and
// ok is returned false.
func StripDigestSuffix(rendered string, digestLen int) (original string, ok bool) {
	if digestLen <= 0 {
		return rendered, true
	}
	idx := strings.LastIndex(rendered, digestDelimiter)
	if idx < 0 {
		return rendered, false
	}
	candidate := rendered[:idx]
	if candidate == "" {
		return rendered, false
	}
	if DigestSuffix(candidate, digestLen) == rendered[idx:] {
		return candidate, true
	}
	return rendered, false
}
