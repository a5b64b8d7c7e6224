package transform

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Slugify lower-cases name, collapses every run of non-alphanumeric
// characters into one hyphen and trims hyphens from both ends.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// randomSuffix returns 6 lower-case hex characters.
func randomSuffix() string {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("transform: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}
