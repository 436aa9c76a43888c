package util

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"time"
)

// TempSuffix returns a short, collision-resistant suffix for naming a
// temporary sibling file beside an atomic-replace target: a hash over the
// current process id, the wall-clock time in nanoseconds, and a few bytes
// of randomness.
func TempSuffix() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	h := sha256.New()
	fmt.Fprintf(h, "%d:%d:%x", os.Getpid(), time.Now().UnixNano(), b)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
