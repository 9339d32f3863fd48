package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Invoice returns a human-readable invoice number. The millisecond timestamp
// keeps numbers roughly sortable; the random suffix keeps concurrent commits
// from colliding.
func Invoice() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("INV-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("INV-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
