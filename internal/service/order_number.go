package service

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds a human-readable order number from the UTC time and
// 48 random bits, e.g. ORD-20261015-143055-9F3A1C2B7E4D.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:6]))
	return "ORD-" + now.UTC().Format("20060102-150405") + "-" + suffix
}
