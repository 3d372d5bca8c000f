// Package id generates job identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// Prefix starts every generated ID.
const Prefix = "cut-"

// Generate creates a new unique job ID of the form
// cut-<unix millis>-<12 hex chars>, e.g. cut-1701432000123-a1b2c3d4e5f6.
// IDs generated later sort after earlier ones when compared as strings of
// equal length.
func Generate() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	random := make([]byte, 6)
	if _, err := rand.Read(random); err != nil {
		// Timestamp plus nanoseconds when crypto/rand is unavailable.
		return Prefix + ts + "-" + strconv.FormatInt(time.Now().UnixNano()%1e9, 16)
	}
	return Prefix + ts + "-" + hex.EncodeToString(random)
}
