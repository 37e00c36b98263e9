package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashToken digests a bearer token for storage and lookup. Raw token values
// never reach the database.
func HashToken(raw, pepper string) string {
	if raw == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
