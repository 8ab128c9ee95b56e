package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// ResolveUserID derives a user id from the client-supplied token. The token
// is hashed, not verified: this preserves the shape of an authentication
// interface without providing one. An absent token yields a fresh anonymous
// id per connection, so anonymous rate limiting is effectively per-socket.
func ResolveUserID(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		id := uuid.New()
		return "anonymous-" + hex.EncodeToString(id[:4])
	}
	sum := sha256.Sum256([]byte(token))
	return "user-" + hex.EncodeToString(sum[:8])
}
