package pkg

import (
	"crypto/sha1"
	"encoding/base64"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier for players and documents.
func NewID() string {
	return uuid.NewString()
}

const websocketMagicKey = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// GenerateAcceptKey builds the Sec-WebSocket-Accept value for a handshake key.
func GenerateAcceptKey(key string) string {
	hash := sha1.New() //nolint: gosec // mandated by RFC 6455
	hash.Write([]byte(key + websocketMagicKey))
	return base64.StdEncoding.EncodeToString(hash.Sum(nil))
}
