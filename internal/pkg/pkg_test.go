package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	// When: generating two ids
	first := NewID()
	second := NewID()

	// Then: both are non-empty and distinct
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestGenerateAcceptKey(t *testing.T) {
	// Given: the handshake key from RFC 6455 section 1.3
	key := "dGhlIHNhbXBsZSBub25jZQ=="

	// When: deriving the accept key
	acceptKey := GenerateAcceptKey(key)

	// Then: it matches the value from the RFC
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", acceptKey)
}
