package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 64) // 256 bits, hex-encoded
	assert.NotEqual(t, a, b)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("Mozilla/5.0", "en-KE")
	b := Fingerprint("Mozilla/5.0", "en-KE")
	c := Fingerprint("Mozilla/5.0", "sw-KE")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestExpiredUsesTimeoutMinutes(t *testing.T) {
	now := time.Now()
	m := &Metadata{
		SessionID:      "s",
		CreatedAt:      now.UnixMilli(),
		LastActivityAt: now.UnixMilli(),
		RememberMe:     false,
		TimeoutMinutes: 30,
	}

	assert.False(t, m.Expired(now.Add(29*time.Minute)))
	assert.True(t, m.Expired(now.Add(31*time.Minute)))
}

func TestExpiredRememberMeUses24hCeiling(t *testing.T) {
	now := time.Now()
	m := &Metadata{
		SessionID:      "s",
		CreatedAt:      now.UnixMilli(),
		LastActivityAt: now.UnixMilli(),
		RememberMe:     true,
		TimeoutMinutes: 30, // ignored for remember-me sessions
	}

	assert.False(t, m.Expired(now.Add(23*time.Hour)))
	assert.True(t, m.Expired(now.Add(25*time.Hour)))
}

func TestDecodeMetadataRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       "definitely not json",
		"empty object":   "{}",
		"missing id":     `{"created_at":1,"last_activity_at":1,"session_timeout_minutes":30}`,
		"zero timeout":   `{"session_id":"s","created_at":1,"last_activity_at":1,"session_timeout_minutes":0}`,
		"activity skew":  `{"session_id":"s","created_at":10,"last_activity_at":5,"session_timeout_minutes":30}`,
		"zero createdAt": `{"session_id":"s","created_at":0,"last_activity_at":0,"session_timeout_minutes":30}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeMetadata([]byte(raw))
			assert.Error(t, err)
		})
	}
}
