package bridgeservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodePress_DoorbellTopic(t *testing.T) {
	serial, ok := decodePress("doorbell/", "doorbell/events", []byte(`{"id":647166,"model":"SimpliSafe-Doorbell"}`))

	assert.True(t, ok)
	assert.Equal(t, "647166", serial)
}

func TestDecodePress_StringID(t *testing.T) {
	serial, ok := decodePress("doorbell/", "doorbell/events", []byte(`{"id":"647166"}`))

	assert.True(t, ok)
	assert.Equal(t, "647166", serial)
}

func TestDecodePress_WrongPrefixDropped(t *testing.T) {
	_, ok := decodePress("doorbell/", "weather/outdoor", []byte(`{"id":647166}`))
	assert.False(t, ok)
}

func TestDecodePress_MalformedPayloadDropped(t *testing.T) {
	for _, payload := range []string{"not json", "{}", `{"id":""}`} {
		_, ok := decodePress("doorbell/", "doorbell/events", []byte(payload))
		assert.False(t, ok, "payload %q must be dropped", payload)
	}
}
