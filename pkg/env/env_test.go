package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("AGORA_TEST_STRING", "hello")
	assert.Equal(t, "hello", GetEnvString("AGORA_TEST_STRING", "fallback"))
	assert.Equal(t, "fallback", GetEnvString("AGORA_TEST_MISSING", "fallback"))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("AGORA_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("AGORA_TEST_BOOL", false))

	t.Setenv("AGORA_TEST_BOOL_BAD", "not-a-bool")
	assert.True(t, GetEnvBool("AGORA_TEST_BOOL_BAD", true))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AGORA_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("AGORA_TEST_INT", 7))

	t.Setenv("AGORA_TEST_INT_BAD", "forty-two")
	assert.Equal(t, 7, GetEnvInt("AGORA_TEST_INT_BAD", 7))
}

func TestGetEnvInt64(t *testing.T) {
	t.Setenv("AGORA_TEST_INT64", "9000000000")
	assert.Equal(t, int64(9000000000), GetEnvInt64("AGORA_TEST_INT64", 1))
	assert.Equal(t, int64(1), GetEnvInt64("AGORA_TEST_INT64_MISSING", 1))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("AGORA_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("AGORA_TEST_DURATION", time.Minute))

	t.Setenv("AGORA_TEST_DURATION_BAD", "ninety")
	assert.Equal(t, time.Minute, GetEnvDuration("AGORA_TEST_DURATION_BAD", time.Minute))
}
