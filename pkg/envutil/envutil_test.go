package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBool(t *testing.T) {
	t.Setenv("ROUNDUP_TEST_BOOL", "true")
	assert.True(t, Bool("ROUNDUP_TEST_BOOL", false))
	t.Setenv("ROUNDUP_TEST_BOOL", "nope")
	assert.False(t, Bool("ROUNDUP_TEST_BOOL", false))
	assert.True(t, Bool("ROUNDUP_TEST_UNSET", true))
}

func TestString(t *testing.T) {
	t.Setenv("ROUNDUP_TEST_STRING", "x")
	assert.Equal(t, "x", String("ROUNDUP_TEST_STRING", "d"))
	t.Setenv("ROUNDUP_TEST_STRING", "")
	assert.Equal(t, "d", String("ROUNDUP_TEST_STRING", "d"))
}

func TestInt(t *testing.T) {
	t.Setenv("ROUNDUP_TEST_INT", "42")
	assert.Equal(t, 42, Int("ROUNDUP_TEST_INT", 1))
	t.Setenv("ROUNDUP_TEST_INT", "4x2")
	assert.Equal(t, 1, Int("ROUNDUP_TEST_INT", 1))
}
