package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("How do I reset my password?")
	b := Fingerprint("How do I reset my password?")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintNormalization(t *testing.T) {
	base := Fingerprint("how do i reset my password?")

	assert.Equal(t, base, Fingerprint("How Do I Reset My Password?"))
	assert.Equal(t, base, Fingerprint("  how do i   reset my password?  "))
	assert.Equal(t, base, Fingerprint("how\tdo i reset\nmy password?"))
}

func TestFingerprintDistinct(t *testing.T) {
	assert.NotEqual(t, Fingerprint("reset password"), Fingerprint("reset username"))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "reset my password", NormalizeQuery("  Reset   MY\npassword "))
	assert.Equal(t, "", NormalizeQuery("   "))
}
