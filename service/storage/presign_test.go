package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	valid := []string{
		"pdfs/comprehensive-plan-2025.pdf",
		"olympia/climate/action-plan.pdf",
	}
	for _, key := range valid {
		assert.NoError(t, ValidateKey(key), key)
	}

	invalid := []string{"", "/etc/passwd", "pdfs/../secrets.pdf", ".."}
	for _, key := range invalid {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}
