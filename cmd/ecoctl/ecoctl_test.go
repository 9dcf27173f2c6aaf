package main

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"eco-agent-backend/config"
	"eco-agent-backend/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestJWTSecret(t *testing.T) {
	out, err := execute(t, "jwt-secret")
	require.NoError(t, err)

	key, err := base64.URLEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestToken(t *testing.T) {
	config.Cfg = config.Default()
	config.Cfg.JWT.SecretKey = "test-secret"

	out, err := execute(t, "token", "--user", "42")
	require.NoError(t, err)

	claims, err := middleware.ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
}

func TestPurgeOwnerRequiresExactlyOneOwner(t *testing.T) {
	purgeUserID, purgeAnonymousID = "", ""
	_, err := purgeOwner()
	assert.Error(t, err)

	purgeUserID, purgeAnonymousID = "1", "anon"
	_, err = purgeOwner()
	assert.Error(t, err)

	purgeUserID, purgeAnonymousID = "", "anon"
	owner, err := purgeOwner()
	require.NoError(t, err)
	assert.Equal(t, "anon", owner.AnonymousID)
	assert.Equal(t, "anonymous anon", ownerLabel(owner))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
}
