package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider_GetToken_Success(t *testing.T) {
	expectedToken := "ghp_test_token_123"
	t.Setenv("GITHUB_TOKEN", expectedToken)

	provider := &EnvProvider{}
	token, err := provider.GetToken()

	require.NoError(t, err)
	assert.Equal(t, expectedToken, token)
}

func TestEnvProvider_GetToken_Missing(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	provider := &EnvProvider{}
	token, err := provider.GetToken()

	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
}

func TestGhCliProvider_GetToken(t *testing.T) {
	provider := &GhCliProvider{}
	token, err := provider.GetToken()

	// gh CLI availability depends on the machine; just verify the contract:
	// either a token, or a descriptive error.
	if err != nil {
		assert.Contains(t, err.Error(), "gh")
	} else {
		assert.NotEmpty(t, token)
	}
}

func TestGetToken_EnvPreferred(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env_wins")

	token, err := GetToken()

	require.NoError(t, err)
	assert.Equal(t, "ghp_env_wins", token)
}

func TestGetToken_BothFail_ActionableError(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	// Point PATH at an empty dir so gh cannot be found.
	dir := t.TempDir()
	t.Setenv("PATH", dir)

	token, err := GetToken()

	require.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "gh auth login")
}
