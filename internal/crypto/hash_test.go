package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, SecretSize)
}

func TestHashSecret(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		secret  string
		wantErr bool
	}{
		{
			name:   "successful hash",
			secret: "device_secret_12345678901234567890",
		},
		{
			name:    "empty secret",
			secret:  "",
			wantErr: true,
			errMsg:  "secret cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashSecret(tt.secret)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.secret, hash)
			// bcrypt хеш начинается с идентификатора алгоритма
			assert.Regexp(t, `^\$2[aby]\$`, hash)
		})
	}
}

func TestHashSecret_Salted(t *testing.T) {
	// Одинаковый секрет даёт разные хеши, но оба проверяются
	h1, err := HashSecret("same_secret")
	require.NoError(t, err)
	h2, err := HashSecret("same_secret")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	require.NoError(t, VerifySecret("same_secret", h1))
	require.NoError(t, VerifySecret("same_secret", h2))
}

func TestVerifySecret(t *testing.T) {
	hash, err := HashSecret("correct_secret")
	require.NoError(t, err)

	tests := []struct {
		target  error
		name    string
		secret  string
		hash    string
		wantErr bool
	}{
		{name: "valid", secret: "correct_secret", hash: hash},
		{name: "wrong secret", secret: "wrong_secret", hash: hash, wantErr: true, target: ErrSecretMismatch},
		{name: "empty secret", secret: "", hash: hash, wantErr: true},
		{name: "empty hash", secret: "correct_secret", hash: "", wantErr: true},
		{name: "malformed hash", secret: "correct_secret", hash: "not-bcrypt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySecret(tt.secret, tt.hash)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
