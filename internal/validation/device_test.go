package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDeviceName(t *testing.T) {
	tests := []struct {
		name       string
		deviceName string
		errMsg     string
		wantErr    bool
	}{
		{name: "valid - lowercase", deviceName: "pixel"},
		{name: "valid - with dash", deviceName: "pixel-7a"},
		{name: "valid - with underscore", deviceName: "phone_01"},
		{name: "valid - max length", deviceName: strings.Repeat("a", 32)},
		{name: "invalid - empty", deviceName: "", wantErr: true, errMsg: "cannot be empty"},
		{name: "invalid - too short", deviceName: "ab", wantErr: true, errMsg: "at least 3"},
		{name: "invalid - too long", deviceName: strings.Repeat("a", 33), wantErr: true, errMsg: "must not exceed 32"},
		{name: "invalid - space", deviceName: "my phone", wantErr: true, errMsg: "can only contain"},
		{name: "invalid - cyrillic", deviceName: "телефон", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceName(tt.deviceName)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "valid", secret: "0123456789abcdef"},
		{name: "empty", secret: "", wantErr: true},
		{name: "too short", secret: "short", wantErr: true},
		{name: "too long", secret: strings.Repeat("x", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLevel(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{name: "zero", value: 0},
		{name: "one", value: 1},
		{name: "middle", value: 0.42},
		{name: "negative", value: -0.01, wantErr: true},
		{name: "above one", value: 1.01, wantErr: true},
		{name: "nan", value: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLevel("soundLevel", tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "soundLevel")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
