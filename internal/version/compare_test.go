package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

func TestCheckRequired(t *testing.T) {
	tests := []struct {
		name          string
		running       string
		constraint    string
		expectError   bool
		errorContains string
	}{
		{name: "empty constraint", running: "0.1.0", constraint: ""},
		{name: "blank constraint", running: "0.1.0", constraint: "  "},
		{name: "satisfied lower bound", running: "0.4.2", constraint: ">= 0.4"},
		{name: "satisfied range", running: "0.4.2", constraint: ">= 0.4, < 1"},
		{name: "v prefix ignored", running: "v0.4.2", constraint: "~0.4.0"},
		{name: "development build skips", running: "main", constraint: ">= 9"},
		{
			name:          "too old",
			running:       "0.3.9",
			constraint:    ">= 0.4",
			expectError:   true,
			errorContains: "does not satisfy",
		},
		{
			name:          "too new",
			running:       "1.0.0",
			constraint:    ">= 0.4, < 1",
			expectError:   true,
			errorContains: "does not satisfy",
		},
		{
			name:          "invalid constraint",
			running:       "0.4.0",
			constraint:    "not a constraint",
			expectError:   true,
			errorContains: "invalid required_version",
		},
		{
			name:          "invalid running version",
			running:       "abc",
			constraint:    ">= 0.4",
			expectError:   true,
			errorContains: "invalid agent version",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckRequired(tc.running, tc.constraint)
			if !tc.expectError {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
		})
	}
}

func TestGetVersion(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	Version = "0.4.0"
	assert.Equal(t, "0.4.0", GetVersion())
}
