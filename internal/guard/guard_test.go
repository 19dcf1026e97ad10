package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow(t *testing.T) {
	tests := []struct {
		name            string
		projectKey      string
		forceProduction bool
		want            bool
	}{
		{"test project", "MIGTEST", false, true},
		{"test project with suffix", "MIGTEST2", false, true},
		{"production project", "PAYMENTS", false, false},
		{"prefix elsewhere", "XMIGTEST", false, false},
		{"short key", "MIG", false, false},
		{"production override", "PAYMENTS", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allow(tt.projectKey, tt.forceProduction))
		})
	}
}

func TestCheckOverrides(t *testing.T) {
	assert.NoError(t, CheckOverrides(false, false))
	assert.NoError(t, CheckOverrides(true, false))
	assert.NoError(t, CheckOverrides(false, true))
	assert.ErrorIs(t, CheckOverrides(true, true), ErrConflictingOverrides)
}
